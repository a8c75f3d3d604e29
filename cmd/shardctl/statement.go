package main

import (
	"encoding/json"
	"fmt"

	"github.com/shardkit/shardkit/internal/ast"
)

// parseLine decodes one line of the typed-AST contract: a JSON-encoded
// ast.Statement. This is what session.Open replays .state.txt through, and
// what exec/repl decode each input line with — the same codec on both
// sides, since shardctl has no SQL parser of its own to keep them in sync.
func parseLine(line string) (*ast.Statement, error) {
	var stmt ast.Statement
	if err := json.Unmarshal([]byte(line), &stmt); err != nil {
		return nil, fmt.Errorf("parseLine: %w", err)
	}
	return &stmt, nil
}
