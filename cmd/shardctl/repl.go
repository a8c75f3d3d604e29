package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/shardkit/shardkit/internal/session"
)

// replCmd mirrors original_source/bin/cli.cc's line-buffered read loop: one
// statement per line, executed as it arrives, until EOF. A trailing ';' is
// tolerated and stripped, matching the original's terminator convention,
// though the wire format here is one JSON statement per line rather than
// free-form SQL text.
var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "read JSON-encoded statements from stdin, one per line, until EOF",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireDir(cmd); err != nil {
			return err
		}
		db, err := session.Open(dbDir, parseLine, nil)
		if err != nil {
			return fmt.Errorf("repl: %w", err)
		}
		defer db.Close()

		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			result, err := execLine(db, line)
			if err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
				continue
			}
			if err := printResult(result); err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
			}
		}
		return scanner.Err()
	},
}
