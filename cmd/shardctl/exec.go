package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/shardkit/shardkit/internal/ast"
	"github.com/shardkit/shardkit/internal/session"
)

var stmtFlag string

var execCmd = &cobra.Command{
	Use:   "exec",
	Short: "execute one JSON-encoded statement against --dir and print its result as JSON",
	Long: "exec reads one statement (the JSON shape of ast.Statement) from --stmt, " +
		"or from stdin if --stmt is empty, runs it against --dir, and prints the " +
		"result as a JSON line.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireDir(cmd); err != nil {
			return err
		}
		line := stmtFlag
		if line == "" {
			scanner := bufio.NewScanner(os.Stdin)
			if !scanner.Scan() {
				return fmt.Errorf("exec: no statement on stdin")
			}
			line = scanner.Text()
		}

		db, err := session.Open(dbDir, parseLine, nil)
		if err != nil {
			return fmt.Errorf("exec: %w", err)
		}
		defer db.Close()

		result, err := execLine(db, line)
		if err != nil {
			return fmt.Errorf("exec: %w", err)
		}
		return printResult(result)
	},
}

func init() {
	execCmd.Flags().StringVar(&stmtFlag, "stmt", "", "JSON-encoded statement (reads stdin if omitted)")
}

// execLine decodes line into a Statement, fills in RawSQL for DDL kinds so
// .state.txt replay stays in lockstep with the same codec exec used, and
// runs it.
func execLine(db *session.Database, line string) (any, error) {
	stmt, err := parseLine(strings.TrimSuffix(strings.TrimSpace(line), ";"))
	if err != nil {
		return nil, err
	}
	switch stmt.Kind {
	case ast.KindCreateTable:
		if stmt.CreateTable.RawSQL == "" {
			stmt.CreateTable.RawSQL = line
		}
	case ast.KindCreateIndex:
		if stmt.CreateIndex.RawSQL == "" {
			stmt.CreateIndex.RawSQL = line
		}
	}
	return db.Connect().Exec(context.Background(), stmt)
}

func printResult(result any) error {
	enc := json.NewEncoder(os.Stdout)
	return enc.Encode(result)
}
