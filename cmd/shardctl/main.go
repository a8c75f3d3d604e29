// Command shardctl is the minimal CLI surface §6 asks for: open/exec/close
// against a database directory, plus a REPL mode reading one statement per
// line until EOF (original_source/bin/cli.cc's line-buffered loop).
//
// The AST parser is out of scope of this module (§1) — shardctl's "exec"
// surface is the typed AST contract itself: each statement is a single
// line of JSON shaped like ast.Statement, not SQL text. A caller sitting in
// front of a real parser would marshal its parsed statement to this shape
// before handing it to shardctl.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/shardkit/shardkit/internal/dbglog"
)

var (
	dbDir   string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "shardctl",
	Short: "shardctl - privacy-sharded relational storage engine control",
	Long:  "shardctl drives a sharded, privacy-compliant relational database directory: open it, exec one statement, or close it.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		dbglog.SetVerbose(verbose)
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&dbDir, "dir", "", "database directory (required)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "log debug-level session activity to stderr")
	rootCmd.AddCommand(openCmd, execCmd, closeCmd, replCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func requireDir(cmd *cobra.Command) error {
	if dbDir == "" {
		return fmt.Errorf("%s: --dir is required", cmd.Name())
	}
	return nil
}
