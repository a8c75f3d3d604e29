package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/shardkit/shardkit/internal/session"
)

// closeCmd opens and immediately closes --dir, rewriting .state.txt from
// the catalog it replayed. Useful after a .state.txt has been hand-edited,
// or simply to confirm a directory left open by a crashed process is
// actually flushable.
var closeCmd = &cobra.Command{
	Use:   "close",
	Short: "reopen --dir and flush its catalog state back to disk",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireDir(cmd); err != nil {
			return err
		}
		db, err := session.Open(dbDir, parseLine, nil)
		if err != nil {
			return fmt.Errorf("close: %w", err)
		}
		if err := db.Close(); err != nil {
			return fmt.Errorf("close: %w", err)
		}
		fmt.Println("ok")
		return nil
	},
}
