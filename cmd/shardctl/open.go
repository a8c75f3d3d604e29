package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/shardkit/shardkit/internal/session"
)

var openCmd = &cobra.Command{
	Use:   "open",
	Short: "validate that --dir opens cleanly and close it again",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireDir(cmd); err != nil {
			return err
		}
		db, err := session.Open(dbDir, parseLine, nil)
		if err != nil {
			return fmt.Errorf("open: %w", err)
		}
		if err := db.Close(); err != nil {
			return fmt.Errorf("open: closing after validation: %w", err)
		}
		fmt.Println("ok")
		return nil
	},
}
