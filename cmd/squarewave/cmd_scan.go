/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/squarewave/internal/db"
	"github.com/friendsincode/squarewave/internal/library"
	"github.com/friendsincode/squarewave/internal/persistence"
)

var scanRoot string

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Index the music directory into the database",
	Long: `Walk the music directory, read tags and loop points, and update the track library.

Tracks whose files disappeared are removed from the library and the now-playing queue.

Examples:
  # Scan the configured SQUAREWAVE_MUSIC_DIR
  squarewave scan

  # Scan another directory
  squarewave scan --root /mnt/vgm
`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVar(&scanRoot, "root", "", "Music directory (defaults to SQUAREWAVE_MUSIC_DIR)")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	if scanRoot == "" {
		scanRoot = cfg.MusicDir
	}

	database, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close(database)

	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scanner := library.NewScanner(scanRoot, persistence.New(database, logger), nil, logger)
	result, err := scanner.Scan(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "scanned %d files: %d indexed, %d removed, %d errors in %s\n",
		result.Files, result.Indexed, result.Removed, result.Errors, result.Duration.Round(time.Millisecond))
	return nil
}
