/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/friendsincode/squarewave/internal/remote"
)

var playAutostart bool

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Play from the terminal with keyboard controls",
	Long: `Run the player in the foreground and control it from the keyboard.

The HTTP API and other remote sources stay available while playing.

Keys:
  ` + remote.KeyHelp,
	RunE: runPlay,
}

func init() {
	playCmd.Flags().BoolVar(&playAutostart, "autostart", true, "Start playing the restored queue immediately")
	rootCmd.AddCommand(playCmd)
}

func runPlay(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	shutdownTracing, err := initTracing()
	if err != nil {
		return err
	}
	defer shutdownTracing()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := startServer(ctx)
	if err != nil {
		return err
	}
	defer stopServer(srv)

	if playAutostart {
		srv.Orchestrator().Play()
	}

	keys := remote.NewKeyboardSource(srv.Bridge(), os.Stdin, cmd.OutOrStdout())
	return keys.Run(ctx)
}
