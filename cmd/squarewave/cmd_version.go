/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/friendsincode/squarewave/internal/engine"
	"github.com/friendsincode/squarewave/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		output := "silent"
		if engine.AudioAvailable {
			output = "speaker"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s audio output: %s\n", version.String(), output)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
