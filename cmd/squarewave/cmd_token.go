/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/friendsincode/squarewave/internal/auth"
)

var (
	tokenClient string
	tokenTTL    time.Duration
	tokenRead   bool
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a remote-control token",
	Long: `Issue a JWT for the remote-control API, signed with SQUAREWAVE_JWT_SIGNING_KEY.

Examples:
  # Token that can control playback, valid for 30 days
  squarewave token --client phone --ttl 720h

  # Read-only token for a now-playing display
  squarewave token --client overlay --read-only
`,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenClient, "client", "", "Client name (defaults to a random id)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "Token lifetime (0 = no expiry)")
	tokenCmd.Flags().BoolVar(&tokenRead, "read-only", false, "Only grant read access")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	if cfg.JWTSigningKey == "" {
		return errors.New("SQUAREWAVE_JWT_SIGNING_KEY is not set; the API is open and needs no token")
	}
	if tokenClient == "" {
		tokenClient = uuid.NewString()
	}

	scopes := []string{auth.ScopeRead}
	if !tokenRead {
		scopes = append(scopes, auth.ScopeRemote)
	}

	token, err := auth.Issue([]byte(cfg.JWTSigningKey), auth.Claims{ClientID: tokenClient, Scopes: scopes}, tokenTTL)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
