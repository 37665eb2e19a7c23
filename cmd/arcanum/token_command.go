// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tomtom215/arcanum/internal/auth"
)

func newTokenCommand(ctx *commandContext) *cobra.Command {
	var userID string
	var name string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a session token for a user (development)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.Security.AuthMode != auth.AuthModeJWT {
				return errors.New("sessions are disabled (AUTH_MODE=none); no token is needed")
			}
			manager, err := auth.NewJWTManager(&cfg.Security)
			if err != nil {
				return err
			}
			token, err := manager.GenerateToken(strings.TrimSpace(userID), name)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "User ID to embed as the token subject")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
