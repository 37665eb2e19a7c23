// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

package main

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/tomtom215/arcanum/internal/auth"
	"github.com/tomtom215/arcanum/internal/database"
	"github.com/tomtom215/arcanum/internal/logging"
	"github.com/tomtom215/arcanum/internal/models"
)

const excerptRunes = 48

func newReadingsCommand(ctx *commandContext) *cobra.Command {
	var userID string
	var limit int
	var offset int

	cmd := &cobra.Command{
		Use:   "readings",
		Short: "List a user's stored readings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			db, err := database.New(&cfg.Database)
			if err != nil {
				return err
			}
			defer func() {
				if err := db.Close(); err != nil {
					logging.Error().Err(err).Msg("Error closing database")
				}
			}()

			readings, err := db.ListReadings(cmd.Context(), models.ReadingFilter{
				UserID: strings.TrimSpace(userID),
				Limit:  limit,
				Offset: offset,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(readings) == 0 {
				fmt.Fprintf(out, "No readings for %s\n", userID)
				return nil
			}
			fmt.Fprintln(out, renderReadings(readings))
			return nil
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", auth.AnonymousUserID, "Owner of the readings")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum rows")
	cmd.Flags().IntVar(&offset, "offset", 0, "Rows to skip")
	return cmd
}

func renderReadings(readings []models.Reading) string {
	rows := make([][]string, 0, len(readings))
	for _, r := range readings {
		status := "open"
		if r.Finalized() {
			status = "final"
		}
		rows = append(rows, []string{
			r.ID,
			r.CreatedAt.Local().Format(time.DateTime),
			string(r.SpreadType),
			string(r.Mode),
			status,
			excerpt(r.Narrative),
		})
	}
	return renderTable([]string{"ID", "Created", "Spread", "Mode", "Status", "Narrative"}, rows, nil)
}

// excerpt returns the first line of s, cut to excerptRunes.
func excerpt(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if utf8.RuneCountInString(s) <= excerptRunes {
		return s
	}
	runes := []rune(s)
	return string(runes[:excerptRunes-1]) + "…"
}
