// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

package main

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/tomtom215/arcanum/internal/deck"
	"github.com/tomtom215/arcanum/internal/models"
)

func newDrawCommand() *cobra.Command {
	var spread string
	var seed uint64
	var asJSON bool

	cmd := &cobra.Command{
		Use:         "draw",
		Short:       "Draw cards for a spread",
		Annotations: skipConfig(),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := models.ParseSpreadType(spread)
			if err != nil {
				return err
			}
			catalog, err := deck.Default()
			if err != nil {
				return err
			}
			rng := deck.DefaultRNG
			if cmd.Flags().Changed("seed") {
				rng = rand.New(rand.NewPCG(seed, seed>>1|1))
			}
			drawn, err := catalog.Draw(rng, st)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(deck.Selections(drawn))
			}
			fmt.Fprintln(out, renderSpread(drawn))
			return nil
		},
	}
	cmd.Flags().StringVarP(&spread, "spread", "s", string(models.SpreadThreeCard), "Spread: single, three-card or celtic-cross")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "Seed for a repeatable draw")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the selection as JSON, ready for a stream request")
	return cmd
}

// renderSpread tabulates placed cards.
func renderSpread(cards []models.DrawnCard) string {
	rows := make([][]string, 0, len(cards))
	for _, c := range cards {
		rows = append(rows, []string{
			strconv.Itoa(c.Position + 1),
			c.PositionName,
			c.Name,
			c.Orientation(),
		})
	}
	return renderTable([]string{"#", "Position", "Card", "Orientation"}, rows, []columnAlignment{alignRight})
}

// parseSelections reads --card values: a card name or ID, optionally
// suffixed with ":reversed" (or ":r").
func parseSelections(values []string) []deck.Selection {
	selections := make([]deck.Selection, 0, len(values))
	for _, v := range values {
		sel := deck.Selection{CardID: strings.TrimSpace(v)}
		if i := strings.LastIndex(sel.CardID, ":"); i >= 0 {
			switch strings.ToLower(strings.TrimSpace(sel.CardID[i+1:])) {
			case "reversed", "r":
				sel.Reversed = true
				sel.CardID = strings.TrimSpace(sel.CardID[:i])
			case "upright", "u":
				sel.CardID = strings.TrimSpace(sel.CardID[:i])
			}
		}
		selections = append(selections, sel)
	}
	return selections
}
