// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tomtom215/arcanum/internal/deck"
	"github.com/tomtom215/arcanum/internal/models"
	"github.com/tomtom215/arcanum/internal/narrative"
)

func newFallbackCommand() *cobra.Command {
	var spread string
	var question string
	var cards []string

	cmd := &cobra.Command{
		Use:   "fallback",
		Short: "Print the offline narrative for a card selection",
		Long: "Print the narrative the service streams when the inference service is unavailable.\n" +
			"Without --card the cards are drawn at random.",
		Example:     `  arcanum fallback --spread three-card --card "The Fool" --card "The Tower:reversed" --card "the-sun"`,
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

			var placed []models.DrawnCard
			if len(cards) == 0 {
				placed, err = catalog.Draw(deck.DefaultRNG, st)
			} else {
				placed, err = catalog.Place(st, parseSelections(cards))
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderSpread(placed))
			fmt.Fprintln(out)
			fmt.Fprintln(out, narrative.Generate(placed, st, question))
			return nil
		},
	}
	cmd.Flags().StringVarP(&spread, "spread", "s", string(models.SpreadThreeCard), "Spread: single, three-card or celtic-cross")
	cmd.Flags().StringVarP(&question, "question", "q", "", "The querent's question")
	cmd.Flags().StringArrayVar(&cards, "card", nil, "Card name or ID in position order; append :reversed to reverse (repeatable)")
	return cmd
}
