// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

package deck

import (
	"fmt"
	"math/rand/v2"

	"github.com/tomtom215/arcanum/internal/models"
)

// ReversalProbability is the chance that a drawn card lands reversed.
// Orientation is decided here, at selection time, and never changed later.
const ReversalProbability = 0.30

// RNG is the randomness a draw needs. *rand.Rand satisfies it.
type RNG interface {
	IntN(n int) int
	Float64() float64
}

type globalRNG struct{}

func (globalRNG) IntN(n int) int   { return rand.IntN(n) }
func (globalRNG) Float64() float64 { return rand.Float64() }

// DefaultRNG draws from the runtime's global source.
var DefaultRNG RNG = globalRNG{}

// Draw picks spread.Size() distinct cards and fixes each card's orientation.
func (c *Catalog) Draw(rng RNG, spread models.SpreadType) ([]models.DrawnCard, error) {
	n := spread.Size()
	if n == 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSpread, spread)
	}
	if n > len(c.cards) {
		return nil, fmt.Errorf("%w: catalog has %d cards", ErrSpreadSize, len(c.cards))
	}

	// Partial Fisher-Yates: only the first n slots are needed.
	indices := make([]int, len(c.cards))
	for i := range indices {
		indices[i] = i
	}
	for i := 0; i < n; i++ {
		j := i + rng.IntN(len(indices)-i)
		indices[i], indices[j] = indices[j], indices[i]
	}

	drawn := make([]models.DrawnCard, n)
	for i := range n {
		drawn[i] = models.DrawnCard{
			Card:         c.cards[indices[i]],
			Position:     i,
			PositionName: spread.PositionName(i),
		}
	}
	Orient(rng, drawn)
	return drawn, nil
}

// Orient decides every card's orientation independently. Hand-picked cards
// go through it too, so a caller never chooses a reversal.
func Orient(rng RNG, cards []models.DrawnCard) {
	for i := range cards {
		cards[i].Reversed = rng.Float64() < ReversalProbability
	}
}

// Selections converts drawn cards back into the request form the
// interpretation endpoint accepts.
func Selections(drawn []models.DrawnCard) []Selection {
	out := make([]Selection, len(drawn))
	for i, d := range drawn {
		out[i] = Selection{CardID: d.ID, Reversed: d.Reversed}
	}
	return out
}
