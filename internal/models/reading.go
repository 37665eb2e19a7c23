// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

// Package models defines the data structures shared across Arcanum: cards,
// spreads, and the persisted reading records.
package models

import (
	"fmt"
	"time"
)

// Mode is how the cards of a reading were obtained.
type Mode string

const (
	// ModeManual readings carry an explicit card selection.
	ModeManual Mode = "manual"
	// ModePhoto readings carry a photo of a physical spread.
	ModePhoto Mode = "photo"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeManual || m == ModePhoto
}

// Reading is one interpretation request and its final narrative.
//
// A reading is inserted before any inference call with an empty Narrative
// and a nil FinalizedAt. The narrative is written exactly once, at which
// point FinalizedAt is set. A reading whose client disconnected keeps an
// empty narrative forever.
type Reading struct {
	ID          string        `json:"id"`
	UserID      string        `json:"userId"`
	SpreadType  SpreadType    `json:"spreadType"`
	Question    string        `json:"question,omitempty"`
	PhotoRef    string        `json:"photoRef,omitempty"`
	Mode        Mode          `json:"mode"`
	Narrative   string        `json:"narrative"`
	CreatedAt   time.Time     `json:"createdAt"`
	FinalizedAt *time.Time    `json:"finalizedAt,omitempty"`
	Cards       []ReadingCard `json:"cards,omitempty"`
}

// Finalized reports whether the narrative has been written.
func (r *Reading) Finalized() bool {
	return r.FinalizedAt != nil
}

// ReadingCard records one card placed in a manual reading.
type ReadingCard struct {
	ReadingID string `json:"readingId"`
	CardID    string `json:"cardId"`
	Position  int    `json:"position"` // zero-based, dense within a reading
	Reversed  bool   `json:"reversed"`
}

// ReadingFilter narrows reading list queries.
type ReadingFilter struct {
	UserID string
	Limit  int
	Offset int
}

// ValidateCardPositions checks that positions are exactly 0..len(cards)-1
// with no gaps or duplicates.
func ValidateCardPositions(cards []ReadingCard) error {
	seen := make([]bool, len(cards))
	for _, c := range cards {
		if c.Position < 0 || c.Position >= len(cards) {
			return fmt.Errorf("card position %d out of range [0,%d)", c.Position, len(cards))
		}
		if seen[c.Position] {
			return fmt.Errorf("duplicate card position %d", c.Position)
		}
		seen[c.Position] = true
	}
	return nil
}
