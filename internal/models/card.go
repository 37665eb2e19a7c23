// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

package models

import (
	"fmt"
	"strings"
)

// Arcana groups.
const (
	ArcanaMajor = "major"
	ArcanaMinor = "minor"
)

// Card is one entry of the catalog.
type Card struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Arcana   string   `json:"arcana"`
	Suit     string   `json:"suit,omitempty"`
	Number   int      `json:"number"`
	Keywords []string `json:"keywords"`
	// Meanings by orientation.
	MeaningUpright  string `json:"meaningUpright"`
	MeaningReversed string `json:"meaningReversed"`
}

// DrawnCard is a catalog card placed at a spread position.
type DrawnCard struct {
	Card
	Position     int    `json:"position"`
	PositionName string `json:"positionName"`
	Reversed     bool   `json:"reversed"`
}

// Orientation returns "upright" or "reversed".
func (d DrawnCard) Orientation() string {
	if d.Reversed {
		return "reversed"
	}
	return "upright"
}

// Meaning returns the meaning for the card's orientation.
func (d DrawnCard) Meaning() string {
	if d.Reversed {
		return d.MeaningReversed
	}
	return d.MeaningUpright
}

// SpreadType names a layout.
type SpreadType string

const (
	SpreadSingle      SpreadType = "single"
	SpreadThreeCard   SpreadType = "three-card"
	SpreadCelticCross SpreadType = "celtic-cross"
)

var spreadPositions = map[SpreadType][]string{
	SpreadSingle:    {"Focus"},
	SpreadThreeCard: {"Past", "Present", "Future"},
	SpreadCelticCross: {
		"Present",
		"Challenge",
		"Foundation",
		"Recent Past",
		"Crown",
		"Near Future",
		"Self",
		"Environment",
		"Hopes and Fears",
		"Outcome",
	},
}

// SpreadTypes lists the supported layouts in display order.
var SpreadTypes = []SpreadType{SpreadSingle, SpreadThreeCard, SpreadCelticCross}

// ParseSpreadType accepts the canonical names plus underscore spellings.
func ParseSpreadType(s string) (SpreadType, error) {
	st := SpreadType(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-"))
	if _, ok := spreadPositions[st]; !ok {
		return "", fmt.Errorf("unknown spread type %q", s)
	}
	return st, nil
}

// Valid reports whether st is a supported layout.
func (st SpreadType) Valid() bool {
	_, ok := spreadPositions[st]
	return ok
}

// Size returns the number of cards in the layout, or 0 if unknown.
func (st SpreadType) Size() int {
	return len(spreadPositions[st])
}

// Positions returns the position names in order.
func (st SpreadType) Positions() []string {
	p := spreadPositions[st]
	out := make([]string, len(p))
	copy(out, p)
	return out
}

// PositionName returns the name of position i, or "Position N" when the
// layout does not name it.
func (st SpreadType) PositionName(i int) string {
	p := spreadPositions[st]
	if i >= 0 && i < len(p) {
		return p[i]
	}
	return fmt.Sprintf("Position %d", i+1)
}
