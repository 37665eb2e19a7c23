// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

// Package deck holds the 78-card catalog and turns card selections into
// placed cards for a spread.
package deck

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"github.com/tomtom215/arcanum/internal/models"
)

//go:embed catalog.toml
var catalogTOML []byte

var (
	ErrUnknownCard   = errors.New("unknown card")
	ErrDuplicateCard = errors.New("card appears more than once")
	ErrSpreadSize    = errors.New("selection does not match spread size")
	ErrUnknownSpread = errors.New("unknown spread type")
)

type catalogFile struct {
	Major []majorEntry `toml:"major"`
	Suit  []suitEntry  `toml:"suit"`
	Rank  []rankEntry  `toml:"rank"`
}

type majorEntry struct {
	Number   int      `toml:"number"`
	Name     string   `toml:"name"`
	Keywords []string `toml:"keywords"`
	Upright  string   `toml:"upright"`
	Reversed string   `toml:"reversed"`
}

type suitEntry struct {
	Name     string   `toml:"name"`
	Element  string   `toml:"element"`
	Domain   string   `toml:"domain"`
	Keywords []string `toml:"keywords"`
}

type rankEntry struct {
	Number   int    `toml:"number"`
	Name     string `toml:"name"`
	Upright  string `toml:"upright"`
	Reversed string `toml:"reversed"`
}

// Catalog is an immutable, indexed set of cards.
type Catalog struct {
	cards  []models.Card
	byID   map[string]int
	byName map[string]int
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
	defaultErr     error
)

// Default returns the embedded catalog, parsed once.
func Default() (*Catalog, error) {
	defaultOnce.Do(func() {
		defaultCatalog, defaultErr = Parse(catalogTOML)
	})
	return defaultCatalog, defaultErr
}

// Parse builds a catalog from TOML in the embedded catalog's format.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	cards := make([]models.Card, 0, len(f.Major)+len(f.Suit)*len(f.Rank))
	for _, m := range f.Major {
		cards = append(cards, models.Card{
			ID:              slug(m.Name),
			Name:            m.Name,
			Arcana:          models.ArcanaMajor,
			Number:          m.Number,
			Keywords:        m.Keywords,
			MeaningUpright:  m.Upright,
			MeaningReversed: m.Reversed,
		})
	}
	for _, s := range f.Suit {
		for _, r := range f.Rank {
			name := r.Name + " of " + s.Name
			cards = append(cards, models.Card{
				ID:              slug(name),
				Name:            name,
				Arcana:          models.ArcanaMinor,
				Suit:            s.Name,
				Number:          r.Number,
				Keywords:        s.Keywords,
				MeaningUpright:  r.Upright + " in matters of " + s.Domain,
				MeaningReversed: r.Reversed + " in matters of " + s.Domain,
			})
		}
	}

	c := &Catalog{
		cards:  cards,
		byID:   make(map[string]int, len(cards)),
		byName: make(map[string]int, len(cards)),
	}
	for i, card := range cards {
		if _, dup := c.byID[card.ID]; dup {
			return nil, fmt.Errorf("parse catalog: duplicate card id %q", card.ID)
		}
		c.byID[card.ID] = i
		c.byName[strings.ToLower(card.Name)] = i
	}
	return c, nil
}

func slug(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "-")
}

// Len returns the number of cards.
func (c *Catalog) Len() int { return len(c.cards) }

// All returns a copy of every card in catalog order.
func (c *Catalog) All() []models.Card {
	out := make([]models.Card, len(c.cards))
	copy(out, c.cards)
	return out
}

// Lookup finds a card by ID.
func (c *Catalog) Lookup(id string) (models.Card, bool) {
	i, ok := c.byID[id]
	if !ok {
		return models.Card{}, false
	}
	return c.cards[i], true
}

// LookupName finds a card by display name, case-insensitively.
func (c *Catalog) LookupName(name string) (models.Card, bool) {
	i, ok := c.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return models.Card{}, false
	}
	return c.cards[i], true
}

// Selection is one caller-chosen card. Its position is its index in the
// selection slice.
type Selection struct {
	CardID   string `json:"cardId" validate:"required"`
	Reversed bool   `json:"reversed"`
}

// Place resolves a selection against the catalog and lays it out on spread.
// The selection must fill the spread exactly and name each card once.
func (c *Catalog) Place(spread models.SpreadType, selection []Selection) ([]models.DrawnCard, error) {
	if !spread.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSpread, spread)
	}
	if len(selection) != spread.Size() {
		return nil, fmt.Errorf("%w: %s needs %d cards, got %d", ErrSpreadSize, spread, spread.Size(), len(selection))
	}

	seen := make(map[string]struct{}, len(selection))
	placed := make([]models.DrawnCard, len(selection))
	for i, sel := range selection {
		card, ok := c.Lookup(sel.CardID)
		if !ok {
			card, ok = c.LookupName(sel.CardID)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownCard, sel.CardID)
		}
		if _, dup := seen[card.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateCard, card.Name)
		}
		seen[card.ID] = struct{}{}
		placed[i] = models.DrawnCard{
			Card:         card,
			Position:     i,
			PositionName: spread.PositionName(i),
			Reversed:     sel.Reversed,
		}
	}
	return placed, nil
}
