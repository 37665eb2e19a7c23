// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

package api

import (
	"context"
	"sync"
	"time"

	gws "github.com/gorilla/websocket"

	"github.com/tomtom215/arcanum/internal/deck"
	"github.com/tomtom215/arcanum/internal/models"
	"github.com/tomtom215/arcanum/internal/pipeline"
	"github.com/tomtom215/arcanum/internal/storage"
	"github.com/tomtom215/arcanum/internal/websocket"
)

// ReadingStore is the read side of the reading records.
type ReadingStore interface {
	GetReading(ctx context.Context, id string) (*models.Reading, error)
	ListReadings(ctx context.Context, f models.ReadingFilter) ([]models.Reading, error)
	Ping(ctx context.Context) error
}

// Streamer runs one reading onto a sink.
type Streamer interface {
	Stream(ctx context.Context, sink pipeline.Sink, req pipeline.Request) (pipeline.Result, error)
}

// PhotoTokenVerifier is implemented by photo stores that serve their own
// signed URLs through /photos/{ref}.
type PhotoTokenVerifier interface {
	VerifyToken(ref, token string) error
}

// Dependencies wires a Handler. Photos may be nil, which disables the photo
// routes. A nil DrawSigner gets a per-process key.
type Dependencies struct {
	Store          ReadingStore
	Streamer       Streamer
	Catalog        *deck.Catalog
	Photos         storage.PhotoStore
	AllowedOrigins []string
	RNG            deck.RNG
	DrawSigner     *deck.DrawSigner
}

// Handler serves the API routes.
type Handler struct {
	store     ReadingStore
	streamer  Streamer
	catalog   *deck.Catalog
	photos    storage.PhotoStore
	draws     *deck.DrawSigner
	upgrader  gws.Upgrader
	startTime time.Time

	rngMu sync.Mutex
	rng   deck.RNG
}

// NewHandler creates a handler.
func NewHandler(deps Dependencies) *Handler {
	rng := deps.RNG
	if rng == nil {
		rng = deck.DefaultRNG
	}
	draws := deps.DrawSigner
	if draws == nil {
		draws = deck.NewDrawSigner("", 0)
	}
	return &Handler{
		store:     deps.Store,
		streamer:  deps.Streamer,
		catalog:   deps.Catalog,
		photos:    deps.Photos,
		draws:     draws,
		rng:       rng,
		upgrader:  websocket.NewUpgrader(deps.AllowedOrigins),
		startTime: time.Now(),
	}
}

// draw runs a catalog draw. A seeded *rand.Rand is not safe for concurrent
// use.
func (h *Handler) draw(spread models.SpreadType) ([]models.DrawnCard, error) {
	h.rngMu.Lock()
	defer h.rngMu.Unlock()
	return h.catalog.Draw(h.rng, spread)
}

// orient decides the orientation of hand-picked cards.
func (h *Handler) orient(cards []models.DrawnCard) {
	h.rngMu.Lock()
	defer h.rngMu.Unlock()
	deck.Orient(h.rng, cards)
}

// photoVerifier returns the store's token verifier when it serves photos
// itself.
func (h *Handler) photoVerifier() (PhotoTokenVerifier, bool) {
	if h.photos == nil {
		return nil, false
	}
	v, ok := h.photos.(PhotoTokenVerifier)
	return v, ok
}
