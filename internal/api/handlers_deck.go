// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

package api

import (
	"net/http"

	"github.com/tomtom215/arcanum/internal/deck"
	"github.com/tomtom215/arcanum/internal/logging"
	"github.com/tomtom215/arcanum/internal/models"
)

// SpreadInfo describes one layout.
type SpreadInfo struct {
	Type      models.SpreadType `json:"type"`
	Size      int               `json:"size"`
	Positions []string          `json:"positions"`
}

// DrawResponse is a random selection. Selection is ready to send back as
// the cards of a manual reading.
type DrawResponse struct {
	SpreadType models.SpreadType  `json:"spreadType"`
	Cards      []models.DrawnCard `json:"cards"`
	Selection  []deck.Selection   `json:"selection"`
	DrawToken  string             `json:"drawToken"`
}

// Deck returns the card catalog.
func (h *Handler) Deck(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, h.catalog.All())
}

// Spreads lists the supported layouts.
func (h *Handler) Spreads(w http.ResponseWriter, r *http.Request) {
	out := make([]SpreadInfo, 0, len(models.SpreadTypes))
	for _, st := range models.SpreadTypes {
		out = append(out, SpreadInfo{Type: st, Size: st.Size(), Positions: st.Positions()})
	}
	WriteSuccess(w, r, out)
}

// DrawSpread draws distinct cards for a spread. Each card's orientation is
// decided here; the returned draw token lets a reading keep it.
func (h *Handler) DrawSpread(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		NewResponseWriter(w, r).InternalError("Missing user")
		return
	}
	var req DrawRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	st := models.SpreadType(req.SpreadType)
	drawn, err := h.draw(st)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Str("spread", req.SpreadType).Msg("Draw failed")
		NewResponseWriter(w, r).InternalError("Failed to draw cards")
		return
	}
	token, err := h.draws.Sign(uid, st, drawn)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Draw token signing failed")
		NewResponseWriter(w, r).InternalError("Failed to draw cards")
		return
	}

	WriteSuccess(w, r, DrawResponse{
		SpreadType: st,
		Cards:      drawn,
		Selection:  deck.Selections(drawn),
		DrawToken:  token,
	})
}
