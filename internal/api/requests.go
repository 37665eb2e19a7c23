// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/tomtom215/arcanum/internal/auth"
	"github.com/tomtom215/arcanum/internal/deck"
	"github.com/tomtom215/arcanum/internal/models"
	"github.com/tomtom215/arcanum/internal/pipeline"
	"github.com/tomtom215/arcanum/internal/storage"
	"github.com/tomtom215/arcanum/internal/validation"
)

// maxRequestBody bounds JSON request bodies. Photos are uploaded separately.
const maxRequestBody = 64 << 10

// ManualReadingRequest starts a manual reading. Orientations are decided by
// the server unless DrawToken certifies a draw from POST /spreads/draw.
type ManualReadingRequest struct {
	SpreadType string           `json:"spreadType" validate:"required,spread"`
	Question   string           `json:"question" validate:"max=500,question"`
	Cards      []deck.Selection `json:"cards" validate:"required,min=1,max=10,dive"`
	DrawToken  string           `json:"drawToken,omitempty" validate:"max=4096"`
}

// PhotoReadingRequest starts a photo reading of an uploaded spread.
type PhotoReadingRequest struct {
	SpreadType string `json:"spreadType" validate:"required,spread"`
	Question   string `json:"question" validate:"max=500,question"`
	PhotoRef   string `json:"photoRef" validate:"required,uuid"`
}

// SocketReadingRequest is the single message a WebSocket client sends. The
// fields used depend on Mode.
type SocketReadingRequest struct {
	Mode       string           `json:"mode" validate:"required,oneof=manual photo"`
	SpreadType string           `json:"spreadType" validate:"required,spread"`
	Question   string           `json:"question" validate:"max=500,question"`
	Cards      []deck.Selection `json:"cards" validate:"omitempty,max=10,dive"`
	DrawToken  string           `json:"drawToken,omitempty" validate:"max=4096"`
	PhotoRef   string           `json:"photoRef" validate:"omitempty,uuid"`
}

// DrawRequest asks for a random selection.
type DrawRequest struct {
	SpreadType string `json:"spreadType" validate:"required,spread"`
}

// ListReadingsQuery is the parsed query of GET /readings.
type ListReadingsQuery struct {
	Limit  int `json:"limit" validate:"min=1,max=100"`
	Offset int `json:"offset" validate:"min=0,max=1000000"`
}

var (
	errMissingCards    = errors.New("manual readings need cards")
	errMissingPhotoRef = errors.New("photo readings need a photoRef")
	errPhotosDisabled  = errors.New("photo readings are not configured")
)

// decodeJSON reads a bounded JSON body into v and validates it. It writes
// the error response itself and reports whether the handler may continue.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, r, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, "Request body too large")
			return false
		}
		NewResponseWriter(w, r).BadRequest("Failed to read request body")
		return false
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		NewResponseWriter(w, r).BadRequest("Invalid JSON body: " + err.Error())
		return false
	}
	if verr := validation.ValidateStruct(v); verr != nil {
		NewResponseWriter(w, r).ValidationError(verr)
		return false
	}
	return true
}

// selectionError answers a selection the catalog refused.
func selectionError(w http.ResponseWriter, r *http.Request, err error) {
	field := "cards"
	if errors.Is(err, deck.ErrInvalidDrawToken) {
		field = "drawToken"
	}
	NewResponseWriter(w, r).ErrorWithDetails(http.StatusBadRequest, ErrCodeValidation, err.Error(),
		map[string]interface{}{"field": field})
}

// manualRequest places the selection and builds the pipeline request.
// Orientation comes from a certified draw or from the server's RNG; the
// caller's reversed flags are never trusted on their own.
func (h *Handler) manualRequest(userID, spread, question string, cards []deck.Selection, drawToken string) (pipeline.Request, error) {
	if len(cards) == 0 {
		return pipeline.Request{}, errMissingCards
	}
	st := models.SpreadType(spread)
	placed, err := h.catalog.Place(st, cards)
	if err != nil {
		return pipeline.Request{}, err
	}
	if drawToken == "" {
		h.orient(placed)
	} else {
		drawn, err := h.draws.Verify(drawToken, userID, st)
		if err != nil {
			return pipeline.Request{}, err
		}
		if err := deck.ApplyDraw(placed, drawn); err != nil {
			return pipeline.Request{}, err
		}
	}
	return pipeline.Request{
		Mode:     models.ModeManual,
		UserID:   userID,
		Spread:   st,
		Question: question,
		Cards:    placed,
	}, nil
}

// photoRequest builds the pipeline request for a photo reading. Only the
// uploader may read a photo; anyone else is told it does not exist.
func (h *Handler) photoRequest(ctx context.Context, userID, spread, question, photoRef string) (pipeline.Request, error) {
	if photoRef == "" {
		return pipeline.Request{}, errMissingPhotoRef
	}
	if h.photos == nil {
		return pipeline.Request{}, errPhotosDisabled
	}
	owner, err := h.photos.Owner(ctx, photoRef)
	if err != nil {
		return pipeline.Request{}, err
	}
	if owner != userID {
		return pipeline.Request{}, fmt.Errorf("%w: %s", storage.ErrPhotoNotFound, photoRef)
	}
	return pipeline.Request{
		Mode:     models.ModePhoto,
		UserID:   userID,
		Spread:   models.SpreadType(spread),
		Question: question,
		PhotoRef: photoRef,
	}, nil
}

// socketRequest turns a WebSocket request message into a pipeline request.
func (h *Handler) socketRequest(ctx context.Context, userID string, m *SocketReadingRequest) (pipeline.Request, error) {
	if verr := validation.ValidateStruct(m); verr != nil {
		return pipeline.Request{}, verr
	}
	if models.Mode(m.Mode) == models.ModePhoto {
		return h.photoRequest(ctx, userID, m.SpreadType, m.Question, m.PhotoRef)
	}
	return h.manualRequest(userID, m.SpreadType, m.Question, m.Cards, m.DrawToken)
}

// parseListQuery reads limit and offset with defaults.
func parseListQuery(r *http.Request) (ListReadingsQuery, error) {
	q := ListReadingsQuery{Limit: 20}
	for name, dst := range map[string]*int{"limit": &q.Limit, "offset": &q.Offset} {
		raw := r.URL.Query().Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return q, fmt.Errorf("%s must be an integer", name)
		}
		*dst = n
	}
	return q, nil
}

// userID returns the authenticated caller. Routes that call it sit behind
// auth.Middleware, so a missing user is a wiring bug.
func userID(r *http.Request) (string, bool) {
	return auth.UserIDFromContext(r.Context())
}
