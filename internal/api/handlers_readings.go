// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/arcanum/internal/database"
	"github.com/tomtom215/arcanum/internal/models"
	"github.com/tomtom215/arcanum/internal/validation"
)

// ListReadings returns the caller's readings, newest first.
func (h *Handler) ListReadings(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	uid, ok := userID(r)
	if !ok {
		rw.InternalError("Missing user")
		return
	}

	q, err := parseListQuery(r)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}
	if verr := validation.ValidateStruct(&q); verr != nil {
		rw.ValidationError(verr)
		return
	}

	readings, err := h.store.ListReadings(r.Context(), models.ReadingFilter{
		UserID: uid,
		Limit:  q.Limit,
		Offset: q.Offset,
	})
	if err != nil {
		rw.DatabaseError(err)
		return
	}

	rw.SuccessWithPagination(readings, &PaginationMeta{
		Count:   len(readings),
		Offset:  q.Offset,
		Limit:   q.Limit,
		HasMore: len(readings) == q.Limit,
	})
}

// GetReading returns one of the caller's readings with its cards. Another
// user's reading is reported as not found.
func (h *Handler) GetReading(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	uid, ok := userID(r)
	if !ok {
		rw.InternalError("Missing user")
		return
	}

	reading, err := h.store.GetReading(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, database.ErrReadingNotFound) {
		rw.NotFound("Reading not found")
		return
	}
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	if reading.UserID != uid {
		rw.NotFound("Reading not found")
		return
	}
	WriteSuccess(w, r, reading)
}
