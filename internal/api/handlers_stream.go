// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/tomtom215/arcanum/internal/logging"
	"github.com/tomtom215/arcanum/internal/pipeline"
	"github.com/tomtom215/arcanum/internal/storage"
	"github.com/tomtom215/arcanum/internal/validation"
	"github.com/tomtom215/arcanum/internal/websocket"
	"github.com/tomtom215/arcanum/internal/wire"
)

// StreamContentType is the media type of reading streams.
const StreamContentType = "application/x-ndjson"

// StreamManualReading interprets a caller-chosen selection and streams the
// reading as it is produced.
func (h *Handler) StreamManualReading(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		NewResponseWriter(w, r).InternalError("Missing user")
		return
	}

	var body ManualReadingRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	req, err := h.manualRequest(uid, body.SpreadType, body.Question, body.Cards, body.DrawToken)
	if err != nil {
		selectionError(w, r, err)
		return
	}
	h.stream(w, r, req)
}

// StreamPhotoReading interprets an uploaded photo of a physical spread.
func (h *Handler) StreamPhotoReading(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		NewResponseWriter(w, r).InternalError("Missing user")
		return
	}
	if h.photos == nil {
		NewResponseWriter(w, r).ServiceUnavailable("Photo readings are not configured")
		return
	}

	var body PhotoReadingRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	req, err := h.photoRequest(r.Context(), uid, body.SpreadType, body.Question, body.PhotoRef)
	switch {
	case errors.Is(err, storage.ErrPhotoNotFound), errors.Is(err, storage.ErrInvalidRef):
		NewResponseWriter(w, r).NotFound("Photo not found")
		return
	case err != nil:
		NewResponseWriter(w, r).StorageError(err)
		return
	}
	h.stream(w, r, req)
}

// stream commits the response headers and hands the writer to the
// orchestrator. From here on every error reaches the client as a unit.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request, req pipeline.Request) {
	header := w.Header()
	header.Set("Content-Type", StreamContentType)
	header.Set("Cache-Control", "no-cache")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	// Readings outlive any server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	result, err := h.streamer.Stream(r.Context(), wire.NewEncoder(w), req)
	logRun(r.Context(), req, result, err)
}

// ReadingSocket runs one reading over a WebSocket connection. Authentication
// happens before the upgrade; browsers pass the token as access_token.
func (h *Handler) ReadingSocket(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		NewResponseWriter(w, r).InternalError("Missing user")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader already answered the handshake
		logging.Ctx(r.Context()).Debug().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	session := websocket.NewSession(conn)

	var msg SocketReadingRequest
	if err := session.ReadRequest(&msg); err != nil {
		refuseSocket(session, "Invalid request message")
		return
	}
	req, err := h.socketRequest(r.Context(), uid, &msg)
	if err != nil {
		var verr *validation.RequestValidationError
		if errors.As(err, &verr) {
			refuseSocket(session, verr.ToAPIError().Message)
			return
		}
		if errors.Is(err, storage.ErrPhotoNotFound) {
			refuseSocket(session, "Photo not found")
			return
		}
		refuseSocket(session, err.Error())
		return
	}

	ctx, cancel := session.Watch(r.Context())
	defer cancel()

	result, err := h.streamer.Stream(ctx, session, req)
	logRun(r.Context(), req, result, err)
	_ = session.Close(websocket.CloseNormalClosure, "")
}

// refuseSocket ends a session whose request never reached the pipeline. The
// client still sees a terminal unit.
func refuseSocket(s *websocket.Session, message string) {
	_ = s.WriteUnit(wire.Unit{Type: wire.TypeError, Content: message})
	_ = s.Close(websocket.ClosePolicyViolation, "invalid request")
}

func logRun(ctx context.Context, req pipeline.Request, result pipeline.Result, err error) {
	event := logging.Ctx(ctx).Info()
	switch {
	case errors.Is(err, pipeline.ErrClientDisconnected):
		event = logging.Ctx(ctx).Debug()
	case err != nil:
		event = logging.Ctx(ctx).Warn().Err(err)
	}
	event.
		Str("reading_id", result.ReadingID).
		Str("mode", string(req.Mode)).
		Str("spread", string(req.Spread)).
		Str("state", result.State.String()).
		Bool("fallback", result.Fallback).
		Int("units", result.Events).
		Msg("Reading stream ended")
}
