// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/tomtom215/arcanum/internal/logging"
)

type contextKey string

const RequestIDKey contextKey = "request_id"

// maxUpstreamIDLen bounds IDs accepted from proxies so they cannot bloat logs.
const maxUpstreamIDLen = 128

// RequestID middleware assigns a request ID, echoes it in X-Request-ID and
// stores it on the context along with a correlation ID. A correlation ID sent
// by the client in X-Correlation-ID is kept so a reading can be traced across
// the HTTP request and the events it publishes.
func RequestID(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := sanitizeID(r.Header.Get("X-Request-ID"))
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", requestID)

		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		ctx = logging.ContextWithRequestID(ctx, requestID)
		if corr := sanitizeID(r.Header.Get("X-Correlation-ID")); corr != "" {
			ctx = logging.ContextWithCorrelationID(ctx, corr)
		} else {
			ctx = logging.ContextWithNewCorrelationID(ctx)
		}

		next(w, r.WithContext(ctx))
	}
}

// sanitizeID returns id if it is short printable ASCII, otherwise "".
func sanitizeID(id string) string {
	if id == "" || len(id) > maxUpstreamIDLen {
		return ""
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return ""
		}
	}
	return id
}

// GetRequestID extracts the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}
