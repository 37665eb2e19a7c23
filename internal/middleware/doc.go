// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

/*
Package middleware provides HTTP middleware components for the API.

Key Components:

  - RequestID: request and correlation IDs for logs and published events
  - PrometheusMetrics: request count, latency and in-flight gauge keyed by
    chi route pattern
  - Compression: gzip for JSON endpoints

All three use the http.HandlerFunc form; internal/api adapts them to chi
with chiMiddleware.

Streaming:

The reading stream routes must flush after every unit. The metrics wrapper
forwards Flush, Hijack and Unwrap, so it is safe on stream and WebSocket
routes. Compression is not mounted on stream routes: gzip would buffer
units until its window fills.

Usage Example:

	r.Group(func(r chi.Router) {
	    r.Use(chiMiddleware(middleware.PrometheusMetrics))
	    r.Use(chiMiddleware(middleware.Compression))
	    r.Get("/api/v1/deck", h.Deck)
	})

See Also:

  - internal/api: router and handlers
  - internal/metrics: metric definitions
*/
package middleware
