// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

/*
Package api provides the HTTP surface of Arcanum.

Routing uses chi. Global middleware assigns request IDs, resolves the real
client IP, recovers panics and answers CORS preflights. Every /api/v1 route
except health requires a session (see internal/auth).

Endpoints:

	GET  /api/v1/health/live            liveness
	GET  /api/v1/health/ready           readiness (database ping)
	GET  /metrics                       Prometheus exposition
	GET  /api/v1/deck                   card catalog
	GET  /api/v1/spreads                spread layouts
	POST /api/v1/spreads/draw           random selection, orientation fixed
	POST /api/v1/readings/stream        manual reading stream
	POST /api/v1/readings/photo/stream  photo reading stream
	GET  /api/v1/readings/ws            reading stream over WebSocket
	GET  /api/v1/readings               caller's readings, newest first
	GET  /api/v1/readings/{id}          one reading with its cards
	POST /api/v1/photos                 photo upload
	GET  /photos/{ref}?token=...        signed photo fetch (local store only)

Response Format:

JSON endpoints answer with the APIResponse envelope:

	{"success": true, "data": {...}, "meta": {"request_id": "...", "timestamp": "..."}}
	{"success": false, "error": {"code": "NOT_FOUND", "message": "..."}}

Stream endpoints answer 200 with Content-Type application/x-ndjson and write
one wire unit per flush (see internal/wire). Errors found before the stream
starts (bad JSON, validation, unknown cards) use the envelope with a 4xx
status; errors after that arrive as a terminal error unit.

Rate Limiting:

The general limit applies per client IP to all /api/v1 routes. Stream
routes carry a second, tighter limit since each one holds upstream
inference capacity for its whole duration.

See Also:

  - internal/pipeline: the reading orchestrator behind the stream routes
  - internal/websocket: the WebSocket session sink
  - internal/middleware: request ID, metrics and compression middleware
*/
package api
