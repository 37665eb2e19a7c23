// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

/*
Package websocket carries a reading stream over a WebSocket connection.

A connection serves exactly one reading. The client sends one JSON request
message, the server answers with one text message per wire unit and closes
the connection after the terminal unit:

	client                          server
	  │ {"mode":"manual",...}  ──►    │
	  │                        ◄──    │ {"type":"status",...}
	  │                        ◄──    │ {"type":"general",...}
	  │                        ◄──    │ {"type":"done","readingId":"..."}
	  │                        ◄──    │ close 1000

Each message carries the same JSON object as the HTTP stream, without the
blank-line delimiter since WebSocket frames already delimit units.

Session keeps the connection alive with pings while the reading runs and
cancels its watch context when the peer closes or stops answering, which the
pipeline treats as a client disconnect.

Usage Example:

	upgrader := websocket.NewUpgrader(cfg.Security.CORSOrigins)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
	    return // the upgrader already replied
	}
	s := websocket.NewSession(conn)
	var req ReadingRequest
	if err := s.ReadRequest(&req); err != nil { ... }
	ctx, cancel := s.Watch(r.Context())
	defer cancel()
	orchestrator.Stream(ctx, s, pipelineRequest)
	s.Close(websocket.CloseNormalClosure, "")
*/
package websocket
