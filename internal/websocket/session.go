// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/arcanum/internal/logging"
	"github.com/tomtom215/arcanum/internal/wire"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	requestWait    = 30 * time.Second
	maxMessageSize = 64 * 1024
)

// Close codes re-exported so callers need not import gorilla directly.
const (
	CloseNormalClosure     = websocket.CloseNormalClosure
	ClosePolicyViolation   = websocket.ClosePolicyViolation
	CloseInternalServerErr = websocket.CloseInternalServerErr
)

// ErrBadRequestMessage is returned when the first message is not a JSON
// text message.
var ErrBadRequestMessage = errors.New("invalid request message")

// NewUpgrader returns an upgrader that accepts the configured origins. An
// origin of "*" accepts any browser origin; a missing Origin header is
// refused.
func NewUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  4096,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin: func(r *http.Request) bool {
			return checkOrigin(r.Header.Get("Origin"), allowedOrigins)
		},
	}
}

func checkOrigin(origin string, allowed []string) bool {
	if origin == "" {
		logging.Warn().Msg("WebSocket connection rejected: missing Origin header")
		return false
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	logging.Warn().Str("origin", origin).Msg("WebSocket connection rejected from unauthorized origin")
	return false
}

// Session is one reading stream over a WebSocket connection. WriteUnit is
// safe for concurrent use.
type Session struct {
	conn *websocket.Conn

	mu        sync.Mutex
	closeOnce sync.Once
}

// NewSession wraps an upgraded connection.
func NewSession(conn *websocket.Conn) *Session {
	conn.SetReadLimit(maxMessageSize)
	return &Session{conn: conn}
}

// ReadRequest reads the request message into v.
func (s *Session) ReadRequest(v any) error {
	if err := s.conn.SetReadDeadline(time.Now().Add(requestWait)); err != nil {
		return err
	}
	kind, data, err := s.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read request: %w", err)
	}
	if kind != websocket.TextMessage {
		return fmt.Errorf("%w: expected a text message", ErrBadRequestMessage)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %w", ErrBadRequestMessage, err)
	}
	return nil
}

// Watch starts the keepalive loops. The returned context ends when parent
// ends, when the peer closes or sends anything unexpected, or when a pong
// is overdue.
func (s *Session) Watch(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go s.readPump(ctx, cancel)
	go s.pingLoop(ctx)
	return ctx, cancel
}

// readPump consumes control frames. A reading takes one request, so any
// later data message ends the session.
func (s *Session) readPump(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := s.conn.NextReader(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Ctx(ctx).Debug().Err(err).Msg("WebSocket peer went away")
			}
			return
		}
		logging.Ctx(ctx).Warn().Msg("Unexpected message on reading WebSocket")
		return
	}
}

func (s *Session) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// WriteUnit sends u as one text message. A failure means the client is gone.
func (s *Session) WriteUnit(u wire.Unit) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a close frame with code and reason, then closes the
// connection. Calls after the first are no-ops.
func (s *Session) Close(code int, reason string) error {
	var err error
	s.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(code, reason)
		// best-effort; the peer may already be gone
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		err = s.conn.Close()
	})
	return err
}
