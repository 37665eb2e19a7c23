// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/tomtom215/arcanum/internal/logging"
	"github.com/tomtom215/arcanum/internal/wire"
)

// Sink receives wire units in order. A write error means the client is gone.
type Sink interface {
	WriteUnit(u wire.Unit) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(u wire.Unit) error

// WriteUnit calls f.
func (f SinkFunc) WriteUnit(u wire.Unit) error { return f(u) }

// Multiplexer serializes events onto one sink and guarantees that a run ends
// with exactly one terminal event unless the client disconnected.
type Multiplexer struct {
	sink         Sink
	onDisconnect func()

	mu         sync.Mutex
	terminated bool
	disconnect error
	emitted    int
}

// NewMultiplexer wraps sink. onDisconnect, if set, is called once when a sink
// write fails; the orchestrator passes its run cancel func here.
func NewMultiplexer(sink Sink, onDisconnect func()) *Multiplexer {
	return &Multiplexer{sink: sink, onDisconnect: onDisconnect}
}

// Emit writes ev. After a terminal event every further Emit fails with
// ErrAlreadyTerminated; after a sink failure with ErrClientDisconnected.
func (m *Multiplexer) Emit(ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.terminated {
		return ErrAlreadyTerminated
	}
	if m.disconnect != nil {
		return m.disconnect
	}

	if err := m.sink.WriteUnit(ev.unit()); err != nil {
		m.disconnect = fmt.Errorf("%w: %w", ErrClientDisconnected, err)
		if m.onDisconnect != nil {
			m.onDisconnect()
		}
		return m.disconnect
	}
	m.emitted++
	if ev.terminal() {
		m.terminated = true
	}
	return nil
}

// Terminated reports whether a terminal event was written.
func (m *Multiplexer) Terminated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.terminated
}

// Disconnected reports whether a sink write has failed.
func (m *Multiplexer) Disconnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disconnect != nil
}

// Emitted returns the number of events written.
func (m *Multiplexer) Emitted() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.emitted
}

// Run calls fn and closes the stream on its behalf: a panic, or a return
// that left the stream open, is converted into a terminal Error event. A run
// whose ctx ended is left open. The returned error is fn's error, or one
// describing the panic.
func (m *Multiplexer) Run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.Ctx(ctx).Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("Reading pipeline panicked")
			err = fmt.Errorf("pipeline panic: %v", r)
			m.closeWith(ctx, Error{Message: msgInternal})
			return
		}
		if ctx.Err() == nil && !m.Terminated() && !m.Disconnected() {
			logging.Ctx(ctx).Warn().Msg("Reading pipeline returned without a terminal event")
			m.closeWith(ctx, Error{Message: msgUnterminated})
		}
	}()
	return fn(ctx)
}

// closeWith emits a terminal event unless the stream is already closed.
func (m *Multiplexer) closeWith(ctx context.Context, ev Event) {
	if m.Terminated() || m.Disconnected() {
		return
	}
	if err := m.Emit(ev); err != nil {
		logging.Ctx(ctx).Debug().Err(err).Msg("Could not deliver terminal event")
	}
}
