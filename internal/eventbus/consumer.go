// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

package eventbus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/arcanum/internal/logging"
	"github.com/tomtom215/arcanum/internal/metrics"
)

// Handler reacts to one completed reading. A returned error nacks the
// message.
type Handler func(ctx context.Context, ev ReadingCompleted) error

// Consumer drains the reading topic. It implements suture.Service.
type Consumer struct {
	bus     *Bus
	handler Handler

	ready     chan struct{}
	readyOnce sync.Once

	handled atomic.Int64
	dropped atomic.Int64
}

// NewConsumer returns a consumer calling handler for every event. A nil
// handler only logs.
func NewConsumer(bus *Bus, handler Handler) *Consumer {
	if handler == nil {
		handler = logCompleted
	}
	return &Consumer{bus: bus, handler: handler, ready: make(chan struct{})}
}

func logCompleted(ctx context.Context, ev ReadingCompleted) error {
	logging.Ctx(ctx).Info().
		Str("reading_id", ev.ReadingID).
		Str("user_id", ev.UserID).
		Str("mode", string(ev.Mode)).
		Str("spread", string(ev.SpreadType)).
		Bool("fallback", ev.Fallback).
		Msg("Reading completed")
	return nil
}

// Serve consumes until ctx is cancelled.
func (c *Consumer) Serve(ctx context.Context) error {
	msgs, err := c.bus.Subscribe(ctx)
	if err != nil {
		return err
	}
	logging.Info().Str("topic", c.bus.Topic()).Str("backend", c.bus.Backend()).Msg("Reading event consumer started")
	c.readyOnce.Do(func() { close(c.ready) })

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return errors.New("event subscription closed")
			}
			c.handle(ctx, msg)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg *message.Message) {
	if id := msg.Metadata.Get("correlation_id"); id != "" {
		ctx = logging.ContextWithCorrelationID(ctx, id)
	}

	ev, err := decodeEvent(msg.Payload)
	if err != nil {
		// A malformed event will never decode; ack it so it is not redelivered.
		logging.Ctx(ctx).Warn().Err(err).Str("message_id", msg.UUID).Msg("Dropping malformed reading event")
		c.dropped.Add(1)
		msg.Ack()
		return
	}

	if err := c.handler(ctx, ev); err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("reading_id", ev.ReadingID).Msg("Reading event handler failed")
		msg.Nack()
		return
	}
	metrics.RecordEventConsumed(c.bus.Topic())
	c.handled.Add(1)
	msg.Ack()
}

// Ready is closed once the first subscription is in place.
func (c *Consumer) Ready() <-chan struct{} { return c.ready }

// Handled returns the number of events handled successfully.
func (c *Consumer) Handled() int64 { return c.handled.Load() }

// Dropped returns the number of malformed events discarded.
func (c *Consumer) Dropped() int64 { return c.dropped.Load() }

// String names the service in supervisor logs.
func (c *Consumer) String() string { return "reading-event-consumer" }
