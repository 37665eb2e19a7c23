// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

// Package eventbus carries domain events between the reading pipeline and
// anything that reacts to finished readings.
//
// The bus is a thin layer over watermill. The memory backend is an
// in-process gochannel, suitable for a single instance. The nats backend uses
// watermill-nats over core NATS so several instances share one stream of
// events, with subscribers load-balanced through a queue group.
package eventbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/arcanum/internal/config"
	"github.com/tomtom215/arcanum/internal/logging"
	"github.com/tomtom215/arcanum/internal/metrics"
)

// Backends.
const (
	BackendMemory = "memory"
	BackendNATS   = "nats"
)

// DefaultTopic carries ReadingCompleted events.
const DefaultTopic = "readings.completed"

const queueGroup = "arcanum"

// Bus publishes and subscribes to reading events.
type Bus struct {
	backend string
	topic   string
	pub     message.Publisher
	sub     message.Subscriber
	logger  watermill.LoggerAdapter

	closeOnce sync.Once
	closeErr  error
	closers   []func() error
}

// New builds the bus selected by cfg.
func New(cfg *config.EventsConfig) (*Bus, error) {
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}

	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemory(topic), nil
	case BackendNATS:
		return newNATS(cfg.NATSURL, topic)
	default:
		return nil, fmt.Errorf("unknown event backend %q", cfg.Backend)
	}
}

// NewMemory returns an in-process bus.
func NewMemory(topic string) *Bus {
	logger := newLoggerAdapter(logging.WithComponent("eventbus"))
	ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, logger)
	return &Bus{
		backend: BackendMemory,
		topic:   topic,
		pub:     ch,
		sub:     ch,
		logger:  logger,
		closers: []func() error{ch.Close},
	}
}

func newNATS(url, topic string) (*Bus, error) {
	logger := newLoggerAdapter(logging.WithComponent("eventbus"))

	natsOpts := []natsgo.Option{
		natsgo.Name("arcanum"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}
	jetStream := wmNats.JetStreamConfig{Disabled: true}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         url,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream:   jetStream,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create nats publisher: %w", err)
	}

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              url,
		QueueGroupPrefix: queueGroup,
		SubscribersCount: 1,
		AckWaitTimeout:   30 * time.Second,
		CloseTimeout:     10 * time.Second,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream:        jetStream,
	}, logger)
	if err != nil {
		_ = pub.Close()
		return nil, fmt.Errorf("create nats subscriber: %w", err)
	}

	return &Bus{
		backend: BackendNATS,
		topic:   topic,
		pub:     pub,
		sub:     sub,
		logger:  logger,
		closers: []func() error{pub.Close, sub.Close},
	}, nil
}

// Backend returns the backend name.
func (b *Bus) Backend() string { return b.backend }

// Topic returns the reading events topic.
func (b *Bus) Topic() string { return b.topic }

// PublishReadingCompleted publishes ev.
func (b *Bus) PublishReadingCompleted(ctx context.Context, ev ReadingCompleted) error {
	payload, err := encodeEvent(ev)
	if err != nil {
		return err
	}

	msg := message.NewMessage(uuid.NewString(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("reading_id", ev.ReadingID)
	msg.Metadata.Set("mode", string(ev.Mode))
	if id := logging.CorrelationIDFromContext(ctx); id != "" {
		msg.Metadata.Set("correlation_id", id)
	}
	if b.backend == BackendNATS {
		msg.Metadata.Set(natsgo.MsgIdHdr, msg.UUID)
	}

	err = b.pub.Publish(b.topic, msg)
	metrics.RecordEventPublished(b.topic, err)
	if err != nil {
		return fmt.Errorf("publish %s: %w", b.topic, err)
	}
	return nil
}

// Subscribe returns the message channel for the reading topic. It closes
// when ctx ends or the bus is closed.
func (b *Bus) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	return b.sub.Subscribe(ctx, b.topic)
}

// Close releases the publisher and subscriber.
func (b *Bus) Close() error {
	b.closeOnce.Do(func() {
		for _, c := range b.closers {
			if err := c(); err != nil && b.closeErr == nil {
				b.closeErr = err
			}
		}
	})
	return b.closeErr
}
