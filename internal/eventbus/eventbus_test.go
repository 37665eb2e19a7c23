// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

package eventbus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/arcanum/internal/config"
	"github.com/tomtom215/arcanum/internal/models"
)

func sampleEvent() ReadingCompleted {
	return ReadingCompleted{
		ReadingID:   "r-1",
		UserID:      "u-1",
		Mode:        models.ModeManual,
		SpreadType:  models.SpreadThreeCard,
		Fallback:    true,
		CompletedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func startConsumer(t *testing.T, c *Consumer) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Serve(ctx) }()

	select {
	case <-c.Ready():
	case <-time.After(2 * time.Second):
		cancel()
		t.Fatal("consumer did not subscribe")
	}
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel
}

func TestMemoryBusDeliversToConsumer(t *testing.T) {
	bus := NewMemory("test.readings")
	t.Cleanup(func() { _ = bus.Close() })

	got := make(chan ReadingCompleted, 1)
	c := NewConsumer(bus, func(ctx context.Context, ev ReadingCompleted) error {
		got <- ev
		return nil
	})
	startConsumer(t, c)

	want := sampleEvent()
	if err := bus.PublishReadingCompleted(context.Background(), want); err != nil {
		t.Fatalf("PublishReadingCompleted: %v", err)
	}

	select {
	case ev := <-got:
		if ev.ReadingID != want.ReadingID || ev.UserID != want.UserID || !ev.Fallback ||
			ev.SchemaVersion != SchemaVersion || !ev.CompletedAt.Equal(want.CompletedAt) {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}

	deadline := time.Now().Add(time.Second)
	for c.Handled() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if c.Handled() != 1 {
		t.Errorf("handled = %d, want 1", c.Handled())
	}
}

func TestConsumerDropsMalformedEvents(t *testing.T) {
	bus := NewMemory("test.malformed")
	t.Cleanup(func() { _ = bus.Close() })

	c := NewConsumer(bus, func(ctx context.Context, ev ReadingCompleted) error {
		t.Error("handler must not run for a malformed event")
		return nil
	})
	startConsumer(t, c)

	if err := bus.pub.Publish(bus.Topic(), message.NewMessage("m-1", []byte(`{"reading_id":`))); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for c.Dropped() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if c.Dropped() != 1 {
		t.Errorf("dropped = %d, want 1", c.Dropped())
	}
}

func TestPublishRejectsInvalidEvent(t *testing.T) {
	bus := NewMemory("test.invalid")
	t.Cleanup(func() { _ = bus.Close() })

	ev := sampleEvent()
	ev.ReadingID = ""
	if err := bus.PublishReadingCompleted(context.Background(), ev); !errors.Is(err, ErrInvalidEvent) {
		t.Errorf("err = %v, want ErrInvalidEvent", err)
	}
}

func TestNewSelectsBackend(t *testing.T) {
	bus, err := New(&config.EventsConfig{Backend: "memory"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() { _ = bus.Close() }()
	if bus.Backend() != BackendMemory || bus.Topic() != DefaultTopic {
		t.Errorf("backend = %s topic = %s", bus.Backend(), bus.Topic())
	}

	if _, err := New(&config.EventsConfig{Backend: "kafka"}); err == nil {
		t.Error("expected an error for an unknown backend")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	bus := NewMemory("test.close")
	if err := bus.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{"valid", `{"reading_id":"r","user_id":"u","mode":"photo","spread_type":"single"}`, false},
		{"bad mode", `{"reading_id":"r","user_id":"u","mode":"tea-leaves"}`, true},
		{"missing user", `{"reading_id":"r","mode":"manual"}`, true},
		{"not json", `nope`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeEvent([]byte(tt.payload))
			if (err != nil) != tt.wantErr {
				t.Errorf("decodeEvent err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
