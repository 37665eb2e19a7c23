// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

package pipeline

import (
	"context"
	"errors"
	"iter"
	"strings"
	"sync"
	"testing"

	"github.com/tomtom215/arcanum/internal/eventbus"
	"github.com/tomtom215/arcanum/internal/inference"
	"github.com/tomtom215/arcanum/internal/models"
	"github.com/tomtom215/arcanum/internal/wire"
)

type fakeStore struct {
	mu        sync.Mutex
	readings  []*models.Reading
	cards     []models.ReadingCard
	updates   map[string][]string
	createErr error
	cardsErr  error
	updateErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{updates: make(map[string][]string)}
}

// CreateReadingWithCards keeps the reading and its cards only when both
// succeed, like the database transaction.
func (s *fakeStore) CreateReadingWithCards(_ context.Context, r *models.Reading, cards []models.ReadingCard) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	if len(cards) > 0 && s.cardsErr != nil {
		return s.cardsErr
	}
	cp := *r
	s.readings = append(s.readings, &cp)
	s.cards = append(s.cards, cards...)
	return nil
}

func (s *fakeStore) readingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.readings)
}

func (s *fakeStore) UpdateReadingNarrative(_ context.Context, id, narrative string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates[id] = append(s.updates[id], narrative)
	return s.updateErr
}

func (s *fakeStore) updateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, u := range s.updates {
		n += len(u)
	}
	return n
}

// step scripts one inference call.
type step struct {
	text      string   // buffered result
	fragments []string // streamed fragments
	err       error    // returned by the call itself
	streamErr error    // yielded after the fragments
	panicMsg  string
}

type fakeInference struct {
	mu       sync.Mutex
	steps    []step
	requests []inference.Request
}

func (f *fakeInference) next(req inference.Request) step {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if len(f.steps) == 0 {
		return step{err: errors.New("unexpected inference call")}
	}
	s := f.steps[0]
	f.steps = f.steps[1:]
	return s
}

func (f *fakeInference) calls() []inference.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]inference.Request(nil), f.requests...)
}

func (f *fakeInference) RunBuffered(_ context.Context, req inference.Request) (string, error) {
	s := f.next(req)
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	return s.text, s.err
}

func (f *fakeInference) RunStreaming(ctx context.Context, req inference.Request) (FragmentStream, error) {
	s := f.next(req)
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	if s.err != nil {
		return nil, s.err
	}
	return &fakeStream{ctx: ctx, step: s}, nil
}

type fakeStream struct {
	ctx    context.Context
	step   step
	closed bool
}

func (s *fakeStream) Fragments() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, f := range s.step.fragments {
			if err := s.ctx.Err(); err != nil {
				yield("", err)
				return
			}
			if !yield(f, nil) {
				return
			}
		}
		if s.step.streamErr != nil {
			yield("", s.step.streamErr)
		}
	}
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

type fakePhotos struct {
	err error
}

func (p fakePhotos) SignedURL(_ context.Context, ref string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	return "https://photos.example/" + ref + "?sig=1", nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []eventbus.ReadingCompleted
}

func (p *fakePublisher) PublishReadingCompleted(_ context.Context, ev eventbus.ReadingCompleted) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

// recordingSink collects units and can fail from the Nth write on.
type recordingSink struct {
	units  []wire.Unit
	failAt int // 1-based; 0 never fails
}

var errBrokenPipe = errors.New("write: broken pipe")

func (s *recordingSink) WriteUnit(u wire.Unit) error {
	if s.failAt > 0 && len(s.units)+1 >= s.failAt {
		return errBrokenPipe
	}
	s.units = append(s.units, u)
	return nil
}

func (s *recordingSink) types() []wire.Type {
	out := make([]wire.Type, len(s.units))
	for i, u := range s.units {
		out[i] = u.Type
	}
	return out
}

func (s *recordingSink) content(t wire.Type) string {
	var b strings.Builder
	for _, u := range s.units {
		if u.Type == t {
			b.WriteString(u.Content)
		}
	}
	return b.String()
}

func (s *recordingSink) count(t wire.Type) int {
	n := 0
	for _, u := range s.units {
		if u.Type == t {
			n++
		}
	}
	return n
}

// assertOneTerminalLast checks the exactly-one-terminal rule.
func assertOneTerminalLast(t *testing.T, units []wire.Unit) {
	t.Helper()
	if len(units) == 0 {
		t.Fatal("no units emitted")
	}
	terminals := 0
	for _, u := range units {
		if u.Type.Terminal() {
			terminals++
		}
	}
	if terminals != 1 {
		t.Fatalf("%d terminal units, want 1: %+v", terminals, units)
	}
	if !units[len(units)-1].Type.Terminal() {
		t.Fatalf("last unit %+v is not terminal", units[len(units)-1])
	}
}

func promptText(req inference.Request) string {
	var b strings.Builder
	for _, m := range req.Messages {
		for _, p := range m.Parts {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}
