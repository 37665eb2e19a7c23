// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

package api

import (
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/arcanum/internal/auth"
	"github.com/tomtom215/arcanum/internal/config"
	"github.com/tomtom215/arcanum/internal/database"
	"github.com/tomtom215/arcanum/internal/deck"
	"github.com/tomtom215/arcanum/internal/models"
	"github.com/tomtom215/arcanum/internal/pipeline"
	"github.com/tomtom215/arcanum/internal/storage"
	"github.com/tomtom215/arcanum/internal/wire"
)

const (
	testOrigin    = "http://localhost:5173"
	testJWTSecret = "api_test_secret_that_is_long_enough_for_hs256_use"
	testBaseURL   = "http://arcanum.test"
	testMaxPhoto  = 64 << 10
)

// fakeReadingStore serves readings from memory.
type fakeReadingStore struct {
	mu         sync.Mutex
	readings   map[string]*models.Reading
	pingErr    error
	getErr     error
	listErr    error
	lastFilter models.ReadingFilter
}

func newFakeReadingStore(readings ...*models.Reading) *fakeReadingStore {
	s := &fakeReadingStore{readings: make(map[string]*models.Reading)}
	for _, r := range readings {
		s.readings[r.ID] = r
	}
	return s
}

func (s *fakeReadingStore) GetReading(_ context.Context, id string) (*models.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	r, ok := s.readings[id]
	if !ok {
		return nil, database.ErrReadingNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *fakeReadingStore) ListReadings(_ context.Context, f models.ReadingFilter) ([]models.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFilter = f
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := []models.Reading{}
	for _, r := range s.readings {
		if r.UserID == f.UserID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Offset >= len(out) {
		return []models.Reading{}, nil
	}
	out = out[f.Offset:]
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *fakeReadingStore) Ping(context.Context) error {
	return s.pingErr
}

// fakeStreamer writes a fixed unit script and records every request.
type fakeStreamer struct {
	mu    sync.Mutex
	reqs  []pipeline.Request
	units []wire.Unit
}

func defaultUnits() []wire.Unit {
	return []wire.Unit{
		{Type: wire.TypeStatus, Content: "Reading the cards"},
		{Type: wire.TypeGeneral, Content: "The cards speak."},
		{Type: wire.TypeDone, ReadingID: "reading-1"},
	}
}

func (f *fakeStreamer) Stream(_ context.Context, sink pipeline.Sink, req pipeline.Request) (pipeline.Result, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	units := f.units
	f.mu.Unlock()

	for i, u := range units {
		if err := sink.WriteUnit(u); err != nil {
			return pipeline.Result{Events: i, State: pipeline.StateInterpretingGenerally}, pipeline.ErrClientDisconnected
		}
	}
	return pipeline.Result{ReadingID: "reading-1", State: pipeline.StateCompleted, Events: len(units)}, nil
}

func (f *fakeStreamer) requests() []pipeline.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pipeline.Request(nil), f.reqs...)
}

type envConfig struct {
	authMode string
	chi      *ChiMiddlewareConfig
	noPhotos bool
	store    *fakeReadingStore
	rng      deck.RNG
}

type envOption func(*envConfig)

func withAuthMode(mode string) envOption {
	return func(c *envConfig) { c.authMode = mode }
}

func withChiConfig(cfg *ChiMiddlewareConfig) envOption {
	return func(c *envConfig) { c.chi = cfg }
}

func withoutPhotos() envOption {
	return func(c *envConfig) { c.noPhotos = true }
}

func withStore(s *fakeReadingStore) envOption {
	return func(c *envConfig) { c.store = s }
}

func withRNG(rng deck.RNG) envOption {
	return func(c *envConfig) { c.rng = rng }
}

// constRNG always returns the same value, pinning every orientation.
type constRNG float64

func (constRNG) IntN(int) int { return 0 }
func (r constRNG) Float64() float64 { return float64(r) }

const (
	alwaysUpright  = constRNG(0.99)
	alwaysReversed = constRNG(0)
)

type testEnv struct {
	router   http.Handler
	store    *fakeReadingStore
	streamer *fakeStreamer
	catalog  *deck.Catalog
	badger   *storage.BadgerStore
	signer   *storage.URLSigner
	jwt      *auth.JWTManager
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	cfg := envConfig{authMode: auth.AuthModeNone, rng: rand.New(rand.NewPCG(7, 11))}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.chi == nil {
		cfg.chi = DefaultChiMiddlewareConfig()
		cfg.chi.CORSAllowedOrigins = []string{testOrigin}
		cfg.chi.RateLimitDisabled = true
	}
	if cfg.store == nil {
		cfg.store = newFakeReadingStore()
	}

	catalog, err := deck.Default()
	if err != nil {
		t.Fatalf("deck.Default() error = %v", err)
	}
	jwtManager, err := auth.NewJWTManager(&config.SecurityConfig{JWTSecret: testJWTSecret, SessionTimeout: time.Hour})
	if err != nil {
		t.Fatal(err)
	}

	env := &testEnv{
		store:    cfg.store,
		streamer: &fakeStreamer{units: defaultUnits()},
		catalog:  catalog,
		jwt:      jwtManager,
	}

	var photos storage.PhotoStore
	if !cfg.noPhotos {
		env.signer, err = storage.NewURLSigner("photo_signing_secret_for_api_tests_0123456789", time.Minute)
		if err != nil {
			t.Fatal(err)
		}
		env.badger, err = storage.OpenBadger("", testBaseURL, testMaxPhoto, env.signer)
		if err != nil {
			t.Fatalf("OpenBadger() error = %v", err)
		}
		t.Cleanup(func() { _ = env.badger.Close() })
		photos = env.badger
	}

	h := NewHandler(Dependencies{
		Store:          env.store,
		Streamer:       env.streamer,
		Catalog:        catalog,
		Photos:         photos,
		AllowedOrigins: []string{testOrigin},
		RNG:            cfg.rng,
	})
	env.router = NewRouter(h, auth.NewMiddleware(jwtManager, cfg.authMode), NewChiMiddleware(cfg.chi)).SetupChi()
	return env
}

// do sends a request through the full router.
func (e *testEnv) do(t *testing.T, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) bearer(t *testing.T, userID string) http.Header {
	t.Helper()
	token, err := e.jwt.GenerateToken(userID, "")
	if err != nil {
		t.Fatal(err)
	}
	return http.Header{"Authorization": []string{"Bearer " + token}}
}

type envelope[T any] struct {
	Success bool      `json:"success"`
	Data    T         `json:"data"`
	Error   *APIError `json:"error"`
	Meta    *APIMeta  `json:"meta"`
}

func decodeEnvelope[T any](t *testing.T, rec *httptest.ResponseRecorder) envelope[T] {
	t.Helper()
	var env envelope[T]
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v\nbody: %s", err, rec.Body.String())
	}
	return env
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status = %d, want %d\nbody: %s", rec.Code, status, rec.Body.String())
	}
	env := decodeEnvelope[json.RawMessage](t, rec)
	if env.Success || env.Error == nil || env.Error.Code != code {
		t.Errorf("error = %+v, want code %s", env.Error, code)
	}
}

// readUnits parses a stream body with the wire reader.
func readUnits(t *testing.T, body io.Reader) []wire.Unit {
	t.Helper()
	var units []wire.Unit
	for u, err := range wire.NewReader(body).Units() {
		if err != nil {
			t.Fatalf("read unit: %v", err)
		}
		units = append(units, u)
	}
	return units
}

var errStoreDown = errors.New("store down")
