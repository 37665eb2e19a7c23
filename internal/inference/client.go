// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

// Package inference calls the external text/vision inference service.
//
// One Client serves every stage of every reading. A call is either buffered
// (RunBuffered returns the whole completion) or streaming (RunStreaming
// returns a Stream whose Fragments are decoded as they arrive). Each call is
// bounded by a wall-clock timeout and a response byte ceiling, paced by a
// token-bucket limiter and guarded by a circuit breaker. The client never
// retries; the caller decides what a failure means.
package inference

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/arcanum/internal/config"
	"github.com/tomtom215/arcanum/internal/inference/sse"
	"github.com/tomtom215/arcanum/internal/logging"
	"github.com/tomtom215/arcanum/internal/metrics"
)

const (
	defaultTimeout          = 90 * time.Second
	defaultMaxResponseBytes = 1 << 20
	errorBodyExcerpt        = 512
)

// Config configures a Client.
type Config struct {
	BaseURL          string
	APIKey           string
	Timeout          time.Duration
	MaxResponseBytes int64
	DeltaPath        string
	MessagePath      string

	// RateLimit is requests per second; zero disables pacing.
	RateLimit float64
	RateBurst int

	BreakerName        string
	BreakerMaxFailures uint32
	BreakerTimeout     time.Duration

	HTTPClient *http.Client
}

// ConfigFromSettings maps the inference config section onto a client Config.
func ConfigFromSettings(s *config.InferenceConfig) Config {
	return Config{
		BaseURL:            s.BaseURL,
		APIKey:             s.APIKey,
		Timeout:            s.StageTimeout,
		MaxResponseBytes:   s.MaxResponseBytes,
		DeltaPath:          s.DeltaPath,
		MessagePath:        s.MessagePath,
		RateLimit:          s.RateLimitPerSecond,
		RateBurst:          s.RateLimitBurst,
		BreakerMaxFailures: s.BreakerMaxFailures,
		BreakerTimeout:     s.BreakerTimeout,
	}
}

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	endpoint    string
	apiKey      string
	timeout     time.Duration
	maxBytes    int64
	deltaPath   string
	messagePath string
	http        *http.Client
	limiter     *rate.Limiter
	breaker     *breaker
}

// NewClient builds a client, filling unset fields with defaults.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = defaultMaxResponseBytes
	}
	if cfg.DeltaPath == "" {
		cfg.DeltaPath = sse.DefaultDeltaPath
	}
	if cfg.MessagePath == "" {
		cfg.MessagePath = "choices.0.message.content"
	}
	if cfg.BreakerName == "" {
		cfg.BreakerName = "inference"
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := max(cfg.RateBurst, 1)
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Client{
		endpoint:    strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions",
		apiKey:      cfg.APIKey,
		timeout:     cfg.Timeout,
		maxBytes:    cfg.MaxResponseBytes,
		deltaPath:   cfg.DeltaPath,
		messagePath: cfg.MessagePath,
		http:        cfg.HTTPClient,
		limiter:     limiter,
		breaker:     newBreaker(cfg.BreakerName, cfg.BreakerMaxFailures, cfg.BreakerTimeout),
	}
}

// call is an open upstream response with its bookkeeping.
type call struct {
	body   io.ReadCloser
	cancel context.CancelFunc
	done   func(error)
}

func (c *Client) open(ctx context.Context, req Request, stream bool) (*call, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, unavailable(ctx, "rate limiter", err)
	}

	done, err := c.breaker.allow()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}

	payload, err := json.Marshal(req.wire(stream))
	if err != nil {
		done(context.Canceled)
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		cancel()
		done(context.Canceled)
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		err = unavailable(ctx, "send request", err)
		done(err)
		cancel()
		return nil, err
	}

	if !isSuccessStatus(resp.StatusCode) {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyExcerpt))
		_ = resp.Body.Close()
		err := &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(excerpt))}
		done(err)
		cancel()
		return nil, err
	}

	return &call{
		body:   http.MaxBytesReader(nil, resp.Body, c.maxBytes),
		cancel: cancel,
		done:   done,
	}, nil
}

// classifyRead maps a body read failure onto the package errors.
func (c *Client) classifyRead(ctx context.Context, err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return fmt.Errorf("%w: response exceeded %d bytes", ErrUpstreamUnavailable, c.maxBytes)
	}
	return unavailable(ctx, "read response", err)
}

// RunBuffered performs a non-streaming call and returns the complete text.
func (c *Client) RunBuffered(ctx context.Context, req Request) (string, error) {
	cl, err := c.open(ctx, req, false)
	if err != nil {
		return "", err
	}
	defer cl.cancel()
	defer func() { _ = cl.body.Close() }()

	text, err := c.readBuffered(ctx, cl.body)
	cl.done(err)
	return text, err
}

func (c *Client) readBuffered(ctx context.Context, body io.Reader) (string, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return "", c.classifyRead(ctx, err)
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", fmt.Errorf("%w: decode response: %w", ErrUpstreamUnavailable, err)
	}
	text, ok := sse.LookupString(doc, c.messagePath)
	if !ok {
		return "", fmt.Errorf("%w: response has no text at %s", ErrUpstreamUnavailable, c.messagePath)
	}
	return strings.TrimSpace(text), nil
}

// RunStreaming starts a streaming call. The returned Stream must be closed.
func (c *Client) RunStreaming(ctx context.Context, req Request) (*Stream, error) {
	cl, err := c.open(ctx, req, true)
	if err != nil {
		return nil, err
	}

	dec := sse.NewDecoder(
		sse.WithDeltaPath(c.deltaPath),
		sse.WithAnomalyHook(func(payload []byte, err error) {
			metrics.RecordDecodeAnomaly()
			logging.Ctx(ctx).Debug().Err(err).Int("payload_bytes", len(payload)).Msg("Dropped malformed stream frame")
		}),
	)
	return &Stream{client: c, ctx: ctx, call: cl, dec: dec}, nil
}

// Stream is an in-flight streaming completion.
type Stream struct {
	client *Client
	ctx    context.Context
	call   *call
	dec    *sse.Decoder

	consumed bool
	once     sync.Once
}

var errStreamConsumed = errors.New("stream already consumed")

// Fragments yields text fragments in arrival order. It ends cleanly at the
// sentinel or at end of body; a failure is yielded once as the error. The
// sequence can be ranged over only once.
func (s *Stream) Fragments() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if s.consumed {
			yield("", errStreamConsumed)
			return
		}
		s.consumed = true

		for f, err := range s.dec.Frames(s.call.body) {
			if err != nil {
				err = s.client.classifyRead(s.ctx, err)
				s.finish(err)
				yield("", err)
				return
			}
			if f.Sentinel {
				break
			}
			if !yield(f.Text, nil) {
				s.finish(context.Canceled)
				return
			}
		}
		s.finish(nil)
	}
}

// Anomalies returns the number of malformed frames dropped so far.
func (s *Stream) Anomalies() int {
	return s.dec.Anomalies()
}

func (s *Stream) finish(err error) {
	s.once.Do(func() { s.call.done(err) })
}

// Close releases the connection. Safe to call more than once.
func (s *Stream) Close() error {
	s.finish(context.Canceled)
	err := s.call.body.Close()
	s.call.cancel()
	return err
}
