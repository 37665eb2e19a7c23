// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

// Package pipeline turns a reading request into a streamed, persisted
// narrative.
//
// An Orchestrator run creates the reading record, then walks the state
// machine in state.go: each state that names a stage emits a Status event,
// calls the inference service and records the stage's full text so the next
// stage's prompt can include it. Streaming stages forward every fragment as a
// Delta before reading the next one. When the last stage completes the
// Finalizer writes the narrative once and the run ends with Done.
//
// Upstream failure ends a photo run with a single Error event. A manual run
// instead switches to the offline narrative generator and still completes.
// If the client goes away the run context is cancelled, the upstream read is
// abandoned and nothing is written.
//
// All events pass through a Multiplexer, which guarantees exactly one
// terminal event per run even if the orchestrator panics.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/arcanum/internal/eventbus"
	"github.com/tomtom215/arcanum/internal/inference"
	"github.com/tomtom215/arcanum/internal/logging"
	"github.com/tomtom215/arcanum/internal/metrics"
	"github.com/tomtom215/arcanum/internal/models"
	"github.com/tomtom215/arcanum/internal/narrative"
)

// ReadingStore is the slice of the database a run needs.
type ReadingStore interface {
	NarrativeWriter
	CreateReadingWithCards(ctx context.Context, r *models.Reading, cards []models.ReadingCard) error
}

// PhotoSigner turns a stored photo reference into a time-limited URL the
// vision model can fetch.
type PhotoSigner interface {
	SignedURL(ctx context.Context, ref string) (string, error)
}

// Publisher announces completed readings.
type Publisher interface {
	PublishReadingCompleted(ctx context.Context, ev eventbus.ReadingCompleted) error
}

// FragmentStream is a single-pass sequence of text fragments.
type FragmentStream interface {
	Fragments() iter.Seq2[string, error]
	Close() error
}

// Inference runs one stage call.
type Inference interface {
	RunBuffered(ctx context.Context, req inference.Request) (string, error)
	RunStreaming(ctx context.Context, req inference.Request) (FragmentStream, error)
}

type clientInference struct {
	c *inference.Client
}

// NewInference adapts an inference client to the Inference interface.
func NewInference(c *inference.Client) Inference {
	return clientInference{c: c}
}

func (ci clientInference) RunBuffered(ctx context.Context, req inference.Request) (string, error) {
	return ci.c.RunBuffered(ctx, req)
}

func (ci clientInference) RunStreaming(ctx context.Context, req inference.Request) (FragmentStream, error) {
	s, err := ci.c.RunStreaming(ctx, req)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Options wires an Orchestrator. Photos is required for photo mode only and
// Publisher may be nil.
type Options struct {
	Store     ReadingStore
	Inference Inference
	Photos    PhotoSigner
	Publisher Publisher
	Models    Models

	NewID func() string
	Now   func() time.Time
}

// Orchestrator runs readings. It holds no per-run state and is safe for
// concurrent use.
type Orchestrator struct {
	store     ReadingStore
	inference Inference
	photos    PhotoSigner
	publisher Publisher
	models    Models
	newID     func() string
	now       func() time.Time
}

// NewOrchestrator returns an orchestrator.
func NewOrchestrator(opts Options) *Orchestrator {
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{
		store:     opts.Store,
		inference: opts.Inference,
		photos:    opts.Photos,
		publisher: opts.Publisher,
		models:    opts.Models,
		newID:     opts.NewID,
		now:       opts.Now,
	}
}

// Request is one reading to interpret.
type Request struct {
	Mode     models.Mode
	UserID   string
	Spread   models.SpreadType
	Question string

	// Cards is the placed selection (manual mode).
	Cards []models.DrawnCard
	// PhotoRef is the stored photo of the spread (photo mode).
	PhotoRef string
}

func (r Request) validate() error {
	switch {
	case r.UserID == "":
		return fmt.Errorf("%w: missing user", ErrInvalidRequest)
	case !r.Spread.Valid():
		return fmt.Errorf("%w: unknown spread %q", ErrInvalidRequest, r.Spread)
	case r.Mode == models.ModeManual:
		if len(r.Cards) != r.Spread.Size() {
			return fmt.Errorf("%w: %s needs %d cards, got %d", ErrInvalidRequest, r.Spread, r.Spread.Size(), len(r.Cards))
		}
	case r.Mode == models.ModePhoto:
		if r.PhotoRef == "" {
			return fmt.Errorf("%w: missing photo reference", ErrInvalidRequest)
		}
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, r.Mode)
	}
	return nil
}

// Result summarizes a finished run.
type Result struct {
	ReadingID string
	State     State
	Fallback  bool
	Events    int
}

// Stream runs req and writes its events to sink. It returns when the run is
// over: completed, failed or abandoned by the client.
func (o *Orchestrator) Stream(ctx context.Context, sink Sink, req Request) (Result, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	metrics.TrackActiveStream(true)
	defer metrics.TrackActiveStream(false)

	r := &run{
		o:         o,
		req:       req,
		mux:       NewMultiplexer(sink, cancel),
		finalizer: NewFinalizer(o.store),
		state:     StateInit,
		texts:     make(map[Stage]string, 3),
	}
	err := r.mux.Run(runCtx, r.execute)

	outcome := "failed"
	switch {
	case r.state == StateCompleted:
		outcome = "completed"
	case r.disconnected(runCtx):
		outcome = "disconnected"
	}
	metrics.RecordPipelineRun(string(req.Mode), outcome)

	return Result{
		ReadingID: r.readingID(),
		State:     r.state,
		Fallback:  r.fallback,
		Events:    r.mux.Emitted(),
	}, err
}

// run is the state of one pipeline invocation. Stage text accumulates here
// and nowhere else.
type run struct {
	o         *Orchestrator
	req       Request
	mux       *Multiplexer
	finalizer *Finalizer
	log       zerolog.Logger

	state    State
	reading  *models.Reading
	texts    map[Stage]string
	fallback bool
}

func (r *run) readingID() string {
	if r.reading == nil {
		return ""
	}
	return r.reading.ID
}

func (r *run) disconnected(ctx context.Context) bool {
	return r.mux.Disconnected() || ctx.Err() != nil
}

func (r *run) advance(t Trigger) error {
	next, err := transition(r.req.Mode, r.state, t)
	if err != nil {
		return err
	}
	r.log.Debug().Str("from", r.state.String()).Str("to", next.String()).Str("trigger", t.String()).Msg("Pipeline transition")
	r.state = next
	return nil
}

// abort ends a run that never reached its first stage.
func (r *run) abort(ctx context.Context, message string, cause error) error {
	if r.disconnected(ctx) {
		_ = r.advance(TriggerDisconnected)
		return ErrClientDisconnected
	}
	_ = r.advance(TriggerAbort)
	if err := r.mux.Emit(Error{Message: message}); err != nil {
		return err
	}
	return cause
}

func (r *run) execute(ctx context.Context) error {
	ctx = r.withLogFields(ctx, func(c zerolog.Context) zerolog.Context {
		return c.Str("mode", string(r.req.Mode)).Str("spread", string(r.req.Spread))
	})

	if err := r.req.validate(); err != nil {
		return r.abort(ctx, msgInvalidRequest, err)
	}
	if r.req.Mode == models.ModePhoto && r.o.photos == nil {
		return r.abort(ctx, msgStartFailed, fmt.Errorf("%w: photo storage not configured", ErrInvalidRequest))
	}

	if err := r.createReading(ctx); err != nil {
		r.log.Error().Err(err).Msg("Failed to create reading")
		return r.abort(ctx, msgStartFailed, err)
	}
	ctx = r.withLogFields(ctx, func(c zerolog.Context) zerolog.Context {
		return c.Str("reading_id", r.reading.ID)
	})

	if err := r.advance(TriggerStart); err != nil {
		return err
	}

	for !r.state.Terminal() && r.state != StateFinalizing {
		stage, ok := r.state.Stage()
		if !ok {
			return fmt.Errorf("%w: no stage for state %s", ErrInvalidTransition, r.state)
		}

		if err := r.mux.Emit(Status{Message: stageStatus(stage)}); err != nil {
			_ = r.advance(TriggerDisconnected)
			return err
		}

		text, err := r.runStage(ctx, stage)
		if err == nil {
			r.texts[stage] = text
			if err := r.advance(TriggerStageDone); err != nil {
				return err
			}
			continue
		}

		if r.disconnected(ctx) || errors.Is(err, ErrClientDisconnected) {
			r.log.Info().Str("stage", string(stage)).Msg("Client disconnected during stage")
			_ = r.advance(TriggerDisconnected)
			return ErrClientDisconnected
		}

		r.log.Warn().Err(err).Str("stage", string(stage)).Str("kind", inference.Kind(err)).Msg("Inference stage failed")
		if err := r.advance(TriggerStageFailed); err != nil {
			return err
		}
		if r.state == StateFailed {
			if emitErr := r.mux.Emit(Error{Message: msgPhotoFailed}); emitErr != nil {
				return emitErr
			}
			return err
		}
		r.fallback = true
	}

	if r.state != StateFinalizing {
		return nil
	}
	return r.finalize(ctx)
}

// withLogFields stores a logger carrying extra fields on ctx and makes it the
// run's logger.
func (r *run) withLogFields(ctx context.Context, fields func(zerolog.Context) zerolog.Context) context.Context {
	ctx = logging.ContextWithLogger(ctx, fields(logging.LoggerFromContext(ctx).With()).Logger())
	r.log = *logging.Ctx(ctx)
	return ctx
}

func (r *run) createReading(ctx context.Context) error {
	reading := &models.Reading{
		ID:         r.o.newID(),
		UserID:     r.req.UserID,
		SpreadType: r.req.Spread,
		Question:   strings.TrimSpace(r.req.Question),
		Mode:       r.req.Mode,
		CreatedAt:  r.o.now().UTC(),
	}
	if r.req.Mode == models.ModePhoto {
		reading.PhotoRef = r.req.PhotoRef
	}
	if r.req.Mode == models.ModeManual {
		reading.Cards = make([]models.ReadingCard, len(r.req.Cards))
		for i, c := range r.req.Cards {
			reading.Cards[i] = models.ReadingCard{ReadingID: reading.ID, CardID: c.ID, Position: i, Reversed: c.Reversed}
		}
	}
	if err := r.o.store.CreateReadingWithCards(ctx, reading, reading.Cards); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}
	r.reading = reading
	return nil
}

func stageStatus(stage Stage) string {
	switch stage {
	case StageIdentify:
		return "Looking closely at the cards in your photo..."
	case StageIndividual:
		return "Interpreting each card in its position..."
	default:
		return "Weaving the cards into your reading..."
	}
}

func (r *run) runStage(ctx context.Context, stage Stage) (string, error) {
	start := time.Now()
	m := r.o.models

	var text string
	var err error
	switch stage {
	case StageIdentify:
		text, err = r.identify(ctx)
	case StageIndividual:
		text, err = r.stream(ctx, stage, individualRequest(m, r.req.Spread, r.req.Question, r.texts[StageIdentify]))
	case StageGeneral:
		if r.req.Mode == models.ModePhoto {
			text, err = r.stream(ctx, stage, generalPhotoRequest(m, r.req.Spread, r.req.Question,
				r.texts[StageIdentify], r.texts[StageIndividual]))
		} else {
			text, err = r.stream(ctx, stage, generalManualRequest(m, r.req.Spread, r.req.Question, r.req.Cards))
		}
	default:
		err = fmt.Errorf("%w: unknown stage %q", ErrInvalidTransition, stage)
	}

	kind := ""
	if err != nil && !r.disconnected(ctx) && !errors.Is(err, ErrClientDisconnected) {
		kind = inference.Kind(err)
	}
	metrics.RecordStage(string(stage), time.Since(start), kind)
	return text, err
}

func (r *run) identify(ctx context.Context) (string, error) {
	url, err := r.o.photos.SignedURL(ctx, r.req.PhotoRef)
	if err != nil {
		return "", fmt.Errorf("sign photo url: %w", err)
	}

	text, err := r.o.inference.RunBuffered(ctx, identifyRequest(r.o.models, r.req.Spread, r.req.Question, url))
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", fmt.Errorf("%w: empty identification", inference.ErrUpstreamUnavailable)
	}
	if err := r.mux.Emit(StageResult{Stage: StageIdentify, Text: text}); err != nil {
		return "", err
	}
	return text, nil
}

// stream forwards each fragment as it arrives and returns the full text.
func (r *run) stream(ctx context.Context, stage Stage, req inference.Request) (string, error) {
	s, err := r.o.inference.RunStreaming(ctx, req)
	if err != nil {
		return "", err
	}
	defer func() { _ = s.Close() }()

	var acc strings.Builder
	for frag, err := range s.Fragments() {
		if err != nil {
			return "", err
		}
		acc.WriteString(frag)
		if err := r.mux.Emit(Delta{Stage: stage, Fragment: frag}); err != nil {
			return "", err
		}
	}
	if acc.Len() == 0 {
		return "", fmt.Errorf("%w: empty %s completion", inference.ErrUpstreamUnavailable, stage)
	}
	return acc.String(), nil
}

// composeNarrative joins the stage texts that make up the stored reading.
func (r *run) composeNarrative() string {
	var parts []string
	for _, stage := range []Stage{StageIdentify, StageIndividual, StageGeneral} {
		if t := strings.TrimSpace(r.texts[stage]); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n\n")
}

// emitFallback streams the offline narrative paragraph by paragraph. The
// concatenated fragments equal the returned text.
func (r *run) emitFallback() (string, error) {
	metrics.RecordFallback()
	r.log.Info().Msg("Using offline narrative")

	if err := r.mux.Emit(Status{Message: msgFallbackStarted}); err != nil {
		return "", err
	}
	text := narrative.Generate(r.req.Cards, r.req.Spread, r.req.Question)
	for i, para := range strings.Split(text, "\n\n") {
		if i > 0 {
			para = "\n\n" + para
		}
		if err := r.mux.Emit(Delta{Stage: StageGeneral, Fragment: para}); err != nil {
			return "", err
		}
	}
	return text, nil
}

func (r *run) finalize(ctx context.Context) error {
	text := r.composeNarrative()
	if r.fallback {
		var err error
		if text, err = r.emitFallback(); err != nil {
			_ = r.advance(TriggerDisconnected)
			return err
		}
	}

	if r.disconnected(ctx) {
		_ = r.advance(TriggerDisconnected)
		return ErrClientDisconnected
	}

	if err := r.finalizer.Finalize(ctx, r.reading.ID, text); err != nil {
		r.log.Error().Err(err).Msg("Failed to persist narrative")
		if r.disconnected(ctx) {
			_ = r.advance(TriggerDisconnected)
			return ErrClientDisconnected
		}
		_ = r.advance(TriggerPersistFailed)
		if emitErr := r.mux.Emit(Error{Message: msgPersistFailed}); emitErr != nil {
			return emitErr
		}
		return err
	}
	if err := r.advance(TriggerPersisted); err != nil {
		return err
	}
	metrics.RecordReadingFinalized(string(r.req.Mode))
	r.log.Info().Bool("fallback", r.fallback).Int("narrative_len", len(text)).Msg("Reading finalized")

	emitErr := r.mux.Emit(Done{ReadingID: r.reading.ID})
	r.publish(ctx)
	return emitErr
}

// publish runs after the reading is durable; failure is logged only.
func (r *run) publish(ctx context.Context) {
	if r.o.publisher == nil {
		return
	}
	ev := eventbus.ReadingCompleted{
		ReadingID:   r.reading.ID,
		UserID:      r.reading.UserID,
		Mode:        r.reading.Mode,
		SpreadType:  r.reading.SpreadType,
		Fallback:    r.fallback,
		CompletedAt: r.o.now().UTC(),
	}
	if err := r.o.publisher.PublishReadingCompleted(context.WithoutCancel(ctx), ev); err != nil {
		r.log.Warn().Err(err).Msg("Failed to publish reading completed event")
	}
}
