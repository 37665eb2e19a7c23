// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
)

// NarrativeWriter performs the single narrative write of a reading.
type NarrativeWriter interface {
	UpdateReadingNarrative(ctx context.Context, readingID, narrative string) error
}

// Finalizer writes a run's narrative exactly once. One Finalizer belongs to
// one run; a second Finalize call is refused without touching the store.
type Finalizer struct {
	store NarrativeWriter
	used  atomic.Bool
}

// NewFinalizer returns a finalizer writing to store.
func NewFinalizer(store NarrativeWriter) *Finalizer {
	return &Finalizer{store: store}
}

// Finalize persists narrative as the reading's final text.
func (f *Finalizer) Finalize(ctx context.Context, readingID, narrative string) error {
	if !f.used.CompareAndSwap(false, true) {
		return ErrFinalizeTwice
	}
	if err := f.store.UpdateReadingNarrative(ctx, readingID, narrative); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}
	return nil
}
