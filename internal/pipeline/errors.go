// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

package pipeline

import "errors"

var (
	// ErrClientDisconnected means the outbound sink failed or the request
	// context ended. The run stops without a terminal event.
	ErrClientDisconnected = errors.New("client disconnected")

	// ErrPersistenceFailure means the reading could not be written.
	ErrPersistenceFailure = errors.New("reading persistence failed")

	// ErrAlreadyTerminated is returned by Emit after a terminal event.
	ErrAlreadyTerminated = errors.New("stream already terminated")

	// ErrFinalizeTwice is returned by a Finalizer that was already used.
	ErrFinalizeTwice = errors.New("reading already finalized by this run")

	// ErrInvalidRequest rejects a run before anything is persisted.
	ErrInvalidRequest = errors.New("invalid reading request")

	// ErrInvalidTransition is a state machine defect.
	ErrInvalidTransition = errors.New("invalid pipeline transition")
)

// User-facing terminal messages.
const (
	msgInternal        = "Something went wrong while preparing your reading."
	msgPhotoFailed     = "We could not read the cards in your photo. Please try again later."
	msgPersistFailed   = "Your reading was generated but could not be saved. Please try again."
	msgStartFailed     = "Your reading could not be started. Please try again."
	msgUnterminated    = "The reading ended unexpectedly."
	msgInvalidRequest  = "The reading request is invalid."
	msgFallbackStarted = "The oracle is quiet right now; composing your reading from the card meanings."
)
