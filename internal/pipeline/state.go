// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

package pipeline

import (
	"fmt"

	"github.com/tomtom215/arcanum/internal/models"
)

// State is a run's position in the pipeline.
type State int

const (
	StateInit State = iota
	StateIdentifying
	StateInterpretingIndividually
	StateInterpretingGenerally
	StateFinalizing
	StateCompleted
	StateFailed
)

var stateNames = [...]string{
	StateInit:                     "init",
	StateIdentifying:              "identifying",
	StateInterpretingIndividually: "interpreting_individually",
	StateInterpretingGenerally:    "interpreting_generally",
	StateFinalizing:               "finalizing",
	StateCompleted:                "completed",
	StateFailed:                   "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Stage returns the inference stage run in s, if any.
func (s State) Stage() (Stage, bool) {
	switch s {
	case StateIdentifying:
		return StageIdentify, true
	case StateInterpretingIndividually:
		return StageIndividual, true
	case StateInterpretingGenerally:
		return StageGeneral, true
	default:
		return "", false
	}
}

// Trigger is something that happened to a run.
type Trigger int

const (
	TriggerStart Trigger = iota
	TriggerStageDone
	TriggerStageFailed
	TriggerPersisted
	TriggerPersistFailed
	TriggerAbort
	TriggerDisconnected
)

var triggerNames = [...]string{
	TriggerStart:         "start",
	TriggerStageDone:     "stage_done",
	TriggerStageFailed:   "stage_failed",
	TriggerPersisted:     "persisted",
	TriggerPersistFailed: "persist_failed",
	TriggerAbort:         "abort",
	TriggerDisconnected:  "disconnected",
}

func (t Trigger) String() string {
	if t >= 0 && int(t) < len(triggerNames) {
		return triggerNames[t]
	}
	return fmt.Sprintf("trigger(%d)", int(t))
}

// transition is the whole pipeline as data. Photo mode runs identify,
// individual and general; manual mode runs general only. A failed stage sends
// a manual run to Finalizing (with the offline narrative) and a photo run to
// Failed. Abort covers a run that could not be set up.
func transition(mode models.Mode, s State, t Trigger) (State, error) {
	if s.Terminal() {
		return s, fmt.Errorf("%w: %s from terminal state %s", ErrInvalidTransition, t, s)
	}
	if t == TriggerDisconnected {
		return StateFailed, nil
	}

	switch s {
	case StateInit:
		switch t {
		case TriggerStart:
			if mode == models.ModePhoto {
				return StateIdentifying, nil
			}
			return StateInterpretingGenerally, nil
		case TriggerAbort:
			return StateFailed, nil
		}

	case StateIdentifying, StateInterpretingIndividually, StateInterpretingGenerally:
		if mode == models.ModeManual && s != StateInterpretingGenerally {
			break
		}
		switch t {
		case TriggerStageDone:
			switch s {
			case StateIdentifying:
				return StateInterpretingIndividually, nil
			case StateInterpretingIndividually:
				return StateInterpretingGenerally, nil
			default:
				return StateFinalizing, nil
			}
		case TriggerStageFailed:
			if mode == models.ModeManual {
				return StateFinalizing, nil
			}
			return StateFailed, nil
		}

	case StateFinalizing:
		switch t {
		case TriggerPersisted:
			return StateCompleted, nil
		case TriggerPersistFailed:
			return StateFailed, nil
		}
	}

	return s, fmt.Errorf("%w: %s in %s (%s mode)", ErrInvalidTransition, t, s, mode)
}
