// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

package pipeline

import (
	"errors"
	"testing"

	"github.com/tomtom215/arcanum/internal/models"
)

func TestTransition(t *testing.T) {
	photo, manual := models.ModePhoto, models.ModeManual
	tests := []struct {
		mode    models.Mode
		from    State
		trigger Trigger
		want    State
		wantErr bool
	}{
		// Photo mode walks every stage.
		{photo, StateInit, TriggerStart, StateIdentifying, false},
		{photo, StateIdentifying, TriggerStageDone, StateInterpretingIndividually, false},
		{photo, StateInterpretingIndividually, TriggerStageDone, StateInterpretingGenerally, false},
		{photo, StateInterpretingGenerally, TriggerStageDone, StateFinalizing, false},
		{photo, StateFinalizing, TriggerPersisted, StateCompleted, false},
		{photo, StateIdentifying, TriggerStageFailed, StateFailed, false},
		{photo, StateInterpretingIndividually, TriggerStageFailed, StateFailed, false},
		{photo, StateInterpretingGenerally, TriggerStageFailed, StateFailed, false},
		{photo, StateFinalizing, TriggerPersistFailed, StateFailed, false},

		// Manual mode skips straight to the general stage and falls back.
		{manual, StateInit, TriggerStart, StateInterpretingGenerally, false},
		{manual, StateInterpretingGenerally, TriggerStageDone, StateFinalizing, false},
		{manual, StateInterpretingGenerally, TriggerStageFailed, StateFinalizing, false},
		{manual, StateFinalizing, TriggerPersisted, StateCompleted, false},
		{manual, StateIdentifying, TriggerStageDone, StateIdentifying, true},
		{manual, StateInterpretingIndividually, TriggerStageFailed, StateInterpretingIndividually, true},

		// Setup failure and disconnects.
		{photo, StateInit, TriggerAbort, StateFailed, false},
		{manual, StateInit, TriggerDisconnected, StateFailed, false},
		{photo, StateInterpretingIndividually, TriggerDisconnected, StateFailed, false},
		{manual, StateFinalizing, TriggerDisconnected, StateFailed, false},

		// Terminal states are final.
		{photo, StateCompleted, TriggerStart, StateCompleted, true},
		{manual, StateFailed, TriggerDisconnected, StateFailed, true},

		// Nonsense.
		{photo, StateInit, TriggerPersisted, StateInit, true},
		{photo, StateFinalizing, TriggerStageDone, StateFinalizing, true},
		{manual, StateInterpretingGenerally, TriggerAbort, StateInterpretingGenerally, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode)+"/"+tt.from.String()+"/"+tt.trigger.String(), func(t *testing.T) {
			got, err := transition(tt.mode, tt.from, tt.trigger)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("err = %v, want ErrInvalidTransition", err)
			}
			if got != tt.want {
				t.Errorf("transition = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestStateStage(t *testing.T) {
	tests := []struct {
		state State
		want  Stage
		ok    bool
	}{
		{StateIdentifying, StageIdentify, true},
		{StateInterpretingIndividually, StageIndividual, true},
		{StateInterpretingGenerally, StageGeneral, true},
		{StateInit, "", false},
		{StateFinalizing, "", false},
		{StateCompleted, "", false},
	}
	for _, tt := range tests {
		got, ok := tt.state.Stage()
		if got != tt.want || ok != tt.ok {
			t.Errorf("%s.Stage() = %q, %v", tt.state, got, ok)
		}
	}
}

func TestStateAndTriggerNames(t *testing.T) {
	if StateInterpretingIndividually.String() != "interpreting_individually" {
		t.Errorf("got %q", StateInterpretingIndividually.String())
	}
	if State(42).String() != "state(42)" {
		t.Errorf("got %q", State(42).String())
	}
	if TriggerPersistFailed.String() != "persist_failed" {
		t.Errorf("got %q", TriggerPersistFailed.String())
	}
	if !StateFailed.Terminal() || StateFinalizing.Terminal() {
		t.Error("terminal classification is wrong")
	}
}
