// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

package pipeline

import "github.com/tomtom215/arcanum/internal/wire"

// Stage names one inference call of a run.
type Stage string

const (
	StageIdentify   Stage = "identify"
	StageIndividual Stage = "individual"
	StageGeneral    Stage = "general"
)

func (s Stage) wireType() wire.Type {
	switch s {
	case StageIdentify:
		return wire.TypeCards
	case StageIndividual:
		return wire.TypeIndividual
	default:
		return wire.TypeGeneral
	}
}

// Event is one unit of pipeline output. The set of events is closed: Status,
// StageResult, Delta, Done and Error. Done and Error are terminal.
type Event interface {
	unit() wire.Unit
	terminal() bool
}

// Status is a user-facing progress message.
type Status struct {
	Message string
}

// StageResult carries the complete text of a buffered stage.
type StageResult struct {
	Stage Stage
	Text  string
}

// Delta carries one fragment of a streaming stage.
type Delta struct {
	Stage    Stage
	Fragment string
}

// Done ends a successful run.
type Done struct {
	ReadingID string
}

// Error ends a failed run with a human-readable message.
type Error struct {
	Message string
}

func (e Status) unit() wire.Unit {
	return wire.Unit{Type: wire.TypeStatus, Content: e.Message}
}

func (e StageResult) unit() wire.Unit {
	return wire.Unit{Type: e.Stage.wireType(), Content: e.Text}
}

func (e Delta) unit() wire.Unit {
	return wire.Unit{Type: e.Stage.wireType(), Content: e.Fragment}
}

func (e Done) unit() wire.Unit {
	return wire.Unit{Type: wire.TypeDone, ReadingID: e.ReadingID}
}

func (e Error) unit() wire.Unit {
	return wire.Unit{Type: wire.TypeError, Content: e.Message}
}

func (Status) terminal() bool { return false }

func (StageResult) terminal() bool { return false }

func (Delta) terminal() bool { return false }

func (Done) terminal() bool { return true }

func (Error) terminal() bool { return true }

// Unit returns the wire form of ev.
func Unit(ev Event) wire.Unit {
	return ev.unit()
}
