// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

// Package wire implements the outbound reading stream protocol.
//
// A stream is a sequence of units. Each unit is one JSON object followed by a
// blank line:
//
//	{"type":"status","content":"Reading the cards..."}
//
//	{"type":"general","content":"The Sun "}
//
//	{"type":"done","readingId":"6f1c..."}
//
// The type is one of status, cards, individual, general, done or error. Every
// type except done carries content; done carries the reading ID. A consumer
// parses unit by unit and ignores an unterminated unit at end of stream.
package wire

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"sync"

	"github.com/goccy/go-json"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Delimiter terminates every unit.
const Delimiter = "\n\n"

// Type discriminates units.
type Type string

const (
	TypeStatus     Type = "status"
	TypeCards      Type = "cards"
	TypeIndividual Type = "individual"
	TypeGeneral    Type = "general"
	TypeDone       Type = "done"
	TypeError      Type = "error"
)

// Terminal reports whether t ends a stream.
func (t Type) Terminal() bool {
	return t == TypeDone || t == TypeError
}

// Unit is one self-describing stream element.
type Unit struct {
	Type      Type   `json:"type"`
	Content   string `json:"content,omitempty"`
	ReadingID string `json:"readingId,omitempty"`
}

// ErrInvalidUnit is returned for a unit that does not match the schema.
var ErrInvalidUnit = errors.New("invalid stream unit")

//go:embed unit.schema.json
var unitSchemaJSON []byte

const unitSchemaURL = "https://arcanum.invalid/schemas/wire-unit.json"

var (
	schemaOnce sync.Once
	unitSchema *jsonschema.Schema
	schemaErr  error
)

func schema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(unitSchemaURL, bytes.NewReader(unitSchemaJSON)); err != nil {
			schemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		unitSchema, schemaErr = compiler.Compile(unitSchemaURL)
		if schemaErr != nil {
			schemaErr = fmt.Errorf("compile schema: %w", schemaErr)
		}
	})
	return unitSchema, schemaErr
}

// Validate checks raw unit JSON (without the delimiter) against the schema.
func Validate(raw []byte) error {
	s, err := schema()
	if err != nil {
		return err
	}
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidUnit, err)
	}
	if err := s.Validate(payload); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidUnit, err)
	}
	return nil
}

// Marshal encodes u followed by the delimiter.
func Marshal(u Unit) ([]byte, error) {
	b, err := json.Marshal(u)
	if err != nil {
		return nil, err
	}
	return append(b, Delimiter...), nil
}
