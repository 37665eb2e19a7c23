// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

package wire

import (
	"fmt"
	"io"
	"net/http"
)

// Encoder writes units to a byte stream, flushing after each one when the
// writer supports it.
type Encoder struct {
	w       io.Writer
	flusher http.Flusher
}

// NewEncoder returns an encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	f, _ := w.(http.Flusher)
	return &Encoder{w: w, flusher: f}
}

// WriteUnit writes one unit and flushes it.
func (e *Encoder) WriteUnit(u Unit) error {
	b, err := Marshal(u)
	if err != nil {
		return fmt.Errorf("encode unit: %w", err)
	}
	if _, err := e.w.Write(b); err != nil {
		return err
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	return nil
}
