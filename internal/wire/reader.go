// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

package wire

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"iter"

	"github.com/goccy/go-json"
)

const maxUnitBytes = 1 << 20

// Reader parses units from a byte stream. Each unit is validated before it
// is returned. An unterminated unit at end of input is ignored.
type Reader struct {
	sc      *bufio.Scanner
	partial bool
}

// NewReader returns a reader over r.
func NewReader(r io.Reader) *Reader {
	rd := &Reader{sc: bufio.NewScanner(r)}
	rd.sc.Buffer(make([]byte, 0, 4096), maxUnitBytes)
	rd.sc.Split(rd.split)
	return rd
}

func (r *Reader) split(data []byte, atEOF bool) (int, []byte, error) {
	if i := bytes.Index(data, []byte(Delimiter)); i >= 0 {
		return i + len(Delimiter), data[:i], nil
	}
	if atEOF {
		if len(bytes.TrimSpace(data)) > 0 {
			r.partial = true
		}
		return len(data), nil, nil
	}
	return 0, nil, nil
}

// Next returns the next unit, or io.EOF at end of stream.
func (r *Reader) Next() (Unit, error) {
	for r.sc.Scan() {
		raw := bytes.TrimSpace(r.sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		if err := Validate(raw); err != nil {
			return Unit{}, err
		}
		var u Unit
		if err := json.Unmarshal(raw, &u); err != nil {
			return Unit{}, fmt.Errorf("%w: %w", ErrInvalidUnit, err)
		}
		return u, nil
	}
	if err := r.sc.Err(); err != nil {
		return Unit{}, err
	}
	return Unit{}, io.EOF
}

// Partial reports whether the stream ended inside an unterminated unit.
func (r *Reader) Partial() bool {
	return r.partial
}

// Units yields units until end of stream. A read or validation error is
// yielded once and ends the sequence.
func (r *Reader) Units() iter.Seq2[Unit, error] {
	return func(yield func(Unit, error) bool) {
		for {
			u, err := r.Next()
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(Unit{}, err)
				return
			}
			if !yield(u, nil) {
				return
			}
		}
	}
}
