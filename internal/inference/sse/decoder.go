// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

// Package sse decodes the chunked, line-delimited event stream returned by a
// streaming chat completion into text fragments.
//
// Upstream chunks do not respect line boundaries, so the decoder keeps the
// unterminated tail of each chunk and prepends it to the next. Only lines of
// the form "data: <payload>" matter. A payload equal to the sentinel ends the
// stream; any other payload is JSON from which one text field is extracted.
// The frames produced for a byte stream are the same however that stream is
// split into chunks.
package sse

import (
	"bytes"
	"io"
	"iter"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

const (
	// DataPrefix marks the significant lines of the stream.
	DataPrefix = "data:"
	// Sentinel is the payload that terminates the stream.
	Sentinel = "[DONE]"
	// DefaultDeltaPath locates the fragment in an OpenAI-compatible chunk.
	DefaultDeltaPath = "choices.0.delta.content"

	readBufferSize = 4096
)

// Frame is one decoded unit: a text fragment or the end-of-stream sentinel.
type Frame struct {
	Text     string
	Sentinel bool
}

// Decoder turns raw chunks into frames. A Decoder is single-use and not safe
// for concurrent use.
type Decoder struct {
	path      []string
	carry     []byte
	done      bool
	anomalies int
	onAnomaly func(payload []byte, err error)
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithDeltaPath sets the dot-separated path of the text field. Numeric
// segments index into arrays.
func WithDeltaPath(path string) Option {
	return func(d *Decoder) {
		if path != "" {
			d.path = strings.Split(path, ".")
		}
	}
}

// WithAnomalyHook is called for every data payload dropped as malformed.
func WithAnomalyHook(fn func(payload []byte, err error)) Option {
	return func(d *Decoder) {
		d.onAnomaly = fn
	}
}

// NewDecoder returns a decoder in its initial state.
func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{path: strings.Split(DefaultDeltaPath, ".")}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Done reports whether the sentinel has been seen.
func (d *Decoder) Done() bool { return d.done }

// Anomalies returns the number of malformed payloads dropped so far.
func (d *Decoder) Anomalies() int { return d.anomalies }

// Feed appends chunk to the carried-over tail and returns the frames
// completed by it, in order. After the sentinel every call returns nil.
func (d *Decoder) Feed(chunk []byte) []Frame {
	if d.done {
		return nil
	}
	d.carry = append(d.carry, chunk...)

	var frames []Frame
	for !d.done {
		i := bytes.IndexByte(d.carry, '\n')
		if i < 0 {
			break
		}
		line := d.carry[:i]
		if f, ok := d.processLine(line); ok {
			frames = append(frames, f)
		}
		d.carry = d.carry[i+1:]
	}

	if d.done {
		d.carry = nil
	} else if len(d.carry) == 0 {
		// Drop the consumed backing array rather than growing it forever.
		d.carry = nil
	}
	return frames
}

func (d *Decoder) processLine(line []byte) (Frame, bool) {
	line = bytes.TrimSuffix(line, []byte{'\r'})
	if !bytes.HasPrefix(line, []byte(DataPrefix)) {
		return Frame{}, false
	}
	payload := bytes.TrimSpace(line[len(DataPrefix):])

	if string(payload) == Sentinel {
		d.done = true
		return Frame{Sentinel: true}, true
	}

	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		d.anomalies++
		if d.onAnomaly != nil {
			d.onAnomaly(payload, err)
		}
		return Frame{}, false
	}

	text, ok := lookupString(doc, d.path)
	if !ok || text == "" {
		return Frame{}, false
	}
	return Frame{Text: text}, true
}

// lookupString walks doc along path and returns the string found there.
func lookupString(doc any, path []string) (string, bool) {
	cur := doc
	for _, seg := range path {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return "", false
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return "", false
			}
			cur = node[idx]
		default:
			return "", false
		}
	}
	s, ok := cur.(string)
	return s, ok
}

// LookupString extracts the string at a dot-separated path from a decoded
// JSON document. Buffered responses use it with the message path.
func LookupString(doc any, path string) (string, bool) {
	return lookupString(doc, strings.Split(path, "."))
}

// Frames reads r to the end and yields every frame, including the trailing
// sentinel if one arrives. It stops without error at end of input, leaving
// any unterminated final line undecoded. A read failure is yielded once as
// the error and ends the sequence. The sequence is single-pass.
func (d *Decoder) Frames(r io.Reader) iter.Seq2[Frame, error] {
	return func(yield func(Frame, error) bool) {
		buf := make([]byte, readBufferSize)
		for !d.done {
			n, err := r.Read(buf)
			if n > 0 {
				for _, f := range d.Feed(buf[:n]) {
					if !yield(f, nil) {
						return
					}
				}
			}
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(Frame{}, err)
				return
			}
		}
	}
}
