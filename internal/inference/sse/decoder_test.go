// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

package sse

import (
	"errors"
	"io"
	"math/rand/v2"
	"strings"
	"testing"
	"testing/iotest"
)

func texts(frames []Frame) []string {
	var out []string
	for _, f := range frames {
		if !f.Sentinel {
			out = append(out, f.Text)
		}
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestFeedThreeChunks(t *testing.T) {
	d := NewDecoder()

	var frames []Frame
	frames = append(frames, d.Feed([]byte(`data: {"choices":[{"delta":{"content":"Hel`))...)
	frames = append(frames, d.Feed([]byte(`lo"}}]}`+"\n"+`data: {"choices":[{"delta":{"content":" world"}}]}`+"\n"))...)
	frames = append(frames, d.Feed([]byte("data: [DONE]\n"))...)

	if got := texts(frames); !equal(got, []string{"Hello", " world"}) {
		t.Fatalf("fragments = %q, want [Hello  world]", got)
	}
	if !frames[len(frames)-1].Sentinel {
		t.Error("expected the last frame to be the sentinel")
	}
	if !d.Done() {
		t.Error("expected decoder to be done")
	}
}

const sampleStream = ": keep-alive comment\n" +
	"event: message\n" +
	`data: {"choices":[{"delta":{"role":"assistant"}}]}` + "\n" +
	`data: {"choices":[{"delta":{"content":"The "}}]}` + "\r\n" +
	"\n" +
	`data: {"choices":[{"delta":{"content":"cards"}}]}` + "\n" +
	`data: {not json` + "\n" +
	`data:{"choices":[{"delta":{"content":" speak."}}]}` + "\n" +
	`data: {"choices":[{"delta":{"content":""}}]}` + "\n" +
	"data: [DONE]\n" +
	`data: {"choices":[{"delta":{"content":"ignored"}}]}` + "\n"

var sampleWant = []string{"The ", "cards", " speak."}

func TestFeedSampleStream(t *testing.T) {
	var anomalies int
	d := NewDecoder(WithAnomalyHook(func([]byte, error) { anomalies++ }))

	frames := d.Feed([]byte(sampleStream))
	if got := texts(frames); !equal(got, sampleWant) {
		t.Fatalf("fragments = %q, want %q", got, sampleWant)
	}
	if anomalies != 1 || d.Anomalies() != 1 {
		t.Errorf("anomalies = %d (hook %d), want 1", d.Anomalies(), anomalies)
	}
}

func TestFrameBoundaryInvariance(t *testing.T) {
	data := []byte(sampleStream)

	// Every single split point.
	for cut := 0; cut <= len(data); cut++ {
		d := NewDecoder()
		frames := append(d.Feed(data[:cut]), d.Feed(data[cut:])...)
		if got := texts(frames); !equal(got, sampleWant) {
			t.Fatalf("split at %d: fragments = %q, want %q", cut, got, sampleWant)
		}
	}

	// Random multi-way partitions, including one byte at a time.
	rng := rand.New(rand.NewPCG(11, 13))
	for trial := range 200 {
		d := NewDecoder()
		var frames []Frame
		for i := 0; i < len(data); {
			n := 1 + rng.IntN(16)
			if trial == 0 {
				n = 1
			}
			end := min(i+n, len(data))
			frames = append(frames, d.Feed(data[i:end])...)
			i = end
		}
		if got := texts(frames); !equal(got, sampleWant) {
			t.Fatalf("trial %d: fragments = %q, want %q", trial, got, sampleWant)
		}
	}
}

func TestSentinelStopsDecoding(t *testing.T) {
	d := NewDecoder()
	frames := d.Feed([]byte("data: [DONE]\ndata: {\"choices\":[{\"delta\":{\"content\":\"late\"}}]}\n"))
	if len(frames) != 1 || !frames[0].Sentinel {
		t.Fatalf("frames = %+v, want only the sentinel", frames)
	}
	if more := d.Feed([]byte(`data: {"choices":[{"delta":{"content":"later"}}]}` + "\n")); more != nil {
		t.Errorf("expected nil after sentinel, got %+v", more)
	}
}

func TestCustomDeltaPath(t *testing.T) {
	d := NewDecoder(WithDeltaPath("delta.text"))
	frames := d.Feed([]byte(`data: {"delta":{"text":"custom"}}` + "\n"))
	if got := texts(frames); !equal(got, []string{"custom"}) {
		t.Errorf("fragments = %q, want [custom]", got)
	}
}

func TestFramesReader(t *testing.T) {
	d := NewDecoder()
	r := iotest.OneByteReader(strings.NewReader(sampleStream))

	var got []string
	sawSentinel := false
	for f, err := range d.Frames(r) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if f.Sentinel {
			sawSentinel = true
			continue
		}
		got = append(got, f.Text)
	}
	if !equal(got, sampleWant) || !sawSentinel {
		t.Errorf("fragments = %q sentinel=%v", got, sawSentinel)
	}
}

func TestFramesTrailingPartialLine(t *testing.T) {
	d := NewDecoder()
	input := `data: {"choices":[{"delta":{"content":"whole"}}]}` + "\n" + `data: {"choices":[{"delta":{"content":"part`

	var got []string
	for f, err := range d.Frames(strings.NewReader(input)) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got = append(got, f.Text)
	}
	if !equal(got, []string{"whole"}) {
		t.Errorf("fragments = %q, want [whole]", got)
	}
	if d.Done() {
		t.Error("decoder should not report done without the sentinel")
	}
}

func TestFramesReadError(t *testing.T) {
	boom := errors.New("connection reset")
	r := io.MultiReader(
		strings.NewReader(`data: {"choices":[{"delta":{"content":"a"}}]}`+"\n"),
		iotest.ErrReader(boom),
	)

	var got []string
	var gotErr error
	for f, err := range NewDecoder().Frames(r) {
		if err != nil {
			gotErr = err
			break
		}
		got = append(got, f.Text)
	}
	if !equal(got, []string{"a"}) {
		t.Errorf("fragments = %q, want [a]", got)
	}
	if !errors.Is(gotErr, boom) {
		t.Errorf("error = %v, want %v", gotErr, boom)
	}
}

func TestLookupString(t *testing.T) {
	doc := map[string]any{
		"choices": []any{
			map[string]any{"message": map[string]any{"content": "full text"}},
		},
	}
	tests := []struct {
		path string
		want string
		ok   bool
	}{
		{"choices.0.message.content", "full text", true},
		{"choices.1.message.content", "", false},
		{"choices.x.message", "", false},
		{"choices.0.message", "", false},
		{"missing", "", false},
	}
	for _, tt := range tests {
		got, ok := LookupString(doc, tt.path)
		if got != tt.want || ok != tt.ok {
			t.Errorf("LookupString(%q) = %q, %v; want %q, %v", tt.path, got, ok, tt.want, tt.ok)
		}
	}
}
