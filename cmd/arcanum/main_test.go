// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/arcanum/internal/api"
	"github.com/tomtom215/arcanum/internal/auth"
	"github.com/tomtom215/arcanum/internal/config"
	"github.com/tomtom215/arcanum/internal/database"
	"github.com/tomtom215/arcanum/internal/deck"
	"github.com/tomtom215/arcanum/internal/models"
	"github.com/tomtom215/arcanum/internal/narrative"
	"github.com/tomtom215/arcanum/internal/wire"
)

const cliJWTSecret = "cli_test_secret_that_is_at_least_32_characters"

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

// isolateConfig points configuration at env vars only.
func isolateConfig(t *testing.T) {
	t.Helper()
	t.Setenv(config.ConfigPathEnvVar, "")
	t.Chdir(t.TempDir())
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("DB_PATH", filepath.Join(t.TempDir(), "arcanum.db"))
}

func TestDrawCommandIsRepeatableWithSeed(t *testing.T) {
	first, err := runCLI(t, "draw", "--spread", "celtic-cross", "--seed", "42")
	if err != nil {
		t.Fatalf("draw error = %v", err)
	}
	second, _ := runCLI(t, "draw", "--spread", "celtic-cross", "--seed", "42")
	if first != second {
		t.Error("seeded draws differ")
	}
	for _, want := range []string{"POSITION", "ORIENTATION", "Present"} {
		if !strings.Contains(first, want) {
			t.Errorf("output missing %q:\n%s", want, first)
		}
	}
}

func TestDrawCommandJSON(t *testing.T) {
	out, err := runCLI(t, "draw", "--spread", "three-card", "--seed", "7", "--json")
	if err != nil {
		t.Fatalf("draw error = %v", err)
	}
	var selections []deck.Selection
	if err := json.Unmarshal([]byte(out), &selections); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	catalog, _ := deck.Default()
	if _, err := catalog.Place(models.SpreadThreeCard, selections); err != nil {
		t.Errorf("drawn selection does not place: %v", err)
	}
}

func TestDrawCommandRejectsUnknownSpread(t *testing.T) {
	if _, err := runCLI(t, "draw", "--spread", "horseshoe"); err == nil {
		t.Error("expected an error for an unknown spread")
	}
}

func TestFallbackCommand(t *testing.T) {
	out, err := runCLI(t, "fallback", "--spread", "three-card", "-q", "Where am I headed?",
		"--card", "The Fool", "--card", "the-tower:reversed", "--card", "Three of Cups")
	if err != nil {
		t.Fatalf("fallback error = %v", err)
	}

	catalog, _ := deck.Default()
	placed, err := catalog.Place(models.SpreadThreeCard, []deck.Selection{
		{CardID: "The Fool"}, {CardID: "the-tower", Reversed: true}, {CardID: "Three of Cups"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if want := narrative.Generate(placed, models.SpreadThreeCard, "Where am I headed?"); !strings.Contains(out, want) {
		t.Errorf("output does not contain the offline narrative:\n%s", out)
	}
	if !strings.Contains(out, "reversed") {
		t.Error("spread table does not show the reversed card")
	}

	if _, err := runCLI(t, "fallback", "--spread", "single", "--card", "The Jester"); err == nil {
		t.Error("expected an error for an unknown card")
	}
}

func TestParseSelections(t *testing.T) {
	tests := []struct {
		in   string
		want deck.Selection
	}{
		{"The Sun", deck.Selection{CardID: "The Sun"}},
		{"the-sun:reversed", deck.Selection{CardID: "the-sun", Reversed: true}},
		{" The Moon : R ", deck.Selection{CardID: "The Moon", Reversed: true}},
		{"Ace of Cups:upright", deck.Selection{CardID: "Ace of Cups"}},
		{"odd:name", deck.Selection{CardID: "odd:name"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := parseSelections([]string{tt.in})
			if len(got) != 1 || got[0] != tt.want {
				t.Errorf("parseSelections(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestExcerpt(t *testing.T) {
	long := strings.Repeat("é", excerptRunes+5)
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"short", "  The cards speak.  ", "The cards speak."},
		{"first line", "Heading\nBody", "Heading"},
		{"cut on runes", long, strings.Repeat("é", excerptRunes-1) + "…"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := excerpt(tt.in); got != tt.want {
				t.Errorf("excerpt() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTokenCommand(t *testing.T) {
	isolateConfig(t)
	t.Setenv("AUTH_MODE", "jwt")
	t.Setenv("JWT_SECRET", cliJWTSecret)

	out, err := runCLI(t, "token", "--user", "querent-1", "--name", "Morgan")
	if err != nil {
		t.Fatalf("token error = %v", err)
	}
	manager, err := auth.NewJWTManager(&config.SecurityConfig{JWTSecret: cliJWTSecret, SessionTimeout: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	claims, err := manager.ValidateToken(strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("minted token does not validate: %v", err)
	}
	if claims.UserID() != "querent-1" || claims.Name != "Morgan" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestTokenCommandErrors(t *testing.T) {
	isolateConfig(t)
	t.Setenv("AUTH_MODE", "none")
	if _, err := runCLI(t, "token", "--user", "x"); err == nil {
		t.Error("expected an error in none mode")
	}

	t.Setenv("AUTH_MODE", "jwt")
	t.Setenv("JWT_SECRET", "short")
	if _, err := runCLI(t, "token", "--user", "x"); err == nil {
		t.Error("expected a configuration error for a short secret")
	}
}

func TestConfigFlagMissingFile(t *testing.T) {
	isolateConfig(t)
	t.Setenv("AUTH_MODE", "none")
	if _, err := runCLI(t, "--config", filepath.Join(t.TempDir(), "absent.yaml"), "readings"); err == nil {
		t.Error("expected an error for a missing config file")
	}
}

func TestReadingsCommand(t *testing.T) {
	isolateConfig(t)
	t.Setenv("AUTH_MODE", "none")
	dbPath := filepath.Join(t.TempDir(), "readings.db")
	t.Setenv("DB_PATH", dbPath)

	db, err := database.New(&config.DatabaseConfig{Driver: database.DriverSQLite, Path: dbPath})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"reading-a", "reading-b"} {
		if err := db.CreateReading(ctx, &models.Reading{
			ID: id, UserID: "querent-7", SpreadType: models.SpreadSingle, Mode: models.ModeManual,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.UpdateReadingNarrative(ctx, "reading-b", "The Star shines on your path.\nMore text."); err != nil {
		t.Fatal(err)
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	out, err := runCLI(t, "readings", "--user", "querent-7")
	if err != nil {
		t.Fatalf("readings error = %v", err)
	}
	for _, want := range []string{"reading-a", "reading-b", "final", "open", "The Star shines on your path."} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "More text.") {
		t.Error("excerpt should stop at the first line")
	}
	if strings.Index(out, "reading-b") > strings.Index(out, "reading-a") {
		t.Error("readings should be listed newest first")
	}

	out, err = runCLI(t, "readings", "--user", "nobody")
	if err != nil || !strings.Contains(out, "No readings for nobody") {
		t.Errorf("empty listing = %q, %v", out, err)
	}
}

// streamServer answers reading streams with units.
func streamServer(t *testing.T, units []wire.Unit, seen *api.ManualReadingRequest, authHeader *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/readings/stream" {
			api.WriteError(w, r, http.StatusNotFound, api.ErrCodeNotFound, "Resource not found")
			return
		}
		if seen != nil {
			_ = json.NewDecoder(r.Body).Decode(seen)
		}
		if authHeader != nil {
			*authHeader = r.Header.Get("Authorization")
		}
		w.Header().Set("Content-Type", api.StreamContentType)
		enc := wire.NewEncoder(w)
		for _, u := range units {
			if err := enc.WriteUnit(u); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestStreamCommand(t *testing.T) {
	var seen api.ManualReadingRequest
	var authHeader string
	srv := streamServer(t, []wire.Unit{
		{Type: wire.TypeStatus, Content: "Consulting the cards"},
		{Type: wire.TypeGeneral, Content: "The Sun rises "},
		{Type: wire.TypeGeneral, Content: "over your question."},
		{Type: wire.TypeDone, ReadingID: "reading-42"},
	}, &seen, &authHeader)

	out, err := runCLI(t, "stream", "--server", srv.URL, "--token", "tok", "--spread", "single",
		"-q", "Will it rain?", "--card", "The Sun:reversed", "--draw-token", "drawn")
	if err != nil {
		t.Fatalf("stream error = %v", err)
	}
	for _, want := range []string{"· Consulting the cards", "== general ==", "The Sun rises over your question.", "Reading reading-42 saved"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if seen.SpreadType != "single" || seen.Question != "Will it rain?" || len(seen.Cards) != 1 || !seen.Cards[0].Reversed || seen.DrawToken != "drawn" {
		t.Errorf("request = %+v", seen)
	}
	if authHeader != "Bearer tok" {
		t.Errorf("Authorization = %q", authHeader)
	}
}

func TestStreamCommandRaw(t *testing.T) {
	srv := streamServer(t, []wire.Unit{
		{Type: wire.TypeGeneral, Content: "text"},
		{Type: wire.TypeDone, ReadingID: "r"},
	}, nil, nil)

	out, err := runCLI(t, "stream", "--server", srv.URL, "--spread", "single", "--card", "the-sun", "--raw")
	if err != nil {
		t.Fatalf("stream error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || !strings.Contains(lines[1], `"readingId":"r"`) {
		t.Errorf("raw output = %q", out)
	}
}

func TestStreamCommandFailures(t *testing.T) {
	errored := streamServer(t, []wire.Unit{
		{Type: wire.TypeStatus, Content: "Reading the cards"},
		{Type: wire.TypeError, Content: "The reading could not be saved"},
	}, nil, nil)
	truncated := streamServer(t, []wire.Unit{{Type: wire.TypeGeneral, Content: "half"}}, nil, nil)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"error unit", []string{"--server", errored.URL, "--card", "the-sun", "-s", "single"}, "could not be saved"},
		{"no done unit", []string{"--server", truncated.URL, "--card", "the-sun", "-s", "single"}, "without a done unit"},
		{"refused", []string{"--server", errored.URL, "--photo", "6f0c2d7e-0b8e-4c55-9d53-3e2f4b1c9a10"}, "NOT_FOUND"},
		{"no selection", []string{"--server", errored.URL}, "needs --card"},
		{"both modes", []string{"--server", errored.URL, "--card", "x", "--photo", "y"}, "either --photo or --card"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, append([]string{"stream"}, tt.args...)...)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}
