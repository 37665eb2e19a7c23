// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

package database

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/arcanum/internal/config"
	"github.com/tomtom215/arcanum/internal/models"
)

var testDrivers = []string{DriverSQLite, DriverDuckDB}

func setupTestDB(t *testing.T, driver string) *DB {
	t.Helper()
	db, err := New(&config.DatabaseConfig{Driver: driver, Path: MemoryPath})
	if err != nil {
		t.Fatalf("New(%s) error = %v", driver, err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// forEachDriver runs fn against a fresh in-memory store of every supported
// driver.
func forEachDriver(t *testing.T, fn func(t *testing.T, db *DB)) {
	t.Helper()
	for _, driver := range testDrivers {
		t.Run(driver, func(t *testing.T) {
			fn(t, setupTestDB(t, driver))
		})
	}
}

func newReading(id, user string, created time.Time) *models.Reading {
	return &models.Reading{
		ID:         id,
		UserID:     user,
		SpreadType: models.SpreadThreeCard,
		Question:   "What should I focus on?",
		Mode:       models.ModeManual,
		CreatedAt:  created,
	}
}

func threeCards(readingID string) []models.ReadingCard {
	return []models.ReadingCard{
		{ReadingID: readingID, CardID: "ace-of-cups", Position: 0},
		{ReadingID: readingID, CardID: "the-tower", Position: 1, Reversed: true},
		{ReadingID: readingID, CardID: "the-sun", Position: 2},
	}
}

func TestCreateAndGetReading(t *testing.T) {
	forEachDriver(t, testCreateAndGetReading)
}

func testCreateAndGetReading(t *testing.T, db *DB) {
	ctx := context.Background()

	r := newReading("r-1", "user-1", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	if err := db.CreateReadingWithCards(ctx, r, threeCards("r-1")); err != nil {
		t.Fatalf("CreateReadingWithCards() error = %v", err)
	}

	got, err := db.GetReading(ctx, "r-1")
	if err != nil {
		t.Fatalf("GetReading() error = %v", err)
	}
	if got.Narrative != "" || got.Finalized() {
		t.Errorf("new reading should be empty and unfinalized: %+v", got)
	}
	if !got.CreatedAt.Equal(r.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, r.CreatedAt)
	}
	if len(got.Cards) != 3 || got.Cards[1].CardID != "the-tower" || !got.Cards[1].Reversed {
		t.Errorf("unexpected cards: %+v", got.Cards)
	}
}

func TestGetReadingNotFound(t *testing.T) {
	forEachDriver(t, func(t *testing.T, db *DB) {
		if _, err := db.GetReading(context.Background(), "missing"); !errors.Is(err, ErrReadingNotFound) {
			t.Errorf("GetReading() error = %v, want ErrReadingNotFound", err)
		}
	})
}

func TestCreateReadingValidation(t *testing.T) {
	tests := []struct {
		name    string
		reading *models.Reading
		cards   []models.ReadingCard
	}{
		{"missing id", newReading("", "user-1", time.Now()), nil},
		{"missing user", newReading("r-v", "", time.Now()), nil},
		{"position gap", newReading("r-v", "u", time.Now()), []models.ReadingCard{
			{ReadingID: "r-v", CardID: "the-sun", Position: 0},
			{ReadingID: "r-v", CardID: "the-moon", Position: 2},
		}},
		{"duplicate position", newReading("r-v", "u", time.Now()), []models.ReadingCard{
			{ReadingID: "r-v", CardID: "the-sun", Position: 0},
			{ReadingID: "r-v", CardID: "the-moon", Position: 0},
		}},
		{"foreign card", newReading("r-v", "u", time.Now()), []models.ReadingCard{
			{ReadingID: "other", CardID: "the-sun", Position: 0},
		}},
	}
	forEachDriver(t, func(t *testing.T, db *DB) {
		ctx := context.Background()
		for _, tt := range tests {
			err := db.CreateReadingWithCards(ctx, tt.reading, tt.cards)
			if !errors.Is(err, ErrInvalidReadingRow) {
				t.Errorf("%s: expected ErrInvalidReadingRow, got %v", tt.name, err)
			}
		}
		if _, err := db.GetReading(ctx, "r-v"); !errors.Is(err, ErrReadingNotFound) {
			t.Errorf("rejected reading was stored: %v", err)
		}
	})
}

func TestCreateReadingWithCardsIsAtomic(t *testing.T) {
	forEachDriver(t, func(t *testing.T, db *DB) {
		ctx := context.Background()
		if _, err := db.Conn().ExecContext(ctx, `DROP TABLE reading_cards`); err != nil {
			t.Fatalf("drop reading_cards: %v", err)
		}

		err := db.CreateReadingWithCards(ctx, newReading("r-atomic", "u", time.Now()), threeCards("r-atomic"))
		if err == nil {
			t.Fatal("expected the card insert to fail")
		}
		if _, err := db.GetReading(ctx, "r-atomic"); !errors.Is(err, ErrReadingNotFound) {
			t.Errorf("GetReading() error = %v, want ErrReadingNotFound after rollback", err)
		}
		list, err := db.ListReadings(ctx, models.ReadingFilter{})
		if err != nil {
			t.Fatal(err)
		}
		if len(list) != 0 {
			t.Errorf("orphaned readings left behind: %+v", list)
		}
	})
}

func TestCreateReadingDuplicateID(t *testing.T) {
	forEachDriver(t, func(t *testing.T, db *DB) {
		ctx := context.Background()
		if err := db.CreateReadingWithCards(ctx, newReading("r-dup", "u", time.Now()), threeCards("r-dup")); err != nil {
			t.Fatal(err)
		}
		if err := db.CreateReadingWithCards(ctx, newReading("r-dup", "u", time.Now()), threeCards("r-dup")); err == nil {
			t.Fatal("expected a duplicate id to fail")
		}
		got, err := db.GetReading(ctx, "r-dup")
		if err != nil {
			t.Fatal(err)
		}
		if len(got.Cards) != 3 {
			t.Errorf("cards = %d, want the original 3", len(got.Cards))
		}
	})
}

func TestUpdateReadingNarrativeOnce(t *testing.T) {
	forEachDriver(t, testUpdateReadingNarrativeOnce)
}

func testUpdateReadingNarrativeOnce(t *testing.T, db *DB) {
	ctx := context.Background()
	if err := db.CreateReading(ctx, newReading("r-2", "user-1", time.Now())); err != nil {
		t.Fatal(err)
	}

	if err := db.UpdateReadingNarrative(ctx, "r-2", "first"); err != nil {
		t.Fatalf("first update error = %v", err)
	}
	if err := db.UpdateReadingNarrative(ctx, "r-2", "second"); !errors.Is(err, ErrAlreadyFinalized) {
		t.Fatalf("second update error = %v, want ErrAlreadyFinalized", err)
	}
	if err := db.UpdateReadingNarrative(ctx, "nope", "x"); !errors.Is(err, ErrReadingNotFound) {
		t.Fatalf("missing reading error = %v, want ErrReadingNotFound", err)
	}

	got, err := db.GetReading(ctx, "r-2")
	if err != nil {
		t.Fatal(err)
	}
	if got.Narrative != "first" || !got.Finalized() {
		t.Errorf("narrative = %q finalized = %v", got.Narrative, got.Finalized())
	}
}

func TestUpdateReadingNarrativeConcurrent(t *testing.T) {
	db, err := New(&config.DatabaseConfig{Driver: DriverSQLite, Path: filepath.Join(t.TempDir(), "r.db")})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()
	if err := db.CreateReading(ctx, newReading("r-race", "u", time.Now())); err != nil {
		t.Fatal(err)
	}

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := db.UpdateReadingNarrative(ctx, "r-race", fmt.Sprintf("writer %d", i)); err == nil {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("%d writers succeeded, want exactly 1", wins.Load())
	}
}

func TestListReadings(t *testing.T) {
	forEachDriver(t, testListReadings)
}

func testListReadings(t *testing.T, db *DB) {
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := range 5 {
		user := "alice"
		if i%2 == 1 {
			user = "bob"
		}
		if err := db.CreateReading(ctx, newReading(fmt.Sprintf("r-%d", i), user, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatal(err)
		}
	}

	alice, err := db.ListReadings(ctx, models.ReadingFilter{UserID: "alice"})
	if err != nil {
		t.Fatalf("ListReadings() error = %v", err)
	}
	if len(alice) != 3 {
		t.Fatalf("alice has %d readings, want 3", len(alice))
	}
	if alice[0].ID != "r-4" || alice[2].ID != "r-0" {
		t.Errorf("expected newest first, got %s..%s", alice[0].ID, alice[2].ID)
	}

	page, err := db.ListReadings(ctx, models.ReadingFilter{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 || page[0].ID != "r-3" {
		t.Errorf("unexpected page: %+v", page)
	}
}

func TestPing(t *testing.T) {
	for _, driver := range testDrivers {
		t.Run(driver, func(t *testing.T) {
			db := setupTestDB(t, driver)
			if err := db.Ping(context.Background()); err != nil {
				t.Errorf("Ping() error = %v", err)
			}
			if db.Driver() != driver {
				t.Errorf("Driver() = %q, want %q", db.Driver(), driver)
			}
		})
	}
}
