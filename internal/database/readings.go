// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/arcanum/internal/metrics"
	"github.com/tomtom215/arcanum/internal/models"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// CreateReading inserts a new, unfinalized reading without cards.
func (db *DB) CreateReading(ctx context.Context, r *models.Reading) error {
	return db.CreateReadingWithCards(ctx, r, nil)
}

// CreateReadingWithCards inserts a new, unfinalized reading and its card
// placements in one transaction. Either both are stored or neither is.
// Positions must be dense and start at zero. CreatedAt is set to now when
// zero.
func (db *DB) CreateReadingWithCards(ctx context.Context, r *models.Reading, cards []models.ReadingCard) error {
	if r.ID == "" || r.UserID == "" || !r.Mode.Valid() || !r.SpreadType.Valid() {
		return fmt.Errorf("%w: id, user, mode and spread type are required", ErrInvalidReadingRow)
	}
	if err := models.ValidateCardPositions(cards); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidReadingRow, err)
	}
	for _, c := range cards {
		if c.ReadingID != r.ID {
			return fmt.Errorf("%w: card %s belongs to reading %q", ErrInvalidReadingRow, c.CardID, c.ReadingID)
		}
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	start := time.Now()
	err := retryOnBusy(ctx, func() error {
		tx, err := db.conn.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO readings (id, user_id, spread_type, question, photo_ref, mode, narrative, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, '', ?)`,
			r.ID, r.UserID, string(r.SpreadType), r.Question, r.PhotoRef, string(r.Mode),
			r.CreatedAt.UTC().Format(timeLayout),
		); err != nil {
			_ = tx.Rollback()
			return err
		}
		for _, c := range cards {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO reading_cards (reading_id, card_id, position, reversed) VALUES (?, ?, ?, ?)`,
				c.ReadingID, c.CardID, c.Position, c.Reversed,
			); err != nil {
				_ = tx.Rollback()
				return err
			}
		}
		return tx.Commit()
	})
	metrics.RecordDBQuery("create_reading", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

// UpdateReadingNarrative writes the final narrative. It succeeds at most once
// per reading; later calls return ErrAlreadyFinalized.
func (db *DB) UpdateReadingNarrative(ctx context.Context, readingID, narrative string) error {
	start := time.Now()
	var affected int64
	err := retryOnBusy(ctx, func() error {
		res, err := db.conn.ExecContext(ctx,
			`UPDATE readings SET narrative = ?, finalized_at = ? WHERE id = ? AND finalized_at IS NULL`,
			narrative, time.Now().UTC().Format(timeLayout), readingID,
		)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	metrics.RecordDBQuery("update_narrative", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("update reading narrative: %w", err)
	}
	if affected == 1 {
		return nil
	}

	exists, err := db.readingExists(ctx, readingID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrReadingNotFound
	}
	return ErrAlreadyFinalized
}

func (db *DB) readingExists(ctx context.Context, id string) (bool, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM readings WHERE id = ?`, id).Scan(&n); err != nil {
		return false, fmt.Errorf("check reading: %w", err)
	}
	return n > 0, nil
}

// GetReading returns a reading with its cards ordered by position.
func (db *DB) GetReading(ctx context.Context, id string) (*models.Reading, error) {
	start := time.Now()
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, user_id, spread_type, question, photo_ref, mode, narrative, created_at, finalized_at
		 FROM readings WHERE id = ?`, id)
	r, err := scanReading(row)
	metrics.RecordDBQuery("get_reading", time.Since(start), err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReadingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get reading: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT reading_id, card_id, position, reversed FROM reading_cards
		 WHERE reading_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("get reading cards: %w", err)
	}
	defer closeQuietly(rows)

	for rows.Next() {
		var c models.ReadingCard
		if err := rows.Scan(&c.ReadingID, &c.CardID, &c.Position, &c.Reversed); err != nil {
			return nil, fmt.Errorf("scan reading card: %w", err)
		}
		r.Cards = append(r.Cards, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reading cards: %w", err)
	}
	return r, nil
}

// ListReadings returns readings newest first. An empty UserID lists all
// users' readings.
func (db *DB) ListReadings(ctx context.Context, f models.ReadingFilter) ([]models.Reading, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := max(f.Offset, 0)

	query := `SELECT id, user_id, spread_type, question, photo_ref, mode, narrative, created_at, finalized_at
		FROM readings`
	args := []any{}
	if f.UserID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, f.UserID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, query, args...)
	metrics.RecordDBQuery("list_readings", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("list readings: %w", err)
	}
	defer closeQuietly(rows)

	out := []models.Reading{}
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate readings: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReading(s rowScanner) (*models.Reading, error) {
	var (
		r          models.Reading
		spreadType string
		mode       string
		createdAt  string
		finalized  sql.NullString
	)
	if err := s.Scan(&r.ID, &r.UserID, &spreadType, &r.Question, &r.PhotoRef, &mode, &r.Narrative, &createdAt, &finalized); err != nil {
		return nil, err
	}
	r.SpreadType = models.SpreadType(spreadType)
	r.Mode = models.Mode(mode)

	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("%w: created_at %q", ErrInvalidReadingRow, createdAt)
	}
	r.CreatedAt = t

	if finalized.Valid {
		ft, err := time.Parse(timeLayout, finalized.String)
		if err != nil {
			return nil, fmt.Errorf("%w: finalized_at %q", ErrInvalidReadingRow, finalized.String)
		}
		r.FinalizedAt = &ft
	}
	return &r, nil
}
