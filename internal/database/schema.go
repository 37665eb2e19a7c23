// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

package database

import (
	"context"
	"fmt"
)

// Timestamps are stored as fixed-width UTC text so they sort lexically and
// read back identically from both drivers.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS readings (
		id           TEXT PRIMARY KEY,
		user_id      TEXT NOT NULL,
		spread_type  TEXT NOT NULL,
		question     TEXT NOT NULL DEFAULT '',
		photo_ref    TEXT NOT NULL DEFAULT '',
		mode         TEXT NOT NULL,
		narrative    TEXT NOT NULL DEFAULT '',
		created_at   TEXT NOT NULL,
		finalized_at TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_readings_user_created ON readings (user_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS reading_cards (
		reading_id TEXT NOT NULL REFERENCES readings (id),
		card_id    TEXT NOT NULL,
		position   INTEGER NOT NULL,
		reversed   BOOLEAN NOT NULL,
		PRIMARY KEY (reading_id, position)
	)`,
}

func (db *DB) initSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec schema statement: %w", err)
		}
	}
	return nil
}
