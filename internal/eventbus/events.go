// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

package eventbus

import (
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/arcanum/internal/models"
)

// SchemaVersion is the current event schema version.
const SchemaVersion = 1

// ReadingCompleted is published once a reading's narrative is durable.
type ReadingCompleted struct {
	SchemaVersion int               `json:"schema_version"`
	ReadingID     string            `json:"reading_id"`
	UserID        string            `json:"user_id"`
	Mode          models.Mode       `json:"mode"`
	SpreadType    models.SpreadType `json:"spread_type"`
	Fallback      bool              `json:"fallback"`
	CompletedAt   time.Time         `json:"completed_at"`
}

// ErrInvalidEvent is returned for events that fail validation.
var ErrInvalidEvent = errors.New("invalid event")

// Validate checks the required fields.
func (e *ReadingCompleted) Validate() error {
	switch {
	case e.ReadingID == "":
		return fmt.Errorf("%w: missing reading_id", ErrInvalidEvent)
	case e.UserID == "":
		return fmt.Errorf("%w: missing user_id", ErrInvalidEvent)
	case !e.Mode.Valid():
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidEvent, e.Mode)
	}
	return nil
}

func encodeEvent(e ReadingCompleted) ([]byte, error) {
	if e.SchemaVersion == 0 {
		e.SchemaVersion = SchemaVersion
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(e)
}

func decodeEvent(data []byte) (ReadingCompleted, error) {
	var e ReadingCompleted
	if err := json.Unmarshal(data, &e); err != nil {
		return e, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	if err := e.Validate(); err != nil {
		return e, err
	}
	return e, nil
}
