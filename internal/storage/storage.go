// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

// Package storage keeps uploaded spread photos and hands out time-limited
// URLs the vision model can fetch them from.
//
// Two backends exist. The local backend stores photos in BadgerDB and serves
// them from this process at /photos/{ref}, guarded by a signed token. The s3
// backend puts photos in an S3-compatible bucket and returns presigned GET
// URLs. A photo reference is an opaque UUID in both cases.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/arcanum/internal/config"
)

// Backends.
const (
	BackendLocal = "local"
	BackendS3    = "s3"
)

var (
	// ErrPhotoNotFound is returned for an unknown reference.
	ErrPhotoNotFound = errors.New("photo not found")

	// ErrPhotoTooLarge is returned when an upload exceeds the size limit.
	ErrPhotoTooLarge = errors.New("photo too large")

	// ErrUnsupportedType is returned for uploads that are not JPEG, PNG or WebP.
	ErrUnsupportedType = errors.New("unsupported photo type")

	// ErrInvalidRef is returned for a reference that is not a UUID.
	ErrInvalidRef = errors.New("invalid photo reference")

	// ErrEmptyPhoto is returned for a zero-byte upload.
	ErrEmptyPhoto = errors.New("empty photo")
)

var allowedTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// Photo is a stored image.
type Photo struct {
	Ref         string
	Owner       string
	ContentType string
	Data        []byte
	CreatedAt   time.Time
}

// PhotoStore stores spread photos.
type PhotoStore interface {
	// Put stores the image read from body for owner and returns its
	// reference.
	Put(ctx context.Context, owner string, body io.Reader) (string, error)
	// Owner returns the user who uploaded the photo.
	Owner(ctx context.Context, ref string) (string, error)
	// SignedURL returns a URL that serves the photo until it expires.
	SignedURL(ctx context.Context, ref string) (string, error)
	// Get returns the stored photo.
	Get(ctx context.Context, ref string) (Photo, error)
	Backend() string
	Close() error
}

// New opens the store selected by cfg. secret signs local photo URLs; an
// empty secret gets a random per-process key.
func New(ctx context.Context, cfg *config.StorageConfig, secret string) (PhotoStore, error) {
	switch cfg.Backend {
	case "", BackendLocal:
		signer, err := NewURLSigner(secret, cfg.URLTTL)
		if err != nil {
			return nil, err
		}
		return OpenBadger(cfg.LocalPath, cfg.PublicBaseURL, cfg.MaxPhotoBytes, signer)
	case BackendS3:
		return NewS3(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// readPhoto reads at most limit bytes from body and sniffs the image type.
func readPhoto(body io.Reader, limit int64) ([]byte, string, error) {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(body, limit+1))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, "", fmt.Errorf("%w: limit is %d bytes", ErrPhotoTooLarge, limit)
		}
		return nil, "", fmt.Errorf("read photo: %w", err)
	}
	if n == 0 {
		return nil, "", ErrEmptyPhoto
	}
	if n > limit {
		return nil, "", fmt.Errorf("%w: limit is %d bytes", ErrPhotoTooLarge, limit)
	}

	data := buf.Bytes()
	contentType := http.DetectContentType(data)
	if !allowedTypes[contentType] {
		return nil, "", fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}
	return data, contentType, nil
}

// ValidateRef rejects references that could not have been issued by Put.
func ValidateRef(ref string) error {
	if _, err := uuid.Parse(ref); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	return nil
}
