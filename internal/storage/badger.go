// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/arcanum/internal/logging"
	"github.com/tomtom215/arcanum/internal/metrics"
)

const (
	photoKeyPrefix = "photo:"

	gcInterval     = 10 * time.Minute
	gcDiscardRatio = 0.5
)

type photoRecord struct {
	Owner       string    `json:"owner"`
	ContentType string    `json:"content_type"`
	Data        []byte    `json:"data"`
	CreatedAt   time.Time `json:"created_at"`
}

// BadgerStore keeps photos in BadgerDB and signs URLs pointing back at this
// server.
type BadgerStore struct {
	db       *badger.DB
	inMemory bool
	baseURL  string
	maxBytes int64
	signer   *URLSigner
}

// OpenBadger opens (or creates) a store at path. An empty path keeps photos
// in memory.
func OpenBadger(path, baseURL string, maxBytes int64, signer *URLSigner) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open photo store: %w", err)
	}

	logging.Info().Str("path", path).Bool("in_memory", path == "").Msg("Photo store opened")
	return &BadgerStore{
		db:       db,
		inMemory: path == "",
		baseURL:  strings.TrimRight(baseURL, "/"),
		maxBytes: maxBytes,
		signer:   signer,
	}, nil
}

// Backend returns "local".
func (s *BadgerStore) Backend() string { return BackendLocal }

// Put stores the photo read from body.
func (s *BadgerStore) Put(ctx context.Context, owner string, body io.Reader) (ref string, err error) {
	defer func() { metrics.RecordPhotoUpload(BackendLocal, err) }()

	data, contentType, err := readPhoto(body, s.maxBytes)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ref = uuid.NewString()
	value, err := json.Marshal(photoRecord{Owner: owner, ContentType: contentType, Data: data, CreatedAt: time.Now().UTC()})
	if err != nil {
		return "", fmt.Errorf("marshal photo: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(photoKeyPrefix+ref), value)
	})
	if err != nil {
		return "", fmt.Errorf("store photo: %w", err)
	}
	return ref, nil
}

// Get returns the photo stored under ref.
func (s *BadgerStore) Get(ctx context.Context, ref string) (Photo, error) {
	rec, err := s.record(ref)
	if err != nil {
		return Photo{}, err
	}
	return Photo{Ref: ref, Owner: rec.Owner, ContentType: rec.ContentType, Data: rec.Data, CreatedAt: rec.CreatedAt}, nil
}

// Owner returns the uploader of the photo stored under ref.
func (s *BadgerStore) Owner(ctx context.Context, ref string) (string, error) {
	rec, err := s.record(ref)
	if err != nil {
		return "", err
	}
	return rec.Owner, nil
}

func (s *BadgerStore) record(ref string) (photoRecord, error) {
	if err := ValidateRef(ref); err != nil {
		return photoRecord{}, err
	}

	var rec photoRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(photoKeyPrefix + ref))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrPhotoNotFound
		}
		if err != nil {
			return fmt.Errorf("get photo: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	return rec, err
}

// SignedURL returns {baseURL}/photos/{ref}?token=... for a stored photo.
func (s *BadgerStore) SignedURL(ctx context.Context, ref string) (string, error) {
	if err := ValidateRef(ref); err != nil {
		return "", err
	}
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(photoKeyPrefix + ref))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrPhotoNotFound
		}
		return err
	})
	if err != nil {
		return "", err
	}

	token, err := s.signer.Sign(ref)
	if err != nil {
		return "", err
	}
	return s.baseURL + "/photos/" + url.PathEscape(ref) + "?token=" + url.QueryEscape(token), nil
}

// VerifyToken checks a token presented at /photos/{ref}.
func (s *BadgerStore) VerifyToken(ref, token string) error {
	return s.signer.Verify(ref, token)
}

// Serve runs value log garbage collection until ctx ends. It implements
// suture.Service.
func (s *BadgerStore) Serve(ctx context.Context) error {
	if s.inMemory {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runGC()
		}
	}
}

func (s *BadgerStore) runGC() {
	rewrites := 0
	for {
		err := s.db.RunValueLogGC(gcDiscardRatio)
		if err != nil {
			if !errors.Is(err, badger.ErrNoRewrite) {
				logging.Warn().Err(err).Msg("Photo store GC failed")
			}
			break
		}
		rewrites++
	}
	if rewrites > 0 {
		logging.Debug().Int("rewrites", rewrites).Msg("Photo store GC completed")
	}
}

// String names the GC service in supervisor logs.
func (s *BadgerStore) String() string { return "photo-store-gc" }

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
