// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

package storage

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const photoAudience = "arcanum-photo"

// ErrInvalidToken is returned for a missing, expired or foreign photo token.
var ErrInvalidToken = errors.New("invalid photo token")

// URLSigner issues and checks photo URL tokens. A token names exactly one
// photo and expires after ttl.
type URLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewURLSigner returns a signer using secret, or a random key if secret is
// empty.
func NewURLSigner(secret string, ttl time.Duration) (*URLSigner, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate photo signing key: %w", err)
		}
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &URLSigner{secret: key, ttl: ttl, now: time.Now}, nil
}

// TTL returns how long issued tokens stay valid.
func (s *URLSigner) TTL() time.Duration { return s.ttl }

// Sign returns a token for ref.
func (s *URLSigner) Sign(ref string) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   ref,
		Audience:  jwt.ClaimStrings{photoAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign photo token: %w", err)
	}
	return token, nil
}

// Verify checks that token is valid for ref.
func (s *URLSigner) Verify(ref, token string) error {
	if token == "" {
		return fmt.Errorf("%w: missing", ErrInvalidToken)
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(photoAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Subject != ref {
		return fmt.Errorf("%w: issued for another photo", ErrInvalidToken)
	}
	return nil
}
