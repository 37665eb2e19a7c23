// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

package deck

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tomtom215/arcanum/internal/models"
)

const drawAudience = "arcanum-draw"

var (
	// ErrInvalidDrawToken is returned for a draw token that is malformed,
	// expired, or issued to another user or spread.
	ErrInvalidDrawToken = errors.New("invalid draw token")

	// ErrDrawMismatch is returned when a selection differs from the draw its
	// token certifies.
	ErrDrawMismatch = errors.New("selection does not match the draw")
)

type drawClaims struct {
	Spread models.SpreadType `json:"spread"`
	Cards  []Selection       `json:"cards"`
	jwt.RegisteredClaims
}

// DrawSigner certifies server-side draws so a later reading can keep the
// orientations the draw decided.
type DrawSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewDrawSigner returns a signer keyed by secret, or by a random
// per-process key when secret is empty.
func NewDrawSigner(secret string, ttl time.Duration) *DrawSigner {
	key := []byte(secret)
	if len(key) == 0 {
		key = []byte(rand.Text())
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &DrawSigner{secret: key, ttl: ttl, now: time.Now}
}

// Sign issues a token binding drawn to userID and spread.
func (s *DrawSigner) Sign(userID string, spread models.SpreadType, drawn []models.DrawnCard) (string, error) {
	now := s.now()
	claims := drawClaims{
		Spread: spread,
		Cards:  Selections(drawn),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Audience:  jwt.ClaimStrings{drawAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign draw token: %w", err)
	}
	return token, nil
}

// Verify returns the selection a token certifies for userID and spread.
func (s *DrawSigner) Verify(token, userID string, spread models.SpreadType) ([]Selection, error) {
	claims := &drawClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(drawAudience),
		jwt.WithSubject(userID),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDrawToken, err)
	}
	if claims.Spread != spread {
		return nil, fmt.Errorf("%w: issued for %s", ErrInvalidDrawToken, claims.Spread)
	}
	return claims.Cards, nil
}

// ApplyDraw copies the certified orientations onto placed cards. The cards
// must be the drawn ones, in the drawn order.
func ApplyDraw(placed []models.DrawnCard, drawn []Selection) error {
	if len(placed) != len(drawn) {
		return fmt.Errorf("%w: %d cards, draw has %d", ErrDrawMismatch, len(placed), len(drawn))
	}
	for i := range placed {
		if placed[i].ID != drawn[i].CardID {
			return fmt.Errorf("%w: position %d holds %s", ErrDrawMismatch, i, placed[i].Name)
		}
		placed[i].Reversed = drawn[i].Reversed
	}
	return nil
}
