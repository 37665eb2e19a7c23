// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/tomtom215/arcanum/internal/logging"
)

// Authentication modes.
const (
	AuthModeJWT  = "jwt"
	AuthModeNone = "none"
)

// AnonymousUserID owns every reading when authentication is disabled.
const AnonymousUserID = "anonymous"

type contextKey string

const claimsContextKey contextKey = "claims"

// Middleware enforces authentication on protected routes.
type Middleware struct {
	jwtManager *JWTManager
	authMode   string
}

// NewMiddleware creates the authentication middleware. jwtManager may be nil
// only in none mode.
func NewMiddleware(jwtManager *JWTManager, authMode string) *Middleware {
	if authMode == "" {
		authMode = AuthModeJWT
	}
	return &Middleware{jwtManager: jwtManager, authMode: authMode}
}

// Authenticate resolves the caller and stores the claims on the request
// context. Anything short of a valid token is rejected.
func (m *Middleware) Authenticate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.authMode == AuthModeNone {
			claims := &Claims{Name: AnonymousUserID}
			claims.Subject = AnonymousUserID
			next(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
			return
		}

		if m.jwtManager == nil {
			logging.Error().Str("auth_mode", m.authMode).Msg("Authentication is not configured")
			http.Error(w, "Unauthorized: authentication unavailable", http.StatusUnauthorized)
			return
		}

		token, err := extractToken(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		claims, err := m.jwtManager.ValidateToken(token)
		if err != nil {
			logging.Ctx(r.Context()).Warn().Err(err).Str("path", r.URL.Path).Msg("Token validation failed")
			http.Error(w, "Unauthorized: invalid token", http.StatusUnauthorized)
			return
		}

		ctx := ContextWithClaims(r.Context(), claims)
		ctx = logging.ContextWithLogger(ctx, logging.LoggerFromContext(ctx).With().Str("user_id", claims.Subject).Logger())
		next(w, r.WithContext(ctx))
	}
}

// extractToken reads the bearer token from the Authorization header, the
// token cookie or the access_token query parameter.
func extractToken(r *http.Request) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			return "", fmt.Errorf("Unauthorized: invalid authorization header")
		}
		return strings.TrimSpace(parts[1]), nil
	}
	if cookie, err := r.Cookie("token"); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}
	if token := r.URL.Query().Get("access_token"); token != "" {
		return token, nil
	}
	return "", fmt.Errorf("Unauthorized: missing token")
}

// ContextWithClaims stores claims on ctx.
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

// ClaimsFromContext returns the authenticated claims, if any.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*Claims)
	return claims, ok && claims != nil
}

// UserIDFromContext returns the authenticated user ID.
func UserIDFromContext(ctx context.Context) (string, bool) {
	claims, ok := ClaimsFromContext(ctx)
	if !ok || claims.Subject == "" {
		return "", false
	}
	return claims.Subject, true
}
