// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

/*
Package auth resolves the caller of every protected request.

Sessions are HS256 JWTs minted by JWTManager. The token subject is the user
ID that owns readings; every reading query and every pipeline run is scoped
to it.

Authentication Modes (AUTH_MODE):

  - jwt (default): a valid token is required. It is read from the
    Authorization header ("Bearer <token>"), the "token" cookie, or the
    access_token query parameter (for WebSocket clients that cannot set
    headers), in that order.
  - none: every request runs as AnonymousUserID. Intended for local
    development only.

The middleware fails closed: a missing, malformed, expired or foreign token
yields 401 and the handler never runs.

Usage Example:

	jwtManager, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
	    return err
	}
	mw := auth.NewMiddleware(jwtManager, cfg.Security.AuthMode)

	r.Group(func(r chi.Router) {
	    r.Use(chiMiddleware(mw.Authenticate))
	    r.Get("/api/v1/readings", handler.ListReadings)
	})

	// Inside a handler
	userID, ok := auth.UserIDFromContext(r.Context())

See Also:

  - internal/api: handlers protected by this middleware
  - internal/config: SecurityConfig
*/
package auth
