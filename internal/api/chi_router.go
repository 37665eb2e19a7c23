// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/arcanum/internal/auth"
	"github.com/tomtom215/arcanum/internal/middleware"
)

// Router assembles handlers and middleware into the chi route tree.
type Router struct {
	handler       *Handler
	middleware    *auth.Middleware
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a router. A nil chiMW uses the default configuration.
func NewRouter(handler *Handler, authMW *auth.Middleware, chiMW *ChiMiddleware) *Router {
	if chiMW == nil {
		chiMW = NewChiMiddleware(nil)
	}
	return &Router{
		handler:       handler,
		middleware:    authMW,
		chiMiddleware: chiMW,
	}
}

// chiMiddleware adapts http.HandlerFunc middleware to chi's form.
func chiMiddleware(mw func(http.HandlerFunc) http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return mw(next.ServeHTTP)
	}
}

// SetupChi builds the route tree.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware(middleware.RequestID))
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS()) // must be global to answer OPTIONS preflight

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).NotFound("Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "Method not allowed")
	})

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitHealth())
		r.Use(APISecurityHeaders())
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})

	r.Handle("/metrics", promhttp.Handler())

	if _, ok := router.handler.photoVerifier(); ok {
		r.Route("/photos", func(r chi.Router) {
			r.Use(router.chiMiddleware.RateLimit())
			r.Use(chiMiddleware(middleware.PrometheusMetrics))
			r.Get("/{ref}", router.handler.ServePhoto)
		})
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(APISecurityHeaders())
		r.Use(chiMiddleware(middleware.PrometheusMetrics))
		r.Use(chiMiddleware(router.middleware.Authenticate))

		r.Group(func(r chi.Router) {
			r.Use(chiMiddleware(middleware.Compression))
			r.Get("/deck", router.handler.Deck)
			r.Get("/spreads", router.handler.Spreads)
			r.Post("/spreads/draw", router.handler.DrawSpread)
			r.Get("/readings", router.handler.ListReadings)
			r.Get("/readings/{id}", router.handler.GetReading)
		})

		// Streams flush unit by unit, so no compression here.
		r.Group(func(r chi.Router) {
			r.Use(router.chiMiddleware.RateLimitStream())
			r.Post("/readings/stream", router.handler.StreamManualReading)
			r.Post("/readings/photo/stream", router.handler.StreamPhotoReading)
			r.Get("/readings/ws", router.handler.ReadingSocket)
		})

		r.With(router.chiMiddleware.RateLimitUpload()).Post("/photos", router.handler.UploadPhoto)
	})

	return r
}
