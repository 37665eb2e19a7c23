// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/arcanum/internal/api"
	"github.com/tomtom215/arcanum/internal/auth"
	"github.com/tomtom215/arcanum/internal/config"
	"github.com/tomtom215/arcanum/internal/database"
	"github.com/tomtom215/arcanum/internal/deck"
	"github.com/tomtom215/arcanum/internal/eventbus"
	"github.com/tomtom215/arcanum/internal/inference"
	"github.com/tomtom215/arcanum/internal/logging"
	"github.com/tomtom215/arcanum/internal/pipeline"
	"github.com/tomtom215/arcanum/internal/storage"
	"github.com/tomtom215/arcanum/internal/supervisor"
	"github.com/tomtom215/arcanum/internal/supervisor/services"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the reading API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(sigCtx, cfg)
		},
	}
}

// runServer wires every component and blocks until ctx ends.
func runServer(ctx context.Context, cfg *config.Config) error {
	logging.Info().
		Str("db_driver", cfg.Database.Driver).
		Str("storage", cfg.Storage.Backend).
		Str("events", cfg.Events.Backend).
		Str("auth_mode", cfg.Security.AuthMode).
		Msg("Starting Arcanum")

	if cfg.Security.AuthMode == auth.AuthModeNone {
		logging.Warn().Msg("Authentication is DISABLED (AUTH_MODE=none); every reading belongs to the anonymous user")
	}
	if cfg.Security.AuthMode == auth.AuthModeJWT && cfg.HasWildcardCORS() {
		logging.Warn().Msg("CORS_ORIGINS=* allows any website to call the API; set explicit origins in production")
	}
	if cfg.Security.RateLimitDisabled {
		logging.Warn().Msg("Rate limiting is DISABLED (DISABLE_RATE_LIMIT=true)")
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	catalog, err := deck.Default()
	if err != nil {
		return fmt.Errorf("load card catalog: %w", err)
	}

	photos, err := storage.New(ctx, &cfg.Storage, cfg.Security.JWTSecret)
	if err != nil {
		return fmt.Errorf("open photo store: %w", err)
	}
	defer func() {
		if err := photos.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing photo store")
		}
	}()

	bus, err := eventbus.New(&cfg.Events)
	if err != nil {
		return fmt.Errorf("connect event bus: %w", err)
	}
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing event bus")
		}
	}()

	var jwtManager *auth.JWTManager
	if cfg.Security.AuthMode == auth.AuthModeJWT {
		if jwtManager, err = auth.NewJWTManager(&cfg.Security); err != nil {
			return fmt.Errorf("initialize sessions: %w", err)
		}
	}

	orchestrator := pipeline.NewOrchestrator(pipeline.Options{
		Store:     db,
		Inference: pipeline.NewInference(inference.NewClient(inference.ConfigFromSettings(&cfg.Inference))),
		Photos:    photos,
		Publisher: bus,
		Models:    pipeline.ModelsFromSettings(&cfg.Inference),
	})

	handler := api.NewHandler(api.Dependencies{
		Store:          db,
		Streamer:       orchestrator,
		Catalog:        catalog,
		Photos:         photos,
		AllowedOrigins: cfg.Security.CORSOrigins,
		DrawSigner:     deck.NewDrawSigner(cfg.Security.JWTSecret, 0),
	})
	router := api.NewRouter(handler,
		auth.NewMiddleware(jwtManager, cfg.Security.AuthMode),
		api.NewChiMiddleware(api.ChiMiddlewareConfigFromSecurity(&cfg.Security)),
	)

	// No WriteTimeout: reading streams stay open for the whole pipeline.
	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router.SetupChi(),
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		IdleTimeout:       2 * time.Minute,
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfigFromSettings(&cfg.Supervisor))
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}
	if gc, ok := photos.(suture.Service); ok {
		tree.AddDataService(gc)
	}
	tree.AddMessagingService(eventbus.NewConsumer(bus, nil))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	logging.Info().Str("addr", server.Addr).Msg("HTTP server listening")

	err = tree.Serve(ctx)
	if report, reportErr := tree.UnstoppedServiceReport(); reportErr == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop within the shutdown timeout")
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor tree: %w", err)
	}
	logging.Info().Msg("Arcanum stopped")
	return nil
}
