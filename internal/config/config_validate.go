// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks that required configuration is present and valid
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateServer,
		c.validateLogging,
		c.validateDatabase,
		c.validateInference,
		c.validateStorage,
		c.validateSecurity,
		c.validateEvents,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic", "disabled":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of trace, debug, info, warn, error, fatal, panic, disabled (got %q)", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("LOG_FORMAT must be json or console (got %q)", c.Logging.Format)
	}
	return nil
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case "sqlite", "duckdb":
	default:
		return fmt.Errorf("DB_DRIVER must be sqlite or duckdb (got %q)", c.Database.Driver)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("DB_PATH is required")
	}
	return nil
}

func (c *Config) validateInference() error {
	inf := c.Inference
	u, err := url.Parse(inf.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("INFERENCE_BASE_URL must be an absolute http(s) URL (got %q)", inf.BaseURL)
	}
	if inf.VisionModel == "" || inf.TextModel == "" {
		return fmt.Errorf("INFERENCE_VISION_MODEL and INFERENCE_TEXT_MODEL are required")
	}
	if inf.IdentifyMaxTokens <= 0 || inf.IndividualMaxTokens <= 0 || inf.GeneralMaxTokens <= 0 {
		return fmt.Errorf("inference max token bounds must be positive")
	}
	if inf.StageTimeout <= 0 {
		return fmt.Errorf("INFERENCE_STAGE_TIMEOUT must be positive")
	}
	if inf.MaxResponseBytes <= 0 {
		return fmt.Errorf("INFERENCE_MAX_RESPONSE_BYTES must be positive")
	}
	if inf.DeltaPath == "" || inf.MessagePath == "" {
		return fmt.Errorf("INFERENCE_DELTA_PATH and INFERENCE_MESSAGE_PATH are required")
	}
	if inf.RateLimitPerSecond <= 0 || inf.RateLimitBurst <= 0 {
		return fmt.Errorf("inference rate limit and burst must be positive")
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case "local":
		if c.Storage.LocalPath == "" {
			return fmt.Errorf("STORAGE_LOCAL_PATH is required for the local backend")
		}
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required for the s3 backend")
		}
	default:
		return fmt.Errorf("STORAGE_BACKEND must be local or s3 (got %q)", c.Storage.Backend)
	}
	if c.Storage.URLTTL <= 0 {
		return fmt.Errorf("STORAGE_URL_TTL must be positive")
	}
	if c.Storage.MaxPhotoBytes <= 0 {
		return fmt.Errorf("STORAGE_MAX_PHOTO_BYTES must be positive")
	}
	return nil
}

func (c *Config) validateSecurity() error {
	switch c.Security.AuthMode {
	case "jwt":
		if err := c.validateJWTSecret(); err != nil {
			return err
		}
	case "none":
		if c.IsProduction() {
			return fmt.Errorf("AUTH_MODE=none is not allowed when ENVIRONMENT=production")
		}
	default:
		return fmt.Errorf("AUTH_MODE must be jwt or none (got %q)", c.Security.AuthMode)
	}
	if c.Security.SessionTimeout <= 0 {
		return fmt.Errorf("SESSION_TIMEOUT must be positive")
	}
	if !c.Security.RateLimitDisabled {
		if c.Security.RateLimitReqs <= 0 || c.Security.StreamRateLimit <= 0 {
			return fmt.Errorf("rate limits must be positive (or set DISABLE_RATE_LIMIT=true)")
		}
		if c.Security.RateLimitWindow <= 0 {
			return fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
		}
	}
	return nil
}

func (c *Config) validateJWTSecret() error {
	if c.Security.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when AUTH_MODE is jwt")
	}
	if len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters for security")
	}
	return nil
}

func (c *Config) validateEvents() error {
	switch c.Events.Backend {
	case "memory":
	case "nats":
		if c.Events.NATSURL == "" {
			return fmt.Errorf("EVENTS_NATS_URL is required for the nats backend")
		}
	default:
		return fmt.Errorf("EVENTS_BACKEND must be memory or nats (got %q)", c.Events.Backend)
	}
	if c.Events.Topic == "" {
		return fmt.Errorf("EVENTS_TOPIC is required")
	}
	return nil
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Server.Environment, "production")
}

// HasWildcardCORS reports whether any configured origin is "*".
func (c *Config) HasWildcardCORS() bool {
	for _, o := range c.Security.CORSOrigins {
		if o == "*" {
			return true
		}
	}
	return false
}
