// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

// Package config loads Arcanum's layered configuration.
//
// Values are resolved in three layers, later layers winning:
//
//  1. Built-in defaults (defaultConfig)
//  2. An optional YAML file (CONFIG_PATH, ./config.yaml, /etc/arcanum/config.yaml)
//  3. Environment variables (see envTransformFunc for the mapping)
//
// Load validates the merged result before returning it.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config is the root configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
	Database   DatabaseConfig   `koanf:"database"`
	Inference  InferenceConfig  `koanf:"inference"`
	Storage    StorageConfig    `koanf:"storage"`
	Security   SecurityConfig   `koanf:"security"`
	Events     EventsConfig     `koanf:"events"`
	Supervisor SupervisorConfig `koanf:"supervisor"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port            int           `koanf:"port"`
	Host            string        `koanf:"host"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	Environment     string        `koanf:"environment"` // development, staging, production
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// DatabaseConfig selects the relational store for reading records.
type DatabaseConfig struct {
	Driver string `koanf:"driver"` // sqlite or duckdb
	Path   string `koanf:"path"`
}

// InferenceConfig describes the external text/vision inference service.
type InferenceConfig struct {
	BaseURL     string `koanf:"base_url"`
	APIKey      string `koanf:"api_key"`
	VisionModel string `koanf:"vision_model"`
	TextModel   string `koanf:"text_model"`

	// Output-size bounds (max_tokens) per stage.
	IdentifyMaxTokens   int `koanf:"identify_max_tokens"`
	IndividualMaxTokens int `koanf:"individual_max_tokens"`
	GeneralMaxTokens    int `koanf:"general_max_tokens"`

	// StageTimeout bounds one inference call end to end.
	StageTimeout time.Duration `koanf:"stage_timeout"`
	// MaxResponseBytes bounds the bytes read from one response body.
	MaxResponseBytes int64 `koanf:"max_response_bytes"`

	// DeltaPath locates the text fragment inside a streamed frame.
	DeltaPath string `koanf:"delta_path"`
	// MessagePath locates the full text inside a buffered response.
	MessagePath string `koanf:"message_path"`

	RateLimitPerSecond float64 `koanf:"rate_limit_per_second"`
	RateLimitBurst     int     `koanf:"rate_limit_burst"`

	BreakerMaxFailures uint32        `koanf:"breaker_max_failures"`
	BreakerTimeout     time.Duration `koanf:"breaker_timeout"`
}

// StorageConfig selects where uploaded spread photos live.
type StorageConfig struct {
	Backend       string        `koanf:"backend"` // local or s3
	LocalPath     string        `koanf:"local_path"`
	PublicBaseURL string        `koanf:"public_base_url"`
	URLTTL        time.Duration `koanf:"url_ttl"`
	MaxPhotoBytes int64         `koanf:"max_photo_bytes"`
	S3            S3Config      `koanf:"s3"`
}

// S3Config holds S3-compatible bucket settings. Credentials come from the
// standard AWS credential chain.
type S3Config struct {
	Bucket       string `koanf:"bucket"`
	Region       string `koanf:"region"`
	Endpoint     string `koanf:"endpoint"`
	UsePathStyle bool   `koanf:"use_path_style"`
}

// SecurityConfig holds session and HTTP hardening settings.
type SecurityConfig struct {
	AuthMode          string        `koanf:"auth_mode"` // jwt or none
	JWTSecret         string        `koanf:"jwt_secret"`
	SessionTimeout    time.Duration `koanf:"session_timeout"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	StreamRateLimit   int           `koanf:"stream_rate_limit"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// EventsConfig selects the domain event bus.
type EventsConfig struct {
	Backend string `koanf:"backend"` // memory or nats
	NATSURL string `koanf:"nats_url"`
	Topic   string `koanf:"topic"`
}

// SupervisorConfig tunes the suture tree.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold"`
	FailureDecay     float64       `koanf:"failure_decay"`
	FailureBackoff   time.Duration `koanf:"failure_backoff"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}
