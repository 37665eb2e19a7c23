// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the config file locations searched in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/arcanum/config.yaml",
	"/etc/arcanum/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// sliceConfigPaths are keys that accept comma-separated env values.
var sliceConfigPaths = []string{
	"security.cors_origins",
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8740,
			Host:            "0.0.0.0",
			ReadTimeout:     15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			Environment:     "development",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   "/data/arcanum.db",
		},
		Inference: InferenceConfig{
			BaseURL:             "https://openrouter.ai/api/v1",
			VisionModel:         "openai/gpt-4o",
			TextModel:           "openai/gpt-4o-mini",
			IdentifyMaxTokens:   400,
			IndividualMaxTokens: 1500,
			GeneralMaxTokens:    1200,
			StageTimeout:        90 * time.Second,
			MaxResponseBytes:    1 << 20,
			DeltaPath:           "choices.0.delta.content",
			MessagePath:         "choices.0.message.content",
			RateLimitPerSecond:  5,
			RateLimitBurst:      10,
			BreakerMaxFailures:  5,
			BreakerTimeout:      30 * time.Second,
		},
		Storage: StorageConfig{
			Backend:       "local",
			LocalPath:     "/data/photos",
			PublicBaseURL: "http://localhost:8740",
			URLTTL:        10 * time.Minute,
			MaxPhotoBytes: 10 << 20,
			S3: S3Config{
				Region: "us-east-1",
			},
		},
		Security: SecurityConfig{
			AuthMode:        "jwt",
			SessionTimeout:  24 * time.Hour,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			StreamRateLimit: 10,
		},
		Events: EventsConfig{
			Backend: "memory",
			NATSURL: "nats://127.0.0.1:4222",
			Topic:   "readings.completed",
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5,
			FailureDecay:     30,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  10 * time.Second,
		},
	}
}

// Load builds the configuration from defaults, the optional config file and
// the environment, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// INFERENCE_API_KEY -> inference.api_key, etc.
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variable names (lowercased) to koanf paths.
// Unmapped variables are ignored so the process environment cannot inject
// arbitrary keys.
var envMappings = map[string]string{
	"http_port":        "server.port",
	"http_host":        "server.host",
	"read_timeout":     "server.read_timeout",
	"shutdown_timeout": "server.shutdown_timeout",
	"environment":      "server.environment",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	"db_driver": "database.driver",
	"db_path":   "database.path",

	"inference_base_url":              "inference.base_url",
	"inference_api_key":               "inference.api_key",
	"inference_vision_model":          "inference.vision_model",
	"inference_text_model":            "inference.text_model",
	"inference_identify_max_tokens":   "inference.identify_max_tokens",
	"inference_individual_max_tokens": "inference.individual_max_tokens",
	"inference_general_max_tokens":    "inference.general_max_tokens",
	"inference_stage_timeout":         "inference.stage_timeout",
	"inference_max_response_bytes":    "inference.max_response_bytes",
	"inference_delta_path":            "inference.delta_path",
	"inference_message_path":          "inference.message_path",
	"inference_rate_limit":            "inference.rate_limit_per_second",
	"inference_rate_burst":            "inference.rate_limit_burst",
	"inference_breaker_max_failures":  "inference.breaker_max_failures",
	"inference_breaker_timeout":       "inference.breaker_timeout",

	"storage_backend":         "storage.backend",
	"storage_local_path":      "storage.local_path",
	"storage_public_base_url": "storage.public_base_url",
	"storage_url_ttl":         "storage.url_ttl",
	"storage_max_photo_bytes": "storage.max_photo_bytes",
	"s3_bucket":               "storage.s3.bucket",
	"s3_region":               "storage.s3.region",
	"s3_endpoint":             "storage.s3.endpoint",
	"s3_use_path_style":       "storage.s3.use_path_style",

	"auth_mode":           "security.auth_mode",
	"jwt_secret":          "security.jwt_secret",
	"session_timeout":     "security.session_timeout",
	"cors_origins":        "security.cors_origins",
	"rate_limit_requests": "security.rate_limit_requests",
	"rate_limit_window":   "security.rate_limit_window",
	"stream_rate_limit":   "security.stream_rate_limit",
	"disable_rate_limit":  "security.rate_limit_disabled",

	"events_backend":  "events.backend",
	"events_nats_url": "events.nats_url",
	"events_topic":    "events.topic",

	"supervisor_failure_threshold": "supervisor.failure_threshold",
	"supervisor_failure_decay":     "supervisor.failure_decay",
	"supervisor_failure_backoff":   "supervisor.failure_backoff",
	"supervisor_shutdown_timeout":  "supervisor.shutdown_timeout",
}

func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
