// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

// Package metrics holds Arcanum's Prometheus collectors and the helpers that
// record into them. Collectors register with the default registry at init and
// are exposed on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	// Pipeline Metrics
	PipelineActiveStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pipeline_active_streams",
			Help: "Current number of reading streams being served",
		},
	)

	PipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_runs_total",
			Help: "Total number of pipeline runs by mode and outcome",
		},
		[]string{"mode", "outcome"}, // outcome: completed, failed, disconnected
	)

	PipelineFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_fallbacks_total",
			Help: "Total number of manual readings served by the offline narrative",
		},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_stage_duration_seconds",
			Help:    "Duration of one inference stage in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 90, 120},
		},
		[]string{"stage"},
	)

	StageFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_stage_failures_total",
			Help: "Total number of failed inference stages",
		},
		[]string{"stage", "kind"}, // kind: unavailable, rejected
	)

	DecodeAnomalies = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sse_decode_anomalies_total",
			Help: "Total number of upstream data frames dropped as malformed",
		},
	)

	ReadingsFinalized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "readings_finalized_total",
			Help: "Total number of reading narratives persisted",
		},
		[]string{"mode"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: success, failure, rejected
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Database Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Duration of reading store queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_query_errors_total",
			Help: "Total number of reading store query errors",
		},
		[]string{"operation"},
	)

	// Event Bus Metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Total number of domain events published",
		},
		[]string{"topic", "result"},
	)

	EventsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_consumed_total",
			Help: "Total number of domain events consumed",
		},
		[]string{"topic"},
	)

	// Photo Storage Metrics
	PhotoUploads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_uploads_total",
			Help: "Total number of spread photo uploads",
		},
		[]string{"backend", "result"},
	)
)

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest increments or decrements the active request gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// TrackActiveStream increments or decrements the active stream gauge.
func TrackActiveStream(inc bool) {
	if inc {
		PipelineActiveStreams.Inc()
	} else {
		PipelineActiveStreams.Dec()
	}
}

// RecordPipelineRun records the outcome of one reading run.
func RecordPipelineRun(mode, outcome string) {
	PipelineRuns.WithLabelValues(mode, outcome).Inc()
}

// RecordFallback counts a manual reading served offline.
func RecordFallback() {
	PipelineFallbacks.Inc()
}

// RecordStage records the duration of an inference stage and, when kind is
// non-empty, a failure of that kind.
func RecordStage(stage string, duration time.Duration, kind string) {
	StageDuration.WithLabelValues(stage).Observe(duration.Seconds())
	if kind != "" {
		StageFailures.WithLabelValues(stage, kind).Inc()
	}
}

// RecordDecodeAnomaly counts a malformed upstream frame.
func RecordDecodeAnomaly() {
	DecodeAnomalies.Inc()
}

// RecordReadingFinalized counts a persisted narrative.
func RecordReadingFinalized(mode string) {
	ReadingsFinalized.WithLabelValues(mode).Inc()
}

// RecordDBQuery records a store query.
func RecordDBQuery(operation string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation).Inc()
	}
}

// RecordEventPublished records a publish attempt on topic.
func RecordEventPublished(topic string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	EventsPublished.WithLabelValues(topic, result).Inc()
}

// RecordEventConsumed records a consumed event on topic.
func RecordEventConsumed(topic string) {
	EventsConsumed.WithLabelValues(topic).Inc()
}

// RecordPhotoUpload records a photo upload attempt.
func RecordPhotoUpload(backend string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	PhotoUploads.WithLabelValues(backend, result).Inc()
}
