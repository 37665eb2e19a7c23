// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

package inference

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/arcanum/internal/logging"
	"github.com/tomtom215/arcanum/internal/metrics"
)

// breaker guards the inference service. It is two-step so a streaming call
// is only reported once its body has been fully read.
type breaker struct {
	cb   *gobreaker.TwoStepCircuitBreaker[struct{}]
	name string
}

func newBreaker(name string, maxFailures uint32, openTimeout time.Duration) *breaker {
	if maxFailures == 0 {
		maxFailures = 5
	}
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewTwoStepCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", stateToString(from)).
				Str("to", stateToString(to)).
				Msg("Circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, stateToString(from), stateToString(to)).Inc()
		},
		IsExcluded: isBreakerExcluded,
	})
	return &breaker{cb: cb, name: name}
}

// isBreakerExcluded keeps caller cancellations and 4xx answers out of the
// failure counts; neither says anything about upstream health.
func isBreakerExcluded(err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode < 500
	}
	return false
}

// allow asks the breaker for permission. The returned done must be called
// exactly once with the call's final error.
func (b *breaker) allow() (func(error), error) {
	done, err := b.cb.Allow()
	if err != nil {
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
		return nil, err
	}
	return func(callErr error) {
		done(callErr)
		switch {
		case callErr == nil:
			metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
		case !isBreakerExcluded(callErr):
			metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
		}
	}, nil
}

func (b *breaker) state() gobreaker.State {
	return b.cb.State()
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
