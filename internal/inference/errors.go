// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

package inference

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUpstreamUnavailable covers network failure, timeouts, an open
	// circuit, rate limiter refusal and an oversized response.
	ErrUpstreamUnavailable = errors.New("inference service unavailable")

	// ErrUpstreamRejected means the service answered with a non-2xx status.
	ErrUpstreamRejected = errors.New("inference service rejected request")
)

// StatusError carries the status and a bounded body excerpt of a rejected
// call. It matches ErrUpstreamRejected under errors.Is.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", ErrUpstreamRejected, e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrUpstreamRejected }

// unavailable wraps cause as ErrUpstreamUnavailable unless the caller's own
// context ended first, in which case the context error is returned so the
// caller can tell a disconnect from an upstream failure.
func unavailable(parent context.Context, op string, cause error) error {
	if err := parent.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrUpstreamUnavailable, op, cause)
}

// Kind classifies err for metrics and logs: "unavailable", "rejected",
// "canceled" or "".
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUpstreamRejected):
		return "rejected"
	case errors.Is(err, ErrUpstreamUnavailable):
		return "unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "unavailable"
	}
}

func isSuccessStatus(code int) bool {
	return code >= http.StatusOK && code < http.StatusMultipleChoices
}
