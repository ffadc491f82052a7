// Pitwall - Telemetry Replay Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pitwall

package openf1

import (
	"errors"
	"fmt"
	"time"
)

// ErrSessionNotFound is returned when a session lookup yields an empty array.
var ErrSessionNotFound = errors.New("session not found")

// Kind classifies a failed upstream call.
type Kind int

const (
	KindTimeout Kind = iota + 1
	KindRateLimited
	KindHTTP
	KindParse
	KindTransport
	KindCircuitOpen
)

// String returns the metric label for the kind.
func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindRateLimited:
		return "rate_limited"
	case KindHTTP:
		return "http_error"
	case KindParse:
		return "parse_error"
	case KindTransport:
		return "transport"
	case KindCircuitOpen:
		return "circuit_open"
	default:
		return "unknown"
	}
}

// FetchError describes a failed call to the OpenF1 API.
type FetchError struct {
	Kind       Kind
	Endpoint   string
	StatusCode int           // KindHTTP and KindRateLimited
	RetryAfter time.Duration // KindRateLimited, zero when the header was absent
	Body       string        // excerpt of a non-2xx body
	Err        error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case KindRateLimited:
		if e.RetryAfter > 0 {
			return fmt.Sprintf("openf1 %s: rate limited (retry after %s)", e.Endpoint, e.RetryAfter)
		}
		return fmt.Sprintf("openf1 %s: rate limited", e.Endpoint)
	case KindHTTP:
		return fmt.Sprintf("openf1 %s: HTTP %d: %s", e.Endpoint, e.StatusCode, e.Body)
	}
	if e.Err != nil {
		return fmt.Sprintf("openf1 %s: %s: %v", e.Endpoint, e.Kind, e.Err)
	}
	return fmt.Sprintf("openf1 %s: %s", e.Endpoint, e.Kind)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// AsFetchError extracts a *FetchError from err's chain.
func AsFetchError(err error) (*FetchError, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// IsRateLimited reports whether err is an upstream 429.
func IsRateLimited(err error) bool {
	fe, ok := AsFetchError(err)
	return ok && fe.Kind == KindRateLimited
}

// IsTimeout reports whether err is a request that exceeded its deadline.
func IsTimeout(err error) bool {
	fe, ok := AsFetchError(err)
	return ok && fe.Kind == KindTimeout
}

// StatusCode returns the upstream HTTP status carried by err, or 0.
func StatusCode(err error) int {
	if fe, ok := AsFetchError(err); ok {
		return fe.StatusCode
	}
	return 0
}

// RetryAfter returns the upstream Retry-After hint carried by err, or 0.
func RetryAfter(err error) time.Duration {
	if fe, ok := AsFetchError(err); ok {
		return fe.RetryAfter
	}
	return 0
}
