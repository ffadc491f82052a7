// Pitwall - Telemetry Replay Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pitwall

package openf1

import (
	"context"
	"errors"
	"net/url"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/pitwall/internal/config"
	"github.com/tomtom215/pitwall/internal/logging"
	"github.com/tomtom215/pitwall/internal/metrics"
)

const breakerName = "openf1-api"

// CircuitBreaker guards a fetcher with a consecutive-failure breaker.
//
// Rate limiting (429) and other 4xx answers prove the upstream is alive, so
// they count as successes. Timeouts, transport errors, 5xx and undecodable
// bodies count as failures.
type CircuitBreaker struct {
	next fetcher
	cb   *gobreaker.CircuitBreaker[interface{}]
	name string
}

// NewCircuitBreaker wraps next with the breaker settings from cfg.
func NewCircuitBreaker(next fetcher, cfg config.OpenF1Config) *CircuitBreaker {
	threshold := cfg.BreakerFailureThreshold
	if threshold == 0 {
		threshold = 5
	}

	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(breakerName).Set(0)

	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: cfg.BreakerMaxRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			trip := counts.ConsecutiveFailures >= threshold
			if trip {
				logging.Warn().
					Str("component", "openf1").
					Uint32("consecutive_failures", counts.ConsecutiveFailures).
					Msg("[CIRCUIT BREAKER] Opening circuit")
			}
			return trip
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := stateToString(from)
			toStr := stateToString(to)
			logging.Info().Str("component", "openf1").Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] State transition")

			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
			if to == gobreaker.StateClosed {
				metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)
			}
		},

		IsSuccessful: isBreakerSuccess,
	})

	return &CircuitBreaker{next: next, cb: cb, name: breakerName}
}

// isBreakerSuccess decides whether an outcome counts against upstream health.
func isBreakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	fe, ok := AsFetchError(err)
	if !ok {
		return false
	}
	switch fe.Kind {
	case KindRateLimited:
		return true
	case KindHTTP:
		return fe.StatusCode >= 400 && fe.StatusCode < 500
	default:
		return false
	}
}

// Fetch runs the wrapped fetch through the breaker. A rejected call is
// reported as a KindCircuitOpen FetchError.
func (b *CircuitBreaker) Fetch(ctx context.Context, endpoint string, query url.Values, out interface{}) error {
	_, err := b.execute(func() (interface{}, error) {
		return nil, b.next.Fetch(ctx, endpoint, query, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.RecordOpenF1Request(endpoint, KindCircuitOpen.String(), 0)
		return &FetchError{Kind: KindCircuitOpen, Endpoint: endpoint, Err: err}
	}
	return err
}

func (b *CircuitBreaker) execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := b.cb.Execute(fn)

	switch {
	case err == nil || isBreakerSuccess(err):
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
		metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(b.name).Set(0)
	case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
		logging.Warn().Str("component", "openf1").Err(err).Msg("[CIRCUIT BREAKER] Request rejected")
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
		counts := b.cb.Counts()
		metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(b.name).Set(float64(counts.ConsecutiveFailures))
	}
	return result, err
}

// State returns "closed", "half-open" or "open".
func (b *CircuitBreaker) State() string {
	return stateToString(b.cb.State())
}

// stateToFloat converts a breaker state to its gauge value.
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
