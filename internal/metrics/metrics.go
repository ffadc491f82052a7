// Pitwall - Telemetry Replay Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pitwall

// Package metrics declares the Prometheus collectors exported on /metrics.
//
// Covered areas:
//   - HTTP API latency and throughput
//   - OpenF1 upstream requests and circuit breaker state
//   - Replay engine pacing (ticks, fetch outcomes, backpressure, lead, buffer)
//   - Catalog cache efficiency
//   - WebSocket position stream
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Endpoint Metrics
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
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)

	// Upstream (OpenF1) Metrics
	OpenF1RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openf1_requests_total",
			Help: "Total number of OpenF1 API requests by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"}, // outcome: ok, timeout, rate_limited, http_error, parse_error, transport, circuit_open
	)

	OpenF1RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "openf1_request_duration_seconds",
			Help:    "OpenF1 API request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 12},
		},
		[]string{"endpoint"},
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

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive failures",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Replay Engine Metrics
	ReplayRunsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "replay_runs_started_total",
			Help: "Total number of replay runs started",
		},
	)

	ReplayRunActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "replay_run_active",
			Help: "1 while a replay run is active, 0 otherwise",
		},
	)

	ReplayTicks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "replay_ticks_total",
			Help: "Total number of playback consumer ticks",
		},
	)

	ReplayPositionUpdates = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "replay_position_updates_total",
			Help: "Total number of ticks that selected a new current position",
		},
	)

	ReplayFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replay_fetches_total",
			Help: "Producer fetch outcomes",
		},
		[]string{"outcome"}, // outcome: samples, gap, rate_limited, error, discarded
	)

	ReplaySamplesBuffered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "replay_samples_buffered_total",
			Help: "Total number of samples appended to the replay buffer",
		},
	)

	ReplaySamplesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "replay_samples_dropped_total",
			Help: "Samples dropped on append because they were not newer than the buffer tail",
		},
	)

	ReplayBackpressure = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replay_backpressure_total",
			Help: "Producer invocations skipped for backpressure",
		},
		[]string{"reason"}, // reason: lead, buffer_full
	)

	ReplayBufferSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "replay_buffer_samples",
			Help: "Samples currently waiting in the replay buffer",
		},
	)

	ReplayLeadSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "replay_lead_seconds",
			Help: "Fetch clock minus simulation clock, in seconds",
		},
	)

	ReplayTrackShapeFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replay_track_shape_fetches_total",
			Help: "Track shape one-time fetches by result",
		},
		[]string{"result"}, // result: success, failure
	)

	// Catalog Cache Metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache"},
	)

	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_evictions_total",
			Help: "Total number of cache evictions",
		},
		[]string{"cache"},
	)

	// WebSocket Metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_active",
			Help: "Number of active WebSocket connections",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket messages sent",
		},
	)

	WSMessagesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_dropped_total",
			Help: "WebSocket messages dropped because the hub or a client was full",
		},
	)
)

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks in-flight API requests.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordOpenF1Request records one upstream call.
func RecordOpenF1Request(endpoint, outcome string, duration time.Duration) {
	OpenF1RequestsTotal.WithLabelValues(endpoint, outcome).Inc()
	OpenF1RequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordReplayFetch records a producer outcome and the number of samples it buffered.
func RecordReplayFetch(outcome string, buffered, dropped int) {
	ReplayFetches.WithLabelValues(outcome).Inc()
	if buffered > 0 {
		ReplaySamplesBuffered.Add(float64(buffered))
	}
	if dropped > 0 {
		ReplaySamplesDropped.Add(float64(dropped))
	}
}

// RecordReplayTick records a consumer tick and the resulting buffer state.
func RecordReplayTick(positionUpdated bool, bufferLen int, lead time.Duration) {
	ReplayTicks.Inc()
	if positionUpdated {
		ReplayPositionUpdates.Inc()
	}
	ReplayBufferSize.Set(float64(bufferLen))
	ReplayLeadSeconds.Set(lead.Seconds())
}

// SetRunActive flips the active-run gauge.
func SetRunActive(active bool) {
	if active {
		ReplayRunActive.Set(1)
		return
	}
	ReplayRunActive.Set(0)
	ReplayBufferSize.Set(0)
	ReplayLeadSeconds.Set(0)
}
