// Pitwall - Telemetry Replay Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pitwall

package middleware

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/pitwall/internal/logging"
)

// RequestMetrics is one observed request.
type RequestMetrics struct {
	Route      string
	Method     string
	Duration   time.Duration
	StatusCode int
}

// EndpointStats aggregates the retained samples of one route.
type EndpointStats struct {
	Endpoint     string  `json:"endpoint"`
	RequestCount int     `json:"requestCount"`
	AvgMs        float64 `json:"avgMs"`
	P50Ms        int64   `json:"p50Ms"`
	P95Ms        int64   `json:"p95Ms"`
	MaxMs        int64   `json:"maxMs"`
}

// PerformanceMonitor keeps a sliding window of request latencies for the
// health endpoint and logs requests slower than a threshold.
type PerformanceMonitor struct {
	mu         sync.RWMutex
	samples    []RequestMetrics
	maxSamples int
	slow       time.Duration
}

// NewPerformanceMonitor retains the last maxSamples requests. A zero slow
// threshold disables slow-request logging.
func NewPerformanceMonitor(maxSamples int, slow time.Duration) *PerformanceMonitor {
	if maxSamples <= 0 {
		maxSamples = 1000
	}
	return &PerformanceMonitor{
		samples:    make([]RequestMetrics, 0, maxSamples),
		maxSamples: maxSamples,
		slow:       slow,
	}
}

// RecordRequest adds a sample, evicting the oldest when full.
func (pm *PerformanceMonitor) RecordRequest(m RequestMetrics) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if len(pm.samples) == pm.maxSamples {
		copy(pm.samples, pm.samples[1:])
		pm.samples = pm.samples[:len(pm.samples)-1]
	}
	pm.samples = append(pm.samples, m)
}

// Stats returns per-endpoint statistics, busiest first.
func (pm *PerformanceMonitor) Stats() []EndpointStats {
	pm.mu.RLock()
	byEndpoint := make(map[string][]int64)
	for _, m := range pm.samples {
		key := m.Method + " " + m.Route
		byEndpoint[key] = append(byEndpoint[key], m.Duration.Milliseconds())
	}
	pm.mu.RUnlock()

	stats := make([]EndpointStats, 0, len(byEndpoint))
	for endpoint, durations := range byEndpoint {
		sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

		var sum int64
		for _, d := range durations {
			sum += d
		}
		stats = append(stats, EndpointStats{
			Endpoint:     endpoint,
			RequestCount: len(durations),
			AvgMs:        float64(sum) / float64(len(durations)),
			P50Ms:        percentile(durations, 0.50),
			P95Ms:        percentile(durations, 0.95),
			MaxMs:        durations[len(durations)-1],
		})
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].RequestCount != stats[j].RequestCount {
			return stats[i].RequestCount > stats[j].RequestCount
		}
		return stats[i].Endpoint < stats[j].Endpoint
	})
	return stats
}

// Middleware records every request passing through it.
func (pm *PerformanceMonitor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		duration := time.Since(start)
		route := routePattern(r)
		pm.RecordRequest(RequestMetrics{
			Route:      route,
			Method:     r.Method,
			Duration:   duration,
			StatusCode: wrapper.statusCode,
		})

		if pm.slow > 0 && duration > pm.slow {
			logging.Ctx(r.Context()).Warn().
				Str("method", r.Method).
				Str("route", route).
				Int64("duration_ms", duration.Milliseconds()).
				Msg("Slow request detected")
		}
	})
}

// percentile picks the value at p from an ascending slice.
func percentile(sorted []int64, p float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	return sorted[int(float64(len(sorted)-1)*p)]
}
