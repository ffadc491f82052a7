// Pitwall - Telemetry Replay Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pitwall

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/pitwall/internal/middleware"
	"github.com/tomtom215/pitwall/internal/replay"
)

// Health states
const (
	healthHealthy  = "healthy"
	healthDegraded = "degraded"
)

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status          string                     `json:"status"`
	UptimeSeconds   float64                    `json:"uptimeSeconds"`
	Replay          replay.Status              `json:"replay"`
	UpstreamBreaker string                     `json:"upstreamBreaker"`
	WSClients       int                        `json:"wsClients"`
	AccountsEnabled bool                       `json:"accountsEnabled"`
	Endpoints       []middleware.EndpointStats `json:"endpoints,omitempty"`
}

// Health handles GET /health. The service is degraded while the upstream
// circuit breaker is open.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	health := HealthStatus{
		Status:          healthHealthy,
		UptimeSeconds:   time.Since(h.startTime).Seconds(),
		Replay:          h.replay.Status(),
		AccountsEnabled: h.accountsEnabled(),
	}

	if h.catalog != nil {
		health.UpstreamBreaker = h.catalog.BreakerState()
		if health.UpstreamBreaker == "open" {
			health.Status = healthDegraded
		}
	}
	if h.wsHub != nil {
		health.WSClients = h.wsHub.ClientCount()
	}
	if h.perfMon != nil {
		health.Endpoints = h.perfMon.Stats()
	}

	NewResponseWriter(w, r).Success(health)
}
