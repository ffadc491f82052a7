// Pitwall - Telemetry Replay Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pitwall

package api

import (
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/pitwall/internal/logging"
	"github.com/tomtom215/pitwall/internal/validation"
)

// StartReplay handles POST /api/v1/replay/start and POST /location/start.
// It replaces any running replay and answers with the resolved start time.
func (h *Handler) StartReplay(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req StartRequest
	if err := decodeJSON(r, &req, true); err != nil {
		rw.BadRequest(err.Error())
		return
	}
	req.normalize()
	if verr := validation.ValidateStruct(&req); verr != nil {
		rw.ValidationError(verr)
		return
	}

	info, err := h.replay.Start(r.Context(), string(req.SessionID), string(req.EntityID))
	if err != nil {
		writeError(rw, err, http.StatusInternalServerError)
		return
	}

	logging.Ctx(r.Context()).Info().
		Str("run_id", info.RunID).
		Str("session_id", info.SessionID).
		Str("entity_id", info.EntityID).
		Time("start_time", info.StartTime).
		Msg("Replay started")
	rw.Raw(info)
}

// StopReplay handles POST /api/v1/replay/stop and POST /location/stop.
// It always succeeds.
func (h *Handler) StopReplay(w http.ResponseWriter, r *http.Request) {
	h.replay.Stop()
	NewResponseWriter(w, r).Raw(map[string]bool{"ok": true})
}

// CurrentPosition handles GET /api/v1/replay/current-position and
// GET /location/current. It answers {} until a position is known.
func (h *Handler) CurrentPosition(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	sample, ok := h.replay.CurrentPosition()
	if !ok {
		rw.Raw(struct{}{})
		return
	}
	rw.Raw(sample)
}

// TrackShape handles GET /api/v1/replay/track-shape and
// GET /location/track-data.
func (h *Handler) TrackShape(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	samples, err := h.replay.TrackShape(r.Context())
	if err != nil {
		writeUpstreamError(rw, err)
		return
	}
	rw.Raw(samples)
}

// TrackBounds handles GET /api/v1/replay/track-shape/bounds.
func (h *Handler) TrackBounds(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	bounds, err := h.replay.TrackBounds(r.Context())
	if err != nil {
		writeUpstreamError(rw, err)
		return
	}
	rw.Raw(bounds)
}

// ReplayStatus handles GET /api/v1/replay/status.
func (h *Handler) ReplayStatus(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Raw(h.replay.Status())
}

// WebSocket handles GET /api/v1/replay/ws.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.wsHub == nil {
		WriteError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "WebSocket service unavailable")
		return
	}

	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	if _, err := h.wsHub.Attach(conn); err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("WebSocket client rejected")
	}
}

// getUpgrader creates a WebSocket upgrader with origin checking and a
// handshake timeout.
func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin accepts origins listed in the CORS configuration.
// Browsers always send Origin, so a missing header is rejected.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		logging.Warn().Msg("WebSocket connection rejected: missing Origin header")
		return false
	}

	if h.config == nil {
		return true
	}
	for _, allowed := range h.config.Security.CORSOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}

	logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("WebSocket connection rejected from unauthorized origin")
	return false
}

// sanitizeLogValue strips control characters from client input and
// truncates it before logging.
func sanitizeLogValue(s string) string {
	const maxLen = 200
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	if len(s) > maxLen {
		s = s[:maxLen] + "..."
	}
	return s
}
