// Pitwall - Telemetry Replay Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pitwall

package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/pitwall/internal/validation"
)

// catalogKey is a path parameter validated like a replay session id.
type catalogKey struct {
	SessionKey string `json:"sessionKey" validate:"required,openf1key"`
}

type yearQuery struct {
	Year int `json:"year" validate:"gte=2018,lte=2100"`
}

// sessionKeyParam reads and validates the {sessionKey} path parameter.
func sessionKeyParam(rw *ResponseWriter, r *http.Request) (string, bool) {
	key := catalogKey{SessionKey: chi.URLParam(r, "sessionKey")}
	if verr := validation.ValidateStruct(&key); verr != nil {
		rw.ValidationError(verr)
		return "", false
	}
	return key.SessionKey, true
}

// GetSession handles GET /api/v1/catalog/sessions/{sessionKey}.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	sessionKey, ok := sessionKeyParam(rw, r)
	if !ok {
		return
	}

	session, err := h.catalog.ResolveSession(r.Context(), sessionKey)
	if err != nil {
		writeUpstreamError(rw, err)
		return
	}
	rw.Success(session)
}

// ListRaces handles GET /api/v1/catalog/races?year=YYYY.
func (h *Handler) ListRaces(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	raw := r.URL.Query().Get("year")
	if raw == "" {
		rw.ValidationError(validation.Invalid("year", "required", "year is required", raw))
		return
	}
	year, err := strconv.Atoi(raw)
	if err != nil {
		rw.ValidationError(validation.Invalid("year", "numeric", "year must be numeric", raw))
		return
	}
	q := yearQuery{Year: year}
	if verr := validation.ValidateStruct(&q); verr != nil {
		rw.ValidationError(verr)
		return
	}

	races, err := h.catalog.RacesByYear(r.Context(), q.Year)
	if err != nil {
		writeUpstreamError(rw, err)
		return
	}
	rw.List(races, len(races))
}

// ListDrivers handles GET /api/v1/catalog/sessions/{sessionKey}/drivers.
func (h *Handler) ListDrivers(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	sessionKey, ok := sessionKeyParam(rw, r)
	if !ok {
		return
	}

	drivers, err := h.catalog.DriversBySession(r.Context(), sessionKey)
	if err != nil {
		writeUpstreamError(rw, err)
		return
	}
	rw.List(drivers, len(drivers))
}
