// Pitwall - Telemetry Replay Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pitwall

package api

import (
	"errors"
	"net/http"

	"github.com/tomtom215/pitwall/internal/logging"
	"github.com/tomtom215/pitwall/internal/openf1"
	"github.com/tomtom215/pitwall/internal/replay"
	"github.com/tomtom215/pitwall/internal/store"
)

// upstreamService names the upstream in EXTERNAL_SERVICE_ERROR messages.
const upstreamService = "openf1"

// writeError maps a domain error to its HTTP response. upstreamStatus is
// the status used for upstream fetch failures, which differs by endpoint.
func writeError(rw *ResponseWriter, err error, upstreamStatus int) {
	var fetchErr *openf1.FetchError

	switch {
	case errors.Is(err, openf1.ErrSessionNotFound):
		rw.NotFound("session not found")
	case errors.Is(err, replay.ErrNoStartTime):
		rw.NotFound("session has no start time")
	case errors.Is(err, replay.ErrNotRunning):
		rw.NotRunning()
	case errors.Is(err, replay.ErrStartSuperseded):
		rw.Conflict("replay start was superseded by a later request")
	case errors.Is(err, store.ErrUserExists):
		rw.Conflict("username is already taken")
	case errors.Is(err, store.ErrInvalidCredentials):
		rw.Unauthorized("invalid username or password")
	case errors.Is(err, store.ErrFavoriteExists):
		rw.Conflict("favorite already exists")
	case errors.Is(err, store.ErrFavoriteNotFound):
		rw.NotFound("favorite not found")
	case errors.As(err, &fetchErr):
		rw.ExternalServiceError(upstreamStatus, upstreamService, err)
	default:
		logging.Ctx(rw.r.Context()).Error().Err(err).Msg("Request failed")
		rw.InternalError("internal server error")
	}
}

// writeUpstreamError is writeError for endpoints that report upstream
// failures as 502.
func writeUpstreamError(rw *ResponseWriter, err error) {
	writeError(rw, err, http.StatusBadGateway)
}
