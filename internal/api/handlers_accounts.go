// Pitwall - Telemetry Replay Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pitwall

package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/pitwall/internal/auth"
	"github.com/tomtom215/pitwall/internal/logging"
	"github.com/tomtom215/pitwall/internal/models"
	"github.com/tomtom215/pitwall/internal/validation"
)

// TokenResponse is returned by register and login.
type TokenResponse struct {
	Username  string    `json:"username"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// decodeCredentials reads and validates a register or login body.
func decodeCredentials(rw *ResponseWriter, r *http.Request) (*CredentialsRequest, bool) {
	var req CredentialsRequest
	if err := decodeJSON(r, &req, false); err != nil {
		rw.BadRequest(err.Error())
		return nil, false
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		rw.ValidationError(verr)
		return nil, false
	}
	return &req, true
}

func (h *Handler) issueToken(rw *ResponseWriter, username string, created bool) {
	token, expiresAt, err := h.jwtManager.GenerateToken(username)
	if err != nil {
		logging.Ctx(rw.r.Context()).Error().Err(err).Msg("Failed to sign token")
		rw.InternalError("failed to issue token")
		return
	}
	resp := TokenResponse{Username: username, Token: token, ExpiresAt: expiresAt}
	if created {
		rw.Created(resp)
		return
	}
	rw.Success(resp)
}

// Register handles POST /api/v1/auth/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	req, ok := decodeCredentials(rw, r)
	if !ok {
		return
	}

	user, err := h.accounts.CreateUser(r.Context(), strings.ToLower(req.Username), req.Password)
	if err != nil {
		writeError(rw, err, http.StatusInternalServerError)
		return
	}

	logging.Ctx(r.Context()).Info().Str("username", user.Username).Msg("User registered")
	h.issueToken(rw, user.Username, true)
}

// Login handles POST /api/v1/auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	req, ok := decodeCredentials(rw, r)
	if !ok {
		return
	}

	user, err := h.accounts.Authenticate(r.Context(), strings.ToLower(req.Username), req.Password)
	if err != nil {
		logging.Ctx(r.Context()).Warn().Str("username", sanitizeLogValue(req.Username)).Msg("Login failed")
		writeError(rw, err, http.StatusInternalServerError)
		return
	}
	h.issueToken(rw, user.Username, false)
}

// currentUser returns the username of the authenticated caller.
func currentUser(rw *ResponseWriter, r *http.Request) (string, bool) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok || claims.Username == "" {
		rw.Unauthorized("authentication required")
		return "", false
	}
	return claims.Username, true
}

// ListFavorites handles GET /api/v1/favorites.
func (h *Handler) ListFavorites(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	username, ok := currentUser(rw, r)
	if !ok {
		return
	}

	favorites, err := h.accounts.ListFavorites(r.Context(), username)
	if err != nil {
		writeError(rw, err, http.StatusInternalServerError)
		return
	}
	rw.List(favorites, len(favorites))
}

// AddFavorite handles POST /api/v1/favorites.
func (h *Handler) AddFavorite(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	username, ok := currentUser(rw, r)
	if !ok {
		return
	}

	var req FavoriteRequest
	if err := decodeJSON(r, &req, false); err != nil {
		rw.BadRequest(err.Error())
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		rw.ValidationError(verr)
		return
	}

	fav := &models.Favorite{
		Username:    username,
		Year:        req.Year,
		Round:       req.Round,
		DriverID:    req.DriverID,
		CircuitName: req.CircuitName,
	}
	if err := h.accounts.AddFavorite(r.Context(), fav); err != nil {
		writeError(rw, err, http.StatusInternalServerError)
		return
	}
	rw.Created(fav)
}

// RemoveFavorite handles DELETE /api/v1/favorites/{id}.
func (h *Handler) RemoveFavorite(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	username, ok := currentUser(rw, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" || strings.Contains(id, ":") {
		rw.ValidationError(validation.Invalid("id", "favoriteid", "id is not a favorite id", id))
		return
	}

	if err := h.accounts.RemoveFavorite(r.Context(), username, id); err != nil {
		writeError(rw, err, http.StatusInternalServerError)
		return
	}
	rw.Success(map[string]interface{}{"id": id, "removed": true})
}
