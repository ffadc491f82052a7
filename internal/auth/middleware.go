// Pitwall - Telemetry Replay Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pitwall

package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/tomtom215/pitwall/internal/logging"
)

type contextKey string

const ClaimsContextKey contextKey = "claims"

// UnauthorizedFunc writes the 401 response for a rejected request.
type UnauthorizedFunc func(w http.ResponseWriter, r *http.Request, message string)

// Middleware enforces bearer-token authentication.
type Middleware struct {
	jwtManager   *JWTManager
	unauthorized UnauthorizedFunc
}

// NewMiddleware creates the middleware. A nil unauthorized writes a plain
// text 401.
func NewMiddleware(jwtManager *JWTManager, unauthorized UnauthorizedFunc) *Middleware {
	if unauthorized == nil {
		unauthorized = func(w http.ResponseWriter, _ *http.Request, message string) {
			http.Error(w, message, http.StatusUnauthorized)
		}
	}
	return &Middleware{jwtManager: jwtManager, unauthorized: unauthorized}
}

// RequireAuth rejects requests without a valid "Authorization: Bearer"
// token and stores the claims in the request context.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			m.unauthorized(w, r, "missing or malformed bearer token")
			return
		}

		claims, err := m.jwtManager.ValidateToken(token)
		if err != nil {
			logging.Ctx(r.Context()).Debug().Err(err).Msg("Token validation failed")
			m.unauthorized(w, r, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// ClaimsFromContext returns the claims stored by RequireAuth.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsContextKey).(*Claims)
	return claims, ok && claims != nil
}
