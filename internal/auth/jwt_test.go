// Pitwall - Telemetry Replay Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pitwall

package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tomtom215/pitwall/internal/config"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestManager(t *testing.T) *JWTManager {
	t.Helper()
	m, err := NewJWTManager(&config.SecurityConfig{JWTSecret: testSecret, TokenTTL: time.Hour})
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}
	return m
}

func TestNewJWTManagerRequiresSecret(t *testing.T) {
	if _, err := NewJWTManager(&config.SecurityConfig{}); !errors.Is(err, ErrNoSecret) {
		t.Errorf("err = %v, want ErrNoSecret", err)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	m := newTestManager(t)

	token, expiresAt, err := m.GenerateToken("charles")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if d := time.Until(expiresAt); d < 59*time.Minute || d > time.Hour {
		t.Errorf("expiresAt in %v, want ~1h", d)
	}

	claims, err := m.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Username != "charles" || claims.Issuer != issuer {
		t.Errorf("claims = %+v", claims)
	}
}

func TestValidateTokenRejects(t *testing.T) {
	m := newTestManager(t)

	expired := newTestManager(t)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expiredToken, _, _ := expired.GenerateToken("carlos")

	other, _ := NewJWTManager(&config.SecurityConfig{JWTSecret: strings.Repeat("x", 32)})
	foreignToken, _, _ := other.GenerateToken("carlos")

	noneToken, _ := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		Username:         "carlos",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: issuer},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	wrongIssuer, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		Username: "carlos",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(testSecret))

	for name, token := range map[string]string{
		"expired":      expiredToken,
		"wrong secret": foreignToken,
		"alg none":     noneToken,
		"wrong issuer": wrongIssuer,
		"garbage":      "not.a.token",
		"empty":        "",
	} {
		if _, err := m.ValidateToken(token); err == nil {
			t.Errorf("%s: ValidateToken succeeded", name)
		}
	}
}

func TestRequireAuth(t *testing.T) {
	m := newTestManager(t)
	token, _, _ := m.GenerateToken("oscar")

	var seen string
	handler := NewMiddleware(m, nil).RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			t.Error("claims missing from context")
			return
		}
		seen = claims.Username
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer " + token, http.StatusOK},
		{"lowercase scheme", "bearer " + token, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"basic scheme", "Basic b3NjYXI6cGFzcw==", http.StatusUnauthorized},
		{"empty token", "Bearer ", http.StatusUnauthorized},
		{"invalid token", "Bearer abc.def.ghi", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, "/api/v1/favorites", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusOK && seen != "oscar" {
				t.Errorf("handler saw user %q", seen)
			}
		})
	}
}

func TestRequireAuthCustomWriter(t *testing.T) {
	m := newTestManager(t)
	var message string
	mw := NewMiddleware(m, func(w http.ResponseWriter, _ *http.Request, msg string) {
		message = msg
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	mw.RequireAuth(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTeapot || message == "" {
		t.Errorf("custom writer not used: code=%d message=%q", rec.Code, message)
	}
}
