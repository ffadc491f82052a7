// Pitwall - Telemetry Replay Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pitwall

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/pitwall/internal/auth"
	"github.com/tomtom215/pitwall/internal/config"
	"github.com/tomtom215/pitwall/internal/middleware"
	"github.com/tomtom215/pitwall/internal/models"
	"github.com/tomtom215/pitwall/internal/openf1"
	"github.com/tomtom215/pitwall/internal/replay"
	ws "github.com/tomtom215/pitwall/internal/websocket"
)

const allowedOrigin = "https://pitwall.example"

type testEnv struct {
	replay   *fakeReplay
	catalog  *fakeCatalog
	accounts *fakeAccounts
	handler  http.Handler
}

func newTestEnv(t *testing.T, mutate func(*config.Config), hub *ws.Hub) *testEnv {
	t.Helper()

	cfg := &config.Config{
		Security: config.SecurityConfig{
			JWTSecret:         "test-secret-with-at-least-32-characters",
			TokenTTL:          time.Hour,
			CORSOrigins:       []string{allowedOrigin},
			RateLimitDisabled: true,
		},
	}
	if mutate != nil {
		mutate(cfg)
	}

	env := &testEnv{
		replay:   &fakeReplay{},
		catalog:  &fakeCatalog{},
		accounts: newFakeAccounts(),
	}
	deps := HandlerDeps{
		Replay:  env.replay,
		Catalog: env.catalog,
		WSHub:   hub,
		PerfMon: middleware.NewPerformanceMonitor(100, 0),
	}
	if cfg.AccountsEnabled() {
		jwtManager, err := auth.NewJWTManager(&cfg.Security)
		if err != nil {
			t.Fatalf("NewJWTManager: %v", err)
		}
		deps.Accounts = env.accounts
		deps.JWTManager = jwtManager
	}

	h := NewHandler(cfg, deps)
	env.handler = NewRouter(h, NewChiMiddleware(NewChiMiddlewareConfig(cfg.Security))).Setup()
	return env
}

func (e *testEnv) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
	Meta    *APIMeta        `json:"metadata"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope %q: %v", rec.Body.String(), err)
	}
	return env
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, status, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	if env.Success || env.Error == nil || env.Error.Code != code {
		t.Fatalf("error envelope = %s, want code %s", rec.Body.String(), code)
	}
}

func TestStartReplay(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil, nil)

	rec := env.do(http.MethodPost, "/api/v1/replay/start", `{"sessionId":9161,"entityId":"14"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, wrapped := body["success"]; wrapped {
		t.Error("replay responses must not be wrapped in the envelope")
	}
	if body["runId"] != "run-1" || body["sessionId"] != "9161" || body["entityId"] != "14" {
		t.Errorf("body = %v", body)
	}
	if body["startTime"] != "2023-09-17T12:00:00Z" {
		t.Errorf("startTime = %v", body["startTime"])
	}
	if got := env.replay.started; len(got) != 1 || got[0] != [2]string{"9161", "14"} {
		t.Errorf("Start calls = %v", got)
	}
}

func TestStartReplayLegacyRoute(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil, nil)

	rec := env.do(http.MethodPost, "/location/start", `{"session_key":9161,"driver_number":1}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := env.replay.started; len(got) != 1 || got[0] != [2]string{"9161", "1"} {
		t.Errorf("Start calls = %v", got)
	}
}

func TestStartReplayErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		body     string
		startErr error
		status   int
		code     string
	}{
		{"empty body", "", nil, http.StatusBadRequest, ErrCodeValidationFailed},
		{"missing entity", `{"sessionId":"9161"}`, nil, http.StatusBadRequest, ErrCodeValidationFailed},
		{"non-numeric session", `{"sessionId":"monza","entityId":14}`, nil, http.StatusBadRequest, ErrCodeValidationFailed},
		{"boolean id", `{"sessionId":true,"entityId":14}`, nil, http.StatusBadRequest, ErrCodeBadRequest},
		{"malformed json", `{"sessionId":`, nil, http.StatusBadRequest, ErrCodeBadRequest},
		{"unknown session", `{"sessionId":"1","entityId":14}`, openf1.ErrSessionNotFound, http.StatusNotFound, ErrCodeNotFound},
		{"superseded by stop", `{"sessionId":"9161","entityId":14}`, replay.ErrStartSuperseded, http.StatusConflict, ErrCodeConflict},
		{
			"upstream failure",
			`{"sessionId":"latest","entityId":14}`,
			&openf1.FetchError{Kind: openf1.KindHTTP, Endpoint: "sessions", StatusCode: 503},
			http.StatusInternalServerError,
			ErrCodeExternalServiceFail,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t, nil, nil)
			env.replay.startErr = tt.startErr
			expectError(t, env.do(http.MethodPost, "/api/v1/replay/start", tt.body), tt.status, tt.code)
		})
	}
}

func TestStopReplay(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil, nil)

	for _, path := range []string{"/api/v1/replay/stop", "/location/stop", "/api/v1/replay/stop"} {
		rec := env.do(http.MethodPost, path, "")
		if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"ok":true}` {
			t.Errorf("%s: %d %s", path, rec.Code, rec.Body.String())
		}
	}
	if env.replay.stops != 3 {
		t.Errorf("stops = %d, want 3", env.replay.stops)
	}
}

func TestCurrentPosition(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil, nil)

	rec := env.do(http.MethodGet, "/api/v1/replay/current-position", "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "{}" {
		t.Fatalf("idle position = %d %s, want {}", rec.Code, rec.Body.String())
	}

	var sample models.Sample
	if err := json.Unmarshal([]byte(`{"date":"2023-09-17T12:00:00.5+00:00","x":567,"y":3195,"driver_number":14}`), &sample); err != nil {
		t.Fatal(err)
	}
	env.replay.position = &sample

	for _, path := range []string{"/api/v1/replay/current-position", "/location/current"} {
		rec = env.do(http.MethodGet, path, "")
		if !strings.Contains(rec.Body.String(), `"x":567`) || !strings.Contains(rec.Body.String(), `"driver_number":14`) {
			t.Errorf("%s body = %s", path, rec.Body.String())
		}
	}
}

func TestTrackShape(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil, nil)

	expectError(t, env.do(http.MethodGet, "/api/v1/replay/track-shape", ""), http.StatusBadRequest, ErrCodeReplayNotRunning)
	expectError(t, env.do(http.MethodGet, "/api/v1/replay/track-shape/bounds", ""), http.StatusBadRequest, ErrCodeReplayNotRunning)

	env.replay.running = true
	env.replay.trackErr = &openf1.FetchError{Kind: openf1.KindTimeout, Endpoint: "location"}
	expectError(t, env.do(http.MethodGet, "/location/track-data", ""), http.StatusBadGateway, ErrCodeExternalServiceFail)

	env.replay.trackErr = nil
	env.replay.track = []models.Sample{
		models.NewSample(-10, 5, raceStart),
		models.NewSample(30, -2, raceStart.Add(time.Second)),
	}

	rec := env.do(http.MethodGet, "/api/v1/replay/track-shape", "")
	var shape []map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &shape); err != nil || len(shape) != 2 {
		t.Fatalf("track shape = %s (%v)", rec.Body.String(), err)
	}

	rec = env.do(http.MethodGet, "/api/v1/replay/track-shape/bounds", "")
	var bounds models.TrackBounds
	if err := json.Unmarshal(rec.Body.Bytes(), &bounds); err != nil {
		t.Fatal(err)
	}
	if bounds != (models.TrackBounds{MinX: -10, MaxX: 30, MinY: -2, MaxY: 5, Points: 2}) {
		t.Errorf("bounds = %+v", bounds)
	}
}

func TestReplayStatus(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil, nil)

	rec := env.do(http.MethodGet, "/api/v1/replay/status", "")
	if !strings.Contains(rec.Body.String(), `"state":"idle"`) {
		t.Errorf("idle status = %s", rec.Body.String())
	}

	env.do(http.MethodPost, "/api/v1/replay/start", `{"sessionId":"9161","entityId":"14"}`)
	rec = env.do(http.MethodGet, "/api/v1/replay/status", "")
	if !strings.Contains(rec.Body.String(), `"state":"running"`) || !strings.Contains(rec.Body.String(), `"runId":"run-1"`) {
		t.Errorf("running status = %s", rec.Body.String())
	}
}

func TestCatalogEndpoints(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil, nil)

	rec := env.do(http.MethodGet, "/api/v1/catalog/sessions/9161", "")
	resp := decodeEnvelope(t, rec)
	if rec.Code != http.StatusOK || !resp.Success || !strings.Contains(string(resp.Data), `"session_key":9161`) {
		t.Errorf("session = %d %s", rec.Code, rec.Body.String())
	}

	expectError(t, env.do(http.MethodGet, "/api/v1/catalog/sessions/1234", ""), http.StatusNotFound, ErrCodeNotFound)
	expectError(t, env.do(http.MethodGet, "/api/v1/catalog/sessions/monza", ""), http.StatusBadRequest, ErrCodeValidationFailed)

	rec = env.do(http.MethodGet, "/api/v1/catalog/races?year=2023", "")
	resp = decodeEnvelope(t, rec)
	if resp.Meta == nil || resp.Meta.Count == nil || *resp.Meta.Count != 2 {
		t.Errorf("races = %s", rec.Body.String())
	}
	expectError(t, env.do(http.MethodGet, "/api/v1/catalog/races", ""), http.StatusBadRequest, ErrCodeValidationFailed)
	expectError(t, env.do(http.MethodGet, "/api/v1/catalog/races?year=abc", ""), http.StatusBadRequest, ErrCodeValidationFailed)
	expectError(t, env.do(http.MethodGet, "/api/v1/catalog/races?year=1990", ""), http.StatusBadRequest, ErrCodeValidationFailed)

	rec = env.do(http.MethodGet, "/api/v1/catalog/sessions/9161/drivers", "")
	if !strings.Contains(rec.Body.String(), `"name_acronym":"ALO"`) {
		t.Errorf("drivers = %s", rec.Body.String())
	}

	env.catalog.err = &openf1.FetchError{Kind: openf1.KindCircuitOpen, Endpoint: "drivers"}
	expectError(t, env.do(http.MethodGet, "/api/v1/catalog/sessions/9161/drivers", ""), http.StatusBadGateway, ErrCodeExternalServiceFail)
}

func TestAccountsAndFavorites(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil, nil)

	creds := `{"username":"Lando","password":"papaya-2024"}`
	rec := env.do(http.MethodPost, "/api/v1/auth/register", creds)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register = %d %s", rec.Code, rec.Body.String())
	}
	expectError(t, env.do(http.MethodPost, "/api/v1/auth/register", creds), http.StatusConflict, ErrCodeConflict)
	expectError(t, env.do(http.MethodPost, "/api/v1/auth/register", `{"username":"a:b","password":"papaya-2024"}`), http.StatusBadRequest, ErrCodeValidationFailed)
	expectError(t, env.do(http.MethodPost, "/api/v1/auth/login", `{"username":"lando","password":"wrong-password"}`), http.StatusUnauthorized, ErrCodeUnauthorized)

	rec = env.do(http.MethodPost, "/api/v1/auth/login", creds)
	if rec.Code != http.StatusOK {
		t.Fatalf("login = %d %s", rec.Code, rec.Body.String())
	}
	var token TokenResponse
	if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &token); err != nil || token.Token == "" {
		t.Fatalf("token response = %s", rec.Body.String())
	}
	if token.Username != "lando" {
		t.Errorf("username = %q, want lando", token.Username)
	}
	bearer := []string{"Authorization", "Bearer " + token.Token}

	expectError(t, env.do(http.MethodGet, "/api/v1/favorites", ""), http.StatusUnauthorized, ErrCodeUnauthorized)
	expectError(t, env.do(http.MethodGet, "/api/v1/favorites", "", "Authorization", "Bearer nope"), http.StatusUnauthorized, ErrCodeUnauthorized)

	fav := `{"year":2023,"round":15,"driverId":"alonso","circuitName":"Marina Bay"}`
	rec = env.do(http.MethodPost, "/api/v1/favorites", fav, bearer...)
	if rec.Code != http.StatusCreated || !strings.Contains(rec.Body.String(), `"id":"2023-15-alonso"`) {
		t.Fatalf("add favorite = %d %s", rec.Code, rec.Body.String())
	}
	expectError(t, env.do(http.MethodPost, "/api/v1/favorites", fav, bearer...), http.StatusConflict, ErrCodeConflict)
	expectError(t, env.do(http.MethodPost, "/api/v1/favorites", `{"year":2023,"round":0,"driverId":"alonso"}`, bearer...), http.StatusBadRequest, ErrCodeValidationFailed)

	rec = env.do(http.MethodGet, "/api/v1/favorites", "", bearer...)
	resp := decodeEnvelope(t, rec)
	if resp.Meta == nil || resp.Meta.Count == nil || *resp.Meta.Count != 1 {
		t.Errorf("list favorites = %s", rec.Body.String())
	}

	rec = env.do(http.MethodDelete, "/api/v1/favorites/2023-15-alonso", "", bearer...)
	if rec.Code != http.StatusOK {
		t.Errorf("remove = %d %s", rec.Code, rec.Body.String())
	}
	expectError(t, env.do(http.MethodDelete, "/api/v1/favorites/2023-15-alonso", "", bearer...), http.StatusNotFound, ErrCodeNotFound)
}

func TestAccountsDisabledWithoutSecret(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, func(c *config.Config) { c.Security.JWTSecret = "" }, nil)

	expectError(t, env.do(http.MethodPost, "/api/v1/auth/login", `{"username":"lando","password":"papaya-2024"}`), http.StatusNotFound, ErrCodeNotFound)
	expectError(t, env.do(http.MethodGet, "/api/v1/favorites", ""), http.StatusNotFound, ErrCodeNotFound)

	// Replay keeps working.
	if rec := env.do(http.MethodPost, "/api/v1/replay/stop", ""); rec.Code != http.StatusOK {
		t.Errorf("stop = %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil, nil)

	rec := env.do(http.MethodGet, "/health", "")
	var health HealthStatus
	if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != healthHealthy || health.Replay.State != "idle" || !health.AccountsEnabled || health.UpstreamBreaker != "closed" {
		t.Errorf("health = %+v", health)
	}

	env.catalog.breaker = "open"
	rec = env.do(http.MethodGet, "/health", "")
	if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &health); err != nil {
		t.Fatal(err)
	}
	if health.Status != healthDegraded {
		t.Errorf("status with open breaker = %s, want degraded", health.Status)
	}
	if len(health.Endpoints) == 0 {
		t.Error("expected endpoint latency stats")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil, nil)

	env.do(http.MethodGet, "/api/v1/replay/status", "")
	rec := env.do(http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "api_requests_total") {
		t.Errorf("metrics = %d", rec.Code)
	}
}

func TestNotFoundAndMethodNotAllowed(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil, nil)

	expectError(t, env.do(http.MethodGet, "/api/v1/nothing", ""), http.StatusNotFound, ErrCodeNotFound)
	expectError(t, env.do(http.MethodGet, "/api/v1/replay/start", ""), http.StatusMethodNotAllowed, ErrCodeBadRequest)
}

func TestRateLimit(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, func(c *config.Config) {
		c.Security.RateLimitDisabled = false
		c.Security.RateLimitReqs = 2
		c.Security.RateLimitWindow = time.Minute
	}, nil)

	for i := 0; i < 2; i++ {
		if rec := env.do(http.MethodGet, "/api/v1/replay/status", ""); rec.Code != http.StatusOK {
			t.Fatalf("request %d = %d", i, rec.Code)
		}
	}
	expectError(t, env.do(http.MethodGet, "/api/v1/replay/status", ""), http.StatusTooManyRequests, ErrCodeTooManyRequests)
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil, nil)

	rec := env.do(http.MethodOptions, "/api/v1/replay/start", "",
		"Origin", allowedOrigin,
		"Access-Control-Request-Method", http.MethodPost)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != allowedOrigin {
		t.Errorf("Allow-Origin = %q", got)
	}

	rec = env.do(http.MethodOptions, "/api/v1/replay/start", "",
		"Origin", "https://evil.example",
		"Access-Control-Request-Method", http.MethodPost)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin for foreign origin = %q", got)
	}
}

func TestWebSocketStream(t *testing.T) {
	hub := ws.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = hub.Serve(ctx) }()

	env := newTestEnv(t, nil, hub)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/replay/ws"

	if _, resp, err := websocket.DefaultDialer.Dial(url, nil); err == nil {
		t.Fatal("dial without Origin should fail")
	} else if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("dial without Origin: resp=%v err=%v", resp, err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{allowedOrigin}})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.PositionChanged("run-1", models.NewSample(1, 2, raceStart))
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if !strings.Contains(string(data), `"type":"position"`) {
		t.Errorf("frame = %s", data)
	}
}

func TestFlexibleID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    FlexibleID
		wantErr bool
	}{
		{`"9161"`, "9161", false},
		{`9161`, "9161", false},
		{`"latest"`, "latest", false},
		{`null`, "", false},
		{`true`, "", true},
		{`{}`, "", true},
	}
	for _, tt := range tests {
		var id FlexibleID
		err := json.Unmarshal([]byte(tt.in), &id)
		if (err != nil) != tt.wantErr {
			t.Errorf("Unmarshal(%s) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && id != tt.want {
			t.Errorf("Unmarshal(%s) = %q, want %q", tt.in, id, tt.want)
		}
	}
}

func TestSanitizeLogValue(t *testing.T) {
	t.Parallel()

	if got := sanitizeLogValue("evil\r\nX-Injected: 1"); got != "evilX-Injected: 1" {
		t.Errorf("sanitize = %q", got)
	}
	if got := sanitizeLogValue(strings.Repeat("a", 300)); len(got) != 203 {
		t.Errorf("truncated length = %d", len(got))
	}
}
