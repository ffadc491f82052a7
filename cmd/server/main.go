// Pitwall - Telemetry Replay Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pitwall

// Command server runs the Pitwall replay service.
//
// Startup order:
//
//  1. Configuration (Koanf: defaults, config.yaml, environment)
//  2. OpenF1 client (rate limiter, circuit breaker, catalog cache)
//  3. WebSocket hub and replay engine
//  4. Account store and JWT manager, only when JWT_SECRET is set
//  5. Chi router and HTTP server
//  6. Supervisor tree, which owns every long-running service
//
// SIGINT and SIGTERM cancel the tree; the HTTP server drains for up to
// 10s and any active replay run is stopped.
//
//	export OPENF1_BASE_URL=https://api.openf1.org/v1
//	export JWT_SECRET=$(openssl rand -hex 32)
//	./pitwall
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/pitwall/internal/api"
	"github.com/tomtom215/pitwall/internal/auth"
	"github.com/tomtom215/pitwall/internal/config"
	"github.com/tomtom215/pitwall/internal/logging"
	"github.com/tomtom215/pitwall/internal/middleware"
	"github.com/tomtom215/pitwall/internal/openf1"
	"github.com/tomtom215/pitwall/internal/replay"
	"github.com/tomtom215/pitwall/internal/store"
	"github.com/tomtom215/pitwall/internal/supervisor"
	"github.com/tomtom215/pitwall/internal/supervisor/services"
	ws "github.com/tomtom215/pitwall/internal/websocket"
)

const (
	shutdownTimeout = 10 * time.Second
	perfSamples     = 1000
	slowRequest     = time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
		Output:    os.Stderr,
	})

	logging.Info().
		Str("environment", cfg.Server.Environment).
		Str("openf1", cfg.OpenF1.BaseURL).
		Msg("Starting Pitwall")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  shutdownTimeout,
	})

	client := openf1.NewClient(cfg.OpenF1)
	hub := ws.NewHub()
	engine := replay.New(client, cfg.Replay, replay.WithObserver(hub))

	deps := api.HandlerDeps{
		Replay:  engine,
		Catalog: client,
		WSHub:   hub,
		PerfMon: middleware.NewPerformanceMonitor(perfSamples, slowRequest),
	}

	if cfg.AccountsEnabled() {
		db, err := store.Open(cfg.Store)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to open account store")
		}
		defer func() {
			if err := db.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing account store")
			}
		}()

		jwtManager, err := auth.NewJWTManager(&cfg.Security)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize JWT manager")
		}

		deps.Accounts = db
		deps.JWTManager = jwtManager
		tree.AddStorageService(db)
		logging.Info().Msg("Accounts and favorites enabled")
	}

	if cfg.Security.RateLimitDisabled {
		logging.Warn().Msg("Rate limiting is DISABLED (DISABLE_RATE_LIMIT=true)")
	}
	if cfg.ShouldWarnAboutCORS() {
		logging.Warn().Msg("CORS_ORIGINS contains '*': any website can call this API")
	}

	handler := api.NewHandler(cfg, deps)
	router := api.NewRouter(handler, api.NewChiMiddleware(api.NewChiMiddlewareConfig(cfg.Security)))

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router.Setup(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		// WebSocket streams outlive any write deadline; handlers set their own.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	tree.AddStreamingService(hub)
	tree.AddStreamingService(engine)
	tree.AddAPIService(services.NewHTTPServerService(server, shutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Pitwall stopped")
}
