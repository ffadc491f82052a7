// Pitwall - Telemetry Replay Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pitwall

// Package api exposes the replay engine, the session catalog, accounts
// and favorites over HTTP using the Chi router.
//
// Replay endpoints answer with raw JSON bodies on success, matching the
// legacy map client. Every other endpoint, and every error, uses the
// APIResponse envelope.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/pitwall/internal/auth"
	"github.com/tomtom215/pitwall/internal/logging"
	"github.com/tomtom215/pitwall/internal/middleware"
)

// compressionLevel is the gzip level for JSON responses. Track shapes run
// to thousands of samples.
const compressionLevel = 5

// chiMiddleware adapts http.HandlerFunc middleware to Chi's func(http.Handler) http.Handler.
func chiMiddleware(mw func(http.HandlerFunc) http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return mw(next.ServeHTTP)
	}
}

// Router wires handlers and middleware into a Chi mux.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
	authenticator *auth.Middleware
}

// NewRouter creates a router. The authenticator is only used when the
// handler has accounts enabled.
func NewRouter(handler *Handler, chiMw *ChiMiddleware) *Router {
	router := &Router{
		handler:       handler,
		chiMiddleware: chiMw,
	}
	if handler.accountsEnabled() {
		router.authenticator = auth.NewMiddleware(handler.jwtManager, func(w http.ResponseWriter, r *http.Request, message string) {
			NewResponseWriter(w, r).Unauthorized(message)
		})
	}
	return router
}

// Setup builds the route tree.
func (router *Router) Setup() http.Handler {
	h := router.handler
	r := chi.NewRouter()

	// Applied to all routes in order
	r.Use(chiMiddleware(middleware.RequestID))
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS())
	if h.perfMon != nil {
		r.Use(h.perfMon.Middleware)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, http.StatusNotFound, ErrCodeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, http.StatusMethodNotAllowed, ErrCodeBadRequest, "method not allowed")
	})

	r.Group(func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitHealth())
		r.Get("/health", h.Health)
		r.Handle("/metrics", promhttp.Handler())
	})

	// Replay control and position stream
	r.Route("/api/v1/replay", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(APISecurityHeaders())
		r.Use(chiMiddleware(middleware.PrometheusMetrics))

		// The WebSocket route must not be compressed.
		r.Get("/ws", h.WebSocket)

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Compress(compressionLevel, "application/json"))
			r.Post("/start", h.StartReplay)
			r.Post("/stop", h.StopReplay)
			r.Get("/current-position", h.CurrentPosition)
			r.Get("/track-shape", h.TrackShape)
			r.Get("/track-shape/bounds", h.TrackBounds)
			r.Get("/status", h.ReplayStatus)
		})
	})

	// Aliases kept for the legacy map client
	r.Route("/location", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(chiMiddleware(middleware.PrometheusMetrics))
		r.Use(chimiddleware.Compress(compressionLevel, "application/json"))
		r.Post("/start", h.StartReplay)
		r.Post("/stop", h.StopReplay)
		r.Get("/current", h.CurrentPosition)
		r.Get("/track-data", h.TrackShape)
	})

	r.Route("/api/v1/catalog", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(APISecurityHeaders())
		r.Use(chiMiddleware(middleware.PrometheusMetrics))
		r.Use(chimiddleware.Compress(compressionLevel, "application/json"))
		r.Get("/races", h.ListRaces)
		r.Get("/sessions/{sessionKey}", h.GetSession)
		r.Get("/sessions/{sessionKey}/drivers", h.ListDrivers)
	})

	if !h.accountsEnabled() {
		logging.Warn().Msg("JWT secret not configured: account and favorites routes are disabled")
		return r
	}

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(APISecurityHeaders())
		r.Use(chiMiddleware(middleware.PrometheusMetrics))
		r.With(router.chiMiddleware.RateLimitAuth()).Post("/register", h.Register)
		r.With(router.chiMiddleware.RateLimitLogin()).Post("/login", h.Login)
	})

	r.Route("/api/v1/favorites", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(APISecurityHeaders())
		r.Use(chiMiddleware(middleware.PrometheusMetrics))
		r.Use(router.authenticator.RequireAuth)
		r.Get("/", h.ListFavorites)
		r.Post("/", h.AddFavorite)
		r.Delete("/{id}", h.RemoveFavorite)
	})

	return r
}
