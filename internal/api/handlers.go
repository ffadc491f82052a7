// Pitwall - Telemetry Replay Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pitwall

package api

import (
	"context"
	"time"

	"github.com/tomtom215/pitwall/internal/auth"
	"github.com/tomtom215/pitwall/internal/config"
	"github.com/tomtom215/pitwall/internal/middleware"
	"github.com/tomtom215/pitwall/internal/models"
	"github.com/tomtom215/pitwall/internal/replay"
	ws "github.com/tomtom215/pitwall/internal/websocket"
)

// ReplayService is the replay engine as seen by the handlers.
// *replay.Engine satisfies it.
type ReplayService interface {
	Start(ctx context.Context, sessionID, entityID string) (*replay.RunInfo, error)
	Stop()
	CurrentPosition() (models.Sample, bool)
	TrackShape(ctx context.Context) ([]models.Sample, error)
	TrackBounds(ctx context.Context) (models.TrackBounds, error)
	Status() replay.Status
}

// Catalog serves session and driver metadata. *openf1.Client satisfies it.
type Catalog interface {
	ResolveSession(ctx context.Context, sessionKey string) (*models.Session, error)
	RacesByYear(ctx context.Context, year int) ([]models.Session, error)
	DriversBySession(ctx context.Context, sessionKey string) ([]models.Driver, error)
	BreakerState() string
}

// AccountStore persists users and favorites. *store.Store satisfies it.
type AccountStore interface {
	CreateUser(ctx context.Context, username, password string) (*models.User, error)
	Authenticate(ctx context.Context, username, password string) (*models.User, error)
	AddFavorite(ctx context.Context, fav *models.Favorite) error
	ListFavorites(ctx context.Context, username string) ([]models.Favorite, error)
	RemoveFavorite(ctx context.Context, username, id string) error
}

// Handler contains dependencies for API handlers.
//
// Handler methods are split across files:
//   - handlers_replay.go: replay control, position, track shape, WebSocket
//   - handlers_catalog.go: session, race and driver lookups
//   - handlers_accounts.go: register, login and favorites
//   - handlers_health.go: health
type Handler struct {
	replay     ReplayService
	catalog    Catalog
	accounts   AccountStore
	jwtManager *auth.JWTManager
	wsHub      *ws.Hub
	config     *config.Config
	perfMon    *middleware.PerformanceMonitor
	startTime  time.Time
}

// HandlerDeps lists the collaborators of a Handler. Accounts and
// JWTManager are nil when accounts are disabled; WSHub and PerfMon are
// optional.
type HandlerDeps struct {
	Replay     ReplayService
	Catalog    Catalog
	Accounts   AccountStore
	JWTManager *auth.JWTManager
	WSHub      *ws.Hub
	PerfMon    *middleware.PerformanceMonitor
}

// NewHandler creates the API handler.
func NewHandler(cfg *config.Config, deps HandlerDeps) *Handler {
	return &Handler{
		replay:     deps.Replay,
		catalog:    deps.Catalog,
		accounts:   deps.Accounts,
		jwtManager: deps.JWTManager,
		wsHub:      deps.WSHub,
		config:     cfg,
		perfMon:    deps.PerfMon,
		startTime:  time.Now(),
	}
}

// accountsEnabled reports whether the account and favorites routes exist.
func (h *Handler) accountsEnabled() bool {
	return h.accounts != nil && h.jwtManager != nil
}
