// Pitwall - Telemetry Replay Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pitwall

// Package openf1 is the gateway to the OpenF1 historical telemetry API.
//
// Every call goes through three layers:
//
//	Client          typed lookups, catalog memoization
//	CircuitBreaker  sony/gobreaker, trips on consecutive upstream failures
//	Gateway         per-call timeout, client-side rate limiter, error classification
//
// Failures surface as *FetchError values whose Kind distinguishes timeouts,
// rate limiting, HTTP errors, undecodable bodies, transport errors and an
// open circuit.
package openf1

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/tomtom215/pitwall/internal/cache"
	"github.com/tomtom215/pitwall/internal/config"
	"github.com/tomtom215/pitwall/internal/models"
)

// isoMillis is the bound format the location endpoint expects.
const isoMillis = "2006-01-02T15:04:05.000Z"

// Endpoint names, used for URLs and metric labels.
const (
	EndpointSessions = "sessions"
	EndpointDrivers  = "drivers"
	EndpointLocation = "location"
)

// LatestSession is the upstream alias for the most recent session. It moves
// over time, so lookups by it bypass the catalog caches.
const LatestSession = "latest"

// LocationQuery selects location samples of one driver in one session
// strictly between From and To.
type LocationQuery struct {
	SessionKey   string
	DriverNumber string
	From         time.Time
	To           time.Time
}

// Values encodes the query as OpenF1 filter parameters.
func (q LocationQuery) Values() url.Values {
	v := url.Values{}
	v.Set("session_key", q.SessionKey)
	v.Set("driver_number", q.DriverNumber)
	v.Set("date>", FormatTime(q.From))
	v.Set("date<", FormatTime(q.To))
	return v
}

// FormatTime renders t as ISO-8601 UTC with millisecond precision.
func FormatTime(t time.Time) string {
	return t.UTC().Format(isoMillis)
}

// Client is the typed OpenF1 API. Catalog lookups are memoized; location
// windows never are.
type Client struct {
	fetcher fetcher
	breaker *CircuitBreaker

	sessions *cache.LRU[models.Session]
	races    *cache.LRU[[]models.Session]
	drivers  *cache.LRU[[]models.Driver]
}

// NewClient assembles gateway, breaker and catalog caches from cfg.
func NewClient(cfg config.OpenF1Config) *Client {
	breaker := NewCircuitBreaker(NewGateway(cfg), cfg)
	return &Client{
		fetcher:  breaker,
		breaker:  breaker,
		sessions: cache.NewLRU[models.Session]("openf1_sessions", cfg.CatalogCacheSize, cfg.CatalogCacheTTL),
		races:    cache.NewLRU[[]models.Session]("openf1_races", cfg.CatalogCacheSize, cfg.CatalogCacheTTL),
		drivers:  cache.NewLRU[[]models.Driver]("openf1_drivers", cfg.CatalogCacheSize, cfg.CatalogCacheTTL),
	}
}

// BreakerState reports the circuit breaker state for health checks.
func (c *Client) BreakerState() string {
	return c.breaker.State()
}

// ResolveSession looks up a session by key. The first element of the
// upstream array is canonical; an empty array yields ErrSessionNotFound.
// Results are cached under their numeric key.
func (c *Client) ResolveSession(ctx context.Context, sessionKey string) (*models.Session, error) {
	if sessionKey != LatestSession {
		if s, ok := c.sessions.Get(sessionKey); ok {
			return &s, nil
		}
	}

	var sessions []models.Session
	if err := c.fetcher.Fetch(ctx, EndpointSessions, url.Values{"session_key": {sessionKey}}, &sessions); err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, fmt.Errorf("session %s: %w", sessionKey, ErrSessionNotFound)
	}

	s := sessions[0]
	c.sessions.Add(strconv.Itoa(s.SessionKey), s)
	return &s, nil
}

// RacesByYear lists the race sessions of a season.
func (c *Client) RacesByYear(ctx context.Context, year int) ([]models.Session, error) {
	key := strconv.Itoa(year)
	if races, ok := c.races.Get(key); ok {
		return races, nil
	}

	query := url.Values{"year": {key}, "session_name": {"Race"}}
	races := []models.Session{}
	if err := c.fetcher.Fetch(ctx, EndpointSessions, query, &races); err != nil {
		return nil, err
	}
	c.races.Add(key, races)
	return races, nil
}

// DriversBySession lists the drivers entered in a session.
func (c *Client) DriversBySession(ctx context.Context, sessionKey string) ([]models.Driver, error) {
	cacheable := sessionKey != LatestSession
	if cacheable {
		if drivers, ok := c.drivers.Get(sessionKey); ok {
			return drivers, nil
		}
	}

	drivers := []models.Driver{}
	if err := c.fetcher.Fetch(ctx, EndpointDrivers, url.Values{"session_key": {sessionKey}}, &drivers); err != nil {
		return nil, err
	}
	if cacheable {
		c.drivers.Add(sessionKey, drivers)
	}
	return drivers, nil
}

// Locations returns the position samples matching q, in upstream order.
func (c *Client) Locations(ctx context.Context, q LocationQuery) ([]models.Sample, error) {
	samples := []models.Sample{}
	if err := c.fetcher.Fetch(ctx, EndpointLocation, q.Values(), &samples); err != nil {
		return nil, err
	}
	return samples, nil
}
