// Pitwall - Telemetry Replay Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pitwall

package config

import (
	"fmt"
	"net/url"
	"strings"
)

const minJWTSecretLength = 32

var validLogFormats = map[string]bool{
	"json":    true,
	"console": true,
}

var validLogLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks ranges and cross-field constraints.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateOpenF1(); err != nil {
		return err
	}
	if err := c.validateReplay(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateSecurity(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) validateOpenF1() error {
	if err := validateHTTPURL(c.OpenF1.BaseURL, "OPENF1_BASE_URL"); err != nil {
		return err
	}
	if c.OpenF1.Timeout <= 0 {
		return fmt.Errorf("OPENF1_TIMEOUT must be positive")
	}
	if c.OpenF1.RequestsPerSecond <= 0 {
		return fmt.Errorf("OPENF1_REQUESTS_PER_SECOND must be positive")
	}
	if c.OpenF1.Burst < 1 {
		return fmt.Errorf("OPENF1_BURST must be at least 1")
	}
	if c.OpenF1.BreakerFailureThreshold < 1 {
		return fmt.Errorf("OPENF1_BREAKER_FAILURE_THRESHOLD must be at least 1")
	}
	if c.OpenF1.BreakerTimeout <= 0 {
		return fmt.Errorf("OPENF1_BREAKER_TIMEOUT must be positive")
	}
	if c.OpenF1.CatalogCacheSize < 1 {
		return fmt.Errorf("OPENF1_CATALOG_CACHE_SIZE must be at least 1")
	}
	return nil
}

func (c *Config) validateReplay() error {
	r := c.Replay
	positive := map[string]int64{
		"REPLAY_TICK_PERIOD":        int64(r.TickPeriod),
		"REPLAY_BLOCK_DURATION":     int64(r.BlockDuration),
		"REPLAY_LEAD_CEILING":       int64(r.LeadCeiling),
		"REPLAY_FETCH_DELAY":        int64(r.FetchDelay),
		"REPLAY_GAP_DELAY":          int64(r.GapDelay),
		"REPLAY_RATE_LIMIT_BACKOFF": int64(r.RateLimitBackoff),
		"REPLAY_ERROR_BACKOFF":      int64(r.ErrorBackoff),
		"REPLAY_COOLDOWN_DELAY":     int64(r.CooldownDelay),
		"REPLAY_TRACK_WINDOW":       int64(r.TrackWindow),
		"REPLAY_MAX_BUFFER_SIZE":    int64(r.MaxBufferSize),
	}
	for name, v := range positive {
		if v <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if r.RateLimitBackoff <= r.FetchDelay {
		return fmt.Errorf("REPLAY_RATE_LIMIT_BACKOFF (%s) must be longer than REPLAY_FETCH_DELAY (%s)",
			r.RateLimitBackoff, r.FetchDelay)
	}
	if r.LeadCeiling < r.BlockDuration {
		return fmt.Errorf("REPLAY_LEAD_CEILING (%s) must be at least REPLAY_BLOCK_DURATION (%s)",
			r.LeadCeiling, r.BlockDuration)
	}
	if r.TrackWindow < r.BlockDuration {
		return fmt.Errorf("REPLAY_TRACK_WINDOW (%s) must be at least REPLAY_BLOCK_DURATION (%s)",
			r.TrackWindow, r.BlockDuration)
	}
	return nil
}

func (c *Config) validateStore() error {
	if !c.Store.InMemory && c.Store.Path == "" {
		return fmt.Errorf("STORE_PATH is required unless STORE_IN_MEMORY=true")
	}
	if c.Store.GCInterval < 0 {
		return fmt.Errorf("STORE_GC_INTERVAL must not be negative")
	}
	return nil
}

func (c *Config) validateSecurity() error {
	s := c.Security
	if s.JWTSecret != "" && len(s.JWTSecret) < minJWTSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters", minJWTSecretLength)
	}
	if s.JWTSecret != "" && s.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive")
	}
	if !s.RateLimitDisabled {
		if s.RateLimitReqs < 1 {
			return fmt.Errorf("RATE_LIMIT_REQUESTS must be at least 1")
		}
		if s.RateLimitWindow <= 0 {
			return fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
		}
	}
	for _, origin := range s.CORSOrigins {
		if origin == "*" {
			continue
		}
		if err := validateHTTPURL(origin, "CORS_ORIGINS"); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("LOG_LEVEL must be one of: trace, debug, info, warn, error")
	}
	if c.Logging.Format != "" && !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}
	return nil
}

// validateHTTPURL accepts http(s) base URLs without path or query.
func validateHTTPURL(rawURL, fieldName string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%s failed to parse URL: %w", fieldName, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s scheme must be http or https, got: %q", fieldName, parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s host is required", fieldName)
	}
	if parsed.Path != "" && parsed.Path != "/" {
		return fmt.Errorf("%s should be base URL only, remove path: %s", fieldName, parsed.Path)
	}
	if parsed.RawQuery != "" {
		return fmt.Errorf("%s should not contain query parameters", fieldName)
	}
	return nil
}
