// Pitwall - Telemetry Replay Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pitwall

// Package config loads Pitwall configuration with Koanf v2.
//
// Sources are layered, highest priority last:
//  1. Built-in defaults (defaultConfig)
//  2. Optional YAML file (CONFIG_PATH or one of DefaultConfigPaths)
//  3. Environment variables (see envMappings in koanf.go)
//
// Example:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    logging.Fatal().Err(err).Msg("Failed to load configuration")
//	}
//	srv := &http.Server{Addr: cfg.Addr(), ReadTimeout: cfg.Server.Timeout}
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	OpenF1   OpenF1Config   `koanf:"openf1"`
	Replay   ReplayConfig   `koanf:"replay"`
	Store    StoreConfig    `koanf:"store"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port        int           `koanf:"port"`
	Host        string        `koanf:"host"`
	Timeout     time.Duration `koanf:"timeout"`
	Environment string        `koanf:"environment"` // development, staging, production
}

// OpenF1Config holds settings for the upstream telemetry API.
type OpenF1Config struct {
	BaseURL           string        `koanf:"base_url"`
	Timeout           time.Duration `koanf:"timeout"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
	Burst             int           `koanf:"burst"`

	// Circuit breaker
	BreakerFailureThreshold uint32        `koanf:"breaker_failure_threshold"`
	BreakerMaxRequests      uint32        `koanf:"breaker_max_requests"`
	BreakerInterval         time.Duration `koanf:"breaker_interval"`
	BreakerTimeout          time.Duration `koanf:"breaker_timeout"`

	// Session, race and driver lookups
	CatalogCacheSize int           `koanf:"catalog_cache_size"`
	CatalogCacheTTL  time.Duration `koanf:"catalog_cache_ttl"`
}

// ReplayConfig holds the pacing constants of the replay engine.
type ReplayConfig struct {
	TickPeriod       time.Duration `koanf:"tick_period"`
	BlockDuration    time.Duration `koanf:"block_duration"`
	LeadCeiling      time.Duration `koanf:"lead_ceiling"`
	FetchDelay       time.Duration `koanf:"fetch_delay"`
	GapDelay         time.Duration `koanf:"gap_delay"`
	RateLimitBackoff time.Duration `koanf:"rate_limit_backoff"`
	ErrorBackoff     time.Duration `koanf:"error_backoff"`
	CooldownDelay    time.Duration `koanf:"cooldown_delay"`
	TrackWindow      time.Duration `koanf:"track_window"`
	MaxBufferSize    int           `koanf:"max_buffer_size"`
}

// StoreConfig holds the embedded Badger store settings for users and favorites.
type StoreConfig struct {
	Path       string        `koanf:"path"`
	InMemory   bool          `koanf:"in_memory"`
	GCInterval time.Duration `koanf:"gc_interval"`
}

// SecurityConfig holds token, CORS and rate-limit settings.
type SecurityConfig struct {
	JWTSecret         string        `koanf:"jwt_secret"`
	TokenTTL          time.Duration `koanf:"token_ttl"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Load reads configuration from defaults, config file and environment.
func Load() (*Config, error) {
	return LoadWithKoanf()
}

// Addr returns the listen address of the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// IsProduction reports whether ENVIRONMENT=production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Server.Environment, "production")
}

// AccountsEnabled reports whether a JWT secret is configured. Without one
// the account and favorites routes are not mounted.
func (c *Config) AccountsEnabled() bool {
	return c.Security.JWTSecret != ""
}

// ShouldWarnAboutCORS reports a wildcard CORS origin.
func (c *Config) ShouldWarnAboutCORS() bool {
	for _, origin := range c.Security.CORSOrigins {
		if origin == "*" {
			return true
		}
	}
	return false
}
