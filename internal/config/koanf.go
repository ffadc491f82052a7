// Pitwall - Telemetry Replay Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pitwall

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the config file locations searched in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/pitwall/config.yaml",
	"/etc/pitwall/config.yml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

// sliceConfigPaths are split on commas when they arrive as strings from env.
var sliceConfigPaths = []string{
	"security.cors_origins",
}

// envMappings maps lower-cased environment variable names to koanf paths.
// Unmapped variables are ignored.
var envMappings = map[string]string{
	// Server
	"http_host":    "server.host",
	"http_port":    "server.port",
	"http_timeout": "server.timeout",
	"environment":  "server.environment",

	// OpenF1
	"openf1_base_url":                  "openf1.base_url",
	"openf1_timeout":                   "openf1.timeout",
	"openf1_requests_per_second":       "openf1.requests_per_second",
	"openf1_burst":                     "openf1.burst",
	"openf1_breaker_failure_threshold": "openf1.breaker_failure_threshold",
	"openf1_breaker_max_requests":      "openf1.breaker_max_requests",
	"openf1_breaker_interval":          "openf1.breaker_interval",
	"openf1_breaker_timeout":           "openf1.breaker_timeout",
	"openf1_catalog_cache_size":        "openf1.catalog_cache_size",
	"openf1_catalog_cache_ttl":         "openf1.catalog_cache_ttl",

	// Replay engine
	"replay_tick_period":        "replay.tick_period",
	"replay_block_duration":     "replay.block_duration",
	"replay_lead_ceiling":       "replay.lead_ceiling",
	"replay_fetch_delay":        "replay.fetch_delay",
	"replay_gap_delay":          "replay.gap_delay",
	"replay_rate_limit_backoff": "replay.rate_limit_backoff",
	"replay_error_backoff":      "replay.error_backoff",
	"replay_cooldown_delay":     "replay.cooldown_delay",
	"replay_track_window":       "replay.track_window",
	"replay_max_buffer_size":    "replay.max_buffer_size",

	// Store
	"store_path":        "store.path",
	"store_in_memory":   "store.in_memory",
	"store_gc_interval": "store.gc_interval",

	// Security
	"jwt_secret":          "security.jwt_secret",
	"token_ttl":           "security.token_ttl",
	"cors_origins":        "security.cors_origins",
	"rate_limit_requests": "security.rate_limit_reqs",
	"rate_limit_window":   "security.rate_limit_window",
	"disable_rate_limit":  "security.rate_limit_disabled",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// defaultConfig returns the built-in defaults. The replay constants match
// the observed cadence of the OpenF1 location feed (one sample every ~270ms).
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        3000,
			Host:        "0.0.0.0",
			Timeout:     30 * time.Second,
			Environment: "development",
		},
		OpenF1: OpenF1Config{
			BaseURL:                 "https://api.openf1.org",
			Timeout:                 10 * time.Second,
			RequestsPerSecond:       3,
			Burst:                   3,
			BreakerFailureThreshold: 5,
			BreakerMaxRequests:      1,
			BreakerInterval:         time.Minute,
			BreakerTimeout:          30 * time.Second,
			CatalogCacheSize:        256,
			CatalogCacheTTL:         10 * time.Minute,
		},
		Replay: ReplayConfig{
			TickPeriod:       270 * time.Millisecond,
			BlockDuration:    4 * time.Second,
			LeadCeiling:      15 * time.Second,
			FetchDelay:       time.Second,
			GapDelay:         100 * time.Millisecond,
			RateLimitBackoff: 5 * time.Second,
			ErrorBackoff:     2 * time.Second,
			CooldownDelay:    time.Second,
			TrackWindow:      30 * time.Minute,
			MaxBufferSize:    4096,
		},
		Store: StoreConfig{
			Path:       "/data/pitwall",
			InMemory:   false,
			GCInterval: 10 * time.Minute,
		},
		Security: SecurityConfig{
			TokenTTL:        24 * time.Hour,
			CORSOrigins:     []string{"http://localhost:5173"},
			RateLimitReqs:   300,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadWithKoanf loads defaults, then the config file, then env vars, and
// validates the result.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns CONFIG_PATH if it exists, else the first existing
// default path, else "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
