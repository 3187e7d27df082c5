// Tourtracker - Tour Progress Tracking Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourtracker

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

	"github.com/tomtom215/tourtracker/internal/tour"
	"github.com/tomtom215/tourtracker/internal/wal"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/tourtracker/config.yaml",
	"/etc/tourtracker/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all sensible default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            27000,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    1024,
		},
		Ingest: IngestConfig{
			QueueLimit:       100000,
			DrainInterval:    time.Second,
			CycleTimeout:     30 * time.Second,
			ReportDuplicates: true,
		},
		Tour: TourConfig{},
		Reward: RewardConfig{
			Enabled:             false, // Read-only tracking unless explicitly enabled
			Timeout:             30 * time.Second,
			SweepInterval:       5 * time.Minute,
			SweepRate:           1,
			SweepBurst:          5,
			LedgerRetries:       3,
			BreakerTimeout:      2 * time.Minute,
			BreakerMinRequests:  5,
			BreakerFailureRatio: 0.6,
		},
		Log: wal.DefaultConfig(),
		Stats: StatsConfig{
			Enabled:         true,
			RebuildInterval: time.Minute,
			ServerFreshness: 60 * time.Second,
		},
		Security: SecurityConfig{
			RateLimitReqs:   60,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
			TrustedProxies:  []string{},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults: Built-in sensible defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any setting
//
// A legacy catalog CSV named by tour.catalog_csv is read after unmarshaling
// and before validation.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
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

	if err := cfg.Tour.loadCatalogCSV(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadCatalogCSV fills Missions and APIKey from CatalogCSV when they are
// not configured directly.
func (t *TourConfig) loadCatalogCSV() error {
	if t.CatalogCSV == "" {
		return nil
	}
	f, err := os.Open(t.CatalogCSV)
	if err != nil {
		return fmt.Errorf("failed to open catalog csv: %w", err)
	}
	defer func() { _ = f.Close() }()

	parsed, err := tour.ParseCSV(f)
	if err != nil {
		return fmt.Errorf("failed to parse catalog csv %s: %w", t.CatalogCSV, err)
	}
	if len(t.Missions) == 0 {
		t.Missions = parsed.Missions
	}
	if t.APIKey == "" {
		t.APIKey = parsed.APIKey
	}
	return nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
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

// sliceConfigPaths defines which config paths should be parsed as comma-separated slices
var sliceConfigPaths = []string{
	"security.cors_origins",
	"security.trusted_proxies",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
// This is necessary because env vars come in as strings, but the config expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envMappings maps environment variable names (lowercased) to koanf paths.
var envMappings = map[string]string{
	// Server
	"http_host":             "server.host",
	"http_port":             "server.port",
	"http_read_timeout":     "server.read_timeout",
	"http_write_timeout":    "server.write_timeout",
	"http_shutdown_timeout": "server.shutdown_timeout",
	"http_max_body_bytes":   "server.max_body_bytes",

	// Ingest
	"ingest_queue_limit":       "ingest.queue_limit",
	"ingest_drain_interval":    "ingest.drain_interval",
	"ingest_cycle_timeout":     "ingest.cycle_timeout",
	"ingest_report_duplicates": "ingest.report_duplicates",

	// Tour
	"tour_api_key":     "tour.api_key",
	"tour_catalog_csv": "tour.catalog_csv",

	// Reward
	"reward_enabled":               "reward.enabled",
	"reward_dry_run":               "reward.dry_run",
	"steam_api_key":                "reward.api_key",
	"reward_promo_id":              "reward.promo_id",
	"reward_url":                   "reward.url",
	"reward_timeout":               "reward.timeout",
	"reward_recipients_path":       "reward.recipients_path",
	"reward_sweep_interval":        "reward.sweep_interval",
	"reward_sweep_rate":            "reward.sweep_rate",
	"reward_sweep_burst":           "reward.sweep_burst",
	"reward_ledger_retries":        "reward.ledger_retries",
	"reward_breaker_timeout":       "reward.breaker_timeout",
	"reward_breaker_min_requests":  "reward.breaker_min_requests",
	"reward_breaker_failure_ratio": "reward.breaker_failure_ratio",

	// Durable log
	"tourlog_path":           "log.path",
	"tourlog_sync_writes":    "log.sync_writes",
	"tourlog_batch_size":     "log.batch_size",
	"tourlog_gc_interval":    "log.gc_interval",
	"tourlog_gc_ratio":       "log.gc_ratio",
	"tourlog_memtable_size":  "log.memtable_size",
	"tourlog_vlog_size":      "log.vlog_size",
	"tourlog_num_compactors": "log.num_compactors",
	"tourlog_compression":    "log.compression",
	"tourlog_close_timeout":  "log.close_timeout",

	// Stats
	"stats_enabled":          "stats.enabled",
	"stats_rebuild_interval": "stats.rebuild_interval",
	"stats_timezone":         "stats.timezone",
	"stats_server_freshness": "stats.server_freshness",

	// Security
	"rate_limit_requests": "security.rate_limit_reqs",
	"rate_limit_window":   "security.rate_limit_window",
	"disable_rate_limit":  "security.rate_limit_disabled",
	"cors_origins":        "security.cors_origins",
	"trusted_proxies":     "security.trusted_proxies",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - HTTP_PORT -> server.port
//   - TOUR_API_KEY -> tour.api_key
//   - STEAM_API_KEY -> reward.api_key
//   - TOURLOG_PATH -> log.path
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	// For unmapped keys, return empty string to skip them
	return ""
}
