// Tourtracker - Tour Progress Tracking Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourtracker

/*
Package config loads Tourtracker configuration.

Configuration is layered with koanf, later sources overriding earlier ones:

 1. Built-in defaults (defaultConfig)
 2. An optional YAML file (CONFIG_PATH, or config.yaml in the working
    directory, or /etc/tourtracker/config.yaml)
 3. Environment variables, mapped explicitly in envTransformFunc

The mission catalog is either listed under tour.missions or read from a
legacy catalog CSV named by tour.catalog_csv.

Example config.yaml:

	server:
	  port: 27000
	tour:
	  api_key: "change-me"
	  missions:
	    - name: Mannhattan
	      waves: 7
	    - name: Rottenburg
	      waves: 6
	reward:
	  enabled: true
	  api_key: "steam-web-api-key"
	  promo_id: "1234"
	log:
	  path: /data/tourlog

Config is immutable after LoadWithKoanf returns and safe for concurrent reads.
*/
package config

import (
	"time"

	"github.com/tomtom215/tourtracker/internal/tour"
	"github.com/tomtom215/tourtracker/internal/wal"
)

// Config is the complete service configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Ingest   IngestConfig   `koanf:"ingest"`
	Tour     TourConfig     `koanf:"tour"`
	Reward   RewardConfig   `koanf:"reward"`
	Log      wal.Config     `koanf:"log"`
	Stats    StatsConfig    `koanf:"stats"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// MaxBodyBytes caps request bodies. Game server payloads are a handful
	// of short form fields.
	MaxBodyBytes int64 `koanf:"max_body_bytes"`
}

// IngestConfig controls the credit queue and its writer.
type IngestConfig struct {
	// QueueLimit is the soft bound on queued credits; 0 disables it.
	QueueLimit int `koanf:"queue_limit"`

	// DrainInterval bounds the delay between accepting a credit and
	// making it visible to queries.
	DrainInterval time.Duration `koanf:"drain_interval"`

	// CycleTimeout bounds a single append/apply/evaluate cycle.
	CycleTimeout time.Duration `koanf:"cycle_timeout"`

	// ReportDuplicates answers "1" for an already credited wave and "2"
	// for a new one instead of an empty body.
	ReportDuplicates bool `koanf:"report_duplicates"`
}

// TourConfig describes the tour itself.
type TourConfig struct {
	// APIKey is the shared secret game servers send as "key".
	APIKey string `koanf:"api_key"`

	// CatalogCSV optionally names a legacy catalog file. Its missions are
	// used when Missions is empty, and its apikey row when APIKey is empty.
	CatalogCSV string `koanf:"catalog_csv"`

	Missions []tour.Mission `koanf:"missions"`
}

// RewardConfig configures the one-time completion reward.
//
// Environment Variables:
//   - REWARD_ENABLED: grant rewards on completion (default: false)
//   - REWARD_DRY_RUN: log instead of calling the promo API (default: false)
//   - STEAM_API_KEY: Steam Web API key used for GrantItem
//   - REWARD_PROMO_ID: promo item identifier
//   - REWARD_RECIPIENTS_PATH: file that receives one ID per granted reward
type RewardConfig struct {
	Enabled        bool          `koanf:"enabled"`
	DryRun         bool          `koanf:"dry_run"`
	APIKey         string        `koanf:"api_key"`
	PromoID        string        `koanf:"promo_id"`
	URL            string        `koanf:"url"`
	Timeout        time.Duration `koanf:"timeout"`
	RecipientsPath string        `koanf:"recipients_path"`

	// SweepInterval is the period of the pending-reward retry; 0 disables it.
	SweepInterval time.Duration `koanf:"sweep_interval"`
	SweepRate     float64       `koanf:"sweep_rate"`
	SweepBurst    int           `koanf:"sweep_burst"`
	LedgerRetries int           `koanf:"ledger_retries"`

	BreakerTimeout      time.Duration `koanf:"breaker_timeout"`
	BreakerMinRequests  uint32        `koanf:"breaker_min_requests"`
	BreakerFailureRatio float64       `koanf:"breaker_failure_ratio"`
}

// StatsConfig configures the derived reporting views.
type StatsConfig struct {
	Enabled         bool          `koanf:"enabled"`
	RebuildInterval time.Duration `koanf:"rebuild_interval"`

	// Timezone names the IANA zone used to bucket credits by day.
	// Empty means the process local zone.
	Timezone string `koanf:"timezone"`

	// ServerFreshness is how long a game server stays on the board after
	// its last report.
	ServerFreshness time.Duration `koanf:"server_freshness"`
}

// Location resolves Timezone.
func (s StatsConfig) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(s.Timezone)
}

// SecurityConfig holds request limiting settings.
type SecurityConfig struct {
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`

	// TrustedProxies are peer addresses allowed to set X-Forwarded-For and
	// X-Real-IP. Leave empty when the service is reached directly.
	TrustedProxies []string `koanf:"trusted_proxies"`
}

// LoggingConfig holds logging configuration.
//
// Environment Variables:
//   - LOG_LEVEL: trace, debug, info, warn, error (default: info)
//   - LOG_FORMAT: json, console (default: json)
//   - LOG_CALLER: true/false - include caller file:line (default: false)
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}
