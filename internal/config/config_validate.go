// Tourtracker - Tour Progress Tracking Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourtracker

package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/tomtom215/tourtracker/internal/tour"
)

// Validate checks that required configuration is present and valid
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateIngest(); err != nil {
		return err
	}
	if err := c.validateTour(); err != nil {
		return err
	}
	if err := c.validateReward(); err != nil {
		return err
	}
	if err := c.Log.Validate(); err != nil {
		return err
	}
	if err := c.validateStats(); err != nil {
		return err
	}
	if err := c.validateSecurity(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.MaxBodyBytes < 64 {
		return fmt.Errorf("HTTP_MAX_BODY_BYTES must be at least 64, got %d", c.Server.MaxBodyBytes)
	}
	return nil
}

func (c *Config) validateIngest() error {
	if c.Ingest.DrainInterval <= 0 {
		return fmt.Errorf("INGEST_DRAIN_INTERVAL must be positive")
	}
	if c.Ingest.QueueLimit < 0 {
		return fmt.Errorf("INGEST_QUEUE_LIMIT must not be negative, got %d", c.Ingest.QueueLimit)
	}
	return nil
}

func (c *Config) validateTour() error {
	if c.Tour.APIKey == "" {
		return fmt.Errorf("TOUR_API_KEY is required")
	}
	if len(c.Tour.Missions) == 0 {
		return fmt.Errorf("tour.missions or TOUR_CATALOG_CSV is required")
	}
	if _, err := tour.NewCatalog(c.Tour.Missions); err != nil {
		return fmt.Errorf("tour.missions is invalid: %w", err)
	}
	return nil
}

func (c *Config) validateReward() error {
	r := c.Reward
	if !r.Enabled {
		return nil
	}
	if !r.DryRun {
		if r.APIKey == "" {
			return fmt.Errorf("STEAM_API_KEY is required when REWARD_ENABLED=true")
		}
		if r.PromoID == "" {
			return fmt.Errorf("REWARD_PROMO_ID is required when REWARD_ENABLED=true")
		}
	}
	if r.URL != "" {
		if err := validateHTTPURL(r.URL, "REWARD_URL"); err != nil {
			return err
		}
	}
	if r.SweepRate < 0 {
		return fmt.Errorf("REWARD_SWEEP_RATE must not be negative")
	}
	if r.BreakerFailureRatio <= 0 || r.BreakerFailureRatio > 1 {
		return fmt.Errorf("REWARD_BREAKER_FAILURE_RATIO must be in (0, 1], got %v", r.BreakerFailureRatio)
	}
	return nil
}

func (c *Config) validateStats() error {
	if _, err := c.Stats.Location(); err != nil {
		return fmt.Errorf("STATS_TIMEZONE is invalid: %w", err)
	}
	return nil
}

func (c *Config) validateSecurity() error {
	for _, proxy := range c.Security.TrustedProxies {
		if net.ParseIP(proxy) == nil {
			return fmt.Errorf("TRUSTED_PROXIES entry %q is not an IP address", proxy)
		}
	}
	if c.Security.RateLimitDisabled {
		return nil
	}
	if c.Security.RateLimitReqs < 1 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be positive, got %d", c.Security.RateLimitReqs)
	}
	if c.Security.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of trace, debug, info, warn, error, got %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

// validateHTTPURL checks that rawURL is an absolute http(s) URL.
func validateHTTPURL(rawURL, fieldName string) error {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%s failed to parse URL: %w", fieldName, err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("%s scheme must be http or https, got: %s", fieldName, parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("%s host is required", fieldName)
	}
	return nil
}
