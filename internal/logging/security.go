// Tourtracker - Tour Progress Tracking Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourtracker

package logging

import (
	"strings"

	"github.com/rs/zerolog"
)

// SecurityEvent represents a security-relevant event, such as a report
// submitted with the wrong shared secret.
type SecurityEvent struct {
	// Event is the type of event (e.g., "bad_key", "ip_banned").
	Event string
	// Endpoint is the route the request targeted.
	Endpoint string
	// IPAddress is the client's IP address.
	IPAddress string
	// UserAgent is the client's user agent (truncated).
	UserAgent string
	// Success indicates if the operation was successful.
	Success bool
	// Error is the failure reason.
	Error string
	// Details contains additional details, sanitized by key name.
	Details map[string]string
}

// SecurityLogger logs abuse signals. Secrets are never written verbatim.
type SecurityLogger struct {
	logger zerolog.Logger
}

// NewSecurityLogger creates a new security logger on top of the global logger.
func NewSecurityLogger() *SecurityLogger {
	return &SecurityLogger{
		logger: WithComponent("security"),
	}
}

// NewSecurityLoggerWithLogger creates a security logger with a custom zerolog logger.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewSecurityLoggerWithLogger(logger zerolog.Logger) *SecurityLogger {
	return &SecurityLogger{
		logger: logger.With().Str("component", "security").Logger(),
	}
}

// LogEvent logs a security event. Failed events are logged at warn level.
func (l *SecurityLogger) LogEvent(event *SecurityEvent) {
	var e *zerolog.Event
	if event.Success {
		e = l.logger.Info().Str("status", "success")
	} else {
		e = l.logger.Warn().Str("status", "failed")
	}
	e = e.Str("event", event.Event)

	if event.Endpoint != "" {
		e = e.Str("endpoint", event.Endpoint)
	}
	if event.IPAddress != "" {
		e = e.Str("ip", event.IPAddress)
	}
	if event.UserAgent != "" {
		e = e.Str("user_agent", truncateString(event.UserAgent, 100))
	}
	if event.Error != "" && !event.Success {
		e = e.Str("error", truncateString(event.Error, 200))
	}
	for k, v := range event.Details {
		e = e.Str(k, SanitizeValue(k, v))
	}

	e.Msg("")
}

// LogBadKey logs a request that carried a missing or wrong shared secret.
func (l *SecurityLogger) LogBadKey(endpoint, ip, userAgent, key string) {
	l.LogEvent(&SecurityEvent{
		Event:     "bad_key",
		Endpoint:  endpoint,
		IPAddress: ip,
		UserAgent: userAgent,
		Error:     "shared secret mismatch",
		Details: map[string]string{
			"key": key,
		},
	})
}

// LogIPBanned logs that an address was banned from submitting server reports.
func (l *SecurityLogger) LogIPBanned(ip, reason string) {
	l.LogEvent(&SecurityEvent{
		Event:     "ip_banned",
		IPAddress: ip,
		Error:     reason,
	})
}

// SanitizeToken masks a secret, showing only the first and last 2 characters.
//
//	"0123456789abcdef" -> "01...ef"
func SanitizeToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 8 {
		return "***"
	}
	return token[:2] + "..." + token[len(token)-2:]
}

// SanitizeValue sanitizes a value based on its key name.
func SanitizeValue(key, value string) string {
	switch strings.ToLower(key) {
	case "key", "api_key", "apikey", "secret", "token", "password":
		return SanitizeToken(value)
	}
	return value
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
