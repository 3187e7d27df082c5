// Tourtracker - Tour Progress Tracking Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourtracker

// Package wal is the durable log of accepted wave credits and reward grants,
// stored in BadgerDB.
//
// Every credit is written under a monotonically increasing sequence key so
// that Replay returns events in insertion order. The log is append-only:
// credits are never confirmed or deleted, and the in-memory progress index
// is rebuilt from it at startup.
package wal

import "time"

// Config holds durable log configuration. It is populated by the koanf
// loader in internal/config (section "log").
type Config struct {
	// Path is the directory where BadgerDB stores its files.
	// Should be on a durable filesystem (not tmpfs).
	Path string `koanf:"path"`

	// SyncWrites forces fsync after every write. Credits are only acted on
	// after they are durable, so this should stay on in production.
	SyncWrites bool `koanf:"sync_writes"`

	// BatchSize caps the number of credits committed in one transaction.
	BatchSize int `koanf:"batch_size"`

	// GCInterval is the time between value-log GC runs.
	GCInterval time.Duration `koanf:"gc_interval"`

	// GCRatio is the discard ratio for value-log garbage collection.
	GCRatio float64 `koanf:"gc_ratio"`

	// MemTableSize is the size of each memtable in bytes.
	MemTableSize int64 `koanf:"memtable_size"`

	// ValueLogFileSize is the size of each value log file in bytes.
	ValueLogFileSize int64 `koanf:"vlog_size"`

	// NumCompactors is the number of BadgerDB compaction workers.
	NumCompactors int `koanf:"num_compactors"`

	// Compression enables Snappy compression of values.
	Compression bool `koanf:"compression"`

	// CloseTimeout is the maximum time to wait for BadgerDB to close.
	CloseTimeout time.Duration `koanf:"close_timeout"`
}

// DefaultConfig returns a Config that favors durability over throughput.
func DefaultConfig() Config {
	return Config{
		Path:             "/data/tourlog",
		SyncWrites:       true,
		BatchSize:        1000,
		GCInterval:       1 * time.Hour,
		GCRatio:          0.5,
		MemTableSize:     16 * 1024 * 1024,
		ValueLogFileSize: 64 * 1024 * 1024,
		NumCompactors:    2,
		Compression:      true,
		CloseTimeout:     30 * time.Second,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Path == "" {
		return &ConfigError{Field: "Path", Message: "log path is required"}
	}
	if c.BatchSize < 1 {
		return &ConfigError{Field: "BatchSize", Message: "must be at least 1"}
	}
	if c.GCInterval < time.Minute {
		return &ConfigError{Field: "GCInterval", Message: "must be at least 1 minute"}
	}
	if c.GCRatio <= 0 || c.GCRatio >= 1 {
		return &ConfigError{Field: "GCRatio", Message: "must be between 0 and 1 (exclusive)"}
	}
	if c.MemTableSize < 1024*1024 {
		return &ConfigError{Field: "MemTableSize", Message: "must be at least 1MB"}
	}
	if c.ValueLogFileSize < 1024*1024 {
		return &ConfigError{Field: "ValueLogFileSize", Message: "must be at least 1MB"}
	}
	if c.NumCompactors < 2 {
		return &ConfigError{Field: "NumCompactors", Message: "must be at least 2 (BadgerDB requirement)"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "log config error: " + e.Field + ": " + e.Message
}
