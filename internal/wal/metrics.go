// Tourtracker - Tour Progress Tracking Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourtracker

package wal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for durable log operations
var (
	// walCreditsWritten counts credit records persisted.
	walCreditsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wal_credits_written_total",
		Help: "Total number of wave credit records written to the durable log",
	})

	// walGrantsWritten counts reward grant records persisted.
	walGrantsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wal_grants_written_total",
		Help: "Total number of reward grant records written to the durable log",
	})

	// walWriteFailures counts failed write transactions.
	walWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wal_write_failures_total",
		Help: "Total number of failed durable log write transactions",
	})

	// walWriteLatency measures batch write latency.
	walWriteLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "wal_write_latency_seconds",
		Help:    "Durable log batch write latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// walReplayedRecords counts records read back at startup.
	walReplayedRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wal_replayed_records_total",
		Help: "Total number of records replayed from the durable log",
	}, []string{"kind"})

	// walDBSizeBytes is the current BadgerDB database size.
	walDBSizeBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wal_db_size_bytes",
		Help: "BadgerDB database size in bytes",
	})

	// walGCRuns counts value-log GC runs.
	walGCRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wal_gc_runs_total",
		Help: "Total number of value-log GC runs",
	})

	// walGCLatency measures value-log GC latency.
	walGCLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "wal_gc_latency_seconds",
		Help:    "Value-log GC latency in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

// RecordCreditsWritten increments the credits written counter.
func RecordCreditsWritten(n int) {
	walCreditsWritten.Add(float64(n))
}

// RecordGrantWritten increments the grants written counter.
func RecordGrantWritten() {
	walGrantsWritten.Inc()
}

// RecordWriteFailure increments the write failure counter.
func RecordWriteFailure() {
	walWriteFailures.Inc()
}

// RecordWriteLatency records a batch write latency.
func RecordWriteLatency(seconds float64) {
	walWriteLatency.Observe(seconds)
}

// RecordReplayed adds n replayed records of the given kind ("credit" or "grant").
func RecordReplayed(kind string, n int) {
	walReplayedRecords.WithLabelValues(kind).Add(float64(n))
}

// UpdateDBSize sets the database size gauge.
func UpdateDBSize(bytes int64) {
	walDBSizeBytes.Set(float64(bytes))
}

// RecordGCRun records one GC run and its latency.
func RecordGCRun(seconds float64) {
	walGCRuns.Inc()
	walGCLatency.Observe(seconds)
}
