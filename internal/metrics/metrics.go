// Tourtracker - Tour Progress Tracking Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourtracker

// Package metrics holds the Prometheus collectors shared across packages:
// HTTP endpoints, rate limiting, the reward circuit breaker, reward grants
// and the statistics cache. Package-local collectors (durable log, ingest
// queue, progress index) live next to their code.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)

	// Shared-secret rejections, by endpoint
	AuthRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_auth_rejections_total",
			Help: "Total number of requests rejected for a missing or wrong key",
		},
		[]string{"endpoint"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive failures",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Reward Metrics
	RewardGrants = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reward_grants_total",
			Help: "Reward hook invocations by result",
		},
		[]string{"result"}, // result: "granted", "declined", "error"
	)

	RewardPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reward_pending_participants",
			Help: "Participants who completed the tour and await a successful grant",
		},
	)

	RewardLedgerWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reward_ledger_write_failures_total",
			Help: "Grants that succeeded but could not be written to the durable log",
		},
	)

	RewardSweeps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reward_sweeps_total",
			Help: "Total number of pending-reward sweeps",
		},
	)

	// Statistics Cache Metrics
	StatsRebuilds = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stats_rebuilds_total",
			Help: "Total number of global statistics rebuilds",
		},
	)

	StatsRebuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stats_rebuild_duration_seconds",
			Help:    "Global statistics rebuild duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ServerReports = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "server_reports_total",
			Help: "Game server status reports by result",
		},
		[]string{"result"}, // result: "accepted", "bad_key", "banned", "invalid"
	)
)

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordStatsRebuild records one statistics rebuild.
func RecordStatsRebuild(duration time.Duration) {
	StatsRebuilds.Inc()
	StatsRebuildDuration.Observe(duration.Seconds())
}
