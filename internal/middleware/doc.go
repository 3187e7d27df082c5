// Tourtracker - Tour Progress Tracking Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourtracker

/*
Package middleware provides HTTP middleware shared by the API router.

Key Components:

  - Compression: gzip responses when the client advertises support
  - Request ID: UUID-based request tracking for log correlation
  - Prometheus Metrics: per-route request counters and latency histograms

Every middleware has the chi signature func(http.Handler) http.Handler and
is mounted with r.Use:

	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)
	r.With(middleware.Compression).Get("/tour/{steam64}.csv", h.PlayerCSV)

Prometheus labels use the chi route pattern, never the raw URL path, so
per-participant URLs do not create new series.
*/
package middleware
