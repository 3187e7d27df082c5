// Tourtracker - Tour Progress Tracking Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourtracker

package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ingest_queue_depth",
		Help: "Number of credits waiting for the writer",
	})

	queueEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_enqueued_total",
		Help: "Total number of credits accepted into the ingest queue",
	})

	queueRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_rejected_total",
		Help: "Total number of credits rejected because the queue was full",
	})

	batchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ingest_batch_size",
		Help:    "Number of credits processed per drain cycle",
		Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000},
	})

	batchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ingest_batch_duration_seconds",
		Help:    "Time to append, apply and evaluate one batch",
		Buckets: prometheus.DefBuckets,
	})

	appendFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_append_failures_total",
		Help: "Total number of batches that failed to reach the durable log",
	})

	creditsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_credits_applied_total",
		Help: "Credits applied to the progress index by result",
	}, []string{"result"})
)
