// Tourtracker - Tour Progress Tracking Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourtracker

package api

import (
	"crypto/subtle"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/tomtom215/tourtracker/internal/ingest"
	"github.com/tomtom215/tourtracker/internal/logging"
	"github.com/tomtom215/tourtracker/internal/metrics"
	"github.com/tomtom215/tourtracker/internal/progress"
	"github.com/tomtom215/tourtracker/internal/query"
	"github.com/tomtom215/tourtracker/internal/reward"
	"github.com/tomtom215/tourtracker/internal/stats"
	"github.com/tomtom215/tourtracker/internal/tour"
	"github.com/tomtom215/tourtracker/internal/wal"
)

// Enqueuer accepts events for the ingest worker.
type Enqueuer interface {
	Enqueue(ev tour.Event) error
	Stats() ingest.QueueStats
}

// SnapshotSource provides the cached global statistics.
type SnapshotSource interface {
	Current() *stats.Snapshot
}

// LogStatter reports durable log statistics.
type LogStatter interface {
	Stats() wal.Stats
}

// RewardStatter reports reward evaluator statistics.
type RewardStatter interface {
	Stats() reward.Stats
}

// Deps are the components a Handler reads from. Stats, Board, Log and
// Rewards are optional; their endpoints answer 503 when nil.
type Deps struct {
	Index   *progress.Index
	Queue   Enqueuer
	Stats   SnapshotSource
	Board   *stats.ServerBoard
	Log     LogStatter
	Rewards RewardStatter

	// APIKey is the shared secret of game servers.
	APIKey string

	// ReportDuplicates answers ingest with "1"/"2" instead of an empty 200.
	ReportDuplicates bool
}

// Handler holds the HTTP handlers.
type Handler struct {
	catalog *tour.Catalog
	index   *progress.Index
	query   *query.Service
	queue   Enqueuer
	stats   SnapshotSource
	board   *stats.ServerBoard
	log     LogStatter
	rewards RewardStatter

	apiKey           []byte
	reportDuplicates bool
	security         *logging.SecurityLogger

	startTime time.Time
	ready     atomic.Bool

	// now is replaceable in tests.
	now func() time.Time
}

// NewHandler creates a Handler. It starts not ready; call SetReady once
// the index has been rebuilt from the durable log.
func NewHandler(d Deps) *Handler {
	return &Handler{
		catalog:          d.Index.Catalog(),
		index:            d.Index,
		query:            query.NewService(d.Index),
		queue:            d.Queue,
		stats:            d.Stats,
		board:            d.Board,
		log:              d.Log,
		rewards:          d.Rewards,
		apiKey:           []byte(d.APIKey),
		reportDuplicates: d.ReportDuplicates,
		security:         logging.NewSecurityLogger(),
		startTime:        time.Now(),
		now:              time.Now,
	}
}

// SetReady marks the handler ready (or not) for the readiness probe.
func (h *Handler) SetReady(ready bool) {
	h.ready.Store(ready)
}

// checkKey compares the request key with the shared secret in constant
// time. A failure is counted and logged as a security event.
func (h *Handler) checkKey(r *http.Request, endpoint, key string) bool {
	if len(h.apiKey) > 0 && subtle.ConstantTimeCompare([]byte(key), h.apiKey) == 1 {
		return true
	}
	metrics.AuthRejections.WithLabelValues(endpoint).Inc()
	h.security.LogBadKey(endpoint, clientIP(r), r.UserAgent(), key)
	return false
}

// clientIP strips the port from RemoteAddr. RealIP leaves a bare address
// when a trusted proxy forwarded the client.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
