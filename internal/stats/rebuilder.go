// Tourtracker - Tour Progress Tracking Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourtracker

// Package stats derives best-effort reporting views from the progress index:
// the global statistics CSV and the live server board.
package stats

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomtom215/tourtracker/internal/logging"
	"github.com/tomtom215/tourtracker/internal/metrics"
	"github.com/tomtom215/tourtracker/internal/progress"
)

// Snapshot is one rendering of the global statistics.
type Snapshot struct {
	Raw     []byte
	Gzip    []byte
	Summary Summary
	BuiltAt time.Time

	version uint64
	events  int64
}

// Rebuilder keeps the global statistics current. It compares the index
// version and the report count on every tick and rebuilds only when one of
// them moved.
type Rebuilder struct {
	index    *progress.Index
	daily    *DailyCounter
	loc      *time.Location
	interval time.Duration

	current atomic.Pointer[Snapshot]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// NewRebuilder creates a rebuilder checking for changes every interval.
func NewRebuilder(index *progress.Index, daily *DailyCounter, loc *time.Location, interval time.Duration) *Rebuilder {
	if interval <= 0 {
		interval = time.Minute
	}
	if loc == nil {
		loc = time.Local
	}
	return &Rebuilder{
		index:    index,
		daily:    daily,
		loc:      loc,
		interval: interval,
	}
}

// Current returns the latest snapshot, or nil before the first build.
func (r *Rebuilder) Current() *Snapshot {
	return r.current.Load()
}

// RebuildIfChanged renders a new snapshot when the index or the report
// count changed since the last one. It reports whether it rebuilt.
func (r *Rebuilder) RebuildIfChanged() (bool, error) {
	version := r.index.Version()
	events := r.daily.Total()
	if cur := r.current.Load(); cur != nil && cur.version == version && cur.events == events {
		return false, nil
	}

	start := time.Now()
	raw, summary, err := Build(r.index, r.daily, r.loc)
	if err != nil {
		return false, err
	}

	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	if _, err := zw.Write(raw); err != nil {
		return false, fmt.Errorf("compress global csv: %w", err)
	}
	if err := zw.Close(); err != nil {
		return false, fmt.Errorf("compress global csv: %w", err)
	}

	r.current.Store(&Snapshot{
		Raw:     raw,
		Gzip:    gz.Bytes(),
		Summary: summary,
		BuiltAt: time.Now(),
		version: version,
		events:  events,
	})
	metrics.RecordStatsRebuild(time.Since(start))

	logging.Debug().
		Int("participants", summary.Participants).
		Int("completionists", summary.Completionists).
		Int("bytes", len(raw)).
		Dur("duration", time.Since(start)).
		Msg("Global statistics rebuilt")
	return true, nil
}

// Start builds the first snapshot and launches the refresh loop.
func (r *Rebuilder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.running = true
	r.mu.Unlock()

	if _, err := r.RebuildIfChanged(); err != nil {
		logging.Error().Err(err).Msg("Initial statistics build failed")
	}

	r.wg.Add(1)
	go r.run()

	logging.Info().Dur("interval", r.interval).Msg("Statistics rebuilder started")
	return nil
}

// Stop ends the refresh loop.
func (r *Rebuilder) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.cancel()
	r.running = false
	r.mu.Unlock()

	r.wg.Wait()
	logging.Info().Msg("Statistics rebuilder stopped")
}

// IsRunning returns whether the refresh loop is active.
func (r *Rebuilder) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Rebuilder) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.RebuildIfChanged(); err != nil {
				logging.Error().Err(err).Msg("Statistics rebuild failed")
			}
		}
	}
}
