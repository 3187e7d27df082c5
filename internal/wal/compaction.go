// Tourtracker - Tour Progress Tracking Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourtracker

package wal

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/tourtracker/internal/logging"
)

// Compactor periodically runs value-log GC and refreshes the size gauge.
// The credit log itself is never truncated.
type Compactor struct {
	wal      *BadgerWAL
	interval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
	lastRun time.Time
}

// NewCompactor creates a compactor using the log's GCInterval.
func NewCompactor(w *BadgerWAL) *Compactor {
	return &Compactor{
		wal:      w,
		interval: w.Config().GCInterval,
	}
}

// Start begins the background GC loop.
func (c *Compactor) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.running = true
	c.mu.Unlock()

	c.wg.Add(1)
	go c.run()

	logging.Info().Dur("interval", c.interval).Msg("Durable log compactor started")
	return nil
}

// Stop stops the GC loop and waits for it to exit.
func (c *Compactor) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.cancel()
	c.running = false
	c.mu.Unlock()

	c.wg.Wait()
	logging.Info().Msg("Durable log compactor stopped")
}

// IsRunning returns whether the compactor is active.
func (c *Compactor) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// RunNow performs one GC pass synchronously.
func (c *Compactor) RunNow() error {
	return c.compact()
}

// LastRun returns the time of the last completed pass.
func (c *Compactor) LastRun() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRun
}

func (c *Compactor) run() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if err := c.compact(); err != nil {
				logging.Error().Err(err).Msg("Durable log GC failed")
			}
		}
	}
}

func (c *Compactor) compact() error {
	start := time.Now()
	if err := c.wal.RunGC(); err != nil {
		return err
	}
	stats := c.wal.Stats()

	c.mu.Lock()
	c.lastRun = time.Now()
	c.mu.Unlock()

	logging.Debug().
		Dur("duration", time.Since(start)).
		Int64("db_size_bytes", stats.DBSizeBytes).
		Int64("credits", stats.Credits).
		Msg("Durable log GC completed")
	return nil
}
