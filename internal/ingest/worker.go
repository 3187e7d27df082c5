// Tourtracker - Tour Progress Tracking Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourtracker

package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomtom215/tourtracker/internal/logging"
	"github.com/tomtom215/tourtracker/internal/progress"
	"github.com/tomtom215/tourtracker/internal/tour"
)

// Appender persists credits durably. Implemented by wal.BadgerWAL.
type Appender interface {
	AppendCredits(ctx context.Context, events []tour.Event) error
}

// Evaluator is the completion check run by the writer after a batch is
// applied. Implemented by reward.Evaluator.
type Evaluator interface {
	// CheckAndReward rewards the participant if they just completed the tour.
	CheckAndReward(ctx context.Context, participant uint64)
	// IsPending reports whether the participant completed the tour but
	// was not rewarded yet.
	IsPending(participant uint64) bool
	// Sweep retries pending rewards without blocking the writer. It stops
	// early when busy returns true and reports whether the pass finished.
	Sweep(ctx context.Context, busy func() bool) bool
}

// Observer is told about every persisted credit after it is applied.
// added is false for credits the participant already had. Observe runs on
// the writer goroutine and must not block.
type Observer interface {
	Observe(ev tour.Event, added bool)
}

// WorkerConfig configures the writer loop.
type WorkerConfig struct {
	// DrainInterval bounds the delay between enqueue and visibility.
	DrainInterval time.Duration
	// SweepInterval is the period of the pending-reward sweep. Zero disables it.
	SweepInterval time.Duration
	// CycleTimeout bounds one append/apply/evaluate cycle.
	CycleTimeout time.Duration
}

// DefaultWorkerConfig returns the production worker settings.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		DrainInterval: time.Second,
		SweepInterval: 5 * time.Minute,
		CycleTimeout:  30 * time.Second,
	}
}

// WorkerStats holds runtime statistics for monitoring.
type WorkerStats struct {
	Cycles         int64     `json:"cycles"`
	Appended       int64     `json:"appended"`
	NewCredits     int64     `json:"new_credits"`
	Duplicates     int64     `json:"duplicates"`
	AppendFailures int64     `json:"append_failures"`
	LastCycle      time.Time `json:"last_cycle"`
	LastError      string    `json:"last_error,omitempty"`
}

// Worker is the single writer. Only its goroutine mutates the progress
// index and calls the evaluator.
type Worker struct {
	queue *Queue
	log   Appender
	index *progress.Index
	eval  Evaluator
	obs   []Observer
	cfg   WorkerConfig

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool

	// sweeping is set while a reward sweep pass is unfinished. Owned by
	// the writer goroutine.
	sweeping bool

	cycles         atomic.Int64
	appended       atomic.Int64
	newCredits     atomic.Int64
	duplicates     atomic.Int64
	appendFailures atomic.Int64
	lastCycle      atomic.Value // time.Time
	lastError      atomic.Value // string
}

// NewWorker creates the writer. eval may be nil when no reward hook is
// configured.
func NewWorker(q *Queue, log Appender, index *progress.Index, eval Evaluator, cfg WorkerConfig) (*Worker, error) {
	if q == nil || log == nil || index == nil {
		return nil, errors.New("queue, log and index are required")
	}
	if cfg.DrainInterval <= 0 {
		return nil, fmt.Errorf("drain interval must be positive")
	}
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = 30 * time.Second
	}

	w := &Worker{
		queue: q,
		log:   log,
		index: index,
		eval:  eval,
		cfg:   cfg,
	}
	w.lastCycle.Store(time.Time{})
	w.lastError.Store("")
	return w, nil
}

// AddObserver registers o. It must be called before Start.
func (w *Worker) AddObserver(o Observer) {
	w.obs = append(w.obs, o)
}

// Start launches the writer goroutine.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.running = true
	w.mu.Unlock()

	w.wg.Add(1)
	go w.run()

	logging.Info().
		Dur("drain_interval", w.cfg.DrainInterval).
		Dur("sweep_interval", w.cfg.SweepInterval).
		Msg("Ingest worker started")
	return nil
}

// Stop ends the loop after a final drain and waits for it to exit.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.cancel()
	w.running = false
	w.mu.Unlock()

	w.wg.Wait()
	logging.Info().Msg("Ingest worker stopped")
}

// IsRunning returns whether the writer goroutine is active.
func (w *Worker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Worker) run() {
	defer w.wg.Done()

	drain := time.NewTicker(w.cfg.DrainInterval)
	defer drain.Stop()

	var sweepC <-chan time.Time
	if w.cfg.SweepInterval > 0 && w.eval != nil {
		sweep := time.NewTicker(w.cfg.SweepInterval)
		defer sweep.Stop()
		sweepC = sweep.C
	}

	for {
		select {
		case <-w.ctx.Done():
			// Flush whatever was accepted before shutdown.
			w.cycle()
			return
		case <-drain.C:
			w.cycle()
			if w.sweeping {
				w.sweep()
			}
		case <-w.queue.Signal():
			w.cycle()
		case <-sweepC:
			w.sweeping = true
			w.sweep()
		}
	}
}

// sweep advances the pending-reward pass. It yields as soon as credits are
// waiting or the worker is stopping; the drain ticker picks it up again.
func (w *Worker) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.CycleTimeout)
	defer cancel()

	done := w.eval.Sweep(ctx, func() bool {
		return w.queue.Len() > 0 || w.ctx.Err() != nil
	})
	w.sweeping = !done
}

// cycle runs ProcessOnce with a fresh context. The parent context only
// signals shutdown; it must not cut a durable append short.
func (w *Worker) cycle() {
	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.CycleTimeout)
	defer cancel()
	ctx = logging.ContextWithNewCorrelationID(ctx)

	if err := w.ProcessOnce(ctx); err != nil {
		logging.Ctx(ctx).Error().Err(err).
			Int("requeued", w.queue.Len()).
			Msg("Credits not persisted, will retry next cycle")
	}
}

// ProcessOnce drains the queue and processes the batch. If the durable
// append fails the batch is requeued and the index is left untouched.
func (w *Worker) ProcessOnce(ctx context.Context) error {
	events := w.queue.Drain()
	if len(events) == 0 {
		return nil
	}

	start := time.Now()
	w.cycles.Add(1)
	batchSize.Observe(float64(len(events)))
	defer func() {
		batchDuration.Observe(time.Since(start).Seconds())
		w.lastCycle.Store(time.Now())
	}()

	if err := w.log.AppendCredits(ctx, events); err != nil {
		w.queue.Requeue(events)
		w.appendFailures.Add(1)
		w.lastError.Store(err.Error())
		appendFailures.Inc()
		return fmt.Errorf("append %d credits: %w", len(events), err)
	}
	w.appended.Add(int64(len(events)))

	touched := make(map[uint64]struct{})
	for _, ev := range events {
		added, err := w.index.ApplyEvent(ev)
		if err != nil {
			// Validated at the boundary; only reachable if the catalog changed.
			logging.Ctx(ctx).Warn().Err(err).
				Str("steam64", ev.ParticipantString()).
				Int("mission", ev.Mission).
				Int("wave", ev.Wave).
				Msg("Skipping credit outside the mission catalog")
			creditsApplied.WithLabelValues("invalid").Inc()
			continue
		}
		for _, o := range w.obs {
			o.Observe(ev, added)
		}
		if added {
			w.newCredits.Add(1)
			creditsApplied.WithLabelValues("new").Inc()
			touched[ev.Participant] = struct{}{}
			continue
		}
		w.duplicates.Add(1)
		creditsApplied.WithLabelValues("duplicate").Inc()
		// A re-delivered credit is the natural trigger to retry a failed grant.
		if w.eval != nil && w.eval.IsPending(ev.Participant) {
			touched[ev.Participant] = struct{}{}
		}
	}

	if w.eval != nil {
		for id := range touched {
			w.eval.CheckAndReward(ctx, id)
		}
	}

	logging.Ctx(ctx).Debug().
		Int("events", len(events)).
		Int("participants", len(touched)).
		Dur("duration", time.Since(start)).
		Msg("Processed credit batch")
	return nil
}

// Stats returns worker counters.
func (w *Worker) Stats() WorkerStats {
	var lastCycle time.Time
	if t, ok := w.lastCycle.Load().(time.Time); ok {
		lastCycle = t
	}
	var lastError string
	if e, ok := w.lastError.Load().(string); ok {
		lastError = e
	}
	return WorkerStats{
		Cycles:         w.cycles.Load(),
		Appended:       w.appended.Load(),
		NewCredits:     w.newCredits.Load(),
		Duplicates:     w.duplicates.Load(),
		AppendFailures: w.appendFailures.Load(),
		LastCycle:      lastCycle,
		LastError:      lastError,
	}
}
