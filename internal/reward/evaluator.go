// Tourtracker - Tour Progress Tracking Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourtracker

// Package reward decides when a participant has completed the tour and
// grants the one-time reward.
//
// A participant is written to the reward ledger only after the hook
// confirms the grant. Participants whose grant failed stay in a pending set
// and are retried on their next credit report or by the periodic sweep.
// The sweep spends tokens from a token-bucket limiter and yields to the
// writer when they run out, so a long pending set is worked through over
// several calls.
package reward

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/tourtracker/internal/logging"
	"github.com/tomtom215/tourtracker/internal/metrics"
	"github.com/tomtom215/tourtracker/internal/progress"
	"github.com/tomtom215/tourtracker/internal/wal"
)

// GrantWriter persists ledger entries. Implemented by wal.BadgerWAL.
type GrantWriter interface {
	AppendGrant(ctx context.Context, g wal.Grant) error
}

// Recorder receives every successful grant. Implemented by RecipientsFile.
type Recorder interface {
	Record(participant uint64) error
}

// Config configures the evaluator.
type Config struct {
	// SweepRate is the number of pending participants retried per second
	// during a sweep.
	SweepRate float64
	// SweepBurst is the limiter burst.
	SweepBurst int
	// LedgerRetries is the number of attempts to persist a ledger entry
	// after a successful grant.
	LedgerRetries int
	// LedgerRetryDelay is the pause between those attempts.
	LedgerRetryDelay time.Duration
}

// DefaultConfig returns the production evaluator settings.
func DefaultConfig() Config {
	return Config{
		SweepRate:        1,
		SweepBurst:       5,
		LedgerRetries:    3,
		LedgerRetryDelay: 200 * time.Millisecond,
	}
}

// Stats summarizes evaluator state.
type Stats struct {
	Granted     int64 `json:"granted"`
	Failed      int64 `json:"failed"`
	Pending     int   `json:"pending"`
	Unpersisted int   `json:"unpersisted"`
	LedgerSize  int   `json:"ledger_size"`
	Sweeps      int64 `json:"sweeps"`
}

// Evaluator is the completion check. CheckAndReward and Sweep must only be
// called from the single ingest writer; IsPending and Stats are safe from
// any goroutine.
type Evaluator struct {
	index    *progress.Index
	ledger   *progress.Ledger
	log      GrantWriter
	hook     Hook
	recorder Recorder
	limiter  *rate.Limiter
	cfg      Config
	now      func() time.Time

	mu          sync.Mutex
	pending     map[uint64]struct{}
	unpersisted map[uint64]time.Time
	granted     int64
	failed      int64
	sweeps      int64

	// Sweep position; only touched by the writer.
	sweeping    bool
	sweepCursor uint64
}

// NewEvaluator creates an evaluator. recorder may be nil.
func NewEvaluator(index *progress.Index, ledger *progress.Ledger, log GrantWriter, hook Hook, recorder Recorder, cfg Config) (*Evaluator, error) {
	if index == nil || ledger == nil || log == nil || hook == nil {
		return nil, errors.New("index, ledger, log and hook are required")
	}
	if cfg.SweepRate <= 0 {
		cfg.SweepRate = 1
	}
	if cfg.SweepBurst < 1 {
		cfg.SweepBurst = 1
	}
	if cfg.LedgerRetries < 1 {
		cfg.LedgerRetries = 1
	}

	return &Evaluator{
		index:       index,
		ledger:      ledger,
		log:         log,
		hook:        hook,
		recorder:    recorder,
		limiter:     rate.NewLimiter(rate.Limit(cfg.SweepRate), cfg.SweepBurst),
		cfg:         cfg,
		now:         time.Now,
		pending:     make(map[uint64]struct{}),
		unpersisted: make(map[uint64]time.Time),
	}, nil
}

// CheckAndReward grants the reward if the participant completed every
// mission and is not in the ledger. A failed or unconfirmed grant leaves
// the participant pending.
func (e *Evaluator) CheckAndReward(ctx context.Context, participant uint64) {
	if e.ledger.Has(participant) {
		e.clearPending(participant)
		return
	}
	if !e.index.IsComplete(participant) {
		return
	}

	log := logging.Ctx(ctx).With().Str("steam64", formatID(participant)).Logger()

	ok, err := e.hook.Grant(ctx, participant)
	if err != nil || !ok {
		e.mu.Lock()
		e.failed++
		e.mu.Unlock()
		e.markPending(participant)
		result := "declined"
		if err != nil {
			result = "error"
		}
		metrics.RewardGrants.WithLabelValues(result).Inc()
		log.Warn().Err(err).Str("result", result).Msg("Reward grant failed, participant stays pending")
		return
	}
	metrics.RewardGrants.WithLabelValues("granted").Inc()

	grantedAt := e.now().UTC()
	e.ledger.Add(participant, grantedAt)
	e.clearPending(participant)

	e.mu.Lock()
	e.granted++
	e.mu.Unlock()

	if err := e.persist(ctx, participant, grantedAt); err != nil {
		// Keep the in-memory ledger entry so the reward is not granted a
		// second time; the sweep retries the write.
		e.mu.Lock()
		e.unpersisted[participant] = grantedAt
		e.mu.Unlock()
		metrics.RewardLedgerWriteFailures.Inc()
		log.Error().Err(err).Msg("Reward granted but ledger entry not persisted")
	}

	if e.recorder != nil {
		if err := e.recorder.Record(participant); err != nil {
			log.Warn().Err(err).Msg("Failed to append to recipients file")
		}
	}

	log.Info().Msg("Reward granted for tour completion")
}

func (e *Evaluator) persist(ctx context.Context, participant uint64, at time.Time) error {
	var err error
	for attempt := 1; attempt <= e.cfg.LedgerRetries; attempt++ {
		err = e.log.AppendGrant(ctx, wal.Grant{Participant: participant, GrantedAt: at})
		if err == nil {
			return nil
		}
		if attempt == e.cfg.LedgerRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.cfg.LedgerRetryDelay):
		}
	}
	return err
}

// Reconcile marks every completed participant missing from the ledger as
// pending. It runs once after the index is rebuilt at startup and returns
// the number of participants added.
func (e *Evaluator) Reconcile() int {
	n := 0
	for _, id := range e.index.Completed() {
		if !e.ledger.Has(id) {
			e.markPending(id)
			n++
		}
	}
	if n > 0 {
		logging.Info().Int("pending", n).Msg("Completed participants awaiting reward")
	}
	return n
}

// Sweep retries pending grants in ascending participant order. It never
// waits for the limiter: it stops when no token is left, when busy reports
// other work for the writer, or when ctx is done, and the next call resumes
// after the last participant tried. It returns true once a pass over the
// pending set is finished. Each pass first retries unpersisted ledger
// entries.
func (e *Evaluator) Sweep(ctx context.Context, busy func() bool) bool {
	e.mu.Lock()
	newPass := !e.sweeping
	if newPass {
		e.sweeping = true
		e.sweepCursor = 0
		e.sweeps++
	}
	cursor := e.sweepCursor
	var unpersisted map[uint64]time.Time
	if newPass {
		unpersisted = make(map[uint64]time.Time, len(e.unpersisted))
		for id, at := range e.unpersisted {
			unpersisted[id] = at
		}
	}
	ids := make([]uint64, 0, len(e.pending))
	for id := range e.pending {
		if id > cursor {
			ids = append(ids, id)
		}
	}
	e.mu.Unlock()

	if newPass {
		metrics.RewardSweeps.Inc()
		e.retryUnpersisted(ctx, unpersisted)
		if len(ids) > 0 {
			logging.Info().Int("pending", len(ids)).Msg("Retrying pending rewards")
		}
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if ctx.Err() != nil || (busy != nil && busy()) || !e.limiter.Allow() {
			return false
		}
		e.CheckAndReward(ctx, id)
		e.mu.Lock()
		e.sweepCursor = id
		e.mu.Unlock()
	}

	e.mu.Lock()
	e.sweeping = false
	e.mu.Unlock()
	return true
}

func (e *Evaluator) retryUnpersisted(ctx context.Context, entries map[uint64]time.Time) {
	for id, at := range entries {
		if err := e.persist(ctx, id, at); err != nil {
			logging.Error().Err(err).Str("steam64", formatID(id)).Msg("Ledger entry still not persisted")
			continue
		}
		e.mu.Lock()
		delete(e.unpersisted, id)
		e.mu.Unlock()
	}
}

// IsPending reports whether the participant awaits a successful grant.
func (e *Evaluator) IsPending(participant uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.pending[participant]
	return ok
}

// Pending returns the pending participants in ascending order.
func (e *Evaluator) Pending() []uint64 {
	e.mu.Lock()
	ids := make([]uint64, 0, len(e.pending))
	for id := range e.pending {
		ids = append(ids, id)
	}
	e.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Stats returns evaluator counters.
func (e *Evaluator) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		Granted:     e.granted,
		Failed:      e.failed,
		Pending:     len(e.pending),
		Unpersisted: len(e.unpersisted),
		LedgerSize:  e.ledger.Len(),
		Sweeps:      e.sweeps,
	}
}

func (e *Evaluator) markPending(participant uint64) {
	e.mu.Lock()
	e.pending[participant] = struct{}{}
	n := len(e.pending)
	e.mu.Unlock()
	metrics.RewardPending.Set(float64(n))
}

func (e *Evaluator) clearPending(participant uint64) {
	e.mu.Lock()
	delete(e.pending, participant)
	n := len(e.pending)
	e.mu.Unlock()
	metrics.RewardPending.Set(float64(n))
}

func formatID(id uint64) string {
	return strconv.FormatUint(id, 10)
}
