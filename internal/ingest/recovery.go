// Tourtracker - Tour Progress Tracking Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourtracker

package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/tourtracker/internal/logging"
	"github.com/tomtom215/tourtracker/internal/progress"
	"github.com/tomtom215/tourtracker/internal/tour"
	"github.com/tomtom215/tourtracker/internal/wal"
)

// Replayer reads the durable log back. Implemented by wal.BadgerWAL.
type Replayer interface {
	Replay(ctx context.Context, fn func(seq uint64, ev tour.Event) error) error
	ReplayGrants(ctx context.Context, fn func(g wal.Grant) error) error
}

// RecoveryResult summarizes a startup replay.
type RecoveryResult struct {
	Credits    int
	NewCredits int
	Skipped    int
	Grants     int
	Duration   time.Duration
}

// Recover rebuilds the index and the ledger from the durable log. It must
// run before the worker starts. Events are applied in insertion order and
// with the same idempotent ApplyEvent as online processing, so the rebuilt
// index equals the one built incrementally. Credits that no longer fit the
// catalog are skipped and counted. Observers see every replayed credit, as
// they would have during online processing.
func Recover(ctx context.Context, log Replayer, index *progress.Index, ledger *progress.Ledger, observers ...Observer) (RecoveryResult, error) {
	start := time.Now()
	var res RecoveryResult

	err := log.Replay(ctx, func(_ uint64, ev tour.Event) error {
		res.Credits++
		added, err := index.ApplyEvent(ev)
		if err != nil {
			res.Skipped++
			return nil
		}
		for _, o := range observers {
			o.Observe(ev, added)
		}
		if added {
			res.NewCredits++
		}
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("replay credits: %w", err)
	}

	if ledger != nil {
		err = log.ReplayGrants(ctx, func(g wal.Grant) error {
			if ledger.Add(g.Participant, g.GrantedAt) {
				res.Grants++
			}
			return nil
		})
		if err != nil {
			return res, fmt.Errorf("replay grants: %w", err)
		}
	}

	res.Duration = time.Since(start)
	e := logging.Info()
	if res.Skipped > 0 {
		e = logging.Warn()
	}
	e.Int("credits", res.Credits).
		Int("unique_credits", res.NewCredits).
		Int("skipped", res.Skipped).
		Int("grants", res.Grants).
		Int("participants", index.Len()).
		Dur("duration", res.Duration).
		Msg("Progress index rebuilt from durable log")
	return res, nil
}
