// Tourtracker - Tour Progress Tracking Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourtracker

package legacy

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/tourtracker/internal/logging"
	"github.com/tomtom215/tourtracker/internal/tour"
	"github.com/tomtom215/tourtracker/internal/wal"
)

// Sink receives imported records. Implemented by wal.BadgerWAL.
type Sink interface {
	AppendCredits(ctx context.Context, events []tour.Event) error
	AppendGrant(ctx context.Context, g wal.Grant) error
}

// Options configures an import.
type Options struct {
	// BatchSize is the number of credits appended per call.
	BatchSize int
	// AfterRowID resumes an interrupted import.
	AfterRowID int64
	// DryRun reads and validates without writing.
	DryRun bool
	// SkipMedals leaves MedalOwners out of the import.
	SkipMedals bool
}

// Stats summarizes an import.
type Stats struct {
	TotalRecords    int64     `json:"total_records"`
	Imported        int64     `json:"imported"`
	Invalid         int64     `json:"invalid"`
	BadIDs          int64     `json:"bad_ids"`
	Medals          int64     `json:"medals"`
	LastProcessedID int64     `json:"last_processed_id"`
	DryRun          bool      `json:"dry_run"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
}

// Duration returns the length of the import.
func (s *Stats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// Import copies the legacy database into sink. Credits outside catalog are
// counted and skipped. The import is not transactional: on error, Stats
// holds the last appended rowid so the caller can resume with AfterRowID.
func Import(ctx context.Context, r *Reader, sink Sink, catalog *tour.Catalog, opts Options) (*Stats, error) {
	if opts.BatchSize < 1 {
		opts.BatchSize = 1000
	}
	stats := &Stats{
		StartTime:       time.Now(),
		DryRun:          opts.DryRun,
		LastProcessedID: opts.AfterRowID,
	}
	defer func() { stats.EndTime = time.Now() }()

	total, err := r.CountCredits(ctx)
	if err != nil {
		return stats, err
	}
	stats.TotalRecords = total

	batch := make([]tour.Event, 0, opts.BatchSize)
	var batchLastID int64
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if !opts.DryRun {
			if err := sink.AppendCredits(ctx, batch); err != nil {
				return fmt.Errorf("append credits up to row %d: %w", batchLastID, err)
			}
		}
		stats.Imported += int64(len(batch))
		stats.LastProcessedID = batchLastID
		batch = batch[:0]
		return nil
	}

	err = r.Credits(ctx, opts.AfterRowID, func(rowID int64, ev tour.Event) error {
		if err := catalog.Validate(ev); err != nil {
			stats.Invalid++
			logging.Debug().Err(err).Int64("row", rowID).Msg("Skipping legacy credit")
			return nil
		}
		batch = append(batch, ev)
		batchLastID = rowID
		if len(batch) >= opts.BatchSize {
			return flush()
		}
		return nil
	}, func(rowID int64, raw string) {
		stats.BadIDs++
		logging.Debug().Int64("row", rowID).Str("steam64", raw).Msg("Skipping legacy credit with invalid ID")
	})
	if err != nil {
		return stats, err
	}
	if err := flush(); err != nil {
		return stats, err
	}

	if !opts.SkipMedals {
		medals, err := r.Medals(ctx)
		if err != nil {
			return stats, err
		}
		for _, m := range medals {
			if !opts.DryRun {
				g := wal.Grant{Participant: m.Participant, GrantedAt: time.Unix(m.Timestamp, 0).UTC()}
				if err := sink.AppendGrant(ctx, g); err != nil {
					return stats, fmt.Errorf("append grant: %w", err)
				}
			}
			stats.Medals++
		}
	}

	logging.Info().
		Int64("total", stats.TotalRecords).
		Int64("imported", stats.Imported).
		Int64("invalid", stats.Invalid).
		Int64("bad_ids", stats.BadIDs).
		Int64("medals", stats.Medals).
		Bool("dry_run", stats.DryRun).
		Dur("duration", stats.Duration()).
		Msg("Legacy import completed")
	return stats, nil
}
