// Tourtracker - Tour Progress Tracking Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourtracker

// Package legacy imports the SQLite database of the previous tour server
// into the durable log.
//
// The legacy schema has two tables:
//
//	WaveCredits (Steam64 Text, TimeStamp Int, MissionIndex Int, WaveNumber Int)
//	MedalOwners (Steam64 Text, TimeStamp Int)
//
// Steam64 is stored as text. Credits are read in rowid order, which is the
// order they were accepted.
package legacy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver (pure Go)

	"github.com/tomtom215/tourtracker/internal/tour"
)

const driverName = "sqlite"

// ErrMissingTable is returned when the database has no WaveCredits table.
var ErrMissingTable = errors.New("WaveCredits table not found")

// Medal is a row of MedalOwners.
type Medal struct {
	Participant uint64
	Timestamp   int64
}

// Reader reads a legacy tour database.
type Reader struct {
	db     *sql.DB
	path   string
	medals bool
}

// Open opens path read-only and checks that the credit table exists.
func Open(ctx context.Context, path string) (*Reader, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	db, err := sql.Open(driverName, "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	r := &Reader{db: db, path: path}

	credits, err := r.hasTable(ctx, "WaveCredits")
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if !credits {
		_ = db.Close()
		return nil, ErrMissingTable
	}
	if r.medals, err = r.hasTable(ctx, "MedalOwners"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Reader) hasTable(ctx context.Context, name string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check table %s: %w", name, err)
	}
	return n > 0, nil
}

// Close closes the database.
func (r *Reader) Close() error {
	return r.db.Close()
}

// HasMedals reports whether the database has a MedalOwners table.
func (r *Reader) HasMedals() bool { return r.medals }

// CountCredits returns the number of WaveCredits rows.
func (r *Reader) CountCredits(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM WaveCredits").Scan(&n); err != nil {
		return 0, fmt.Errorf("count credits: %w", err)
	}
	return n, nil
}

// Credits calls fn for every WaveCredits row after afterRowID, in rowid
// order. Rows whose Steam64 is not a decimal ID are passed to bad instead;
// bad may be nil.
func (r *Reader) Credits(ctx context.Context, afterRowID int64, fn func(rowID int64, ev tour.Event) error, bad func(rowID int64, raw string)) error {
	rows, err := r.db.QueryContext(ctx,
		"SELECT rowid, Steam64, TimeStamp, MissionIndex, WaveNumber FROM WaveCredits WHERE rowid > ? ORDER BY rowid",
		afterRowID)
	if err != nil {
		return fmt.Errorf("query credits: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			rowID int64
			raw   string
			ev    tour.Event
		)
		if err := rows.Scan(&rowID, &raw, &ev.Timestamp, &ev.Mission, &ev.Wave); err != nil {
			return fmt.Errorf("scan credit: %w", err)
		}
		id, ok := parseSteam64(raw)
		if !ok {
			if bad != nil {
				bad(rowID, raw)
			}
			continue
		}
		ev.Participant = id
		if err := fn(rowID, ev); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Medals returns every MedalOwners row in rowid order. It returns nil when
// the table does not exist. Rows with an invalid Steam64 are dropped.
func (r *Reader) Medals(ctx context.Context) ([]Medal, error) {
	if !r.medals {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, "SELECT Steam64, TimeStamp FROM MedalOwners ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("query medals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var medals []Medal
	for rows.Next() {
		var (
			raw string
			ts  sql.NullInt64
		)
		if err := rows.Scan(&raw, &ts); err != nil {
			return nil, fmt.Errorf("scan medal: %w", err)
		}
		id, ok := parseSteam64(raw)
		if !ok {
			continue
		}
		medals = append(medals, Medal{Participant: id, Timestamp: ts.Int64})
	}
	return medals, rows.Err()
}

func parseSteam64(s string) (uint64, bool) {
	id, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}
