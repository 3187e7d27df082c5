// Tourtracker - Tour Progress Tracking Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourtracker

// Package progress holds the in-memory progress index and the reward ledger.
//
// The index is mutated only by the ingest worker. Readers (HTTP handlers,
// the statistics rebuilder) take the read lock and receive copies, so they
// never observe a half-applied event.
package progress

import (
	"math/bits"
	"sync"
	"sync/atomic"

	"github.com/tomtom215/tourtracker/internal/tour"
)

// Record is one participant's progress. Flags[m] is the bitflag of mission
// m; Timestamps[m][w-1] holds the time wave w was first credited and is
// only meaningful when bit w of Flags[m] is set.
type Record struct {
	Flags      []uint64
	Timestamps [][]int64
}

func newRecord(c *tour.Catalog) *Record {
	r := &Record{
		Flags:      make([]uint64, c.Len()),
		Timestamps: make([][]int64, c.Len()),
	}
	for m := range r.Timestamps {
		r.Timestamps[m] = make([]int64, c.Waves(m))
	}
	return r
}

func (r *Record) clone() Record {
	out := Record{
		Flags:      make([]uint64, len(r.Flags)),
		Timestamps: make([][]int64, len(r.Timestamps)),
	}
	copy(out.Flags, r.Flags)
	for m, ts := range r.Timestamps {
		out.Timestamps[m] = make([]int64, len(ts))
		copy(out.Timestamps[m], ts)
	}
	return out
}

// Has reports whether wave w of mission m is credited.
func (r *Record) Has(m, w int) bool {
	if m < 0 || m >= len(r.Flags) || w < 1 || w > 63 {
		return false
	}
	return r.Flags[m]&(1<<uint(w)) != 0
}

// Credits counts the wave credits in the record.
func (r *Record) Credits() int {
	n := 0
	for _, f := range r.Flags {
		n += bits.OnesCount64(f)
	}
	return n
}

// Stats summarizes the index.
type Stats struct {
	Participants int
	Credits      int
	Applied      uint64
	Duplicates   uint64
}

// Index maps participant IDs to progress records.
type Index struct {
	catalog *tour.Catalog

	mu      sync.RWMutex
	records map[uint64]*Record
	credits int

	applied    atomic.Uint64
	duplicates atomic.Uint64
	version    atomic.Uint64
}

// NewIndex creates an empty index shaped by the catalog.
func NewIndex(c *tour.Catalog) *Index {
	return &Index{
		catalog: c,
		records: make(map[uint64]*Record),
	}
}

// Catalog returns the catalog the index was built for.
func (x *Index) Catalog() *tour.Catalog { return x.catalog }

// ApplyEvent credits (mission, wave) for the participant if it is not
// already credited and reports whether a new bit was set. Applying an
// event twice, or applying events in any order, yields the same flags; the
// first applied timestamp for a wave is kept.
//
// Must only be called from the single writer.
func (x *Index) ApplyEvent(ev tour.Event) (bool, error) {
	if err := x.catalog.Validate(ev); err != nil {
		return false, err
	}

	x.mu.Lock()
	rec, ok := x.records[ev.Participant]
	if !ok {
		rec = newRecord(x.catalog)
		x.records[ev.Participant] = rec
	}
	bit := ev.Bit()
	if rec.Flags[ev.Mission]&bit != 0 {
		x.mu.Unlock()
		x.duplicates.Add(1)
		return false, nil
	}
	rec.Flags[ev.Mission] |= bit
	rec.Timestamps[ev.Mission][ev.Wave-1] = ev.Timestamp
	x.credits++
	participants := len(x.records)
	x.mu.Unlock()

	x.applied.Add(1)
	x.version.Add(1)
	participantsGauge.Set(float64(participants))
	creditsGauge.Inc()
	return true, nil
}

// Get returns a copy of the participant's record.
func (x *Index) Get(id uint64) (Record, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	rec, ok := x.records[id]
	if !ok {
		return Record{}, false
	}
	return rec.clone(), true
}

// Flags returns a copy of the participant's per-mission flags, or nil if
// the participant is unknown.
func (x *Index) Flags(id uint64) []uint64 {
	x.mu.RLock()
	defer x.mu.RUnlock()
	rec, ok := x.records[id]
	if !ok {
		return nil
	}
	out := make([]uint64, len(rec.Flags))
	copy(out, rec.Flags)
	return out
}

// MissionFlags returns the flags of a single mission (0 if unknown).
func (x *Index) MissionFlags(id uint64, mission int) uint64 {
	x.mu.RLock()
	defer x.mu.RUnlock()
	rec, ok := x.records[id]
	if !ok || mission < 0 || mission >= len(rec.Flags) {
		return 0
	}
	return rec.Flags[mission]
}

// HasCredit reports whether the event's wave is already credited.
func (x *Index) HasCredit(ev tour.Event) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	rec, ok := x.records[ev.Participant]
	if !ok {
		return false
	}
	return rec.Has(ev.Mission, ev.Wave)
}

// IsComplete reports whether the participant matches the completed-reference
// pattern for every mission.
func (x *Index) IsComplete(id uint64) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	rec, ok := x.records[id]
	if !ok {
		return false
	}
	return x.catalog.IsComplete(rec.Flags)
}

// Completed returns the IDs of every participant who completed the tour.
func (x *Index) Completed() []uint64 {
	x.mu.RLock()
	defer x.mu.RUnlock()
	var out []uint64
	for id, rec := range x.records {
		if x.catalog.IsComplete(rec.Flags) {
			out = append(out, id)
		}
	}
	return out
}

// Range calls fn for each participant under the read lock. fn must not
// retain or modify rec and must not call back into the index.
func (x *Index) Range(fn func(id uint64, rec *Record) bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	for id, rec := range x.records {
		if !fn(id, rec) {
			return
		}
	}
}

// Len returns the number of participants.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.records)
}

// Version increases every time a new bit is set. Caches derived from the
// index compare it to decide whether to rebuild.
func (x *Index) Version() uint64 {
	return x.version.Load()
}

// Stats returns index counters.
func (x *Index) Stats() Stats {
	x.mu.RLock()
	participants, credits := len(x.records), x.credits
	x.mu.RUnlock()
	return Stats{
		Participants: participants,
		Credits:      credits,
		Applied:      x.applied.Load(),
		Duplicates:   x.duplicates.Load(),
	}
}
