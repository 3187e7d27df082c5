// Tourtracker - Tour Progress Tracking Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourtracker

package stats

import (
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/tourtracker/internal/tour"
)

// Day is a calendar date without a year. Statistics cover one tour, which
// never spans a year boundary in practice, so month and day are enough.
type Day struct {
	Month time.Month
	Day   int
}

// DayOf returns the calendar day of a unix timestamp in loc.
func DayOf(ts int64, loc *time.Location) Day {
	t := time.Unix(ts, 0).In(loc)
	return Day{Month: t.Month(), Day: t.Day()}
}

// Less orders days chronologically.
func (d Day) Less(o Day) bool {
	if d.Month != o.Month {
		return d.Month < o.Month
	}
	return d.Day < o.Day
}

// DailyCounter counts every credit report received per day, duplicates
// included. It is fed by the ingest worker and by startup replay.
type DailyCounter struct {
	loc *time.Location

	mu    sync.Mutex
	days  map[Day]int
	total int64
}

// NewDailyCounter creates a counter bucketing by loc. A nil loc uses time.Local.
func NewDailyCounter(loc *time.Location) *DailyCounter {
	if loc == nil {
		loc = time.Local
	}
	return &DailyCounter{loc: loc, days: make(map[Day]int)}
}

// Observe implements ingest.Observer.
func (c *DailyCounter) Observe(ev tour.Event, _ bool) {
	d := DayOf(ev.Timestamp, c.loc)
	c.mu.Lock()
	c.days[d]++
	c.total++
	c.mu.Unlock()
}

// Total returns the number of credit reports observed.
func (c *DailyCounter) Total() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// Snapshot returns a copy of the per-day counts.
func (c *DailyCounter) Snapshot() map[Day]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[Day]int, len(c.days))
	for d, n := range c.days {
		out[d] = n
	}
	return out
}

func sortedDays(m map[Day]int) []Day {
	days := make([]Day, 0, len(m))
	for d := range m {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Less(days[j]) })
	return days
}
