// Tourtracker - Tour Progress Tracking Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourtracker

// Package tour defines the mission catalog and the wave-credit event that
// flows from the ingest endpoint through the durable log into the progress
// index.
//
// Progress for a mission is a bitflag where bit n means wave n was
// completed. Bit 0 is never set, so a mission with N waves is complete when
// its flags equal CompletedFlags(N) = (1<<1)|(1<<2)|...|(1<<N).
package tour

import (
	"errors"
	"fmt"
)

// MaxWaves is the largest wave count a mission may have. Bitflags are
// stored in a uint64 and bit 0 is reserved.
const MaxWaves = 63

var (
	// ErrEmptyCatalog is returned when no missions are configured.
	ErrEmptyCatalog = errors.New("mission catalog is empty")

	// ErrUnknownMission is returned for a mission index outside the catalog.
	ErrUnknownMission = errors.New("unknown mission")

	// ErrInvalidWave is returned for a wave number outside [1, waves].
	ErrInvalidWave = errors.New("invalid wave number")
)

// Mission is a single catalog entry.
type Mission struct {
	Name  string `koanf:"name"`
	Waves int    `koanf:"waves"`
}

// Catalog is the ordered, immutable list of missions in the tour.
type Catalog struct {
	missions     []Mission
	completed    []uint64
	totalCredits int
	maxWaves     int
}

// NewCatalog validates the missions and precomputes the completed-reference
// pattern. The slice is copied.
func NewCatalog(missions []Mission) (*Catalog, error) {
	if len(missions) == 0 {
		return nil, ErrEmptyCatalog
	}

	c := &Catalog{
		missions:  make([]Mission, len(missions)),
		completed: make([]uint64, len(missions)),
	}
	copy(c.missions, missions)

	for i, m := range c.missions {
		if m.Waves < 1 || m.Waves > MaxWaves {
			return nil, fmt.Errorf("mission %d (%q): wave count %d out of range 1..%d", i, m.Name, m.Waves, MaxWaves)
		}
		c.completed[i] = CompletedFlags(m.Waves)
		c.totalCredits += m.Waves
		if m.Waves > c.maxWaves {
			c.maxWaves = m.Waves
		}
	}

	return c, nil
}

// CompletedFlags returns the bitflags of a mission with every wave 1..waves set.
func CompletedFlags(waves int) uint64 {
	var flags uint64
	for w := 1; w <= waves; w++ {
		flags |= 1 << uint(w)
	}
	return flags
}

// Len returns the number of missions.
func (c *Catalog) Len() int { return len(c.missions) }

// Mission returns the mission at index i.
func (c *Catalog) Mission(i int) (Mission, bool) {
	if i < 0 || i >= len(c.missions) {
		return Mission{}, false
	}
	return c.missions[i], true
}

// Missions returns a copy of the catalog entries.
func (c *Catalog) Missions() []Mission {
	out := make([]Mission, len(c.missions))
	copy(out, c.missions)
	return out
}

// Waves returns the wave count of mission i, or 0 if i is out of range.
func (c *Catalog) Waves(i int) int {
	if i < 0 || i >= len(c.missions) {
		return 0
	}
	return c.missions[i].Waves
}

// Completed returns the completed-reference flags of mission i.
func (c *Catalog) Completed(i int) uint64 {
	if i < 0 || i >= len(c.completed) {
		return 0
	}
	return c.completed[i]
}

// CompletedPattern returns a copy of the completed-reference pattern.
func (c *Catalog) CompletedPattern() []uint64 {
	out := make([]uint64, len(c.completed))
	copy(out, c.completed)
	return out
}

// TotalCredits is the number of wave credits needed to complete the tour.
func (c *Catalog) TotalCredits() int { return c.totalCredits }

// MaxWaves is the wave count of the longest mission.
func (c *Catalog) MaxWaves() int { return c.maxWaves }

// IsComplete reports whether flags match the completed-reference pattern
// for every mission.
func (c *Catalog) IsComplete(flags []uint64) bool {
	if len(flags) != len(c.completed) {
		return false
	}
	for i, f := range flags {
		if f != c.completed[i] {
			return false
		}
	}
	return true
}

// CheckMission returns ErrUnknownMission if mission is not a catalog index.
func (c *Catalog) CheckMission(mission int) error {
	if mission < 0 || mission >= len(c.missions) {
		return fmt.Errorf("%w: %d", ErrUnknownMission, mission)
	}
	return nil
}

// Validate checks that the event addresses a real (mission, wave) pair.
func (c *Catalog) Validate(ev Event) error {
	if err := c.CheckMission(ev.Mission); err != nil {
		return err
	}
	if ev.Wave < 1 || ev.Wave > c.missions[ev.Mission].Waves {
		return fmt.Errorf("%w: mission %d has %d waves, got %d", ErrInvalidWave, ev.Mission, c.missions[ev.Mission].Waves, ev.Wave)
	}
	return nil
}
