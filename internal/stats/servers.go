// Tourtracker - Tour Progress Tracking Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourtracker

package stats

import (
	"bytes"
	"encoding/csv"
	"sort"
	"strconv"
	"sync"
	"time"
)

// DefaultFreshness is how long a server stays on the board after its last
// report.
const DefaultFreshness = 60 * time.Second

// MaxBans caps the ban list. Past it the oldest ban is lifted.
const MaxBans = 4096

// ServerReport is the status a game server posts about itself.
type ServerReport struct {
	Number      string
	HasPassword string
	Mission     int
	Defenders   int
	Connecting  int
	Wave        int
	TotalWaves  int
	RoundState  string
	IP          string
	Port        string
	ReportedAt  time.Time
}

func (r ServerReport) row() []string {
	return []string{
		r.Number,
		r.HasPassword,
		strconv.Itoa(r.Mission),
		strconv.Itoa(r.Defenders),
		strconv.Itoa(r.Connecting),
		strconv.Itoa(r.Wave),
		strconv.Itoa(r.TotalWaves),
		r.RoundState,
		r.IP,
		r.Port,
		strconv.FormatInt(r.ReportedAt.Unix(), 10),
	}
}

// ServerBoard holds the latest report of every game server and the set of
// addresses banned from reporting.
type ServerBoard struct {
	freshness time.Duration
	maxBans   int

	mu      sync.RWMutex
	servers map[string]ServerReport
	banned  map[string]time.Time
}

// NewServerBoard creates an empty board.
func NewServerBoard(freshness time.Duration) *ServerBoard {
	if freshness <= 0 {
		freshness = DefaultFreshness
	}
	return &ServerBoard{
		freshness: freshness,
		maxBans:   MaxBans,
		servers:   make(map[string]ServerReport),
		banned:    make(map[string]time.Time),
	}
}

// Update stores r, replacing the previous report of the same server number.
func (b *ServerBoard) Update(r ServerReport) {
	b.mu.Lock()
	b.servers[r.Number] = r
	b.mu.Unlock()
}

// Ban blocks ip from reporting for the lifetime of the process, or until
// MaxBans newer bans push it out. It returns false if ip was already banned.
func (b *ServerBoard) Ban(ip string, now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.banned[ip]; ok {
		return false
	}
	if len(b.banned) >= b.maxBans {
		b.evictOldestBan()
	}
	b.banned[ip] = now
	return true
}

func (b *ServerBoard) evictOldestBan() {
	var oldest string
	var oldestAt time.Time
	for ip, at := range b.banned {
		if oldest == "" || at.Before(oldestAt) {
			oldest, oldestAt = ip, at
		}
	}
	delete(b.banned, oldest)
}

// IsBanned reports whether ip was banned.
func (b *ServerBoard) IsBanned(ip string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.banned[ip]
	return ok
}

// Active returns the servers that reported within the freshness window,
// ordered by server number.
func (b *ServerBoard) Active(now time.Time) []ServerReport {
	b.mu.RLock()
	out := make([]ServerReport, 0, len(b.servers))
	for _, r := range b.servers {
		if now.Sub(r.ReportedAt) < b.freshness {
			out = append(out, r)
		}
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// CSV renders the board: the first row is the current unix time, then one
// row per active server.
func (b *ServerBoard) CSV(now time.Time) ([]byte, error) {
	rows := [][]string{{strconv.FormatInt(now.Unix(), 10)}}
	for _, r := range b.Active(now) {
		rows = append(rows, r.row())
	}
	var buf bytes.Buffer
	if err := csv.NewWriter(&buf).WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
