// Tourtracker - Tour Progress Tracking Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourtracker

package progress

import (
	"sync"
	"time"
)

// Ledger is the set of participants who already received the reward.
// A participant is added at most once.
type Ledger struct {
	mu      sync.RWMutex
	granted map[uint64]time.Time
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{granted: make(map[uint64]time.Time)}
}

// Add records id as rewarded at t. It returns false if id was already present,
// in which case the original time is kept.
func (l *Ledger) Add(id uint64, t time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.granted[id]; ok {
		return false
	}
	l.granted[id] = t
	ledgerGauge.Set(float64(len(l.granted)))
	return true
}

// Has reports whether id was rewarded.
func (l *Ledger) Has(id uint64) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.granted[id]
	return ok
}

// GrantedAt returns when id was rewarded.
func (l *Ledger) GrantedAt(id uint64) (time.Time, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.granted[id]
	return t, ok
}

// Len returns the number of rewarded participants.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.granted)
}
