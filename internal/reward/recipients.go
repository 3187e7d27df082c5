// Tourtracker - Tour Progress Tracking Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourtracker

package reward

import (
	"fmt"
	"os"
	"strconv"
	"sync"
)

// RecipientsFile appends the ID of every rewarded participant to a text
// file, one per line. It is an operator convenience; the durable log is the
// source of truth.
type RecipientsFile struct {
	mu sync.Mutex
	f  *os.File
}

// OpenRecipientsFile opens (or creates) path for appending.
func OpenRecipientsFile(path string) (*RecipientsFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open recipients file: %w", err)
	}
	return &RecipientsFile{f: f}, nil
}

// Record appends participant and flushes it to disk.
func (r *RecipientsFile) Record(participant uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.f.WriteString(strconv.FormatUint(participant, 10) + "\n"); err != nil {
		return fmt.Errorf("write recipient: %w", err)
	}
	return r.f.Sync()
}

// Close closes the file.
func (r *RecipientsFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.f.Close()
}
