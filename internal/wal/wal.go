// Tourtracker - Tour Progress Tracking Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourtracker

package wal

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/goccy/go-json"

	"github.com/tomtom215/tourtracker/internal/logging"
	"github.com/tomtom215/tourtracker/internal/tour"
)

// Errors returned by the durable log.
var (
	ErrWALClosed    = errors.New("durable log is closed")
	ErrInvalidGrant = errors.New("grant has no participant")
)

// WAL is the durable log contract used by the ingest worker and the
// reward evaluator.
type WAL interface {
	// AppendCredits persists events durably, in order. When it returns nil
	// every event survives a restart.
	AppendCredits(ctx context.Context, events []tour.Event) error

	// AppendGrant persists a reward ledger entry.
	AppendGrant(ctx context.Context, g Grant) error

	// Replay calls fn for every credit in insertion order.
	Replay(ctx context.Context, fn func(seq uint64, ev tour.Event) error) error

	// ReplayGrants calls fn for every ledger entry.
	ReplayGrants(ctx context.Context, fn func(g Grant) error) error

	// Stats returns log metrics.
	Stats() Stats

	// Close gracefully shuts down the log.
	Close() error
}

// Grant is a reward ledger record.
type Grant struct {
	Participant uint64    `json:"steam64,string"`
	GrantedAt   time.Time `json:"granted_at"`
}

// Stats contains durable log metrics for monitoring.
type Stats struct {
	Credits       int64     `json:"credits"`
	Grants        int64     `json:"grants"`
	CreditsAppend int64     `json:"credits_appended"`
	GrantsAppend  int64     `json:"grants_appended"`
	LastGC        time.Time `json:"last_gc"`
	DBSizeBytes   int64     `json:"db_size_bytes"`
}

// Key prefixes. Credits are keyed by an 8-byte big-endian sequence so that
// lexicographic key order equals insertion order. Grants are keyed by
// participant, one record each.
const (
	prefixCredit = "credit:"
	prefixGrant  = "grant:"
	keySequence  = "seq:credit"

	sequenceBandwidth = 1000
)

// BadgerWAL implements WAL using BadgerDB.
type BadgerWAL struct {
	db     *badger.DB
	seq    *badger.Sequence
	config Config

	totalCredits atomic.Int64
	totalGrants  atomic.Int64

	mu     sync.RWMutex
	closed bool
	lastGC time.Time
}

// Open creates a BadgerWAL with the given configuration. The database is
// opened (or created) at cfg.Path.
func Open(cfg *Config) (*BadgerWAL, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid log config: %w", err)
	}
	w, err := open(cfg)
	if err != nil {
		return nil, err
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("sync_writes", cfg.SyncWrites).
		Bool("compression", cfg.Compression).
		Msg("Durable log opened")
	return w, nil
}

// OpenForTesting opens a BadgerWAL without configuration validation so
// tests can use short intervals.
// WARNING: Do not use in production code.
func OpenForTesting(cfg *Config) (*BadgerWAL, error) {
	if cfg.NumCompactors < 2 {
		cfg.NumCompactors = 2
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1000
	}
	if cfg.GCRatio == 0 {
		cfg.GCRatio = 0.5
	}
	return open(cfg)
}

func open(cfg *Config) (*BadgerWAL, error) {
	opts := badger.DefaultOptions(cfg.Path)
	opts.SyncWrites = cfg.SyncWrites
	opts.MemTableSize = cfg.MemTableSize
	opts.ValueLogFileSize = cfg.ValueLogFileSize
	opts.NumCompactors = cfg.NumCompactors
	if cfg.Compression {
		opts.Compression = options.Snappy
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	seq, err := db.GetSequence([]byte(keySequence), sequenceBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("acquire credit sequence: %w", err)
	}

	return &BadgerWAL{
		db:     db,
		seq:    seq,
		config: *cfg,
		lastGC: time.Now(),
	}, nil
}

func creditKey(seq uint64) []byte {
	key := make([]byte, len(prefixCredit)+8)
	copy(key, prefixCredit)
	binary.BigEndian.PutUint64(key[len(prefixCredit):], seq)
	return key
}

func grantKey(participant uint64) []byte {
	key := make([]byte, len(prefixGrant)+8)
	copy(key, prefixGrant)
	binary.BigEndian.PutUint64(key[len(prefixGrant):], participant)
	return key
}

// AppendCredits writes events in chunks of Config.BatchSize, each chunk in
// its own transaction. If an error is returned, a prefix of events may
// already be durable; replay is idempotent, so the caller retries the
// whole slice.
func (w *BadgerWAL) AppendCredits(ctx context.Context, events []tour.Event) error {
	if len(events) == 0 {
		return nil
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrWALClosed
	}

	start := time.Now()
	defer func() {
		RecordWriteLatency(time.Since(start).Seconds())
	}()

	for off := 0; off < len(events); off += w.config.BatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := off + w.config.BatchSize
		if end > len(events) {
			end = len(events)
		}
		if err := w.writeChunk(events[off:end]); err != nil {
			RecordWriteFailure()
			return err
		}
		w.totalCredits.Add(int64(end - off))
		RecordCreditsWritten(end - off)
	}
	return nil
}

func (w *BadgerWAL) writeChunk(events []tour.Event) error {
	return w.db.Update(func(txn *badger.Txn) error {
		for i := range events {
			data, err := json.Marshal(&events[i])
			if err != nil {
				return fmt.Errorf("marshal credit: %w", err)
			}
			n, err := w.seq.Next()
			if err != nil {
				return fmt.Errorf("next credit sequence: %w", err)
			}
			if err := txn.Set(creditKey(n), data); err != nil {
				return fmt.Errorf("write credit: %w", err)
			}
		}
		return nil
	})
}

// AppendGrant persists a reward ledger record. A participant's record is
// written once; appending it again is a no-op that keeps the original
// grant time.
func (w *BadgerWAL) AppendGrant(ctx context.Context, g Grant) error {
	if g.Participant == 0 {
		return ErrInvalidGrant
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrWALClosed
	}

	data, err := json.Marshal(&g)
	if err != nil {
		return fmt.Errorf("marshal grant: %w", err)
	}
	written := false
	err = w.db.Update(func(txn *badger.Txn) error {
		key := grantKey(g.Participant)
		_, err := txn.Get(key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		written = true
		return txn.Set(key, data)
	})
	if err != nil {
		RecordWriteFailure()
		return fmt.Errorf("write grant: %w", err)
	}
	if !written {
		return nil
	}

	w.totalGrants.Add(1)
	RecordGrantWritten()
	return nil
}

// Replay iterates credits in insertion order. Iteration stops at the first
// error returned by fn or at context cancellation.
func (w *BadgerWAL) Replay(ctx context.Context, fn func(seq uint64, ev tour.Event) error) error {
	n := 0
	err := w.scan(ctx, prefixCredit, func(key, val []byte) error {
		var ev tour.Event
		if err := json.Unmarshal(val, &ev); err != nil {
			return fmt.Errorf("decode credit %x: %w", key, err)
		}
		n++
		return fn(binary.BigEndian.Uint64(key[len(prefixCredit):]), ev)
	})
	RecordReplayed("credit", n)
	return err
}

// ReplayGrants iterates every reward ledger record.
func (w *BadgerWAL) ReplayGrants(ctx context.Context, fn func(g Grant) error) error {
	n := 0
	err := w.scan(ctx, prefixGrant, func(key, val []byte) error {
		var g Grant
		if err := json.Unmarshal(val, &g); err != nil {
			return fmt.Errorf("decode grant %x: %w", key, err)
		}
		n++
		return fn(g)
	})
	RecordReplayed("grant", n)
	return err
}

func (w *BadgerWAL) scan(ctx context.Context, prefix string, fn func(key, val []byte) error) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrWALClosed
	}

	return w.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			key := item.KeyCopy(nil)
			val, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("read value: %w", err)
			}
			if err := fn(key, val); err != nil {
				return err
			}
		}
		return nil
	})
}

// Stats returns record counts and database size.
func (w *BadgerWAL) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return Stats{}
	}

	var credits, grants int64
	if err := w.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefixCredit)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			credits++
		}
		p = []byte(prefixGrant)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			grants++
		}
		return nil
	}); err != nil {
		logging.Warn().Err(err).Msg("Durable log stats failed to count records")
	}

	lsm, vlog := w.db.Size()
	UpdateDBSize(lsm + vlog)

	return Stats{
		Credits:       credits,
		Grants:        grants,
		CreditsAppend: w.totalCredits.Load(),
		GrantsAppend:  w.totalGrants.Load(),
		LastGC:        w.lastGC,
		DBSizeBytes:   lsm + vlog,
	}
}

// RunGC runs value-log garbage collection until nothing is left to rewrite.
func (w *BadgerWAL) RunGC() error {
	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		return ErrWALClosed
	}
	w.mu.RUnlock()

	start := time.Now()
	defer func() {
		RecordGCRun(time.Since(start).Seconds())
	}()

	for {
		err := w.db.RunValueLogGC(w.config.GCRatio)
		if errors.Is(err, badger.ErrNoRewrite) {
			break
		}
		if err != nil {
			return fmt.Errorf("run GC: %w", err)
		}
	}

	w.mu.Lock()
	w.lastGC = time.Now()
	w.mu.Unlock()
	return nil
}

// Config returns the log configuration.
func (w *BadgerWAL) Config() Config {
	return w.config
}

// Close releases the credit sequence and closes BadgerDB, waiting at most
// Config.CloseTimeout.
func (w *BadgerWAL) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	timeout := w.config.CloseTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	w.mu.Unlock()

	logging.Info().Msg("Closing durable log")

	if err := w.seq.Release(); err != nil {
		logging.Warn().Err(err).Msg("Failed to release credit sequence")
	}

	done := make(chan error, 1)
	go func() {
		done <- w.db.Close()
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("close BadgerDB: %w", err)
		}
		logging.Info().Msg("Durable log closed")
		return nil
	case <-time.After(timeout):
		logging.Warn().Dur("timeout", timeout).Msg("BadgerDB close timed out")
		return fmt.Errorf("badgerdb close timeout after %v", timeout)
	}
}
