// Tourtracker - Tour Progress Tracking Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourtracker

// Package ingest decouples HTTP handlers from the single writer that owns
// the durable log, the progress index and the completion evaluator.
//
// Handlers call Queue.Enqueue, which never blocks. One Worker drains the
// queue on a fixed interval, or as soon as the first event arrives after a
// drain, and processes each batch in this order:
//
//  1. append every event to the durable log
//  2. apply the events to the progress index
//  3. run the completion evaluator for participants that gained a credit
//
// Applying a credit is idempotent and commutative per (participant,
// mission, wave), so the relative order of events inside or across batches
// does not affect the resulting progress.
package ingest

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/tomtom215/tourtracker/internal/tour"
)

var (
	// ErrQueueFull is returned when the queue holds Limit events.
	ErrQueueFull = errors.New("ingest queue is full")

	// ErrQueueClosed is returned after Close.
	ErrQueueClosed = errors.New("ingest queue is closed")
)

// Queue is a thread-safe buffer of pending credits with a soft size limit.
type Queue struct {
	limit int

	mu     sync.Mutex
	buffer []tour.Event

	signal chan struct{}
	closed atomic.Bool

	enqueued atomic.Int64
	rejected atomic.Int64
	drained  atomic.Int64
}

// QueueStats holds runtime statistics for monitoring.
type QueueStats struct {
	Depth    int   `json:"depth"`
	Enqueued int64 `json:"enqueued"`
	Rejected int64 `json:"rejected"`
	Drained  int64 `json:"drained"`
}

// NewQueue creates a queue that rejects new events once limit are pending.
// A limit <= 0 disables the bound.
func NewQueue(limit int) *Queue {
	return &Queue{
		limit:  limit,
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event without blocking.
func (q *Queue) Enqueue(ev tour.Event) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}

	q.mu.Lock()
	if q.limit > 0 && len(q.buffer) >= q.limit {
		q.mu.Unlock()
		q.rejected.Add(1)
		queueRejected.Inc()
		return ErrQueueFull
	}
	q.buffer = append(q.buffer, ev)
	first := len(q.buffer) == 1
	depth := len(q.buffer)
	q.mu.Unlock()

	q.enqueued.Add(1)
	queueEnqueued.Inc()
	queueDepth.Set(float64(depth))

	if first {
		select {
		case q.signal <- struct{}{}:
		default:
		}
	}
	return nil
}

// Drain takes ownership of every queued event. It returns nil when the
// queue is empty.
func (q *Queue) Drain() []tour.Event {
	q.mu.Lock()
	events := q.buffer
	q.buffer = nil
	q.mu.Unlock()

	if len(events) > 0 {
		q.drained.Add(int64(len(events)))
		queueDepth.Set(0)
	}
	return events
}

// Requeue puts events back at the head of the queue, ahead of anything
// enqueued since they were drained. The limit is not applied.
func (q *Queue) Requeue(events []tour.Event) {
	if len(events) == 0 {
		return
	}
	q.mu.Lock()
	q.buffer = append(append(make([]tour.Event, 0, len(events)+len(q.buffer)), events...), q.buffer...)
	depth := len(q.buffer)
	q.mu.Unlock()

	q.drained.Add(-int64(len(events)))
	queueDepth.Set(float64(depth))
}

// Signal fires when an event is enqueued into an empty queue.
func (q *Queue) Signal() <-chan struct{} {
	return q.signal
}

// Len returns the number of pending events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buffer)
}

// Close stops accepting events. Pending events can still be drained.
func (q *Queue) Close() {
	q.closed.Store(true)
}

// Stats returns queue counters.
func (q *Queue) Stats() QueueStats {
	return QueueStats{
		Depth:    q.Len(),
		Enqueued: q.enqueued.Load(),
		Rejected: q.rejected.Load(),
		Drained:  q.drained.Load(),
	}
}
