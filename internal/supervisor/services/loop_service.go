// Tourtracker - Tour Progress Tracking Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourtracker

// Package services adapts the tracker's background components to
// suture.Service.
package services

import (
	"context"
	"fmt"
)

// StartStopper is the lifecycle shared by the background loops.
//
// Satisfied by:
//   - *ingest.Worker
//   - *wal.Compactor
//   - *stats.Rebuilder
type StartStopper interface {
	Start(ctx context.Context) error
	Stop()
	IsRunning() bool
}

// LoopService wraps a StartStopper as a supervised service.
//
// It adapts the Start/Stop lifecycle to suture's Serve pattern:
//  1. Calls Start(ctx) to begin the loop
//  2. Waits for context cancellation
//  3. Calls Stop(), which waits for the loop goroutine to exit
//
// Example usage:
//
//	worker, _ := ingest.NewWorker(queue, log, index, evaluator, cfg)
//	tree.AddProcessingService(services.NewLoopService("ingest-worker", worker))
type LoopService struct {
	loop StartStopper
	name string
}

// NewLoopService creates a supervised wrapper named name.
func NewLoopService(name string, loop StartStopper) *LoopService {
	return &LoopService{
		loop: loop,
		name: name,
	}
}

// Serve implements suture.Service.
//
// If Start fails the error is returned immediately and suture restarts the
// service according to its backoff policy. A loop left running by an
// earlier crashed Serve is stopped first.
func (s *LoopService) Serve(ctx context.Context) error {
	if s.loop.IsRunning() {
		s.loop.Stop()
	}
	if err := s.loop.Start(ctx); err != nil {
		return fmt.Errorf("%s start failed: %w", s.name, err)
	}

	<-ctx.Done()

	s.loop.Stop()

	return ctx.Err()
}

// String implements fmt.Stringer for logging.
// Suture uses this to identify the service in log messages.
func (s *LoopService) String() string {
	return s.name
}
