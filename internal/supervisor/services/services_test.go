// Tourtracker - Tour Progress Tracking Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourtracker

package services

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

// Compile-time checks.
var (
	_ suture.Service = (*LoopService)(nil)
	_ suture.Service = (*HTTPServerService)(nil)
)

type fakeLoop struct {
	mu       sync.Mutex
	running  bool
	startErr error
	starts   atomic.Int32
	stops    atomic.Int32
}

func (f *fakeLoop) Start(ctx context.Context) error {
	f.starts.Add(1)
	if f.startErr != nil {
		return f.startErr
	}
	f.mu.Lock()
	f.running = true
	f.mu.Unlock()
	return nil
}

func (f *fakeLoop) Stop() {
	f.stops.Add(1)
	f.mu.Lock()
	f.running = false
	f.mu.Unlock()
}

func (f *fakeLoop) IsRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func TestLoopService_StartsAndStops(t *testing.T) {
	loop := &fakeLoop{}
	svc := NewLoopService("ingest-worker", loop)

	if svc.String() != "ingest-worker" {
		t.Errorf("String() = %q", svc.String())
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	deadline := time.Now().Add(time.Second)
	for !loop.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("loop never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	if loop.IsRunning() || loop.stops.Load() != 1 {
		t.Errorf("loop running=%v stops=%d after shutdown", loop.IsRunning(), loop.stops.Load())
	}
}

func TestLoopService_StartError(t *testing.T) {
	loop := &fakeLoop{startErr: errors.New("boom")}
	err := NewLoopService("log-compactor", loop).Serve(context.Background())
	if err == nil || !errors.Is(err, loop.startErr) {
		t.Errorf("Serve() = %v, want wrapped start error", err)
	}
}

func TestLoopService_StopsLeftoverLoop(t *testing.T) {
	loop := &fakeLoop{running: true}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_ = NewLoopService("stats-rebuilder", loop).Serve(ctx)
	if loop.stops.Load() != 2 {
		t.Errorf("stops = %d, want 2 (leftover + shutdown)", loop.stops.Load())
	}
}

type fakeHTTPServer struct {
	listenErr error
	stop      chan struct{}
	shutdowns atomic.Int32
}

func (f *fakeHTTPServer) ListenAndServe() error {
	if f.listenErr != nil {
		return f.listenErr
	}
	<-f.stop
	return http.ErrServerClosed
}

func (f *fakeHTTPServer) Shutdown(ctx context.Context) error {
	f.shutdowns.Add(1)
	close(f.stop)
	return nil
}

func TestHTTPServerService_GracefulShutdown(t *testing.T) {
	server := &fakeHTTPServer{stop: make(chan struct{})}
	svc := NewHTTPServerService(server, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
	if server.shutdowns.Load() != 1 {
		t.Errorf("Shutdown called %d times, want 1", server.shutdowns.Load())
	}
}

func TestHTTPServerService_ListenError(t *testing.T) {
	server := &fakeHTTPServer{listenErr: errors.New("address in use"), stop: make(chan struct{})}
	err := NewHTTPServerService(server, 0).Serve(context.Background())
	if err == nil || !errors.Is(err, server.listenErr) {
		t.Errorf("Serve() = %v, want wrapped listen error", err)
	}
}
