// Tourtracker - Tour Progress Tracking Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourtracker

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/tourtracker/internal/api"
	"github.com/tomtom215/tourtracker/internal/config"
	"github.com/tomtom215/tourtracker/internal/ingest"
	"github.com/tomtom215/tourtracker/internal/logging"
	"github.com/tomtom215/tourtracker/internal/progress"
	"github.com/tomtom215/tourtracker/internal/stats"
	"github.com/tomtom215/tourtracker/internal/supervisor"
	"github.com/tomtom215/tourtracker/internal/supervisor/services"
	"github.com/tomtom215/tourtracker/internal/tour"
	"github.com/tomtom215/tourtracker/internal/wal"
)

//nolint:gocyclo // Main initialization function with sequential setup steps
func main() {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	logging.Info().Msg("Starting Tourtracker with supervisor tree")

	catalog, err := tour.NewCatalog(cfg.Tour.Missions)
	if err != nil {
		logging.Fatal().Err(err).Msg("Invalid mission catalog")
	}
	logging.Info().
		Int("missions", catalog.Len()).
		Int("total_credits", catalog.TotalCredits()).
		Str("log_path", cfg.Log.Path).
		Bool("reward_enabled", cfg.Reward.Enabled).
		Msg("Configuration loaded")

	loc, err := cfg.Stats.Location()
	if err != nil {
		logging.Fatal().Err(err).Str("timezone", cfg.Stats.Timezone).Msg("Invalid stats timezone")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// === DURABLE LOG AND RECOVERY ===

	log, err := wal.Open(&cfg.Log)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open durable log")
	}
	defer func() {
		if err := log.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing durable log")
		}
	}()

	index := progress.NewIndex(catalog)
	ledger := progress.NewLedger()
	daily := stats.NewDailyCounter(loc)

	result, err := ingest.Recover(ctx, log, index, ledger, daily)
	if err != nil {
		cancel()
		_ = log.Close()
		logging.Fatal().Err(err).Msg("Failed to rebuild progress from durable log")
	}
	logging.Info().
		Int("credits", result.Credits).
		Int("skipped", result.Skipped).
		Int("grants", result.Grants).
		Int("participants", index.Len()).
		Dur("duration", result.Duration).
		Msg("Progress rebuilt from durable log")

	// === REWARD ===

	rc, err := initReward(cfg, index, ledger, log)
	if err != nil {
		cancel()
		_ = log.Close()
		logging.Fatal().Err(err).Msg("Failed to initialize reward")
	}
	defer rc.Close()

	// === INGEST ===

	queue := ingest.NewQueue(cfg.Ingest.QueueLimit)
	worker, err := ingest.NewWorker(queue, log, index, rc.evaluator(), ingest.WorkerConfig{
		DrainInterval: cfg.Ingest.DrainInterval,
		SweepInterval: cfg.Reward.SweepInterval,
		CycleTimeout:  cfg.Ingest.CycleTimeout,
	})
	if err != nil {
		cancel()
		_ = log.Close()
		logging.Fatal().Err(err).Msg("Failed to create ingest worker")
	}
	worker.AddObserver(daily)

	// === STATS ===

	board := stats.NewServerBoard(cfg.Stats.ServerFreshness)
	var rebuilder *stats.Rebuilder
	if cfg.Stats.Enabled {
		rebuilder = stats.NewRebuilder(index, daily, loc, cfg.Stats.RebuildInterval)
		if _, err := rebuilder.RebuildIfChanged(); err != nil {
			logging.Warn().Err(err).Msg("Initial stats build failed, will retry")
		}
	}

	// === HTTP ===

	deps := api.Deps{
		Index:            index,
		Queue:            queue,
		Board:            board,
		Log:              log,
		APIKey:           cfg.Tour.APIKey,
		ReportDuplicates: cfg.Ingest.ReportDuplicates,
	}
	if rebuilder != nil {
		deps.Stats = rebuilder
	}
	if rc.eval != nil {
		deps.Rewards = rc.eval
	}
	handler := api.NewHandler(deps)

	mwConfig := api.DefaultChiMiddlewareConfig()
	mwConfig.CORSAllowedOrigins = cfg.Security.CORSOrigins
	mwConfig.RateLimitRequests = cfg.Security.RateLimitReqs
	mwConfig.RateLimitWindow = cfg.Security.RateLimitWindow
	mwConfig.RateLimitDisabled = cfg.Security.RateLimitDisabled
	mwConfig.TrustedProxies = cfg.Security.TrustedProxies
	router := api.NewRouter(handler, api.RouterConfig{
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		Middleware:   mwConfig,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.SetupChi(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       2 * cfg.Server.WriteTimeout,
	}

	// === SUPERVISOR TREE ===

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger("supervisor"), supervisor.TreeConfig{
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		cancel()
		_ = log.Close()
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	tree.AddDataService(services.NewLoopService("log-compactor", wal.NewCompactor(log)))
	tree.AddProcessingService(services.NewLoopService("ingest-worker", worker))
	if rebuilder != nil {
		tree.AddProcessingService(services.NewLoopService("stats-rebuilder", rebuilder))
	}
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	handler.SetReady(true)

	// === START SUPERVISOR TREE ===

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	handler.SetReady(false)
	flushQueue(queue, worker, cfg.Ingest.CycleTimeout)

	logging.Info().Msg("Application stopped gracefully")
}

// flushQueue closes the queue and persists anything accepted after the
// worker's final drain.
func flushQueue(queue *ingest.Queue, worker *ingest.Worker, timeout time.Duration) {
	queue.Close()
	if queue.Len() == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := worker.ProcessOnce(ctx); err != nil {
		logging.Error().Err(err).Int("lost", queue.Len()).Msg("Failed to persist queued credits at shutdown")
		return
	}
	logging.Info().Msg("Queued credits persisted at shutdown")
}
