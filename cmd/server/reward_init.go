// Tourtracker - Tour Progress Tracking Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourtracker

package main

import (
	"github.com/tomtom215/tourtracker/internal/config"
	"github.com/tomtom215/tourtracker/internal/ingest"
	"github.com/tomtom215/tourtracker/internal/logging"
	"github.com/tomtom215/tourtracker/internal/progress"
	"github.com/tomtom215/tourtracker/internal/reward"
	"github.com/tomtom215/tourtracker/internal/wal"
)

// rewardComponents holds the reward evaluator and its recipients file for
// lifecycle management. Both are nil when rewards are disabled.
type rewardComponents struct {
	eval       *reward.Evaluator
	recipients *reward.RecipientsFile
}

// initReward builds the reward pipeline. Returns empty components when
// REWARD_ENABLED is false; tracking then runs read-only.
func initReward(cfg *config.Config, index *progress.Index, ledger *progress.Ledger, log *wal.BadgerWAL) (*rewardComponents, error) {
	rc := &rewardComponents{}
	if !cfg.Reward.Enabled {
		logging.Info().Msg("Rewards disabled (REWARD_ENABLED=false)")
		return rc, nil
	}

	var hook reward.Hook
	if cfg.Reward.DryRun {
		hook = reward.DryRunHook{}
		logging.Warn().Msg("Reward dry run enabled, completions are logged and not granted")
	} else {
		client := reward.NewPromoClient(cfg.Reward.URL, cfg.Reward.APIKey, cfg.Reward.PromoID, cfg.Reward.Timeout)
		settings := reward.DefaultBreakerSettings()
		settings.Timeout = cfg.Reward.BreakerTimeout
		settings.MinRequests = cfg.Reward.BreakerMinRequests
		settings.FailureRatio = cfg.Reward.BreakerFailureRatio
		hook = reward.NewBreakerHook("steam-promo", client, settings)
	}

	if cfg.Reward.RecipientsPath != "" {
		f, err := reward.OpenRecipientsFile(cfg.Reward.RecipientsPath)
		if err != nil {
			return nil, err
		}
		rc.recipients = f
	}

	evalCfg := reward.DefaultConfig()
	evalCfg.SweepRate = cfg.Reward.SweepRate
	evalCfg.SweepBurst = cfg.Reward.SweepBurst
	evalCfg.LedgerRetries = cfg.Reward.LedgerRetries

	var recorder reward.Recorder
	if rc.recipients != nil {
		recorder = rc.recipients
	}
	eval, err := reward.NewEvaluator(index, ledger, log, hook, recorder, evalCfg)
	if err != nil {
		rc.Close()
		return nil, err
	}
	rc.eval = eval

	pending := eval.Reconcile()
	logging.Info().
		Int("ledger", ledger.Len()).
		Int("pending", pending).
		Bool("dry_run", cfg.Reward.DryRun).
		Msg("Reward evaluator initialized")
	return rc, nil
}

// evaluator returns the evaluator as the worker's interface, or a nil
// interface when rewards are disabled.
func (rc *rewardComponents) evaluator() ingest.Evaluator {
	if rc == nil || rc.eval == nil {
		return nil
	}
	return rc.eval
}

// Close releases the recipients file.
func (rc *rewardComponents) Close() {
	if rc == nil || rc.recipients == nil {
		return
	}
	if err := rc.recipients.Close(); err != nil {
		logging.Error().Err(err).Msg("Error closing recipients file")
	}
}
