// Tourtracker - Tour Progress Tracking Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourtracker

package progress

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	participantsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tour_participants",
		Help: "Number of participants with at least one wave credit",
	})

	creditsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tour_wave_credits",
		Help: "Number of unique wave credits in the progress index",
	})

	ledgerGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tour_reward_ledger_entries",
		Help: "Number of participants recorded as rewarded",
	})
)
