// Tourtracker - Tour Progress Tracking Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourtracker

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/tourtracker/internal/ingest"
	"github.com/tomtom215/tourtracker/internal/progress"
	"github.com/tomtom215/tourtracker/internal/reward"
	"github.com/tomtom215/tourtracker/internal/stats"
)

// HealthLive returns 200 while the process is serving.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, map[string]interface{}{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	})
}

// HealthReady returns 200 once the index has been rebuilt from the
// durable log, 503 before.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	if !h.ready.Load() {
		WriteError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "replaying durable log")
		return
	}
	WriteSuccess(w, r, map[string]interface{}{
		"ready":        true,
		"participants": h.index.Len(),
	})
}

// LogStats returns durable log statistics.
func (h *Handler) LogStats(w http.ResponseWriter, r *http.Request) {
	if h.log == nil {
		WriteError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "durable log not available")
		return
	}
	WriteSuccess(w, r, h.log.Stats())
}

// TourStatsResponse is the payload of GET /api/v1/tour/stats.
type TourStatsResponse struct {
	Missions     int               `json:"missions"`
	TotalCredits int               `json:"total_credits"`
	Index        indexStats        `json:"index"`
	Queue        ingest.QueueStats `json:"queue"`
	Rewards      *reward.Stats     `json:"rewards,omitempty"`
	Summary      *stats.Summary    `json:"summary,omitempty"`
	StatsBuiltAt *time.Time        `json:"stats_built_at,omitempty"`
}

type indexStats struct {
	Participants int    `json:"participants"`
	Credits      int    `json:"credits"`
	Applied      uint64 `json:"applied"`
	Duplicates   uint64 `json:"duplicates"`
	Version      uint64 `json:"version"`
}

func newIndexStats(s progress.Stats, version uint64) indexStats {
	return indexStats{
		Participants: s.Participants,
		Credits:      s.Credits,
		Applied:      s.Applied,
		Duplicates:   s.Duplicates,
		Version:      version,
	}
}

// TourStats returns live counters of the index, queue and rewards.
func (h *Handler) TourStats(w http.ResponseWriter, r *http.Request) {
	resp := TourStatsResponse{
		Missions:     h.catalog.Len(),
		TotalCredits: h.catalog.TotalCredits(),
		Index:        newIndexStats(h.index.Stats(), h.index.Version()),
		Queue:        h.queue.Stats(),
	}
	if h.rewards != nil {
		rs := h.rewards.Stats()
		resp.Rewards = &rs
	}
	if h.stats != nil {
		if snap := h.stats.Current(); snap != nil {
			summary := snap.Summary
			builtAt := snap.BuiltAt
			resp.Summary = &summary
			resp.StatsBuiltAt = &builtAt
		}
	}
	WriteSuccess(w, r, resp)
}
