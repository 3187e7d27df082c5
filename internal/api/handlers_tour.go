// Tourtracker - Tour Progress Tracking Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourtracker

package api

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/tourtracker/internal/logging"
	"github.com/tomtom215/tourtracker/internal/metrics"
	"github.com/tomtom215/tourtracker/internal/middleware"
	"github.com/tomtom215/tourtracker/internal/stats"
)

// PlayerCSV serves one participant's wave timestamps. An unknown
// participant gets the header row only.
func (h *Handler) PlayerCSV(w http.ResponseWriter, r *http.Request) {
	id, _, err := parseProgress(url.Values{"steam64": {chi.URLParam(r, "steam64")}})
	if err != nil {
		http.NotFound(w, r)
		return
	}

	body, err := h.query.PlayerCSV(id, h.now())
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to render player CSV")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	writeCSV(w, body)
}

// GlobalCSV serves the cached global statistics. The gzip rendering is
// built once per snapshot, so this handler compresses nothing itself.
func (h *Handler) GlobalCSV(w http.ResponseWriter, r *http.Request) {
	var snap *stats.Snapshot
	if h.stats != nil {
		snap = h.stats.Current()
	}
	if snap == nil {
		w.Header().Set("Retry-After", "5")
		http.Error(w, ErrStatsNotReady.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Add("Vary", "Accept-Encoding")
	w.Header().Set("Last-Modified", snap.BuiltAt.UTC().Format(http.TimeFormat))
	if middleware.AcceptsGzip(r) {
		w.Header().Set("Content-Encoding", "gzip")
		writeCSV(w, snap.Gzip)
		return
	}
	writeCSV(w, snap.Raw)
}

// ServersCSV serves the live game server board.
func (h *Handler) ServersCSV(w http.ResponseWriter, r *http.Request) {
	if h.board == nil {
		http.NotFound(w, r)
		return
	}
	body, err := h.board.CSV(h.now())
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to render server CSV")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	writeCSV(w, body)
}

// ServerReport records a game server's status. A wrong key bans the
// source address for the life of the process; banned addresses are
// refused before the key is even looked at.
func (h *Handler) ServerReport(w http.ResponseWriter, r *http.Request) {
	if h.board == nil {
		http.NotFound(w, r)
		return
	}
	ip := clientIP(r)
	now := h.now()

	if h.board.IsBanned(ip) {
		metrics.ServerReports.WithLabelValues("banned").Inc()
		writeText(w, http.StatusForbidden, "")
		return
	}

	if err := r.ParseForm(); err != nil {
		metrics.ServerReports.WithLabelValues("invalid").Inc()
		writeText(w, http.StatusBadRequest, "malformed form")
		return
	}
	form := r.PostForm

	if !h.checkKey(r, "servers", form.Get("key")) {
		metrics.ServerReports.WithLabelValues("bad_key").Inc()
		if h.board.Ban(ip, now) {
			h.security.LogIPBanned(ip, "bad key on server report")
		}
		writeText(w, http.StatusForbidden, "")
		return
	}

	sf, err := parseServerForm(form)
	if err != nil {
		metrics.ServerReports.WithLabelValues("invalid").Inc()
		writeText(w, http.StatusBadRequest, err.Error())
		return
	}
	report, err := h.serverReport(sf, ip, now)
	if err != nil {
		metrics.ServerReports.WithLabelValues("invalid").Inc()
		writeText(w, http.StatusBadRequest, err.Error())
		return
	}

	h.board.Update(report)
	metrics.ServerReports.WithLabelValues("accepted").Inc()
	w.WriteHeader(http.StatusNoContent)
}

// serverReport converts a validated form. The mission must exist; its wave
// count comes from the catalog.
func (h *Handler) serverReport(sf serverForm, ip string, now time.Time) (stats.ServerReport, error) {
	mission, err := strconv.Atoi(sf.Mission)
	if err != nil {
		return stats.ServerReport{}, err
	}
	if err := h.catalog.CheckMission(mission); err != nil {
		return stats.ServerReport{}, err
	}
	defenders, err := strconv.Atoi(sf.Defenders)
	if err != nil {
		return stats.ServerReport{}, err
	}
	connecting, err := strconv.Atoi(sf.Connecting)
	if err != nil {
		return stats.ServerReport{}, err
	}
	wave, err := strconv.Atoi(sf.Wave)
	if err != nil {
		return stats.ServerReport{}, err
	}

	return stats.ServerReport{
		Number:      sf.Number,
		HasPassword: sf.HasPassword,
		Mission:     mission,
		Defenders:   defenders,
		Connecting:  connecting,
		Wave:        wave,
		TotalWaves:  h.catalog.Waves(mission),
		RoundState:  sf.RoundState,
		IP:          ip,
		Port:        sf.Port,
		ReportedAt:  now,
	}, nil
}
