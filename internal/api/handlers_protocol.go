// Tourtracker - Tour Progress Tracking Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourtracker

package api

import (
	"errors"
	"net/http"

	"github.com/tomtom215/tourtracker/internal/ingest"
	"github.com/tomtom215/tourtracker/internal/logging"
	"github.com/tomtom215/tourtracker/internal/tour"
)

// Protocol bodies of a successful credit report.
const (
	creditAlreadyHeld = "1"
	creditNew         = "2"
)

// Ingest accepts one wave completion report from a game server.
//
// The event is only queued here; it becomes durable and visible once the
// ingest worker has drained it. The "1"/"2" answer reflects the index at
// request time, so two reports of the same new credit in one drain cycle
// both answer "2".
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeText(w, http.StatusBadRequest, "malformed form")
		return
	}
	form := r.PostForm

	if !h.checkKey(r, "ingest", form.Get("key")) {
		writeText(w, http.StatusUnauthorized, "")
		return
	}

	ev, err := parseCredit(form)
	if err != nil {
		writeText(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.catalog.Validate(ev); err != nil {
		writeText(w, http.StatusBadRequest, err.Error())
		return
	}

	held := h.index.HasCredit(ev)

	if err := h.queue.Enqueue(ev); err != nil {
		log := logging.Ctx(r.Context())
		if errors.Is(err, ingest.ErrQueueFull) {
			log.Warn().Str("steam64", ev.ParticipantString()).Msg("Ingest queue full, report rejected")
			w.Header().Set("Retry-After", "1")
		} else {
			log.Error().Err(err).Msg("Failed to enqueue report")
		}
		writeText(w, http.StatusServiceUnavailable, "")
		return
	}

	if !h.reportDuplicates {
		writeText(w, http.StatusOK, "")
		return
	}
	if held {
		writeText(w, http.StatusOK, creditAlreadyHeld)
		return
	}
	writeText(w, http.StatusOK, creditNew)
}

// Query answers a game server's progress lookup with KeyValues text.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	if !h.checkKey(r, "query", params.Get("key")) {
		writeText(w, http.StatusUnauthorized, "")
		return
	}
	h.writeKV(w, r)
}

// VDF serves the same KeyValues text to the website, without a key.
func (h *Handler) VDF(w http.ResponseWriter, r *http.Request) {
	h.writeKV(w, r)
}

func (h *Handler) writeKV(w http.ResponseWriter, r *http.Request) {
	id, mission, err := parseProgress(r.URL.Query())
	if err != nil {
		writeText(w, http.StatusBadRequest, err.Error())
		return
	}

	if mission < 0 {
		writeText(w, http.StatusOK, h.query.TourKV(id))
		return
	}

	kv, err := h.query.MissionKV(id, mission)
	if err != nil {
		if errors.Is(err, tour.ErrUnknownMission) {
			writeText(w, http.StatusBadRequest, err.Error())
			return
		}
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to render mission progress")
		writeText(w, http.StatusInternalServerError, "")
		return
	}
	writeText(w, http.StatusOK, kv)
}
