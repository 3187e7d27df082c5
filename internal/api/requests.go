// Tourtracker - Tour Progress Tracking Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourtracker

package api

import (
	"net/url"
	"strconv"

	"github.com/tomtom215/tourtracker/internal/tour"
	"github.com/tomtom215/tourtracker/internal/validation"
)

// creditForm is a wave completion report as posted by a game server.
type creditForm struct {
	Steam64   string `form:"steam64" validate:"required,steam64"`
	Timestamp string `form:"timestamp" validate:"required,number,max=19"`
	Mission   string `form:"mission" validate:"required,number,max=4"`
	Wave      string `form:"wave" validate:"required,number,max=4"`
}

// progressForm selects a participant and optionally one mission.
type progressForm struct {
	Steam64 string `form:"steam64" validate:"required,steam64"`
	Mission string `form:"mission" validate:"omitempty,number,max=4"`
}

// serverForm is a game server status report.
type serverForm struct {
	Number      string `form:"number" validate:"required,max=16"`
	HasPassword string `form:"haspassword" validate:"required,oneof=0 1"`
	Mission     string `form:"mission" validate:"required,number,max=4"`
	Defenders   string `form:"defenders" validate:"required,number,max=3"`
	Connecting  string `form:"connecting" validate:"required,number,max=3"`
	Wave        string `form:"wave" validate:"required,number,max=4"`
	RoundState  string `form:"roundstate" validate:"required,max=16"`
	Port        string `form:"port" validate:"required,number,max=5"`
}

// steamIDParam returns steamid, falling back to steam64.
func steamIDParam(v url.Values) string {
	if s := v.Get("steamid"); s != "" {
		return s
	}
	return v.Get("steam64")
}

// parseCredit validates the form and converts it to an event. Catalog
// bounds are checked by the caller.
func parseCredit(v url.Values) (tour.Event, error) {
	form := creditForm{
		Steam64:   steamIDParam(v),
		Timestamp: v.Get("timestamp"),
		Mission:   v.Get("mission"),
		Wave:      v.Get("wave"),
	}
	if verr := validation.ValidateStruct(&form); verr != nil {
		return tour.Event{}, verr
	}

	// All four passed validation, so conversion only fails on overflow.
	id, err := strconv.ParseUint(form.Steam64, 10, 64)
	if err != nil {
		return tour.Event{}, err
	}
	ts, err := strconv.ParseInt(form.Timestamp, 10, 64)
	if err != nil {
		return tour.Event{}, err
	}
	mission, err := strconv.Atoi(form.Mission)
	if err != nil {
		return tour.Event{}, err
	}
	wave, err := strconv.Atoi(form.Wave)
	if err != nil {
		return tour.Event{}, err
	}
	return tour.Event{Participant: id, Timestamp: ts, Mission: mission, Wave: wave}, nil
}

// parseProgress returns the participant and the mission, which is -1 when
// absent.
func parseProgress(v url.Values) (uint64, int, error) {
	form := progressForm{
		Steam64: v.Get("steam64"),
		Mission: v.Get("mission"),
	}
	if verr := validation.ValidateStruct(&form); verr != nil {
		return 0, 0, verr
	}

	id, err := strconv.ParseUint(form.Steam64, 10, 64)
	if err != nil {
		return 0, 0, err
	}
	if form.Mission == "" {
		return id, -1, nil
	}
	mission, err := strconv.Atoi(form.Mission)
	if err != nil {
		return 0, 0, err
	}
	return id, mission, nil
}

// parseServerForm validates a status report. IP, total waves and the
// report time are filled in by the handler.
func parseServerForm(v url.Values) (serverForm, error) {
	form := serverForm{
		Number:      v.Get("number"),
		HasPassword: v.Get("haspassword"),
		Mission:     v.Get("mission"),
		Defenders:   v.Get("defenders"),
		Connecting:  v.Get("connecting"),
		Wave:        v.Get("wave"),
		RoundState:  v.Get("roundstate"),
		Port:        v.Get("port"),
	}
	if verr := validation.ValidateStruct(&form); verr != nil {
		return serverForm{}, verr
	}
	return form, nil
}
