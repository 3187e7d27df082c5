// Tourtracker - Tour Progress Tracking Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourtracker

package tour

import "strconv"

// Event is a single wave-completion report: participant finished wave Wave
// of mission Mission at Timestamp (unix seconds).
//
// Participant is a 64-bit Steam ID. It is serialized as a string so that
// clients holding it in a double never see a rounded value.
type Event struct {
	Participant uint64 `json:"steam64,string"`
	Timestamp   int64  `json:"timestamp"`
	Mission     int    `json:"mission"`
	Wave        int    `json:"wave"`
}

// Bit returns the bitflag of the event's wave.
func (e Event) Bit() uint64 {
	return 1 << uint(e.Wave)
}

// ParticipantString formats the participant ID in decimal.
func (e Event) ParticipantString() string {
	return strconv.FormatUint(e.Participant, 10)
}
