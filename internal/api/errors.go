// Tourtracker - Tour Progress Tracking Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourtracker

package api

import "errors"

var (
	// ErrBadKey indicates a missing or wrong shared secret.
	ErrBadKey = errors.New("missing or invalid key")

	// ErrStatsNotReady indicates the first statistics build has not finished.
	ErrStatsNotReady = errors.New("statistics not built yet")
)
