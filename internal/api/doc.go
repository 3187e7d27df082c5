// Tourtracker - Tour Progress Tracking Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourtracker

/*
Package api serves the tracker over HTTP using the chi router.

Three surfaces share one router:

Game-server protocol (shared-secret, plain text):

	POST /   key, steamid|steam64, timestamp, mission, wave
	         -> "1" already credited, "2" newly credited
	GET  /   key, steam64 [, mission]
	         -> KeyValues text ("tour" or "mission" block)

Web views (CORS, per-IP rate limit, gzip negotiated):

	GET  /tour/{steam64}.csv   per-player wave timestamps
	GET  /tour/global.csv      cached global statistics
	GET  /tour/servers.csv     live game server board
	POST /tour/servers         game server status report (key-checked)
	GET  /tour/vdf             KeyValues for ?steam64= [&mission=]

Operational JSON API:

	GET /api/v1/health/live
	GET /api/v1/health/ready
	GET /api/v1/log/stats
	GET /api/v1/tour/stats
	GET /metrics

Handlers never touch the durable log or the index for writing. Ingest
only validates and enqueues; the single ingest worker owns every write.
*/
package api
