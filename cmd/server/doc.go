// Tourtracker - Tour Progress Tracking Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourtracker

/*
Package main is the entry point for the Tourtracker server.

Tourtracker records which waves of which missions every participant of a
cooperative tour has completed, answers progress queries from game servers
and web views, and grants a one-time reward when a participant completes
every mission.

# Application Architecture

The server runs its long-lived components under a Suture v4 tree:

	RootSupervisor ("tourtracker")
	├── DataSupervisor ("data-layer")
	│   └── Log compactor (BadgerDB value-log GC)
	├── ProcessingSupervisor ("processing-layer")
	│   ├── Ingest worker (single writer: log, index, reward)
	│   └── Stats rebuilder (global.csv snapshot)
	└── APISupervisor ("api-layer")
	    └── HTTP Server

Component initialization order:

 1. Configuration: Koanf v2 with defaults, config file and environment
 2. Logging: zerolog
 3. Durable log: BadgerDB, replayed into the progress index and the
    reward ledger before any request is served
 4. Reward: Steam promo client behind a circuit breaker (optional)
 5. Ingest queue and worker
 6. Stats rebuilder and server board
 7. HTTP router (chi)

# Configuration

Required:
  - TOUR_API_KEY: shared secret of the game servers
  - tour.missions in config.yaml, or TOUR_CATALOG_CSV pointing to a
    catalog file

Reward (REWARD_ENABLED=true):
  - STEAM_API_KEY: Steam Web API publisher key
  - REWARD_PROMO_ID: promotional item definition
  - REWARD_DRY_RUN=true logs completions without calling Steam

Behind a reverse proxy:
  - TRUSTED_PROXIES: comma-separated proxy addresses whose
    X-Forwarded-For is believed. Otherwise the socket address is used.

# Signal Handling

SIGINT and SIGTERM stop the tree. The HTTP server drains in-flight
requests, the ingest worker persists everything still queued, and the
durable log is closed last.

# Example Usage

	export TOUR_API_KEY=secret
	export TOUR_CATALOG_CSV=/etc/tourtracker/missions.csv
	export TOURLOG_PATH=/var/lib/tourtracker
	./tourtracker
*/
package main
