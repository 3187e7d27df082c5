// Tourtracker - Tour Progress Tracking Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourtracker

/*
Package supervisor provides process supervision using suture v4.

The tree organizes long-running services into three layers so that a
failure in one layer is restarted without touching the others:

	RootSupervisor ("tourtracker")
	├── DataSupervisor ("data-layer")
	│   └── LoopService "log-compactor"
	├── ProcessingSupervisor ("processing-layer")
	│   ├── LoopService "ingest-worker"
	│   └── LoopService "stats-rebuilder"
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

Crashed services are restarted with suture's exponential backoff. Events
are logged through sutureslog into the zerolog-backed slog handler.

Basic setup in main.go:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger("supervisor"), supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddDataService(services.NewLoopService("log-compactor", compactor))
	tree.AddProcessingService(services.NewLoopService("ingest-worker", worker))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))

	errCh := tree.ServeBackground(ctx)
*/
package supervisor
