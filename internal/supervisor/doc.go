// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

/*
Package supervisor provides process supervision for Arcanum using suture v4.

The tree has three layers, each its own supervisor so a failing service is
restarted without disturbing the others:

	SupervisorTree ("arcanum")
	├── data-layer
	│   └── photo-store-gc (local badger backend only)
	├── messaging-layer
	│   └── reading-event-consumer
	└── api-layer
	    └── http-server

Supervisor events (restarts, backoff, timeouts) are logged through
sutureslog into the zerolog-backed slog handler from internal/logging.

# Usage

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(),
	    supervisor.TreeConfigFromSettings(&cfg.Supervisor))
	if err != nil {
	    return err
	}
	tree.AddMessagingService(eventbus.NewConsumer(bus, nil))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Supervisor.ShutdownTimeout))
	return tree.Serve(ctx)

A service returning an error is restarted with suture's failure decay and
backoff. A service returning suture.ErrDoNotRestart stays stopped.
*/
package supervisor
