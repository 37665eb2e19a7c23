// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

/*
Package services adapts Arcanum components to the suture v4 service model.

Every long-running component exposes Serve(ctx context.Context) error. The
event consumer (eventbus.Consumer) and the photo store garbage collector
(storage.BadgerStore) implement it directly. HTTPServerService translates
the blocking ListenAndServe/Shutdown pattern of *http.Server.

A service returns:
  - ctx.Err() after a graceful stop
  - a wrapped error to ask the supervisor for a restart
*/
package services
