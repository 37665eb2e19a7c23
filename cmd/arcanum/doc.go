// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

// Command arcanum runs the tarot reading interpretation service and a few
// operator tools around it.
//
//	arcanum serve                     run the HTTP API under the supervisor tree
//	arcanum token --user ID           mint a session token for development
//	arcanum draw --spread three-card  draw cards with fixed reversals
//	arcanum fallback --card "The Sun" print the offline narrative for a selection
//	arcanum stream --server URL ...   run a reading against a server and print the stream
//	arcanum readings --user ID        list stored readings straight from the database
//
// Configuration follows the server: defaults, then the YAML file named by
// --config or CONFIG_PATH, then environment variables. draw, fallback and
// stream need no configuration.
//
// # Signal Handling
//
// serve shuts down on SIGINT and SIGTERM. Open reading streams get the
// supervisor shutdown timeout to finish before their connections are closed.
package main
