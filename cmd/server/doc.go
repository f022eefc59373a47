// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

// Command server runs the Hydra pipeline.
//
// Startup order:
//
//  1. Configuration (koanf: defaults, YAML file, environment)
//  2. Logging
//  3. Storage backend (badger, duckdb or memory)
//  4. Correlation window, classifier, distribution hub, correlation engine
//  5. Ingestion gateway and event bus stages (correlate, escalate, enrich)
//  6. Producers from producers.endpoints, attached to escalation
//  7. Supervisor tree and HTTP server
//
// SIGINT and SIGTERM cancel the tree. Every service gets
// supervisor.shutdown_timeout to stop; storage is closed last.
//
// Example:
//
//	export STORAGE_BACKEND=badger
//	export SUBJECTS=acme,globex
//	./hydra
package main
