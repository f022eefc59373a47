// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

/*
Package supervisor runs Hydra's long-lived services under a suture v4 tree.

# Layout

	hydra (root)
	├── data-layer
	│   ├── storage-gc
	│   └── window-sweeper
	├── messaging-layer
	│   ├── nats-embedded (optional)
	│   ├── event-bus
	│   ├── websocket-hub
	│   └── enrichment (optional)
	├── producer-layer
	│   └── producer-<id> (one per configured endpoint)
	└── api-layer
	    └── http-server

Each layer is its own supervisor, so a crash loop in one producer puts only
the producer layer into backoff. Services are adapted to suture.Service by
the wrappers in the services subpackage.

# Failure Handling

A service that returns a non-nil error (other than context cancellation) is
restarted. After FailureThreshold failures within the decay window the
layer waits FailureBackoff before the next restart. Supervisor events are
logged through sutureslog using the slog bridge from internal/logging.

# Shutdown

Canceling the context passed to Serve stops every service. Services that do
not return within ShutdownTimeout are listed by UnstoppedServiceReport.
*/
package supervisor
