// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

/*
Package services adapts Hydra components to suture.Service.

Three lifecycle shapes are covered:

	RunWithContext(ctx) error        RunnerService
	ListenAndServe / Shutdown        HTTPServerService
	Start / Shutdown / IsRunning     BrokerService

RunnerService has named constructors for each runner in the process
(websocket-hub, window-sweeper, storage-gc, event-bus, enrichment and
producer-<id>) so supervisor logs identify the failing component.

A runner that returns while its context is still live is treated as a
crash and restarted. Returning ctx.Err() after cancellation is a clean stop.
*/
package services
