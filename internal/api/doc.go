// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

/*
Package api serves Hydra's HTTP surface with go-chi.

Routes:

	GET  /ws                      websocket subscription to the distribution hub
	GET  /api/v1/events           query stored events
	POST /api/v1/events           submit a raw event through the ingestion gateway
	GET  /api/v1/events/{id}      fetch one event
	GET  /api/v1/patterns         query stored patterns
	GET  /api/v1/patterns/summary pattern summary (counts, top patterns, trending entities)
	GET  /api/v1/status           hub, window, producer and detector state
	GET  /api/v1/health           liveness
	GET  /metrics                 Prometheus exposition

Every JSON body uses models.APIResponse. Errors carry a code:

	VALIDATION_ERROR    400  malformed field or unclassifiable event
	INVALID_CONFIDENCE  400  confidence outside [0, 1]
	INVALID_PARAMETER   400  bad query parameter
	NOT_FOUND           404
	STORAGE_ERROR       503  persistence failed; retry
*/
package api
