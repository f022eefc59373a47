// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

/*
Package websocket distributes events and patterns to live subscribers.

The Hub owns the connection set. Each connection has a bounded outbound
queue and its own delivery goroutine, so a slow subscriber only ever delays
itself:

	Publish ──┬─> [queue] ─> worker ─> Transport (conn 1)
	          ├─> [queue] ─> worker ─> Transport (conn 2)
	          └─> [queue] ─> worker ─> Transport (conn 3)

Publish never blocks. When a queue is full the oldest queued message of that
connection is dropped and counted; other connections are unaffected. A
failed write tears the connection down and the client is expected to
reconnect.

Message Types:

  - connection_established: sent first on every connection, carries its id
  - event: an ingested event, with an alert flag
  - pattern: a newly detected pattern
  - analysis: an enrichment summary of a high severity event
  - ping / pong: client keepalive

Every message is a JSON object {type, data, timestamp}.

Client wraps a gorilla/websocket connection as a Transport and runs the read
loop that answers pings and keeps the connection's activity time fresh.
Connections with no activity for the stale TTL are removed by the hub's
sweep.
*/
package websocket
