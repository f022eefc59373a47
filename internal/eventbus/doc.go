// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

/*
Package eventbus connects the ingestion gateway to the downstream pipeline
stages through Watermill.

Accepted events are published once to TopicEvents. Every registered stage
(correlation, escalation, enrichment) gets its own subscription, so a slow
stage never holds up the others and a failing stage never affects ingestion.

Two transports are supported:

  - gochannel: in-process, the default for single-node deployments
  - nats: core NATS through watermill-nats, optionally backed by an
    embedded nats-server started by this process

Stage handlers always acknowledge. Events are already durable when they reach
the bus, and detector or producer failures are deterministic, so redelivery
would only repeat the failure.

The router is rebuilt on every RunWithContext call, which lets the supervisor
restart the bus after a transport failure.
*/
package eventbus
