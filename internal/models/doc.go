// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

// Package models defines the records shared by every pipeline stage.
//
// An Event is an immutable intelligence report from one producer about one
// subject. A Pattern is a derived insight computed by the correlation engine
// from several events. Both are created once and never mutated afterwards,
// so they may be shared between goroutines without locking.
//
// RawEvent is the unvalidated form a producer emits; the ingestion gateway
// turns it into an Event. InvestigationOutcome is what a producer returns from
// a deep investigation requested by the escalation coordinator.
package models
