// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

package api

import (
	"context"
	"time"

	"github.com/tomtom215/hydra/internal/detection"
	"github.com/tomtom215/hydra/internal/models"
	"github.com/tomtom215/hydra/internal/producer"
	"github.com/tomtom215/hydra/internal/storage"
	"github.com/tomtom215/hydra/internal/websocket"
	"github.com/tomtom215/hydra/internal/window"
)

// Submitter accepts raw events. Satisfied by *ingest.Gateway.
type Submitter interface {
	Submit(ctx context.Context, raw models.RawEvent) (*models.Event, error)
}

// Reader is the read side of the persistence port.
type Reader interface {
	Get(ctx context.Context, id string) (*models.Event, error)
	Query(ctx context.Context, f storage.EventFilter) ([]*models.Event, error)
	QueryPatterns(ctx context.Context, f storage.PatternFilter) ([]*models.Pattern, error)
	Backend() string
}

// WindowStats reports correlation window occupancy.
type WindowStats interface {
	Stats() window.Stats
}

// ProducerStates lists tracked producer lifecycle state.
type ProducerStates interface {
	States() []producer.State
}

// PatternReporter exposes correlation engine counters and the pattern summary.
type PatternReporter interface {
	Metrics() detection.EngineMetrics
	Summary(top int) detection.Summary
}

// Deps are the components the handlers read from. Only Gateway and Store
// are required; nil optional components are omitted from status output.
type Deps struct {
	Gateway   Submitter
	Store     Reader
	Hub       *websocket.Hub
	Window    WindowStats
	Producers ProducerStates
	Engine    PatternReporter
}

// Handler holds the HTTP handlers.
type Handler struct {
	deps        Deps
	corsOrigins []string
	startTime   time.Time
}

// NewHandler builds a handler. corsOrigins also governs websocket origins.
func NewHandler(deps Deps, corsOrigins []string) *Handler {
	return &Handler{
		deps:        deps,
		corsOrigins: corsOrigins,
		startTime:   time.Now(),
	}
}
