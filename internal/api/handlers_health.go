// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/hydra/internal/detection"
	"github.com/tomtom215/hydra/internal/producer"
	"github.com/tomtom215/hydra/internal/storage"
	"github.com/tomtom215/hydra/internal/websocket"
	"github.com/tomtom215/hydra/internal/window"
)

// HealthStatus is the body of GET /api/v1/health.
type HealthStatus struct {
	Status           string  `json:"status"`
	StorageBackend   string  `json:"storage_backend"`
	StorageConnected bool    `json:"storage_connected"`
	Connections      int     `json:"connections"`
	Uptime           float64 `json:"uptime_seconds"`
}

// PipelineStatus is the body of GET /api/v1/status.
type PipelineStatus struct {
	Hub       *websocket.Stats         `json:"hub,omitempty"`
	Window    *window.Stats            `json:"window,omitempty"`
	Producers []producer.State         `json:"producers"`
	Detection *detection.EngineMetrics `json:"detection,omitempty"`
	Patterns  *detection.Summary       `json:"patterns,omitempty"`
	Uptime    float64                  `json:"uptime_seconds"`
}

// Health handles GET /api/v1/health. A failing storage read marks the
// service degraded but still answers 200 so load balancers keep routing
// queries that do not touch storage.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	_, err := h.deps.Store.Query(r.Context(), storage.EventFilter{Limit: 1})
	health := HealthStatus{
		Status:           "healthy",
		StorageBackend:   h.deps.Store.Backend(),
		StorageConnected: err == nil,
		Uptime:           time.Since(h.startTime).Seconds(),
	}
	if err != nil {
		health.Status = "degraded"
	}
	if h.deps.Hub != nil {
		health.Connections = h.deps.Hub.GetClientCount()
	}
	respondData(w, http.StatusOK, health, 0, started)
}

// Status handles GET /api/v1/status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	status := PipelineStatus{
		Producers: []producer.State{},
		Uptime:    time.Since(h.startTime).Seconds(),
	}
	if h.deps.Hub != nil {
		s := h.deps.Hub.Stats()
		status.Hub = &s
	}
	if h.deps.Window != nil {
		s := h.deps.Window.Stats()
		status.Window = &s
	}
	if h.deps.Producers != nil {
		status.Producers = h.deps.Producers.States()
	}
	if h.deps.Engine != nil {
		m := h.deps.Engine.Metrics()
		s := h.deps.Engine.Summary(5)
		status.Detection = &m
		status.Patterns = &s
	}
	respondData(w, http.StatusOK, status, 0, started)
}
