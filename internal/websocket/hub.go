// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

package websocket

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/hydra/internal/config"
	"github.com/tomtom215/hydra/internal/logging"
	"github.com/tomtom215/hydra/internal/metrics"
)

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled indicates the parent context was canceled.
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline indicates the context deadline was exceeded.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Disconnect reasons, used as the metrics label.
const (
	reasonClient    = "client"
	reasonTransport = "transport_error"
	reasonStale     = "stale"
	reasonShutdown  = "shutdown"
)

// Stats summarizes the hub.
type Stats struct {
	ActiveConnections        int     `json:"active_connections"`
	TotalConnections         uint64  `json:"total_connections"`
	TotalMessages            uint64  `json:"total_messages"`
	DroppedMessages          uint64  `json:"dropped_messages"`
	AvgMessagesPerConnection float64 `json:"avg_messages_per_connection"`
	AvgConnectionAgeSeconds  float64 `json:"avg_connection_age_seconds"`
}

// Hub maintains the set of active connections and fans messages out to them.
type Hub struct {
	config config.HubConfig
	now    func() time.Time

	mu    sync.RWMutex
	conns map[string]*connection

	totalConnections atomic.Uint64
	totalDelivered   atomic.Uint64
	totalDropped     atomic.Uint64
}

// NewHub creates a hub. Zero config values get defaults.
func NewHub(cfg config.HubConfig) *Hub {
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 100
	}
	if cfg.StaleTTL <= 0 {
		cfg.StaleTTL = time.Hour
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = writeWait
	}
	return &Hub{
		config: cfg,
		now:    time.Now,
		conns:  make(map[string]*connection),
	}
}

// SetClock replaces the time source. Intended for tests.
func (h *Hub) SetClock(now func() time.Time) {
	h.now = now
}

// Config returns the effective configuration.
func (h *Hub) Config() config.HubConfig {
	return h.config
}

// Connect registers a transport, starts its delivery worker and queues the
// welcome message. It returns the connection id.
func (h *Hub) Connect(t Transport) string {
	id := uuid.NewString()
	now := h.now()
	c := newConnection(id, t, h.config.QueueCapacity, now)

	h.mu.Lock()
	h.conns[id] = c
	count := len(h.conns)
	h.mu.Unlock()

	h.totalConnections.Add(1)
	metrics.HubConnections.Inc()

	go h.deliver(c)

	c.enqueue(Message{
		Type: MessageTypeConnectionEstablished,
		Data: WelcomeData{
			ConnectionID: id,
			ServerTime:   now.UTC(),
			Message:      "Connected to Hydra intelligence stream",
		},
		Timestamp: now.UTC(),
	})

	logging.Info().Str("connection_id", id).Int("total_clients", count).Msg("websocket client connected")
	return id
}

// Disconnect removes a connection and closes its transport. Unknown ids are ignored.
func (h *Hub) Disconnect(id string) {
	h.remove(id, reasonClient, nil)
}

func (h *Hub) remove(id, reason string, cause error) {
	h.mu.Lock()
	c, ok := h.conns[id]
	if ok {
		delete(h.conns, id)
	}
	count := len(h.conns)
	h.mu.Unlock()

	if !ok || !c.close() {
		return
	}
	_ = c.transport.Close() // best-effort cleanup

	metrics.HubConnections.Dec()
	metrics.HubDisconnects.WithLabelValues(reason).Inc()

	log := logging.Info()
	if cause != nil {
		log = logging.Warn().Err(cause)
	}
	log.Str("connection_id", id).
		Str("reason", reason).
		Int("total_clients", count).
		Msg("websocket client disconnected")
}

// deliver writes queued messages to the transport until the connection
// closes. A write failure tears the connection down.
func (h *Hub) deliver(c *connection) {
	for {
		select {
		case <-c.done:
			return
		case <-c.signal:
		}

		for {
			msg, ok := c.pop()
			if !ok {
				break
			}
			if err := c.transport.WriteJSON(msg); err != nil {
				h.remove(c.id, reasonTransport, &TransportError{ConnectionID: c.id, Err: err})
				return
			}
			c.markDelivered()
			h.totalDelivered.Add(1)
			metrics.HubMessagesDelivered.Inc()
		}
	}
}

// Publish queues msg for every connection. It never blocks.
func (h *Hub) Publish(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = h.now().UTC()
	}
	for _, c := range h.snapshot() {
		h.enqueue(c, msg)
	}
}

// Send queues msg for one connection. It reports whether the id is live.
func (h *Hub) Send(id string, msg Message) bool {
	h.mu.RLock()
	c, ok := h.conns[id]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = h.now().UTC()
	}
	return h.enqueue(c, msg)
}

func (h *Hub) enqueue(c *connection, msg Message) bool {
	dropped, ok := c.enqueue(msg)
	if dropped {
		h.totalDropped.Add(1)
		metrics.HubMessagesDropped.Inc()
	}
	return ok
}

// BroadcastJSON publishes data under messageType.
func (h *Hub) BroadcastJSON(messageType string, data interface{}) {
	h.Publish(Message{Type: messageType, Data: data})
}

// HandleInbound records a client message and answers pings.
func (h *Hub) HandleInbound(id string, msg Message) {
	h.mu.RLock()
	c, ok := h.conns[id]
	h.mu.RUnlock()
	if !ok {
		return
	}
	c.touch(h.now(), true)

	if msg.Type == MessageTypePing {
		h.enqueue(c, Message{Type: MessageTypePong, Timestamp: h.now().UTC()})
	}
}

// Touch refreshes a connection's activity time without counting a message.
func (h *Hub) Touch(id string) {
	h.mu.RLock()
	c, ok := h.conns[id]
	h.mu.RUnlock()
	if ok {
		c.touch(h.now(), false)
	}
}

func (h *Hub) snapshot() []*connection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*connection, 0, len(h.conns))
	for _, c := range h.conns {
		out = append(out, c)
	}
	return out
}

// Connections returns a snapshot of every live connection, oldest first.
func (h *Hub) Connections() []ConnectionInfo {
	conns := h.snapshot()
	out := make([]ConnectionInfo, 0, len(conns))
	for _, c := range conns {
		out = append(out, c.info())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ConnectedAt.Equal(out[j].ConnectedAt) {
			return out[i].ConnectedAt.Before(out[j].ConnectedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Stats reports totals and per-connection averages.
func (h *Hub) Stats() Stats {
	infos := h.Connections()
	now := h.now()

	st := Stats{
		ActiveConnections: len(infos),
		TotalConnections:  h.totalConnections.Load(),
		TotalMessages:     h.totalDelivered.Load(),
		DroppedMessages:   h.totalDropped.Load(),
	}
	if len(infos) == 0 {
		return st
	}

	var delivered uint64
	var age time.Duration
	for _, ci := range infos {
		delivered += ci.DeliveredCount
		age += now.Sub(ci.ConnectedAt)
	}
	st.AvgMessagesPerConnection = float64(delivered) / float64(len(infos))
	st.AvgConnectionAgeSeconds = age.Seconds() / float64(len(infos))
	return st
}

// SweepStale removes connections idle for longer than the stale TTL and
// returns how many were removed.
func (h *Hub) SweepStale(now time.Time) int {
	var stale []string
	for _, c := range h.snapshot() {
		if now.Sub(c.info().LastActivity) > h.config.StaleTTL {
			stale = append(stale, c.id)
		}
	}
	for _, id := range stale {
		h.remove(id, reasonStale, nil)
	}
	return len(stale)
}

// RunWithContext sweeps stale connections until ctx is canceled, then
// closes every connection. It returns ctx.Err().
func (h *Hub) RunWithContext(ctx context.Context) error {
	ticker := time.NewTicker(h.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		case <-ticker.C:
			if n := h.SweepStale(h.now()); n > 0 {
				logging.Info().Int("removed", n).Msg("removed stale websocket clients")
			}
		}
	}
}

// logGracefulShutdown closes all connections and logs the shutdown.
// ctx.Err() is not logged as an error: cancellation is the normal path.
func (h *Hub) logGracefulShutdown(ctx context.Context) {
	conns := h.snapshot()
	for _, c := range conns {
		h.remove(c.id, reasonShutdown, nil)
	}

	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(getShutdownReason(ctx))).
		Int("clients_closed", len(conns)).
		Msg("websocket hub stopped")
}

// getShutdownReason determines the shutdown reason from the context error.
func getShutdownReason(ctx context.Context) ShutdownReason {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return ShutdownReasonContextDeadline
	default:
		return ShutdownReasonContextCanceled
	}
}
