// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

package websocket

import (
	"fmt"
	"sync"
	"time"
)

// Transport writes messages to one subscriber.
type Transport interface {
	WriteJSON(v interface{}) error
	Close() error
}

// TransportError wraps a failed write to a subscriber.
type TransportError struct {
	ConnectionID string
	Err          error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("connection %s: %v", e.ConnectionID, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ConnectionInfo is a snapshot of one connection.
type ConnectionInfo struct {
	ID             string    `json:"id"`
	ConnectedAt    time.Time `json:"connected_at"`
	LastActivity   time.Time `json:"last_activity"`
	QueueDepth     int       `json:"queue_depth"`
	DeliveredCount uint64    `json:"delivered_count"`
	DroppedCount   uint64    `json:"dropped_count"`
	MessageCount   uint64    `json:"message_count"`
}

type connection struct {
	id          string
	transport   Transport
	connectedAt time.Time

	// signal has capacity 1 and wakes the worker after an enqueue.
	signal chan struct{}
	done   chan struct{}

	mu           sync.Mutex
	buf          []Message
	head         int
	size         int
	lastActivity time.Time
	delivered    uint64
	dropped      uint64
	received     uint64
	closed       bool
}

func newConnection(id string, t Transport, capacity int, now time.Time) *connection {
	return &connection{
		id:           id,
		transport:    t,
		connectedAt:  now,
		lastActivity: now,
		signal:       make(chan struct{}, 1),
		done:         make(chan struct{}),
		buf:          make([]Message, capacity),
	}
}

// enqueue appends msg, dropping the oldest queued message when full. It
// reports whether a message was dropped.
func (c *connection) enqueue(msg Message) (dropped bool, ok bool) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false, false
	}
	if c.size == len(c.buf) {
		c.buf[c.head] = Message{}
		c.head = (c.head + 1) % len(c.buf)
		c.size--
		c.dropped++
		dropped = true
	}
	c.buf[(c.head+c.size)%len(c.buf)] = msg
	c.size++
	c.mu.Unlock()

	select {
	case c.signal <- struct{}{}:
	default:
	}
	return dropped, true
}

func (c *connection) pop() (Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.size == 0 || c.closed {
		return Message{}, false
	}
	msg := c.buf[c.head]
	c.buf[c.head] = Message{}
	c.head = (c.head + 1) % len(c.buf)
	c.size--
	return msg, true
}

func (c *connection) markDelivered() {
	c.mu.Lock()
	c.delivered++
	c.mu.Unlock()
}

func (c *connection) touch(now time.Time, inbound bool) {
	c.mu.Lock()
	c.lastActivity = now
	if inbound {
		c.received++
	}
	c.mu.Unlock()
}

// close marks the connection closed. It reports false if it already was.
func (c *connection) close() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	close(c.done)
	return true
}

func (c *connection) info() ConnectionInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ConnectionInfo{
		ID:             c.id,
		ConnectedAt:    c.connectedAt,
		LastActivity:   c.lastActivity,
		QueueDepth:     c.size,
		DeliveredCount: c.delivered,
		DroppedCount:   c.dropped,
		MessageCount:   c.received,
	}
}
