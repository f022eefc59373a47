// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

package websocket

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/hydra/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024 // 512 KB
)

// Client adapts a gorilla connection to Transport. The hub's delivery
// worker is its only data writer; pings go through WriteControl.
type Client struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

// NewClient wraps conn.
func NewClient(conn *websocket.Conn, writeTimeout time.Duration) *Client {
	if writeTimeout <= 0 {
		writeTimeout = writeWait
	}
	return &Client{conn: conn, writeTimeout: writeTimeout}
}

// WriteJSON implements Transport.
func (c *Client) WriteJSON(v interface{}) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(v)
}

// Close implements Transport. It sends a close frame before closing.
func (c *Client) Close() error {
	_ = c.conn.WriteControl(websocket.CloseMessage, // best-effort
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	return c.conn.Close()
}

// ServeConn registers conn with the hub and blocks reading from it until
// the peer goes away. Keepalive pings run alongside.
func ServeConn(hub *Hub, conn *websocket.Conn) {
	client := NewClient(conn, hub.Config().WriteTimeout)
	id := hub.Connect(client)
	defer hub.Disconnect(id)

	done := make(chan struct{})
	defer close(done)
	go client.pingLoop(id, hub.Config().PingInterval, done)

	client.readPump(hub, id)
}

// readPump pumps messages from the websocket connection to the hub
func (c *Client) readPump(hub *Hub, id string) {
	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		hub.Touch(id)
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logging.Error().Err(err).Str("connection_id", id).Msg("unexpected websocket close error")
			}
			return
		}
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			return
		}
		hub.HandleInbound(id, msg)
	}
}

func (c *Client) pingLoop(id string, interval time.Duration, done <-chan struct{}) {
	if interval <= 0 || interval > pingPeriod {
		interval = pingPeriod
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				logging.Debug().Err(err).Str("connection_id", id).Msg("websocket ping failed")
				return
			}
		}
	}
}
