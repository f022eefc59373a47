// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

package websocket

import (
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/hydra/internal/models"
)

// Message types for WebSocket communication
const (
	MessageTypeEvent                 = "event"
	MessageTypePattern               = "pattern"
	MessageTypeAnalysis              = "analysis"
	MessageTypePing                  = "ping"
	MessageTypePong                  = "pong"
	MessageTypeConnectionEstablished = "connection_established"
)

// Message is the wire envelope.
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// EventData is the payload of an event message.
type EventData struct {
	*models.Event
	Alert bool `json:"alert"`
}

// NewEventMessage wraps an ingested event, flagging it when its confidence
// meets the alert threshold of its severity.
func NewEventMessage(e *models.Event) Message {
	return Message{
		Type:      MessageTypeEvent,
		Data:      EventData{Event: e, Alert: e.IsAlert()},
		Timestamp: time.Now().UTC(),
	}
}

// WelcomeData is the payload of connection_established.
type WelcomeData struct {
	ConnectionID string    `json:"connection_id"`
	ServerTime   time.Time `json:"server_time"`
	Message      string    `json:"message"`
}

// MarshalMessage converts a message to JSON
func MarshalMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}
