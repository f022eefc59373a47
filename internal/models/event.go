// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Origin records how an event entered the pipeline.
type Origin string

const (
	OriginProducer   Origin = "producer"
	OriginEscalation Origin = "escalation"
	OriginAPI        Origin = "api"
)

// eventNamespace seeds the name-based UUIDs used as event ids.
var eventNamespace = uuid.MustParse("6f1c3c8e-2b7a-4a53-9a55-0c6f5d3f9e11")

// Event is a validated intelligence report. Fields are never modified after
// the ingestion gateway creates it.
type Event struct {
	ID                string                 `json:"id"`
	ProducerID        string                 `json:"producer_id"`
	Subject           string                 `json:"subject"`
	Description       string                 `json:"description"`
	Severity          Severity               `json:"severity"`
	Confidence        float64                `json:"confidence"`
	CreatedAt         time.Time              `json:"created_at"`
	IngestedAt        time.Time              `json:"ingested_at"`
	Payload           map[string]interface{} `json:"payload,omitempty"`
	RecommendedAction string                 `json:"recommended_action,omitempty"`
	Origin            Origin                 `json:"origin"`
}

// IdempotencyKey returns the key under which e is deduplicated.
func (e *Event) IdempotencyKey() string {
	return IdempotencyKey(e.ProducerID, e.Subject, e.Description, e.CreatedAt)
}

// IsAlert reports whether the confidence meets the alert threshold of the
// event's severity.
func (e *Event) IsAlert() bool {
	return e.Confidence >= e.Severity.AlertThreshold()
}

// IdempotencyKey hashes the identity tuple of an event. created_at is
// normalized to UTC nanoseconds so equal instants in different zones match.
func IdempotencyKey(producerID, subject, description string, createdAt time.Time) string {
	h := sha256.New()
	for _, part := range []string{producerID, subject, description, strconv.FormatInt(createdAt.UTC().UnixNano(), 10)} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// EventID derives the stable event id for an idempotency key.
func EventID(key string) string {
	return uuid.NewSHA1(eventNamespace, []byte(key)).String()
}

// Signal is the raw measurement a producer reports when it leaves severity
// assignment to the classifier.
type Signal struct {
	Type      string  `json:"type" validate:"required"`
	Magnitude float64 `json:"magnitude"`
}

// RawEvent is an unvalidated event as emitted by a producer or submitted over
// the API. Severity and Confidence are optional when Signal is set.
type RawEvent struct {
	ProducerID        string                 `json:"producer_id" validate:"required,notblank,max=128"`
	Subject           string                 `json:"subject" validate:"required,notblank"`
	Description       string                 `json:"description" validate:"required,notblank"`
	Severity          string                 `json:"severity,omitempty" validate:"omitempty,severity"`
	Confidence        *float64               `json:"confidence,omitempty" validate:"omitempty,unitinterval"`
	CreatedAt         *time.Time             `json:"created_at,omitempty"`
	Payload           map[string]interface{} `json:"payload,omitempty"`
	RecommendedAction string                 `json:"recommended_action,omitempty"`
	Signal            *Signal                `json:"signal,omitempty" validate:"omitempty"`
	Origin            Origin                 `json:"-"`
}

// Float64 returns a pointer to v, for building RawEvent literals.
func Float64(v float64) *float64 {
	return &v
}

// Time returns a pointer to t.
func Time(t time.Time) *time.Time {
	return &t
}
