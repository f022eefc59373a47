// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

// Package ingest is the single entry point for events. The Gateway validates
// raw reports, fills severity and confidence from the producer's policy, and
// fans accepted events out in a fixed order: persistence, window, hub, bus.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/hydra/internal/logging"
	"github.com/tomtom215/hydra/internal/metrics"
	"github.com/tomtom215/hydra/internal/models"
	"github.com/tomtom215/hydra/internal/storage"
	"github.com/tomtom215/hydra/internal/validation"
	"github.com/tomtom215/hydra/internal/websocket"
)

// EventStore is the subset of storage.Store the gateway writes through.
type EventStore interface {
	Append(ctx context.Context, e *models.Event) (string, error)
	Get(ctx context.Context, id string) (*models.Event, error)
}

// Window receives accepted events.
type Window interface {
	Append(e *models.Event) bool
}

// Classifier assigns severity and confidence from a raw signal.
type Classifier interface {
	Classify(producerID string, signal models.Signal) (models.Severity, float64, error)
}

// Hub receives the live broadcast of accepted events.
type Hub interface {
	Publish(msg websocket.Message)
}

// EventPublisher hands accepted events to the downstream stages.
type EventPublisher interface {
	PublishEvent(ctx context.Context, e *models.Event) error
}

// Gateway validates and fans out submissions. Safe for concurrent use.
type Gateway struct {
	store      EventStore
	window     Window
	classifier Classifier
	hub        Hub
	bus        EventPublisher
	now        func() time.Time

	// lanes order submissions per producer. A producer always hashes to
	// the same lane; unrelated producers may share one.
	lanes [laneCount]sync.Mutex
}

const laneCount = 64

// NewGateway creates a gateway. classifier may be nil, in which case every
// event must report its own severity and confidence.
func NewGateway(store EventStore, window Window, classifier Classifier) *Gateway {
	return &Gateway{
		store:      store,
		window:     window,
		classifier: classifier,
		now:        time.Now,
	}
}

// SetHub attaches the live broadcast target.
func (g *Gateway) SetHub(h Hub) {
	g.hub = h
}

// SetPublisher attaches the downstream stage publisher.
func (g *Gateway) SetPublisher(p EventPublisher) {
	g.bus = p
}

// SetClock replaces the time source. Intended for tests.
func (g *Gateway) SetClock(now func() time.Time) {
	g.now = now
}

// lane returns the ordering lock for one producer.
func (g *Gateway) lane(producerID string) *sync.Mutex {
	return &g.lanes[laneIndex(producerID)]
}

func laneIndex(producerID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(producerID))
	return int(h.Sum32() % laneCount)
}

// Submit validates raw and ingests it. A duplicate of an already stored
// event returns the stored event and a nil error without repeating any
// side effect.
func (g *Gateway) Submit(ctx context.Context, raw models.RawEvent) (*models.Event, error) {
	start := time.Now()
	producerID := strings.TrimSpace(raw.ProducerID)

	event, err := g.build(raw)
	if err != nil {
		metrics.RecordIngest(producerID, "invalid", 0)
		return nil, err
	}

	lane := g.lane(event.ProducerID)
	lane.Lock()
	defer lane.Unlock()

	if _, err := g.store.Append(ctx, event); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			metrics.RecordIngest(event.ProducerID, "duplicate", 0)
			return g.stored(ctx, event), nil
		}
		metrics.RecordIngest(event.ProducerID, "storage_error", 0)
		logging.Ctx(ctx).Warn().Err(err).
			Str("producer_id", event.ProducerID).
			Str("event_id", event.ID).
			Msg("event persistence failed")
		return nil, &IngestError{Kind: KindStorage, ProducerID: event.ProducerID, Err: err}
	}

	g.window.Append(event)

	if g.hub != nil {
		g.hub.Publish(websocket.NewEventMessage(event))
	}

	if g.bus != nil {
		// The event is durable at this point; a bus failure only skips
		// correlation for it.
		if err := g.bus.PublishEvent(ctx, event); err != nil {
			logging.Ctx(ctx).Error().Err(err).
				Str("event_id", event.ID).
				Msg("failed to publish event to pipeline stages")
		}
	}

	metrics.RecordIngest(event.ProducerID, "accepted", time.Since(start))
	metrics.EventsBySeverity.WithLabelValues(string(event.Severity)).Inc()

	logging.Ctx(ctx).Debug().
		Str("event_id", event.ID).
		Str("producer_id", event.ProducerID).
		Str("severity", string(event.Severity)).
		Str("origin", string(event.Origin)).
		Msg("event ingested")
	return event, nil
}

// stored returns the persisted copy of a duplicate, falling back to the
// freshly built one when the lookup fails. Both share every identity field.
func (g *Gateway) stored(ctx context.Context, event *models.Event) *models.Event {
	existing, err := g.store.Get(ctx, event.ID)
	if err != nil {
		logging.Ctx(ctx).Debug().Err(err).Str("event_id", event.ID).Msg("duplicate lookup failed")
		return event
	}
	return existing
}

// build validates raw and produces the immutable event.
func (g *Gateway) build(raw models.RawEvent) (*models.Event, error) {
	producerID := strings.TrimSpace(raw.ProducerID)

	if raw.Confidence != nil {
		if c := *raw.Confidence; math.IsNaN(c) || c < 0 || c > 1 {
			return nil, &IngestError{
				Kind:       KindInvalidConfidence,
				ProducerID: producerID,
				Field:      "confidence",
				Err:        fmt.Errorf("confidence %v outside [0, 1]", c),
			}
		}
	}

	if verr := validation.ValidateStruct(raw); verr != nil {
		return nil, &IngestError{Kind: KindValidation, ProducerID: producerID, Err: verr}
	}

	severity, confidence, err := g.classify(producerID, raw)
	if err != nil {
		return nil, err
	}

	now := g.now().UTC()
	createdAt := now
	if raw.CreatedAt != nil && !raw.CreatedAt.IsZero() {
		createdAt = raw.CreatedAt.UTC()
	}

	origin := raw.Origin
	if origin == "" {
		origin = models.OriginProducer
	}

	event := &models.Event{
		ProducerID:        producerID,
		Subject:           strings.TrimSpace(raw.Subject),
		Description:       raw.Description,
		Severity:          severity,
		Confidence:        confidence,
		CreatedAt:         createdAt,
		IngestedAt:        now,
		Payload:           raw.Payload,
		RecommendedAction: raw.RecommendedAction,
		Origin:            origin,
	}
	event.ID = models.EventID(event.IdempotencyKey())
	return event, nil
}

// classify resolves severity and confidence. Reported values win; the
// producer's policy fills whatever is missing.
func (g *Gateway) classify(producerID string, raw models.RawEvent) (models.Severity, float64, error) {
	var severity models.Severity
	if raw.Severity != "" {
		s, err := models.ParseSeverity(raw.Severity)
		if err != nil {
			return "", 0, &IngestError{Kind: KindValidation, ProducerID: producerID, Field: "severity", Err: err}
		}
		severity = s
	}

	if severity != "" && raw.Confidence != nil {
		return severity, *raw.Confidence, nil
	}

	if raw.Signal == nil || g.classifier == nil {
		return "", 0, &IngestError{Kind: KindValidation, ProducerID: producerID, Err: ErrNoClassification}
	}

	classified, confidence, err := g.classifier.Classify(producerID, *raw.Signal)
	if err != nil {
		return "", 0, &IngestError{
			Kind:       KindValidation,
			ProducerID: producerID,
			Field:      "signal",
			Err:        fmt.Errorf("%w: %w", ErrNoClassification, err),
		}
	}
	if math.IsNaN(confidence) || confidence < 0 || confidence > 1 {
		return "", 0, &IngestError{
			Kind:       KindInvalidConfidence,
			ProducerID: producerID,
			Field:      "confidence",
			Err:        fmt.Errorf("policy returned confidence %v", confidence),
		}
	}

	if severity == "" {
		severity = classified
	}
	if raw.Confidence != nil {
		confidence = *raw.Confidence
	}
	return severity, confidence, nil
}
