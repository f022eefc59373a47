// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

package enrich

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/hydra/internal/config"
	"github.com/tomtom215/hydra/internal/logging"
	"github.com/tomtom215/hydra/internal/metrics"
	"github.com/tomtom215/hydra/internal/models"
)

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Model() string
}

// Broadcaster delivers the analysis to subscribers.
type Broadcaster interface {
	BroadcastJSON(messageType string, data interface{})
}

// Analysis is the payload of an "analysis" message.
type Analysis struct {
	EventID     string          `json:"event_id"`
	ProducerID  string          `json:"producer_id"`
	Subject     string          `json:"subject"`
	Severity    models.Severity `json:"severity"`
	Summary     string          `json:"summary"`
	Model       string          `json:"model"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// Enricher queues HIGH and CRITICAL events and analyzes them one at a time.
type Enricher struct {
	gen         Generator
	broadcaster Broadcaster
	limiter     *rate.Limiter
	queue       chan *models.Event
}

// NewEnricher creates an enricher from cfg. A zero Rate disables limiting.
func NewEnricher(cfg config.EnrichConfig, gen Generator, broadcaster Broadcaster) *Enricher {
	size := cfg.Queue
	if size <= 0 {
		size = 64
	}
	limit := rate.Inf
	if cfg.Rate > 0 {
		limit = rate.Limit(cfg.Rate)
	}
	return &Enricher{
		gen:         gen,
		broadcaster: broadcaster,
		limiter:     rate.NewLimiter(limit, 1),
		queue:       make(chan *models.Event, size),
	}
}

// Enqueue is the pipeline stage. Events below HIGH are ignored; a full
// queue drops the event.
func (en *Enricher) Enqueue(_ context.Context, e *models.Event) error {
	if !e.Severity.AtLeast(models.SeverityHigh) {
		return nil
	}
	select {
	case en.queue <- e:
	default:
		metrics.EnrichmentRequests.WithLabelValues("skipped").Inc()
		logging.Debug().Str("event_id", e.ID).Msg("enrichment queue full, skipping event")
	}
	return nil
}

// RunWithContext drains the queue until ctx is canceled.
func (en *Enricher) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e := <-en.queue:
			if err := en.limiter.Wait(ctx); err != nil {
				return ctx.Err()
			}
			en.analyze(ctx, e)
		}
	}
}

func (en *Enricher) analyze(ctx context.Context, e *models.Event) {
	summary, err := en.gen.Generate(ctx, Prompt(e))
	if err != nil {
		metrics.EnrichmentRequests.WithLabelValues("error").Inc()
		logging.Warn().Err(err).Str("event_id", e.ID).Msg("enrichment failed")
		return
	}
	metrics.EnrichmentRequests.WithLabelValues("ok").Inc()

	en.broadcaster.BroadcastJSON("analysis", Analysis{
		EventID:     e.ID,
		ProducerID:  e.ProducerID,
		Subject:     e.Subject,
		Severity:    e.Severity,
		Summary:     summary,
		Model:       en.gen.Model(),
		GeneratedAt: time.Now().UTC(),
	})
}
