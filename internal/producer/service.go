// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

package producer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/hydra/internal/ingest"
	"github.com/tomtom215/hydra/internal/logging"
	"github.com/tomtom215/hydra/internal/metrics"
	"github.com/tomtom215/hydra/internal/models"
)

// Submitter accepts raw events.
type Submitter interface {
	Submit(ctx context.Context, raw models.RawEvent) (*models.Event, error)
}

// ServiceConfig controls one producer loop.
type ServiceConfig struct {
	Subjects      []string
	SubmitRetries int
	RetryBackoff  time.Duration
	Buffer        int
}

// Service runs one producer and submits everything it reports. It is
// meant to run under a supervisor: a producer error ends RunWithContext and
// the supervisor restarts it with backoff.
type Service struct {
	producer  Producer
	submitter Submitter
	tracker   *Tracker
	cfg       ServiceConfig
}

// NewService creates the loop for p. The tracker is handed to producers
// that accept one.
func NewService(p Producer, submitter Submitter, tracker *Tracker, cfg ServiceConfig) *Service {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 64
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	if tracker == nil {
		tracker = NewTracker(p.ID())
	}
	if tr, ok := p.(interface{ Track(*Tracker) }); ok {
		tr.Track(tracker)
	}
	return &Service{producer: p, submitter: submitter, tracker: tracker, cfg: cfg}
}

// RunWithContext runs the producer until ctx is canceled or it fails.
func (s *Service) RunWithContext(ctx context.Context) error {
	id := s.producer.ID()
	log := logging.WithProducer(id)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := make(chan models.RawEvent, s.cfg.Buffer)
	runErr := make(chan error, 1)
	go func() {
		runErr <- s.producer.Run(runCtx, s.cfg.Subjects, out)
	}()

	log.Info().Strs("subjects", s.cfg.Subjects).Msg("producer started")

	for {
		select {
		case raw := <-out:
			s.submit(runCtx, id, raw)

		case err := <-runErr:
			// Drain what the producer sent before stopping.
			for drained := false; !drained; {
				select {
				case raw := <-out:
					s.submit(ctx, id, raw)
				default:
					drained = true
				}
			}
			if ctx.Err() != nil {
				log.Info().Msg("producer stopped")
				return ctx.Err()
			}
			if err == nil {
				err = errors.New("producer exited")
			}
			s.tracker.Failed(err)
			metrics.ProducerErrors.WithLabelValues(id).Inc()
			return fmt.Errorf("producer %s: %w", id, err)
		}
	}
}

// submit hands one report to the gateway, retrying storage failures.
func (s *Service) submit(ctx context.Context, id string, raw models.RawEvent) {
	if raw.ProducerID == "" {
		raw.ProducerID = id
	}
	raw.Origin = models.OriginProducer

	s.tracker.Processing()
	backoff := s.cfg.RetryBackoff

	for attempt := 0; ; attempt++ {
		_, err := s.submitter.Submit(ctx, raw)
		if err == nil {
			s.tracker.Submitted()
			metrics.ProducerEvents.WithLabelValues(id).Inc()
			return
		}
		if !ingest.IsRetryable(err) || attempt >= s.cfg.SubmitRetries {
			s.tracker.Failed(err)
			metrics.ProducerErrors.WithLabelValues(id).Inc()
			logging.Warn().Err(err).Str("producer_id", id).Int("attempts", attempt+1).Msg("event rejected")
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

// String implements fmt.Stringer for suture logs.
func (s *Service) String() string {
	return "producer-" + s.producer.ID()
}
