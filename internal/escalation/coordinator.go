// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

// Package escalation asks every other producer to investigate a subject
// after a HIGH or CRITICAL event. Calls run concurrently, each under its own
// timeout and circuit breaker, and the coordinator waits for all of them.
// Findings come back through the ingestion gateway as follow-up events,
// which never escalate again.
package escalation

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/hydra/internal/cache"
	"github.com/tomtom215/hydra/internal/config"
	"github.com/tomtom215/hydra/internal/logging"
	"github.com/tomtom215/hydra/internal/metrics"
	"github.com/tomtom215/hydra/internal/models"
)

// Investigator is the slice of the producer capability escalation needs.
type Investigator interface {
	ID() string
	DeepInvestigate(ctx context.Context, subject, triggerDescription string) (*models.InvestigationOutcome, error)
}

// Submitter accepts follow-up events.
type Submitter interface {
	Submit(ctx context.Context, raw models.RawEvent) (*models.Event, error)
}

// Result is one producer's answer. Err is a *ProducerTimeoutError or a
// *ProducerError when the call did not succeed.
type Result struct {
	Outcome *models.InvestigationOutcome
	Err     error
}

const (
	// limiterIdle is how long an unused per-subject limiter is kept.
	limiterIdle = time.Hour
	maxLimiters = 10000
)

// Coordinator fans deep investigations out to attached producers.
type Coordinator struct {
	cfg       config.EscalationConfig
	submitter Submitter

	mu        sync.RWMutex
	producers map[string]Investigator
	breakers  map[string]*gobreaker.CircuitBreaker[*models.InvestigationOutcome]

	limiters *cache.LRU[*rate.Limiter]
}

// NewCoordinator creates a coordinator. submitter may be nil, in which case
// findings are reported but not ingested.
func NewCoordinator(cfg config.EscalationConfig, submitter Submitter) *Coordinator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = time.Minute
	}
	return &Coordinator{
		cfg:       cfg,
		submitter: submitter,
		producers: make(map[string]Investigator),
		breakers:  make(map[string]*gobreaker.CircuitBreaker[*models.InvestigationOutcome]),
		limiters:  cache.NewLRU[*rate.Limiter](maxLimiters, limiterIdle),
	}
}

// SetSubmitter attaches the follow-up sink.
func (c *Coordinator) SetSubmitter(s Submitter) {
	c.submitter = s
}

// Attach registers a producer for deep investigations.
func (c *Coordinator) Attach(p Investigator) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.producers[p.ID()] = p
	if _, ok := c.breakers[p.ID()]; !ok {
		c.breakers[p.ID()] = newBreaker(p.ID(), c.cfg.BreakerFailures, c.cfg.BreakerTimeout)
	}
}

// Detach removes a producer.
func (c *Coordinator) Detach(producerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.producers, producerID)
}

// Producers lists attached producer ids, sorted.
func (c *Coordinator) Producers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.producers))
	for id := range c.producers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ShouldEscalate reports whether e triggers a fan-out: HIGH or CRITICAL and
// not itself the finding of an earlier escalation.
func ShouldEscalate(e *models.Event) bool {
	return e != nil && e.Severity.Escalates() && e.Origin != models.OriginEscalation
}

// allow applies the per-subject storm guard. A zero SubjectRate disables it.
func (c *Coordinator) allow(subject string, now time.Time) bool {
	if c.cfg.SubjectRate <= 0 {
		return true
	}
	burst := c.cfg.SubjectBurst
	if burst <= 0 {
		burst = 1
	}

	l := c.limiters.GetOrAdd(subject, func() *rate.Limiter {
		return rate.NewLimiter(rate.Every(c.cfg.SubjectRate), burst)
	})
	return l.AllowN(now, 1)
}

type target struct {
	producer Investigator
	breaker  *gobreaker.CircuitBreaker[*models.InvestigationOutcome]
}

func (c *Coordinator) targets(exclude string) []target {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]target, 0, len(c.producers))
	for id, p := range c.producers {
		if id == exclude {
			continue
		}
		out = append(out, target{producer: p, breaker: c.breakers[id]})
	}
	return out
}

// Escalate asks every attached producer except the trigger's own to
// investigate trigger.Subject and blocks until all calls finish. Findings
// are submitted as follow-up events. The result maps producer id to its
// outcome. When the subject is rate limited no producer is called and every
// target reports a ProducerError wrapping ErrRateLimited.
func (c *Coordinator) Escalate(ctx context.Context, trigger *models.Event) map[string]Result {
	log := logging.Ctx(ctx).With().
		Str("event_id", trigger.ID).
		Str("subject", trigger.Subject).
		Str("severity", string(trigger.Severity)).
		Logger()

	targets := c.targets(trigger.ProducerID)

	if !c.allow(trigger.Subject, time.Now()) {
		metrics.EscalationsTotal.WithLabelValues("rate_limited").Inc()
		log.Warn().Int("producers", len(targets)).Msg("escalation suppressed by subject rate limit")
		limited := make(map[string]Result, len(targets))
		for _, t := range targets {
			id := t.producer.ID()
			limited[id] = Result{Err: &ProducerError{ProducerID: id, Err: ErrRateLimited}}
		}
		return limited
	}
	metrics.EscalationsTotal.WithLabelValues("started").Inc()

	results := make(map[string]Result, len(targets))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, t := range targets {
		wg.Add(1)
		go func(t target) {
			defer wg.Done()
			r := c.call(ctx, t, trigger)
			mu.Lock()
			results[t.producer.ID()] = r
			mu.Unlock()
		}(t)
	}
	wg.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	log.Info().
		Int("producers", len(results)).
		Int("failed", failed).
		Msg("escalation complete")

	c.submitFindings(ctx, trigger, results)
	return results
}

// call runs one deep investigation under its own timeout. A producer that
// ignores cancellation is abandoned when the timeout fires.
func (c *Coordinator) call(parent context.Context, t target, trigger *models.Event) Result {
	id := t.producer.ID()
	start := time.Now()

	ctx, cancel := context.WithTimeout(parent, c.cfg.Timeout)
	defer cancel()

	outcome, err := t.breaker.Execute(func() (*models.InvestigationOutcome, error) {
		type reply struct {
			outcome *models.InvestigationOutcome
			err     error
		}
		done := make(chan reply, 1)
		go func() {
			o, err := t.producer.DeepInvestigate(ctx, trigger.Subject, trigger.Description)
			done <- reply{o, err}
		}()

		select {
		case r := <-done:
			if r.err == nil && ctx.Err() == context.DeadlineExceeded {
				return nil, ctx.Err()
			}
			return r.outcome, r.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	elapsed := time.Since(start)

	switch {
	case err == nil:
		metrics.RecordEscalationCall(id, "ok", elapsed)
		if outcome != nil {
			if outcome.ProducerID == "" {
				outcome.ProducerID = id
			}
			if outcome.Duration == 0 {
				outcome.Duration = elapsed
			}
		}
		return Result{Outcome: outcome}

	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.RecordEscalationCall(id, "circuit_open", elapsed)
		return Result{Err: &ProducerError{ProducerID: id, Err: errors.Join(ErrCircuitOpen, err)}}

	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == context.DeadlineExceeded && parent.Err() == nil:
		metrics.RecordEscalationCall(id, "timeout", elapsed)
		logging.Warn().Str("producer_id", id).Dur("timeout", c.cfg.Timeout).Msg("deep investigation timed out")
		return Result{Err: &ProducerTimeoutError{ProducerID: id, After: c.cfg.Timeout}}

	default:
		metrics.RecordEscalationCall(id, "error", elapsed)
		logging.Warn().Err(err).Str("producer_id", id).Msg("deep investigation failed")
		return Result{Err: &ProducerError{ProducerID: id, Err: err}}
	}
}

// submitFindings ingests every finding as an escalation follow-up. Missing
// producer and subject fields default to the responder and the trigger.
func (c *Coordinator) submitFindings(ctx context.Context, trigger *models.Event, results map[string]Result) {
	if c.submitter == nil {
		return
	}

	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		outcome := results[id].Outcome
		if !outcome.HasFindings() {
			continue
		}
		for _, raw := range outcome.Findings {
			raw.Origin = models.OriginEscalation
			if raw.ProducerID == "" {
				raw.ProducerID = id
			}
			if raw.Subject == "" {
				raw.Subject = trigger.Subject
			}
			if _, err := c.submitter.Submit(ctx, raw); err != nil {
				logging.Warn().Err(err).
					Str("producer_id", raw.ProducerID).
					Str("trigger_event_id", trigger.ID).
					Msg("follow-up event rejected")
			}
		}
	}
}
