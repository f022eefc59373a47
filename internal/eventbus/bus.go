// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

package eventbus

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/goccy/go-json"

	"github.com/tomtom215/hydra/internal/config"
	"github.com/tomtom215/hydra/internal/logging"
	"github.com/tomtom215/hydra/internal/metrics"
	"github.com/tomtom215/hydra/internal/models"
)

// TopicEvents carries every accepted event.
const TopicEvents = "hydra.events"

// publishWait bounds how long PublishEvent waits for the router to start.
const publishWait = 5 * time.Second

// ErrNotRunning is returned by PublishEvent when no router is running.
var ErrNotRunning = errors.New("event bus not running")

// StageFunc processes one event.
type StageFunc func(ctx context.Context, e *models.Event) error

type stage struct {
	name string
	fn   StageFunc
}

// transport is one run's publisher plus a subscriber factory.
type transport struct {
	publisher message.Publisher
	subscribe func(stage string) (message.Subscriber, error)
	close     func() error
}

// Bus publishes accepted events and runs the stage handlers.
type Bus struct {
	cfg    config.BusConfig
	logger watermill.LoggerAdapter

	// newTransport is replaced in tests.
	newTransport func() (*transport, error)

	mu        sync.RWMutex
	stages    []stage
	publisher message.Publisher
	ready     chan struct{}
}

// New creates a bus for cfg.Backend. Nothing connects until RunWithContext.
func New(cfg config.BusConfig) (*Bus, error) {
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = 10 * time.Second
	}
	b := &Bus{
		cfg:    cfg,
		logger: watermill.NewSlogLogger(logging.NewSlogLogger()),
		ready:  make(chan struct{}),
	}

	switch cfg.Backend {
	case "", "gochannel":
		b.newTransport = b.goChannelTransport
	case "nats":
		b.newTransport = b.natsTransport
	default:
		return nil, fmt.Errorf("unknown bus backend %q", cfg.Backend)
	}
	return b, nil
}

// AddStage registers a handler. Stages added after RunWithContext starts
// take effect on the next run.
func (b *Bus) AddStage(name string, fn StageFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stages = append(b.stages, stage{name: name, fn: fn})
}

// Stages lists registered stage names in registration order.
func (b *Bus) Stages() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, len(b.stages))
	for i, s := range b.stages {
		names[i] = s.name
	}
	return names
}

// Ready is closed once the router of the current run is consuming.
func (b *Bus) Ready() <-chan struct{} {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ready
}

// PublishEvent hands e to every stage. It waits briefly for the router
// when called during startup or a restart.
func (b *Bus) PublishEvent(ctx context.Context, e *models.Event) error {
	pub, err := b.currentPublisher(ctx)
	if err != nil {
		metrics.BusPublishErrors.Inc()
		return err
	}

	payload, err := json.Marshal(e)
	if err != nil {
		metrics.BusPublishErrors.Inc()
		return fmt.Errorf("marshal event %s: %w", e.ID, err)
	}

	msg := message.NewMessage(e.ID, payload)
	msg.Metadata.Set("producer_id", e.ProducerID)
	msg.Metadata.Set("severity", string(e.Severity))
	if cid := logging.CorrelationIDFromContext(ctx); cid != "" {
		middleware.SetCorrelationID(cid, msg)
	}

	if err := pub.Publish(TopicEvents, msg); err != nil {
		metrics.BusPublishErrors.Inc()
		return fmt.Errorf("publish event %s: %w", e.ID, err)
	}
	return nil
}

func (b *Bus) currentPublisher(ctx context.Context) (message.Publisher, error) {
	b.mu.RLock()
	pub, ready := b.publisher, b.ready
	b.mu.RUnlock()
	if pub != nil {
		return pub, nil
	}

	timer := time.NewTimer(publishWait)
	defer timer.Stop()
	select {
	case <-ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrNotRunning
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.publisher == nil {
		return nil, ErrNotRunning
	}
	return b.publisher, nil
}

// RunWithContext builds a transport and a router with one handler per
// stage, and runs until ctx is canceled or the router fails.
func (b *Bus) RunWithContext(ctx context.Context) error {
	t, err := b.newTransport()
	if err != nil {
		return fmt.Errorf("create bus transport: %w", err)
	}

	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: b.cfg.CloseTimeout}, b.logger)
	if err != nil {
		_ = t.close()
		return fmt.Errorf("create watermill router: %w", err)
	}
	router.AddMiddleware(middleware.CorrelationID, middleware.Recoverer)

	b.mu.RLock()
	stages := append([]stage(nil), b.stages...)
	b.mu.RUnlock()

	for _, s := range stages {
		sub, err := t.subscribe(s.name)
		if err != nil {
			_ = t.close()
			return fmt.Errorf("subscribe stage %s: %w", s.name, err)
		}
		router.AddConsumerHandler(s.name, TopicEvents, sub, b.handle(s))
	}

	stopped := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-router.Running():
			b.mu.Lock()
			b.publisher = t.publisher
			close(b.ready)
			b.mu.Unlock()
			logging.Info().Str("backend", b.backend()).Int("stages", len(stages)).Msg("event bus running")
		case <-stopped:
		}
	}()

	runErr := router.Run(ctx)
	close(stopped)
	wg.Wait()

	b.mu.Lock()
	b.publisher = nil
	select {
	case <-b.ready:
		b.ready = make(chan struct{})
	default:
	}
	b.mu.Unlock()

	if err := t.close(); err != nil {
		logging.Warn().Err(err).Msg("closing bus transport")
	}

	if ctx.Err() != nil {
		logging.Info().Str("component", "event-bus").Msg("event bus stopped")
		return ctx.Err()
	}
	if runErr == nil {
		runErr = errors.New("router stopped unexpectedly")
	}
	return runErr
}

func (b *Bus) backend() string {
	if b.cfg.Backend == "" {
		return "gochannel"
	}
	return b.cfg.Backend
}

// handle decodes the event and runs the stage. It always acknowledges.
func (b *Bus) handle(s stage) message.NoPublishHandlerFunc {
	return func(msg *message.Message) (err error) {
		defer func() {
			if r := recover(); r != nil {
				metrics.BusMessages.WithLabelValues(s.name, "panic").Inc()
				logging.Error().
					Str("stage", s.name).
					Str("message_id", msg.UUID).
					Interface("panic", r).
					Str("stack", string(debug.Stack())).
					Msg("pipeline stage panicked")
				err = nil
			}
		}()

		var e models.Event
		if err := json.Unmarshal(msg.Payload, &e); err != nil {
			metrics.BusMessages.WithLabelValues(s.name, "malformed").Inc()
			logging.Error().Err(err).Str("stage", s.name).Str("message_id", msg.UUID).Msg("dropping malformed event")
			return nil
		}

		ctx := msg.Context()
		if cid := middleware.MessageCorrelationID(msg); cid != "" {
			ctx = logging.ContextWithCorrelationID(ctx, cid)
		}

		if err := s.fn(ctx, &e); err != nil {
			metrics.BusMessages.WithLabelValues(s.name, "error").Inc()
			logging.Ctx(ctx).Warn().Err(err).Str("stage", s.name).Str("event_id", e.ID).Msg("pipeline stage failed")
			return nil
		}
		metrics.BusMessages.WithLabelValues(s.name, "ok").Inc()
		return nil
	}
}
