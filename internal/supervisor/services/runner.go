// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

package services

import (
	"context"
	"errors"
	"fmt"
)

// ContextRunner is implemented by every Hydra component with a blocking
// run loop: the distribution hub, the window sweeper, the storage GC loop,
// the event bus, the enricher and producer services.
type ContextRunner interface {
	RunWithContext(ctx context.Context) error
}

// RunnerService adapts a ContextRunner to suture.Service.
type RunnerService struct {
	runner ContextRunner
	name   string
}

// NewRunnerService wraps runner under the given service name.
func NewRunnerService(name string, runner ContextRunner) *RunnerService {
	return &RunnerService{runner: runner, name: name}
}

// NewHubService wraps the distribution hub.
func NewHubService(hub ContextRunner) *RunnerService {
	return NewRunnerService("websocket-hub", hub)
}

// NewWindowSweeperService wraps the correlation window's eviction loop.
func NewWindowSweeperService(window ContextRunner) *RunnerService {
	return NewRunnerService("window-sweeper", window)
}

// NewStorageGCService wraps the storage value-log GC loop.
func NewStorageGCService(store ContextRunner) *RunnerService {
	return NewRunnerService("storage-gc", store)
}

// NewEventBusService wraps the message router.
func NewEventBusService(bus ContextRunner) *RunnerService {
	return NewRunnerService("event-bus", bus)
}

// NewEnrichmentService wraps the enrichment worker.
func NewEnrichmentService(enricher ContextRunner) *RunnerService {
	return NewRunnerService("enrichment", enricher)
}

// NewProducerService wraps a producer loop. The name is taken from the
// runner's String method when it has one.
func NewProducerService(runner ContextRunner) *RunnerService {
	name := "producer"
	if s, ok := runner.(fmt.Stringer); ok {
		name = s.String()
	}
	return NewRunnerService(name, runner)
}

// Serve implements suture.Service. A runner that returns nil before
// cancellation has stopped unexpectedly and is reported as a failure so
// the supervisor restarts it.
func (s *RunnerService) Serve(ctx context.Context) error {
	err := s.runner.RunWithContext(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err == nil {
		return fmt.Errorf("%s: %w", s.name, ErrStoppedUnexpectedly)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", s.name, err)
	}
	return err
}

func (s *RunnerService) String() string {
	return s.name
}

// ErrStoppedUnexpectedly marks a runner that returned without error while
// its context was still live.
var ErrStoppedUnexpectedly = errors.New("service stopped unexpectedly")
