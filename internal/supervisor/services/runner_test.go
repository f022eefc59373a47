// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type runnerFunc func(ctx context.Context) error

func (f runnerFunc) RunWithContext(ctx context.Context) error { return f(ctx) }

type namedRunner struct{ runnerFunc }

func (namedRunner) String() string { return "producer-price-watch" }

func TestRunnerService_Serve(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name    string
		run     runnerFunc
		cancel  bool
		wantErr error
	}{
		{
			name:    "clean stop on cancel",
			run:     func(ctx context.Context) error { <-ctx.Done(); return ctx.Err() },
			cancel:  true,
			wantErr: context.Canceled,
		},
		{
			name:    "runner error passes through",
			run:     func(context.Context) error { return boom },
			wantErr: boom,
		},
		{
			name:    "early nil return is a failure",
			run:     func(context.Context) error { return nil },
			wantErr: ErrStoppedUnexpectedly,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if tt.cancel {
				time.AfterFunc(10*time.Millisecond, cancel)
			}
			err := NewRunnerService("test", tt.run).Serve(ctx)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Serve = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRunnerService_Names(t *testing.T) {
	noop := runnerFunc(func(context.Context) error { return nil })

	tests := []struct {
		svc  *RunnerService
		want string
	}{
		{NewHubService(noop), "websocket-hub"},
		{NewWindowSweeperService(noop), "window-sweeper"},
		{NewStorageGCService(noop), "storage-gc"},
		{NewEventBusService(noop), "event-bus"},
		{NewEnrichmentService(noop), "enrichment"},
		{NewProducerService(noop), "producer"},
		{NewProducerService(namedRunner{noop}), "producer-price-watch"},
	}
	for _, tt := range tests {
		if got := tt.svc.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

type mockBroker struct {
	mu        sync.Mutex
	running   bool
	startErr  error
	starts    int
	shutdowns atomic.Int32
}

func (m *mockBroker) Start(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts++
	if m.startErr != nil {
		return m.startErr
	}
	m.running = true
	return nil
}

func (m *mockBroker) Shutdown(context.Context) {
	m.shutdowns.Add(1)
	m.setRunning(false)
}

func (m *mockBroker) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *mockBroker) setRunning(v bool) {
	m.mu.Lock()
	m.running = v
	m.mu.Unlock()
}

func TestBrokerService(t *testing.T) {
	t.Run("start failure", func(t *testing.T) {
		b := &mockBroker{startErr: errors.New("port in use")}
		err := NewBrokerService(b, time.Second, time.Second).Serve(context.Background())
		if !errors.Is(err, b.startErr) {
			t.Errorf("Serve = %v, want wrapped start error", err)
		}
	})

	t.Run("shutdown on cancel", func(t *testing.T) {
		b := &mockBroker{}
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- NewBrokerService(b, time.Second, time.Hour).Serve(ctx) }()
		time.Sleep(20 * time.Millisecond)
		cancel()
		if err := <-done; !errors.Is(err, context.Canceled) {
			t.Errorf("Serve = %v, want context.Canceled", err)
		}
		if b.shutdowns.Load() != 1 {
			t.Errorf("shutdowns = %d, want 1", b.shutdowns.Load())
		}
	})

	t.Run("dead broker fails the service", func(t *testing.T) {
		b := &mockBroker{}
		done := make(chan error, 1)
		go func() {
			done <- NewBrokerService(b, time.Second, 10*time.Millisecond).Serve(context.Background())
		}()
		time.Sleep(20 * time.Millisecond)
		b.setRunning(false)
		select {
		case err := <-done:
			if !errors.Is(err, ErrStoppedUnexpectedly) {
				t.Errorf("Serve = %v, want ErrStoppedUnexpectedly", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Serve did not notice the dead broker")
		}
	})
}
