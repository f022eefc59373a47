// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

package supervisor

import (
	"context"
	"sync"
)

// mockService fails the first failures runs, then blocks until canceled.
type mockService struct {
	mu       sync.Mutex
	name     string
	failures int
	starts   int
	stops    int
	started  chan struct{}
	failWith error
}

func newMockService(name string) *mockService {
	return &mockService{name: name, started: make(chan struct{}, 16)}
}

func (m *mockService) Serve(ctx context.Context) error {
	m.mu.Lock()
	m.starts++
	fail := m.failures > 0
	if fail {
		m.failures--
	}
	err := m.failWith
	m.mu.Unlock()

	select {
	case m.started <- struct{}{}:
	default:
	}
	if fail {
		return err
	}

	<-ctx.Done()
	m.mu.Lock()
	m.stops++
	m.mu.Unlock()
	return ctx.Err()
}

func (m *mockService) String() string { return m.name }

func (m *mockService) counts() (starts, stops int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts, m.stops
}
