// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/hydra/internal/metrics"
	"github.com/tomtom215/hydra/internal/models"
)

// MemoryStore keeps everything in maps. Nothing survives a restart.
type MemoryStore struct {
	mu       sync.RWMutex
	events   map[string]*models.Event
	patterns map[string]*models.Pattern
	closed   bool
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:   make(map[string]*models.Event),
		patterns: make(map[string]*models.Pattern),
	}
}

func (m *MemoryStore) Backend() string { return "memory" }

func (m *MemoryStore) Append(_ context.Context, e *models.Event) (id string, err error) {
	start := time.Now()
	defer func() { observe(m.Backend(), "append", start, err) }()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", ErrClosed
	}
	if _, ok := m.events[e.ID]; ok {
		return e.ID, ErrDuplicate
	}
	m.events[e.ID] = e
	return e.ID, nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*models.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	e, ok := m.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

func (m *MemoryStore) Query(_ context.Context, f EventFilter) (out []*models.Event, err error) {
	start := time.Now()
	defer func() { observe(m.Backend(), "query", start, err) }()

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	for _, e := range m.events {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return limitEvents(out, f.Limit), nil
}

func (m *MemoryStore) AppendPattern(_ context.Context, p *models.Pattern) (err error) {
	start := time.Now()
	defer func() { observe(m.Backend(), "append_pattern", start, err) }()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if _, ok := m.patterns[p.ID]; ok {
		return ErrDuplicate
	}
	m.patterns[p.ID] = p
	return nil
}

func (m *MemoryStore) QueryPatterns(_ context.Context, f PatternFilter) ([]*models.Pattern, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	var out []*models.Pattern
	for _, p := range m.patterns {
		if f.Match(p) {
			out = append(out, p)
		}
	}
	sortPatternsByTime(out)
	return limitPatterns(out, f.Limit), nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// observe records latency and counts failures other than duplicates.
func observe(backend, op string, start time.Time, err error) {
	if isDuplicate(err) {
		err = nil
	}
	metrics.RecordStorageOp(backend, op, time.Since(start), err)
}

func sortPatternsByTime(patterns []*models.Pattern) {
	sort.Slice(patterns, func(i, j int) bool {
		if !patterns[i].DetectedAt.Equal(patterns[j].DetectedAt) {
			return patterns[i].DetectedAt.After(patterns[j].DetectedAt)
		}
		return patterns[i].ID < patterns[j].ID
	})
}
