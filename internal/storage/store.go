// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

// Package storage is the persistence port for events and patterns.
//
// Three backends implement Store:
//   - BadgerStore: embedded key-value store, the default
//   - DuckDBStore: embedded analytical database for ad-hoc SQL over history
//   - MemoryStore: process-local, for tests and ephemeral runs
//
// Appends are idempotent on the event id. A second append of the same id
// returns ErrDuplicate and leaves the stored record untouched; callers treat
// that as success. Every other failure is a *StorageError and is retryable.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/tomtom215/hydra/internal/config"
	"github.com/tomtom215/hydra/internal/models"
)

var (
	// ErrDuplicate reports that a record with the same id is already stored.
	ErrDuplicate = errors.New("duplicate record")

	// ErrNotFound reports that no record has the requested id.
	ErrNotFound = errors.New("record not found")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("store closed")
)

// StorageError wraps a backend failure.
type StorageError struct {
	Backend string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// EventFilter selects events. Zero fields match everything. Results are
// newest first by created_at.
type EventFilter struct {
	ProducerID string
	Subject    string
	Severity   models.Severity
	Origin     models.Origin
	Since      time.Time
	Until      time.Time
	Limit      int
}

// Match reports whether e passes the filter, ignoring Limit.
func (f EventFilter) Match(e *models.Event) bool {
	if f.ProducerID != "" && e.ProducerID != f.ProducerID {
		return false
	}
	if f.Subject != "" && e.Subject != f.Subject {
		return false
	}
	if f.Severity != "" && e.Severity != f.Severity {
		return false
	}
	if f.Origin != "" && e.Origin != f.Origin {
		return false
	}
	if !f.Since.IsZero() && e.CreatedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && e.CreatedAt.After(f.Until) {
		return false
	}
	return true
}

// PatternFilter selects patterns, newest first by detected_at.
type PatternFilter struct {
	Type            models.PatternType
	MinSignificance float64
	Since           time.Time
	Limit           int
}

// Match reports whether p passes the filter, ignoring Limit.
func (f PatternFilter) Match(p *models.Pattern) bool {
	if f.Type != "" && p.Type != f.Type {
		return false
	}
	if p.Significance < f.MinSignificance {
		return false
	}
	if !f.Since.IsZero() && p.DetectedAt.Before(f.Since) {
		return false
	}
	return true
}

// Store is the persistence port.
type Store interface {
	// Append durably stores e and returns its id. A repeated id yields ErrDuplicate.
	Append(ctx context.Context, e *models.Event) (string, error)
	// Get returns the stored event or ErrNotFound.
	Get(ctx context.Context, id string) (*models.Event, error)
	Query(ctx context.Context, f EventFilter) ([]*models.Event, error)

	// AppendPattern stores p once. A repeated id yields ErrDuplicate.
	AppendPattern(ctx context.Context, p *models.Pattern) error
	QueryPatterns(ctx context.Context, f PatternFilter) ([]*models.Pattern, error)

	// Backend names the implementation for logs and metrics.
	Backend() string
	Close() error
}

// Open returns the backend selected by cfg.Backend.
func Open(cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemoryStore(), nil
	case "", "badger":
		return OpenBadger(BadgerOptions{Path: filepath.Join(cfg.Path, "events"), SyncWrites: cfg.SyncWrites})
	case "duckdb":
		return OpenDuckDB(DuckDBOptions{Path: filepath.Join(cfg.Path, "hydra.duckdb"), MaxMemory: cfg.MaxMemory})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// isDuplicate reports whether err should be treated as a successful no-op.
func isDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

func limitEvents(events []*models.Event, limit int) []*models.Event {
	if limit > 0 && len(events) > limit {
		return events[:limit]
	}
	return events
}

func limitPatterns(patterns []*models.Pattern, limit int) []*models.Pattern {
	if limit > 0 && len(patterns) > limit {
		return patterns[:limit]
	}
	return patterns
}
