// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

// Package producer defines the capability every monitoring source exposes,
// an HTTP implementation for remote producers, and the supervised loop that
// feeds a producer's events into the ingestion gateway.
package producer

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/hydra/internal/models"
)

// Producer is one independent monitoring source.
//
// Run scans the subjects until ctx is canceled, sending each report on out.
// It must not close out. DeepInvestigate performs a focused check of one
// subject on behalf of the escalation coordinator and must honor ctx.
type Producer interface {
	ID() string
	Run(ctx context.Context, subjects []string, out chan<- models.RawEvent) error
	DeepInvestigate(ctx context.Context, subject, triggerDescription string) (*models.InvestigationOutcome, error)
}

// Status is the lifecycle state of a producer.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusScanning   Status = "scanning"
	StatusProcessing Status = "processing"
	StatusError      Status = "error"
	StatusDisabled   Status = "disabled"
)

// State is a snapshot of one producer.
type State struct {
	ProducerID string     `json:"producer_id"`
	Status     Status     `json:"status"`
	LastScan   *time.Time `json:"last_scan,omitempty"`
	NextScan   *time.Time `json:"next_scan,omitempty"`
	DataCount  uint64     `json:"data_count"`
	ErrorCount uint64     `json:"error_count"`
	LastError  string     `json:"last_error,omitempty"`
}

// Tracker records the state of one producer. Safe for concurrent use.
type Tracker struct {
	mu    sync.Mutex
	state State
}

// NewTracker creates an idle tracker.
func NewTracker(producerID string) *Tracker {
	return &Tracker{state: State{ProducerID: producerID, Status: StatusIdle}}
}

// ScanStarted marks the start of a scan.
func (t *Tracker) ScanStarted(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Status == StatusDisabled {
		return
	}
	t.state.Status = StatusScanning
	t.state.LastScan = &now
	t.state.NextScan = nil
}

// ScanFinished marks the end of a scan and schedules the next one.
func (t *Tracker) ScanFinished(next time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Status == StatusDisabled {
		return
	}
	t.state.Status = StatusIdle
	t.state.NextScan = &next
}

// Processing marks a report being submitted.
func (t *Tracker) Processing() {
	t.setStatus(StatusProcessing)
}

// Submitted counts one accepted report and returns to scanning.
func (t *Tracker) Submitted() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.DataCount++
	if t.state.Status == StatusProcessing {
		t.state.Status = StatusScanning
	}
}

// Failed counts an error.
func (t *Tracker) Failed(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.ErrorCount++
	t.state.LastError = err.Error()
	if t.state.Status != StatusDisabled {
		t.state.Status = StatusError
	}
}

// Disable marks the producer disabled.
func (t *Tracker) Disable() {
	t.setStatus(StatusDisabled)
}

func (t *Tracker) setStatus(s Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Status == StatusDisabled {
		return
	}
	t.state.Status = s
}

// State returns a snapshot.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.state
	if s.LastScan != nil {
		v := *s.LastScan
		s.LastScan = &v
	}
	if s.NextScan != nil {
		v := *s.NextScan
		s.NextScan = &v
	}
	return s
}

// Registry holds the trackers of every configured producer.
type Registry struct {
	mu       sync.RWMutex
	trackers map[string]*Tracker
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{trackers: make(map[string]*Tracker)}
}

// Tracker returns the tracker for id, creating it on first use.
func (r *Registry) Tracker(id string) *Tracker {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.trackers[id]
	if !ok {
		t = NewTracker(id)
		r.trackers[id] = t
	}
	return t
}

// States returns every producer's state sorted by id.
func (r *Registry) States() []State {
	r.mu.RLock()
	out := make([]State, 0, len(r.trackers))
	for _, t := range r.trackers {
		out = append(out, t.State())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ProducerID < out[j].ProducerID })
	return out
}
