// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

package detection

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/hydra/internal/models"
)

// Snapshot maps producer ids to their recent events, oldest first.
type Snapshot map[string][]*models.Event

// Detector evaluates a new event against a snapshot.
type Detector interface {
	// Type returns the pattern type this detector emits.
	Type() models.PatternType

	// Detect returns the patterns involving event. It must not block on I/O.
	Detect(ctx context.Context, event *models.Event, snap Snapshot) ([]*models.Pattern, error)

	// Enabled returns whether this detector is currently enabled.
	Enabled() bool

	// SetEnabled enables or disables the detector.
	SetEnabled(enabled bool)
}

// DetectorFailure records a detector that returned an error or panicked.
type DetectorFailure struct {
	Detector models.PatternType
	Panic    bool
	Err      error
}

func (f *DetectorFailure) Error() string {
	if f.Panic {
		return fmt.Sprintf("%s: panic: %v", f.Detector, f.Err)
	}
	return fmt.Sprintf("%s: %v", f.Detector, f.Err)
}

func (f *DetectorFailure) Unwrap() error {
	return f.Err
}

// toggle is embedded by detectors for Enabled/SetEnabled.
type toggle struct {
	mu       sync.RWMutex
	disabled bool
}

func (t *toggle) Enabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return !t.disabled
}

func (t *toggle) SetEnabled(enabled bool) {
	t.mu.Lock()
	t.disabled = !enabled
	t.mu.Unlock()
}

// others yields events in snap from producers other than event's, in
// producer id order so results are deterministic.
func others(event *models.Event, snap Snapshot) []*models.Event {
	ids := make([]string, 0, len(snap))
	for id := range snap {
		if id != event.ProducerID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	var out []*models.Event
	for _, id := range ids {
		out = append(out, snap[id]...)
	}
	return out
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func newPattern(t models.PatternType, label string, sources []*models.Event, sig float64, desc string, details map[string]float64) *models.Pattern {
	ids := make([]string, 0, len(sources))
	producers := make([]string, 0, len(sources))
	var entities []string
	for _, e := range sources {
		ids = append(ids, e.ID)
		producers = append(producers, e.ProducerID)
		entities = append(entities, Entities(e)...)
	}
	sort.Strings(ids)

	return &models.Pattern{
		ID:              models.PatternID(t, label, ids),
		Type:            t,
		Participants:    models.SortedSet(producers...),
		SubjectEntities: models.SortedSet(entities...),
		Significance:    sig,
		Description:     desc,
		SourceEvents:    ids,
		Details:         details,
		Label:           label,
	}
}
