// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

package detection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/hydra/internal/cache"
	"github.com/tomtom215/hydra/internal/logging"
	"github.com/tomtom215/hydra/internal/metrics"
	"github.com/tomtom215/hydra/internal/models"
	"github.com/tomtom215/hydra/internal/storage"
)

// WindowReader is the part of the windowed store the engine reads.
type WindowReader interface {
	AllRecent(maxAge time.Duration) map[string][]*models.Event
	MaxAge() time.Duration
}

// PatternStore persists patterns.
type PatternStore interface {
	AppendPattern(ctx context.Context, p *models.Pattern) error
}

// Broadcaster pushes messages to live subscribers.
type Broadcaster interface {
	BroadcastJSON(messageType string, data interface{})
}

// EngineConfig configures the engine.
type EngineConfig struct {
	// MinSignificance drops patterns at or below this value.
	MinSignificance float64
	// SeenTTL is how long a published pattern id is remembered in memory.
	SeenTTL time.Duration
	// RecentPatterns bounds the history kept for Summary.
	RecentPatterns int
}

// DefaultEngineConfig returns sensible defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MinSignificance: models.MinSignificance,
		SeenTTL:         48 * time.Hour,
		RecentPatterns:  200,
	}
}

// EngineMetrics tracks engine activity.
type EngineMetrics struct {
	EventsProcessed   int64                                   `json:"events_processed"`
	PatternsDetected  int64                                   `json:"patterns_detected"`
	PatternsPublished int64                                   `json:"patterns_published"`
	DetectionErrors   int64                                   `json:"detection_errors"`
	ProcessingTimeMs  int64                                   `json:"processing_time_ms"`
	LastProcessedAt   time.Time                               `json:"last_processed_at"`
	DetectorMetrics   map[models.PatternType]*DetectorMetrics `json:"detectors"`
}

// DetectorMetrics tracks one detector.
type DetectorMetrics struct {
	Runs            int64      `json:"runs"`
	Errors          int64      `json:"errors"`
	Panics          int64      `json:"panics"`
	Patterns        int64      `json:"patterns"`
	AvgProcessingMs float64    `json:"avg_processing_ms"`
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`
}

// Engine runs the detectors for each new event and publishes what they find.
type Engine struct {
	config      EngineConfig
	window      WindowReader
	store       PatternStore
	broadcaster Broadcaster
	now         func() time.Time

	mu        sync.RWMutex
	detectors []Detector

	metricsMu sync.Mutex
	stats     EngineMetrics

	// seen holds ids already published; the store's duplicate check backs
	// it up once an id is evicted.
	seen *cache.LRU[struct{}]

	pubMu  sync.Mutex
	recent []*models.Pattern
	byType map[models.PatternType]int64
}

// NewEngine creates an engine with no detectors. store and broadcaster may be nil.
func NewEngine(cfg EngineConfig, window WindowReader, store PatternStore, broadcaster Broadcaster) *Engine {
	def := DefaultEngineConfig()
	if cfg.SeenTTL <= 0 {
		cfg.SeenTTL = def.SeenTTL
	}
	if cfg.RecentPatterns <= 0 {
		cfg.RecentPatterns = def.RecentPatterns
	}
	seen := cache.NewLRU[struct{}](4*cfg.RecentPatterns+1024, cfg.SeenTTL)
	return &Engine{
		config:      cfg,
		window:      window,
		store:       store,
		broadcaster: broadcaster,
		now:         time.Now,
		stats: EngineMetrics{
			DetectorMetrics: make(map[models.PatternType]*DetectorMetrics),
		},
		seen:   seen,
		byType: make(map[models.PatternType]int64),
	}
}

// SetClock replaces the clock used for DetectedAt and id expiry.
func (e *Engine) SetClock(now func() time.Time) {
	e.mu.Lock()
	e.now = now
	e.mu.Unlock()
	e.seen.SetClock(now)
}

// RegisterDetector adds a detector, replacing one of the same type.
func (e *Engine) RegisterDetector(d Detector) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, existing := range e.detectors {
		if existing.Type() == d.Type() {
			e.detectors[i] = d
			return
		}
	}
	e.detectors = append(e.detectors, d)

	e.metricsMu.Lock()
	e.stats.DetectorMetrics[d.Type()] = &DetectorMetrics{}
	e.metricsMu.Unlock()

	logging.Info().Str("detector", string(d.Type())).Msg("registered detector")
}

// ListDetectors returns the registered detectors in registration order.
func (e *Engine) ListDetectors() []Detector {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]Detector(nil), e.detectors...)
}

// SetDetectorEnabled enables or disables a detector by type.
func (e *Engine) SetDetectorEnabled(t models.PatternType, enabled bool) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, d := range e.detectors {
		if d.Type() == t {
			d.SetEnabled(enabled)
			return nil
		}
	}
	return fmt.Errorf("detector not found: %s", t)
}

func (e *Engine) enabledDetectors() []Detector {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Detector, 0, len(e.detectors))
	for _, d := range e.detectors {
		if d.Enabled() {
			out = append(out, d)
		}
	}
	return out
}

func (e *Engine) clock() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.now()
}

// Detect runs every enabled detector over snap and returns the significant
// patterns, most significant first. Failures are returned alongside the
// patterns of the detectors that succeeded.
func (e *Engine) Detect(ctx context.Context, event *models.Event, snap Snapshot) ([]*models.Pattern, []error) {
	detectedAt := e.clock()

	var (
		patterns []*models.Pattern
		errs     []error
	)
	for _, d := range e.enabledDetectors() {
		found, err := e.runSingleDetector(ctx, d, event, snap)
		if err != nil {
			errs = append(errs, err)
			logging.Warn().Err(err).
				Str("detector", string(d.Type())).
				Str("event_id", event.ID).
				Msg("detector failed")
			continue
		}
		for _, p := range found {
			if p.Significance <= e.config.MinSignificance {
				continue
			}
			p.DetectedAt = detectedAt
			patterns = append(patterns, p)
		}
	}

	models.SortPatterns(patterns)
	return patterns, errs
}

// runSingleDetector executes one detector and updates its metrics. A panic is
// converted into a *DetectorFailure.
func (e *Engine) runSingleDetector(ctx context.Context, d Detector, event *models.Event, snap Snapshot) (found []*models.Pattern, err error) {
	t := d.Type()
	start := time.Now()

	defer func() {
		panicked := false
		if r := recover(); r != nil {
			panicked = true
			found = nil
			err = &DetectorFailure{Detector: t, Panic: true, Err: fmt.Errorf("%v", r)}
		}

		elapsed := time.Since(start)
		metrics.RecordDetectorRun(string(t), elapsed, err)

		e.metricsMu.Lock()
		defer e.metricsMu.Unlock()
		dm, ok := e.stats.DetectorMetrics[t]
		if !ok {
			dm = &DetectorMetrics{}
			e.stats.DetectorMetrics[t] = dm
		}
		dm.Runs++
		ms := float64(elapsed.Microseconds()) / 1000
		dm.AvgProcessingMs += (ms - dm.AvgProcessingMs) / float64(dm.Runs)
		if err != nil {
			dm.Errors++
			e.stats.DetectionErrors++
			if panicked {
				dm.Panics++
			}
			return
		}
		if len(found) > 0 {
			dm.Patterns += int64(len(found))
			now := time.Now()
			dm.LastTriggeredAt = &now
		}
	}()

	found, err = d.Detect(ctx, event, snap)
	if err != nil {
		return nil, &DetectorFailure{Detector: t, Err: err}
	}
	return found, nil
}

// Process detects patterns for a newly ingested event against the current
// windows, then persists and broadcasts those not published before. The
// returned error joins detector failures; the patterns are valid either way.
func (e *Engine) Process(ctx context.Context, event *models.Event) ([]*models.Pattern, error) {
	start := time.Now()

	snap := Snapshot(e.window.AllRecent(e.window.MaxAge()))
	patterns, errs := e.Detect(ctx, event, snap)

	published := 0
	for _, p := range patterns {
		if e.publish(ctx, p) {
			published++
		}
	}

	e.metricsMu.Lock()
	e.stats.EventsProcessed++
	e.stats.PatternsDetected += int64(len(patterns))
	e.stats.PatternsPublished += int64(published)
	e.stats.ProcessingTimeMs = time.Since(start).Milliseconds()
	e.stats.LastProcessedAt = time.Now()
	e.metricsMu.Unlock()

	if len(patterns) > 0 {
		logging.Ctx(ctx).Debug().
			Str("event_id", event.ID).
			Int("patterns", len(patterns)).
			Int("published", published).
			Msg("correlation complete")
	}

	return patterns, errors.Join(errs...)
}

// publish persists and broadcasts p once. It reports whether p was new.
func (e *Engine) publish(ctx context.Context, p *models.Pattern) bool {
	if e.seen.IsDuplicate(p.ID) {
		return false
	}

	if e.store != nil {
		err := e.store.AppendPattern(ctx, p)
		switch {
		case errors.Is(err, storage.ErrDuplicate):
			return false
		case err != nil:
			logging.Error().Err(err).Str("pattern_id", p.ID).Msg("failed to save pattern")
		}
	}

	e.pubMu.Lock()
	e.recent = append(e.recent, p)
	if over := len(e.recent) - e.config.RecentPatterns; over > 0 {
		e.recent = append([]*models.Pattern(nil), e.recent[over:]...)
	}
	e.byType[p.Type]++
	e.pubMu.Unlock()

	metrics.PatternsEmitted.WithLabelValues(string(p.Type)).Inc()
	if e.broadcaster != nil {
		e.broadcaster.BroadcastJSON("pattern", p)
	}
	return true
}

// Metrics returns a copy of the engine metrics.
func (e *Engine) Metrics() EngineMetrics {
	e.metricsMu.Lock()
	defer e.metricsMu.Unlock()

	out := e.stats
	out.DetectorMetrics = make(map[models.PatternType]*DetectorMetrics, len(e.stats.DetectorMetrics))
	for k, v := range e.stats.DetectorMetrics {
		dm := *v
		out.DetectorMetrics[k] = &dm
	}
	return out
}
