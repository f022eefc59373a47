// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

package detection

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/tomtom215/hydra/internal/models"
)

// SequenceConfig tunes the sequence detector.
type SequenceConfig struct {
	MaxGap time.Duration
	// MinKeywordOverlap is the shared keyword count that must be exceeded
	// when the events share no entity.
	MinKeywordOverlap int
}

// SequenceDetector pairs the new event with related events from other
// producers that happened close to it.
type SequenceDetector struct {
	toggle
	config SequenceConfig
}

// NewSequenceDetector creates a sequence detector.
func NewSequenceDetector(cfg SequenceConfig) *SequenceDetector {
	if cfg.MaxGap <= 0 {
		cfg.MaxGap = 24 * time.Hour
	}
	return &SequenceDetector{config: cfg}
}

func (d *SequenceDetector) Type() models.PatternType {
	return models.PatternSequence
}

func (d *SequenceDetector) Detect(ctx context.Context, event *models.Event, snap Snapshot) ([]*models.Pattern, error) {
	var out []*models.Pattern
	for _, other := range others(event, snap) {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		gap := absDuration(event.CreatedAt.Sub(other.CreatedAt))
		if gap >= d.config.MaxGap {
			continue
		}
		if !Related(event, other, d.config.MinKeywordOverlap) {
			continue
		}

		hours := gap.Hours()
		out = append(out, newPattern(models.PatternSequence, "sequence",
			[]*models.Event{other, event},
			SequenceSignificance(gap),
			fmt.Sprintf("Temporal sequence detected between %s and %s (%.1fh apart)", other.ProducerID, event.ProducerID, hours),
			map[string]float64{"gap_hours": hours},
		))
	}
	return out, nil
}

// Related reports whether a and b share an entity or more than
// minKeywordOverlap keywords.
func Related(a, b *models.Event, minKeywordOverlap int) bool {
	if len(SharedEntities(a, b)) > 0 {
		return true
	}
	return SharedKeywords(a, b) > minKeywordOverlap
}

// SequenceSignificance is max(0.5, 1 - gap_hours/24).
func SequenceSignificance(gap time.Duration) float64 {
	return math.Max(0.5, 1-absDuration(gap).Hours()/24)
}
