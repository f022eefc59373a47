// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

package detection

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/tomtom215/hydra/internal/models"
)

// CorrelationConfig tunes the correlation detector.
type CorrelationConfig struct {
	Threshold      float64
	MinCommon      int
	TrailingPeriod time.Duration
}

// CorrelationDetector correlates the metrics of events from different
// producers that share an entity.
type CorrelationDetector struct {
	toggle
	config    CorrelationConfig
	extractor *MetricExtractor
}

// NewCorrelationDetector creates a correlation detector.
func NewCorrelationDetector(cfg CorrelationConfig, extractor *MetricExtractor) *CorrelationDetector {
	if cfg.MinCommon < 2 {
		cfg.MinCommon = 2
	}
	return &CorrelationDetector{config: cfg, extractor: extractor}
}

func (d *CorrelationDetector) Type() models.PatternType {
	return models.PatternCorrelation
}

func (d *CorrelationDetector) Detect(ctx context.Context, event *models.Event, snap Snapshot) ([]*models.Pattern, error) {
	mine := d.extractor.Extract(event)

	var out []*models.Pattern
	for _, other := range others(event, snap) {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if absDuration(event.CreatedAt.Sub(other.CreatedAt)) > d.config.TrailingPeriod {
			continue
		}
		if len(SharedEntities(event, other)) == 0 {
			continue
		}

		r, n := Pearson(mine, d.extractor.Extract(other), d.config.MinCommon)
		if n == 0 || math.Abs(r) <= d.config.Threshold {
			continue
		}

		out = append(out, newPattern(models.PatternCorrelation, "correlation",
			[]*models.Event{event, other},
			CorrelationSignificance(r),
			fmt.Sprintf("Strong correlation (%.2f) between %s and %s", r, event.ProducerID, other.ProducerID),
			map[string]float64{"score": r, "common_metrics": float64(n)},
		))
	}
	return out, nil
}

// Pearson computes the correlation coefficient over the keys a and b have in
// common. n is the number of keys used; it is 0 when fewer than minCommon
// keys are shared or either side has no variance, in which case r is 0.
func Pearson(a, b map[string]float64, minCommon int) (r float64, n int) {
	keys := make([]string, 0, len(a))
	for k := range a {
		if _, ok := b[k]; ok {
			keys = append(keys, k)
		}
	}
	if len(keys) < minCommon || len(keys) < 2 {
		return 0, 0
	}
	sort.Strings(keys)

	var sumA, sumB float64
	for _, k := range keys {
		sumA += a[k]
		sumB += b[k]
	}
	meanA := sumA / float64(len(keys))
	meanB := sumB / float64(len(keys))

	var num, denA, denB float64
	for _, k := range keys {
		da := a[k] - meanA
		db := b[k] - meanB
		num += da * db
		denA += da * da
		denB += db * db
	}
	if denA == 0 || denB == 0 {
		return 0, 0
	}

	r = num / (math.Sqrt(denA) * math.Sqrt(denB))
	if math.IsNaN(r) {
		return 0, 0
	}
	return math.Max(-1, math.Min(1, r)), len(keys)
}

// CorrelationSignificance is |r|.
func CorrelationSignificance(r float64) float64 {
	return math.Abs(r)
}
