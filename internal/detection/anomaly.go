// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

package detection

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"

	"github.com/tomtom215/hydra/internal/models"
)

const (
	// TextLengthSignificance is assigned to overlong text fields.
	TextLengthSignificance = 0.7
	// CapsRunSignificance is assigned to runs of five or more capitals.
	CapsRunSignificance = 0.6
)

var capsRunRe = regexp.MustCompile(`[A-Z]{5,}`)

// AnomalyConfig tunes the anomaly detector.
type AnomalyConfig struct {
	// Thresholds maps metric names to the absolute value they must exceed.
	Thresholds map[string]float64
	// TextLengthLimit is the longest text field considered normal.
	TextLengthLimit int
}

// AnomalyDetector flags metrics and text of the new event that fall outside
// fixed bounds. It does not look at other producers.
type AnomalyDetector struct {
	toggle
	config    AnomalyConfig
	extractor *MetricExtractor
	metrics   []string
}

// NewAnomalyDetector creates an anomaly detector.
func NewAnomalyDetector(cfg AnomalyConfig, extractor *MetricExtractor) *AnomalyDetector {
	if cfg.TextLengthLimit <= 0 {
		cfg.TextLengthLimit = 1000
	}
	names := make([]string, 0, len(cfg.Thresholds))
	for k := range cfg.Thresholds {
		names = append(names, k)
	}
	sort.Strings(names)
	return &AnomalyDetector{config: cfg, extractor: extractor, metrics: names}
}

func (d *AnomalyDetector) Type() models.PatternType {
	return models.PatternAnomaly
}

func (d *AnomalyDetector) Detect(_ context.Context, event *models.Event, _ Snapshot) ([]*models.Pattern, error) {
	var out []*models.Pattern
	sources := []*models.Event{event}

	values := d.extractor.Extract(event)
	for _, name := range d.metrics {
		v, ok := values[name]
		if !ok {
			continue
		}
		t := d.config.Thresholds[name]
		if t <= 0 || math.Abs(v) <= t {
			continue
		}
		out = append(out, newPattern(models.PatternAnomaly, name, sources,
			AnomalySignificance(v, t),
			fmt.Sprintf("Anomaly detected: %s = %g (threshold: %g)", name, v, t),
			map[string]float64{"value": v, "threshold": t},
		))
	}

	for _, field := range append([]string{"description"}, textFields...) {
		text := textField(event, field)
		if text == "" {
			continue
		}
		if n := len([]rune(text)); n > d.config.TextLengthLimit {
			out = append(out, newPattern(models.PatternAnomaly, field+"_length", sources,
				TextLengthSignificance,
				fmt.Sprintf("Unusually long %s detected", field),
				map[string]float64{"value": float64(n), "threshold": float64(d.config.TextLengthLimit)},
			))
		}
		if capsRunRe.MatchString(text) {
			out = append(out, newPattern(models.PatternAnomaly, field+"_caps", sources,
				CapsRunSignificance,
				fmt.Sprintf("Unusual capitalization pattern in %s", field),
				nil,
			))
		}
	}
	return out, nil
}

func textField(e *models.Event, field string) string {
	if field == "description" {
		return e.Description
	}
	if s, ok := e.Payload[field].(string); ok {
		return s
	}
	return ""
}

// AnomalySignificance is min(1, |v|/t).
func AnomalySignificance(v, t float64) float64 {
	if t <= 0 {
		return 0
	}
	return math.Min(1, math.Abs(v)/t)
}
