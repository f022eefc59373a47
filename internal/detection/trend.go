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

	"github.com/tomtom215/hydra/internal/models"
)

// TrendDetector reports entities mentioned by several producers.
type TrendDetector struct {
	toggle
	minProducers int
}

// NewTrendDetector creates a trend detector. minProducers below 2 is raised to 2.
func NewTrendDetector(minProducers int) *TrendDetector {
	if minProducers < 2 {
		minProducers = 2
	}
	return &TrendDetector{minProducers: minProducers}
}

func (d *TrendDetector) Type() models.PatternType {
	return models.PatternTrend
}

// Detect counts, for each entity of event, the producers whose window
// mentions it. The earliest mentioning event of each producer is the source,
// so the pattern id only changes when a producer joins or leaves the trend.
func (d *TrendDetector) Detect(ctx context.Context, event *models.Event, snap Snapshot) ([]*models.Pattern, error) {
	producers := make([]string, 0, len(snap))
	for id := range snap {
		producers = append(producers, id)
	}
	sort.Strings(producers)

	var out []*models.Pattern
	for _, entity := range Entities(event) {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		var sources []*models.Event
		for _, pid := range producers {
			events := snap[pid]
			if pid == event.ProducerID {
				// The new event is always part of its own producer's mention.
				events = append(append([]*models.Event(nil), events...), event)
			}
			if first := firstMention(events, entity); first != nil {
				sources = append(sources, first)
			}
		}
		if len(sources) < d.minProducers {
			continue
		}

		p := newPattern(models.PatternTrend, entity, sources,
			TrendSignificance(len(sources)),
			fmt.Sprintf("Trending entity '%s' detected across %d producers", entity, len(sources)),
			map[string]float64{"producers": float64(len(sources))},
		)
		p.SubjectEntities = []string{entity}
		out = append(out, p)
	}
	return out, nil
}

func firstMention(events []*models.Event, entity string) *models.Event {
	for _, e := range events {
		for _, s := range Entities(e) {
			if s == entity {
				return e
			}
		}
	}
	return nil
}

// TrendSignificance is min(1, producers*0.3).
func TrendSignificance(producers int) float64 {
	return math.Min(1, float64(producers)*0.3)
}
