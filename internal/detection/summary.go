// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

package detection

import (
	"sort"
	"time"

	"github.com/tomtom215/hydra/internal/models"
)

// TrendingEntity is an entity with an active TREND pattern.
type TrendingEntity struct {
	Entity       string   `json:"entity"`
	Producers    []string `json:"producers"`
	Significance float64  `json:"significance"`
}

// Summary aggregates published patterns.
type Summary struct {
	TotalPatterns           int64                        `json:"total_patterns"`
	PatternsByType          map[models.PatternType]int64 `json:"patterns_by_type"`
	MostSignificantPatterns []*models.Pattern            `json:"most_significant_patterns"`
	TrendingEntities        []TrendingEntity             `json:"trending_entities"`
	LastUpdated             time.Time                    `json:"last_updated"`
}

// Summary reports totals since start, the top patterns among the recent
// history, and the entities whose latest TREND pattern is still in it.
func (e *Engine) Summary(top int) Summary {
	if top <= 0 {
		top = 10
	}

	e.pubMu.Lock()
	recent := append([]*models.Pattern(nil), e.recent...)
	byType := make(map[models.PatternType]int64, len(e.byType))
	var total int64
	for k, v := range e.byType {
		byType[k] = v
		total += v
	}
	e.pubMu.Unlock()

	// Latest TREND per entity wins.
	trends := make(map[string]*models.Pattern)
	for _, p := range recent {
		if p.Type != models.PatternTrend {
			continue
		}
		if cur, ok := trends[p.Label]; !ok || !p.DetectedAt.Before(cur.DetectedAt) {
			trends[p.Label] = p
		}
	}
	trending := make([]TrendingEntity, 0, len(trends))
	for entity, p := range trends {
		trending = append(trending, TrendingEntity{
			Entity:       entity,
			Producers:    p.Participants,
			Significance: p.Significance,
		})
	}
	sort.Slice(trending, func(i, j int) bool {
		if trending[i].Significance != trending[j].Significance {
			return trending[i].Significance > trending[j].Significance
		}
		return trending[i].Entity < trending[j].Entity
	})
	if len(trending) > top {
		trending = trending[:top]
	}

	models.SortPatterns(recent)
	if len(recent) > top {
		recent = recent[:top]
	}

	return Summary{
		TotalPatterns:           total,
		PatternsByType:          byType,
		MostSignificantPatterns: recent,
		TrendingEntities:        trending,
		LastUpdated:             e.clock(),
	}
}
