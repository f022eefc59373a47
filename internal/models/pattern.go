// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

package models

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PatternType identifies the detector that produced a pattern.
type PatternType string

const (
	PatternCorrelation PatternType = "CORRELATION"
	PatternTrend       PatternType = "TREND"
	PatternAnomaly     PatternType = "ANOMALY"
	PatternSequence    PatternType = "SEQUENCE"
)

// MinSignificance is the floor below which patterns are discarded.
const MinSignificance = 0.3

var patternNamespace = uuid.MustParse("0b6d9a42-77f1-4f1e-8a0c-5c2d1e7b3a64")

// Pattern is a derived cross-event insight.
type Pattern struct {
	ID              string             `json:"id"`
	Type            PatternType        `json:"pattern_type"`
	Participants    []string           `json:"participants"`
	SubjectEntities []string           `json:"subject_entities"`
	Significance    float64            `json:"significance"`
	Description     string             `json:"description"`
	DetectedAt      time.Time          `json:"detected_at"`
	SourceEvents    []string           `json:"source_events"`
	Details         map[string]float64 `json:"details,omitempty"`
	Label           string             `json:"label,omitempty"`
}

// PatternID is stable for the same detector, label and set of source events,
// which lets the pipeline recognize a pattern it has already published.
func PatternID(t PatternType, label string, sourceEvents []string) string {
	ids := append([]string(nil), sourceEvents...)
	sort.Strings(ids)
	name := string(t) + "|" + label + "|" + strings.Join(ids, ",")
	return uuid.NewSHA1(patternNamespace, []byte(name)).String()
}

// SortedSet returns the distinct non-empty values of in, sorted.
func SortedSet(in ...string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// SortPatterns orders patterns by significance descending, breaking ties by id
// so the order is deterministic.
func SortPatterns(patterns []*Pattern) {
	sort.SliceStable(patterns, func(i, j int) bool {
		if patterns[i].Significance != patterns[j].Significance {
			return patterns[i].Significance > patterns[j].Significance
		}
		return patterns[i].ID < patterns[j].ID
	})
}
