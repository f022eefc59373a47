// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

package classifier

import (
	"fmt"

	"github.com/tomtom215/hydra/internal/config"
	"github.com/tomtom215/hydra/internal/models"
)

type policySpec struct {
	confidence float64
	tiers      map[string][]Tier
}

// builtinPolicies are the starting thresholds for the standard producers.
// Each is independent; none is derived from another.
var builtinPolicies = map[string]policySpec{
	"price_watch": {0.95, map[string][]Tier{
		"price_change_percent": {
			{5, models.SeverityMedium}, {10, models.SeverityHigh}, {20, models.SeverityCritical},
		},
	}},
	"job_spy": {0.85, map[string][]Tier{
		"hiring_velocity": {
			{5, models.SeverityMedium}, {10, models.SeverityHigh}, {20, models.SeverityCritical},
		},
	}},
	"tech_radar": {0.9, map[string][]Tier{
		"new_technologies": {
			{0, models.SeverityMedium}, {5, models.SeverityHigh},
		},
		"critical_technologies": {
			{0, models.SeverityCritical},
		},
	}},
	"social_pulse": {0.8, map[string][]Tier{
		"sentiment_shift": {
			{0.2, models.SeverityMedium}, {0.4, models.SeverityHigh}, {0.7, models.SeverityCritical},
		},
	}},
	"patent_hawk": {0.8, map[string][]Tier{
		"patents_per_month": {
			{1, models.SeverityMedium}, {5, models.SeverityHigh}, {10, models.SeverityCritical},
		},
	}},
	"ad_tracker": {0.85, map[string][]Tier{
		"spend_change_percent": {
			{15, models.SeverityMedium}, {30, models.SeverityHigh}, {60, models.SeverityCritical},
		},
	}},
}

// NewRegistryFromConfig registers the built-in policies and then the
// configured overrides, which replace a built-in policy wholesale.
func NewRegistryFromConfig(cfg config.ClassifierConfig) (*Registry, error) {
	r := NewRegistry()

	for id, spec := range builtinPolicies {
		p, err := NewThresholdPolicy(spec.confidence, spec.tiers)
		if err != nil {
			return nil, fmt.Errorf("built-in policy %s: %w", id, err)
		}
		r.Set(id, p)
	}

	for id, pc := range cfg.Policies {
		tiers := make(map[string][]Tier)
		for _, tc := range pc.Tiers {
			sev, err := models.ParseSeverity(tc.Severity)
			if err != nil {
				return nil, fmt.Errorf("policy %s: %w", id, err)
			}
			tiers[tc.Signal] = append(tiers[tc.Signal], Tier{Above: tc.Above, Severity: sev})
		}
		p, err := NewThresholdPolicy(pc.Confidence, tiers)
		if err != nil {
			return nil, fmt.Errorf("policy %s: %w", id, err)
		}
		r.Set(id, p)
	}

	return r, nil
}
