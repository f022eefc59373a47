// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

package classifier

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/tomtom215/hydra/internal/config"
	"github.com/tomtom215/hydra/internal/models"
)

func TestNewThresholdPolicy_Rejects(t *testing.T) {
	tests := []struct {
		name       string
		confidence float64
		tiers      map[string][]Tier
		wantMono   bool
	}{
		{
			name:       "confidence above one",
			confidence: 1.2,
			tiers:      map[string][]Tier{"x": {{1, models.SeverityHigh}}},
		},
		{
			name:       "negative confidence",
			confidence: -0.1,
			tiers:      map[string][]Tier{"x": {{1, models.SeverityHigh}}},
		},
		{
			name:       "severity decreases",
			confidence: 0.5,
			tiers:      map[string][]Tier{"x": {{1, models.SeverityHigh}, {5, models.SeverityMedium}}},
			wantMono:   true,
		},
		{
			name:       "unsorted input still checked after sorting",
			confidence: 0.5,
			tiers:      map[string][]Tier{"x": {{10, models.SeverityLow}, {1, models.SeverityCritical}}},
			wantMono:   true,
		},
		{
			name:       "conflicting tiers at same floor",
			confidence: 0.5,
			tiers:      map[string][]Tier{"x": {{1, models.SeverityHigh}, {1, models.SeverityMedium}}},
			wantMono:   true,
		},
		{
			name:       "invalid severity",
			confidence: 0.5,
			tiers:      map[string][]Tier{"x": {{1, models.Severity("SEVERE")}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewThresholdPolicy(tt.confidence, tt.tiers)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantMono && !errors.Is(err, ErrNonMonotonic) {
				t.Errorf("expected ErrNonMonotonic, got %v", err)
			}
		})
	}
}

func TestThresholdPolicy_Classify(t *testing.T) {
	p, err := NewThresholdPolicy(0.95, map[string][]Tier{
		"price_change_percent": {
			{20, models.SeverityCritical}, {5, models.SeverityMedium}, {10, models.SeverityHigh},
		},
	})
	if err != nil {
		t.Fatalf("NewThresholdPolicy: %v", err)
	}

	tests := []struct {
		magnitude float64
		want      models.Severity
	}{
		{0, models.SeverityLow},
		{5, models.SeverityLow},
		{5.01, models.SeverityMedium},
		{-7, models.SeverityMedium},
		{10.5, models.SeverityHigh},
		{20, models.SeverityHigh},
		{25, models.SeverityCritical},
		{-40, models.SeverityCritical},
	}

	for _, tt := range tests {
		sev, conf, err := p.Classify(models.Signal{Type: "price_change_percent", Magnitude: tt.magnitude})
		if err != nil {
			t.Fatalf("Classify(%v): %v", tt.magnitude, err)
		}
		if sev != tt.want {
			t.Errorf("Classify(%v) = %s, want %s", tt.magnitude, sev, tt.want)
		}
		if conf != 0.95 {
			t.Errorf("confidence = %v, want 0.95", conf)
		}
	}

	if _, _, err := p.Classify(models.Signal{Type: "other", Magnitude: 1}); !errors.Is(err, ErrUnknownSignal) {
		t.Errorf("expected ErrUnknownSignal, got %v", err)
	}
}

// A larger magnitude never yields a lower severity, for every built-in policy.
func TestBuiltinPolicies_Monotonic(t *testing.T) {
	reg, err := NewRegistryFromConfig(config.ClassifierConfig{})
	if err != nil {
		t.Fatalf("NewRegistryFromConfig: %v", err)
	}

	rng := rand.New(rand.NewSource(42))
	for id, spec := range builtinPolicies {
		for signal := range spec.tiers {
			for i := 0; i < 500; i++ {
				a := rng.Float64() * 100
				b := a + rng.Float64()*100
				sa, _, err := reg.Classify(id, models.Signal{Type: signal, Magnitude: a})
				if err != nil {
					t.Fatalf("%s/%s: %v", id, signal, err)
				}
				sb, _, err := reg.Classify(id, models.Signal{Type: signal, Magnitude: b})
				if err != nil {
					t.Fatalf("%s/%s: %v", id, signal, err)
				}
				if sb.Rank() < sa.Rank() {
					t.Fatalf("%s/%s: magnitude %v -> %s but %v -> %s", id, signal, a, sa, b, sb)
				}
			}
		}
	}
}

func TestBuiltinPolicies_Values(t *testing.T) {
	reg, err := NewRegistryFromConfig(config.ClassifierConfig{})
	if err != nil {
		t.Fatalf("NewRegistryFromConfig: %v", err)
	}

	tests := []struct {
		producer  string
		signal    string
		magnitude float64
		want      models.Severity
		conf      float64
	}{
		{"price_watch", "price_change_percent", 12, models.SeverityHigh, 0.95},
		{"job_spy", "hiring_velocity", 3, models.SeverityLow, 0.85},
		{"tech_radar", "new_technologies", 1, models.SeverityMedium, 0.9},
		{"tech_radar", "critical_technologies", 1, models.SeverityCritical, 0.9},
		{"social_pulse", "sentiment_shift", -0.5, models.SeverityHigh, 0.8},
		{"patent_hawk", "patents_per_month", 2, models.SeverityMedium, 0.8},
		{"ad_tracker", "spend_change_percent", 61, models.SeverityCritical, 0.85},
	}

	for _, tt := range tests {
		t.Run(tt.producer+"/"+tt.signal, func(t *testing.T) {
			sev, conf, err := reg.Classify(tt.producer, models.Signal{Type: tt.signal, Magnitude: tt.magnitude})
			if err != nil {
				t.Fatalf("Classify: %v", err)
			}
			if sev != tt.want || conf != tt.conf {
				t.Errorf("got (%s, %v), want (%s, %v)", sev, conf, tt.want, tt.conf)
			}
		})
	}
}

func TestNewRegistryFromConfig_Override(t *testing.T) {
	cfg := config.ClassifierConfig{Policies: map[string]config.PolicyConfig{
		"price_watch": {
			Confidence: 0.6,
			Tiers: []config.TierConfig{
				{Signal: "price_change_percent", Above: 1, Severity: "high"},
			},
		},
		"custom": {
			Confidence: 0.5,
			Tiers: []config.TierConfig{
				{Signal: "score", Above: 0, Severity: "medium"},
			},
		},
	}}

	reg, err := NewRegistryFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewRegistryFromConfig: %v", err)
	}

	sev, conf, err := reg.Classify("price_watch", models.Signal{Type: "price_change_percent", Magnitude: 2})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if sev != models.SeverityHigh || conf != 0.6 {
		t.Errorf("override not applied: (%s, %v)", sev, conf)
	}

	if _, _, err := reg.Classify("custom", models.Signal{Type: "score", Magnitude: 1}); err != nil {
		t.Errorf("custom producer: %v", err)
	}

	// Other built-ins are untouched.
	if _, ok := reg.Get("job_spy"); !ok {
		t.Error("job_spy policy missing")
	}
}

func TestNewRegistryFromConfig_InvalidOverride(t *testing.T) {
	cfg := config.ClassifierConfig{Policies: map[string]config.PolicyConfig{
		"bad": {
			Confidence: 0.5,
			Tiers: []config.TierConfig{
				{Signal: "s", Above: 1, Severity: "critical"},
				{Signal: "s", Above: 2, Severity: "low"},
			},
		},
	}}
	if _, err := NewRegistryFromConfig(cfg); !errors.Is(err, ErrNonMonotonic) {
		t.Errorf("expected ErrNonMonotonic, got %v", err)
	}
}

type fixedPolicy struct {
	sev  models.Severity
	conf float64
}

func (f fixedPolicy) Classify(models.Signal) (models.Severity, float64, error) {
	return f.sev, f.conf, nil
}

func TestRegistry_ClassifyChecksRange(t *testing.T) {
	reg := NewRegistry()
	reg.Set("p", fixedPolicy{sev: models.SeverityHigh, conf: 1.5})

	if _, _, err := reg.Classify("p", models.Signal{Type: "x"}); err == nil {
		t.Error("expected out-of-range confidence error")
	}
	if _, _, err := reg.Classify("missing", models.Signal{Type: "x"}); !errors.Is(err, ErrNoPolicy) {
		t.Errorf("expected ErrNoPolicy, got %v", err)
	}

	reg.Set("p", fixedPolicy{sev: models.SeverityHigh, conf: 0.4})
	sev, conf, err := reg.Classify("p", models.Signal{Type: "x"})
	if err != nil || sev != models.SeverityHigh || conf != 0.4 {
		t.Errorf("got (%s, %v, %v)", sev, conf, err)
	}
}
