// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

// Package classifier turns a producer's raw signal into a severity and a
// calibrated confidence.
//
// Policies are per producer and independent of each other. The only shape
// every policy must honour is monotonicity: for a fixed producer and signal
// type, a larger magnitude never yields a lower severity. ThresholdPolicy
// enforces this when it is constructed, so a misconfigured tier list fails
// at startup instead of misclassifying events at runtime.
package classifier

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/tomtom215/hydra/internal/models"
)

var (
	// ErrNoPolicy is returned when no policy is registered for a producer.
	ErrNoPolicy = errors.New("no classifier policy for producer")

	// ErrUnknownSignal is returned when a policy has no tiers for the signal type.
	ErrUnknownSignal = errors.New("signal type not handled by policy")

	// ErrNonMonotonic is returned when tiers would let a larger magnitude map
	// to a lower severity.
	ErrNonMonotonic = errors.New("tiers are not monotonic")
)

// Policy classifies a raw signal.
type Policy interface {
	Classify(signal models.Signal) (models.Severity, float64, error)
}

// Tier assigns Severity to magnitudes strictly greater than Above.
type Tier struct {
	Above    float64
	Severity models.Severity
}

// ThresholdPolicy classifies |magnitude| against ascending tiers per signal
// type. Magnitudes that clear no tier are LOW.
type ThresholdPolicy struct {
	confidence float64
	tiers      map[string][]Tier
}

// NewThresholdPolicy validates and sorts tiers. confidence must be in [0, 1].
func NewThresholdPolicy(confidence float64, tiers map[string][]Tier) (*ThresholdPolicy, error) {
	if math.IsNaN(confidence) || confidence < 0 || confidence > 1 {
		return nil, fmt.Errorf("confidence %v outside [0, 1]", confidence)
	}

	sorted := make(map[string][]Tier, len(tiers))
	for signal, ts := range tiers {
		if len(ts) == 0 {
			continue
		}
		cp := append([]Tier(nil), ts...)
		sort.SliceStable(cp, func(i, j int) bool { return cp[i].Above < cp[j].Above })

		for i, t := range cp {
			if !t.Severity.Valid() {
				return nil, fmt.Errorf("signal %s: invalid severity %q", signal, t.Severity)
			}
			if i == 0 {
				continue
			}
			if cp[i-1].Above == t.Above && cp[i-1].Severity != t.Severity {
				return nil, fmt.Errorf("signal %s: %w: two severities at %v", signal, ErrNonMonotonic, t.Above)
			}
			if t.Severity.Rank() < cp[i-1].Severity.Rank() {
				return nil, fmt.Errorf("signal %s: %w: %s above %v but %s above %v",
					signal, ErrNonMonotonic, cp[i-1].Severity, cp[i-1].Above, t.Severity, t.Above)
			}
		}
		sorted[signal] = cp
	}

	return &ThresholdPolicy{confidence: confidence, tiers: sorted}, nil
}

// Classify implements Policy.
func (p *ThresholdPolicy) Classify(signal models.Signal) (models.Severity, float64, error) {
	tiers, ok := p.tiers[signal.Type]
	if !ok {
		return "", 0, fmt.Errorf("%w: %s", ErrUnknownSignal, signal.Type)
	}
	if math.IsNaN(signal.Magnitude) {
		return "", 0, fmt.Errorf("signal %s: magnitude is NaN", signal.Type)
	}

	magnitude := math.Abs(signal.Magnitude)
	severity := models.SeverityLow
	for _, t := range tiers {
		if magnitude <= t.Above {
			break
		}
		severity = t.Severity
	}
	return severity, p.confidence, nil
}

// Signals lists the signal types the policy understands, sorted.
func (p *ThresholdPolicy) Signals() []string {
	out := make([]string, 0, len(p.tiers))
	for s := range p.tiers {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Registry maps producer ids to policies. Policies may be swapped while the
// pipeline is running.
type Registry struct {
	mu       sync.RWMutex
	policies map[string]Policy
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{policies: make(map[string]Policy)}
}

// Set installs or replaces the policy for a producer.
func (r *Registry) Set(producerID string, p Policy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policies[producerID] = p
}

// Get returns the policy for a producer.
func (r *Registry) Get(producerID string) (Policy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.policies[producerID]
	return p, ok
}

// Classify applies the producer's policy and checks the result is in range.
func (r *Registry) Classify(producerID string, signal models.Signal) (models.Severity, float64, error) {
	p, ok := r.Get(producerID)
	if !ok {
		return "", 0, fmt.Errorf("%w: %s", ErrNoPolicy, producerID)
	}
	sev, conf, err := p.Classify(signal)
	if err != nil {
		return "", 0, err
	}
	if !sev.Valid() {
		return "", 0, fmt.Errorf("policy for %s returned invalid severity %q", producerID, sev)
	}
	if math.IsNaN(conf) || conf < 0 || conf > 1 {
		return "", 0, fmt.Errorf("policy for %s returned confidence %v outside [0, 1]", producerID, conf)
	}
	return sev, conf, nil
}

// Producers lists producer ids with a registered policy, sorted.
func (r *Registry) Producers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.policies))
	for id := range r.policies {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
