// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

package models

import "time"

// InvestigationOutcome is the result of a producer's deep investigation of a
// subject after another producer reported a high severity event.
type InvestigationOutcome struct {
	ProducerID  string        `json:"producer_id"`
	Subject     string        `json:"subject"`
	Summary     string        `json:"summary,omitempty"`
	Findings    []RawEvent    `json:"findings,omitempty"`
	Duration    time.Duration `json:"duration"`
	CompletedAt time.Time     `json:"completed_at"`
}

// HasFindings reports whether the outcome carries new events to ingest.
func (o *InvestigationOutcome) HasFindings() bool {
	return o != nil && len(o.Findings) > 0
}
