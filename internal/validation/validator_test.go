// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

package validation

import (
	"strings"
	"testing"
)

type sample struct {
	Name       string   `json:"name" validate:"notblank"`
	Severity   string   `json:"severity" validate:"severity"`
	Confidence *float64 `json:"confidence" validate:"omitempty,unitinterval"`
	Limit      int      `json:"limit" validate:"gte=0,lte=1000"`
}

func ptr(v float64) *float64 { return &v }

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name    string
		in      sample
		wantTag string
	}{
		{"valid", sample{Name: "acme", Severity: "high", Confidence: ptr(0.5)}, ""},
		{"valid without optional", sample{Name: "acme"}, ""},
		{"blank name", sample{Name: "   "}, "notblank"},
		{"bad severity", sample{Name: "acme", Severity: "urgent"}, "severity"},
		{"confidence above one", sample{Name: "acme", Confidence: ptr(1.01)}, "unitinterval"},
		{"confidence below zero", sample{Name: "acme", Confidence: ptr(-0.1)}, "unitinterval"},
		{"confidence at bounds", sample{Name: "acme", Confidence: ptr(1.0)}, ""},
		{"limit too big", sample{Name: "acme", Limit: 5000}, "lte"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(&tt.in)
			if tt.wantTag == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected %s failure", tt.wantTag)
			}
			if !err.HasTag(tt.wantTag) {
				t.Errorf("expected tag %s in %v", tt.wantTag, err)
			}
		})
	}
}

func TestValidateStruct_UsesJSONFieldNames(t *testing.T) {
	err := ValidateStruct(&sample{Name: "", Confidence: ptr(2)})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(err.Errors()) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(err.Errors()))
	}
	if !strings.Contains(err.Error(), "name must not be blank") {
		t.Errorf("message = %q", err.Error())
	}
	if _, ok := err.Details()["confidence"]; !ok {
		t.Errorf("details missing confidence: %v", err.Details())
	}
}

func TestGetValidator_Singleton(t *testing.T) {
	if GetValidator() != GetValidator() {
		t.Error("expected the same instance")
	}
}
