// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tomtom215/hydra/internal/models"
	"github.com/tomtom215/hydra/internal/storage"
)

// ListPatterns handles GET /api/v1/patterns.
//
// Query: type (CORRELATION, TREND, ANOMALY, SEQUENCE), min_significance, since, limit.
func (h *Handler) ListPatterns(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	var f storage.PatternFilter
	if v := r.URL.Query().Get("type"); v != "" {
		t := models.PatternType(strings.ToUpper(v))
		switch t {
		case models.PatternCorrelation, models.PatternTrend, models.PatternAnomaly, models.PatternSequence:
			f.Type = t
		default:
			respondParamError(w, &paramError{name: "type", err: fmt.Errorf("unknown pattern type %q", v)})
			return
		}
	}
	var perr *paramError
	if f.MinSignificance, perr = getFloatParam(r, "min_significance"); perr != nil {
		respondParamError(w, perr)
		return
	}
	if f.Since, perr = getTimeParam(r, "since"); perr != nil {
		respondParamError(w, perr)
		return
	}
	if f.Limit, perr = getLimit(r); perr != nil {
		respondParamError(w, perr)
		return
	}

	patterns, err := h.deps.Store.QueryPatterns(r.Context(), f)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if patterns == nil {
		patterns = []*models.Pattern{}
	}
	respondData(w, http.StatusOK, patterns, len(patterns), started)
}

// PatternSummary handles GET /api/v1/patterns/summary.
func (h *Handler) PatternSummary(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	if h.deps.Engine == nil {
		respondError(w, http.StatusServiceUnavailable, CodeUnavailable, "correlation engine not running", nil, nil)
		return
	}
	top := 10
	if v := r.URL.Query().Get("top"); v != "" {
		if _, err := fmt.Sscanf(v, "%d", &top); err != nil || top <= 0 {
			respondParamError(w, &paramError{name: "top", err: fmt.Errorf("must be a positive integer, got %q", v)})
			return
		}
	}
	respondData(w, http.StatusOK, h.deps.Engine.Summary(top), 0, started)
}
