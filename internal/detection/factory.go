// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

package detection

import (
	"strings"

	"github.com/tomtom215/hydra/internal/config"
	"github.com/tomtom215/hydra/internal/logging"
	"github.com/tomtom215/hydra/internal/models"
)

// NewEngineFromConfig builds an engine with the four standard detectors,
// disabling those listed in cfg.DisabledDetectors.
func NewEngineFromConfig(cfg config.CorrelationConfig, window WindowReader, store PatternStore, broadcaster Broadcaster) *Engine {
	engineCfg := DefaultEngineConfig()
	engineCfg.MinSignificance = cfg.MinSignificance

	names := make([]string, 0, len(cfg.AnomalyThresholds))
	for k := range cfg.AnomalyThresholds {
		names = append(names, k)
	}
	extractor := NewMetricExtractor(names)

	e := NewEngine(engineCfg, window, store, broadcaster)
	e.RegisterDetector(NewCorrelationDetector(CorrelationConfig{
		Threshold:      cfg.CorrelationThreshold,
		MinCommon:      cfg.MinCommonMetrics,
		TrailingPeriod: cfg.TrailingPeriod,
	}, extractor))
	e.RegisterDetector(NewTrendDetector(2))
	e.RegisterDetector(NewAnomalyDetector(AnomalyConfig{
		Thresholds:      cfg.AnomalyThresholds,
		TextLengthLimit: cfg.TextLengthLimit,
	}, extractor))
	e.RegisterDetector(NewSequenceDetector(SequenceConfig{
		MaxGap:            cfg.SequenceGap,
		MinKeywordOverlap: cfg.MinKeywordOverlap,
	}))

	for _, name := range cfg.DisabledDetectors {
		t := models.PatternType(strings.ToUpper(strings.TrimSpace(name)))
		if err := e.SetDetectorEnabled(t, false); err != nil {
			logging.Warn().Err(err).Msg("ignoring unknown detector in disabled_detectors")
		}
	}
	return e
}
