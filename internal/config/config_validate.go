// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/tomtom215/hydra/internal/logging"
	"github.com/tomtom215/hydra/internal/models"
)

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateServer,
		c.validateLogging,
		c.validateWindow,
		c.validateCorrelation,
		c.validateEscalation,
		c.validateHub,
		c.validateStorage,
		c.validateBus,
		c.validateEnrich,
		c.validateProducers,
		c.validateClassifier,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if !c.Server.RateLimitDisabled && c.Server.RateLimitRequests < 1 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be positive when rate limiting is enabled")
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("LOG_LEVEL %q is not a valid level", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
		return nil
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
}

func (c *Config) validateWindow() error {
	if c.Window.Capacity < 1 {
		return fmt.Errorf("WINDOW_CAPACITY must be positive, got %d", c.Window.Capacity)
	}
	if c.Window.MaxAge <= 0 {
		return fmt.Errorf("WINDOW_MAX_AGE must be positive, got %v", c.Window.MaxAge)
	}
	if c.Window.SweepInterval <= 0 {
		return fmt.Errorf("WINDOW_SWEEP_INTERVAL must be positive, got %v", c.Window.SweepInterval)
	}
	return nil
}

func (c *Config) validateCorrelation() error {
	cc := c.Correlation
	if cc.CorrelationThreshold <= 0 || cc.CorrelationThreshold > 1 {
		return fmt.Errorf("CORRELATION_THRESHOLD must be in (0, 1], got %v", cc.CorrelationThreshold)
	}
	if cc.MinCommonMetrics < 2 {
		return fmt.Errorf("CORRELATION_MIN_METRICS must be at least 2, got %d", cc.MinCommonMetrics)
	}
	if cc.MinSignificance < 0 || cc.MinSignificance >= 1 {
		return fmt.Errorf("PATTERN_MIN_SIGNIFICANCE must be in [0, 1), got %v", cc.MinSignificance)
	}
	if cc.SequenceGap <= 0 || cc.TrailingPeriod <= 0 {
		return fmt.Errorf("sequence gap and trailing period must be positive")
	}
	for metric, threshold := range cc.AnomalyThresholds {
		if threshold <= 0 {
			return fmt.Errorf("anomaly threshold for %s must be positive, got %v", metric, threshold)
		}
	}
	return nil
}

func (c *Config) validateEscalation() error {
	if !c.Escalation.Enabled {
		return nil
	}
	if c.Escalation.Timeout <= 0 {
		return fmt.Errorf("ESCALATION_TIMEOUT must be positive, got %v", c.Escalation.Timeout)
	}
	if c.Escalation.SubjectBurst < 1 {
		return fmt.Errorf("ESCALATION_SUBJECT_BURST must be at least 1")
	}
	return nil
}

func (c *Config) validateHub() error {
	if c.Hub.QueueCapacity < 1 {
		return fmt.Errorf("HUB_QUEUE_CAPACITY must be positive, got %d", c.Hub.QueueCapacity)
	}
	if c.Hub.StaleTTL <= 0 || c.Hub.SweepInterval <= 0 {
		return fmt.Errorf("hub stale TTL and sweep interval must be positive")
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case "memory":
		return nil
	case "badger", "duckdb":
		if strings.TrimSpace(c.Storage.Path) == "" {
			return fmt.Errorf("STORAGE_PATH is required for the %s backend", c.Storage.Backend)
		}
		return nil
	default:
		return fmt.Errorf("STORAGE_BACKEND must be badger, duckdb or memory, got %q", c.Storage.Backend)
	}
}

func (c *Config) validateBus() error {
	switch c.Bus.Backend {
	case "gochannel":
		return nil
	case "nats":
		if !c.Bus.EmbeddedServer && c.Bus.NATSURL == "" {
			return fmt.Errorf("NATS_URL is required when BUS_BACKEND=nats without an embedded server")
		}
		return nil
	default:
		return fmt.Errorf("BUS_BACKEND must be gochannel or nats, got %q", c.Bus.Backend)
	}
}

func (c *Config) validateEnrich() error {
	if !c.Enrich.Enabled {
		return nil
	}
	if err := validateHTTPURL(c.Enrich.URL); err != nil {
		return fmt.Errorf("OLLAMA_URL is invalid: %w", err)
	}
	if c.Enrich.Model == "" {
		return fmt.Errorf("OLLAMA_MODEL is required when enrichment is enabled")
	}
	if c.Enrich.Rate <= 0 {
		return fmt.Errorf("ENRICH_RATE must be positive")
	}
	return nil
}

func (c *Config) validateProducers() error {
	seen := make(map[string]struct{}, len(c.Producers.Endpoints))
	for _, ep := range c.Producers.Endpoints {
		if ep.ID == "" {
			return fmt.Errorf("producer endpoint without id")
		}
		if _, dup := seen[ep.ID]; dup {
			return fmt.Errorf("producer %s configured twice", ep.ID)
		}
		seen[ep.ID] = struct{}{}
		if err := validateHTTPURL(ep.URL); err != nil {
			return fmt.Errorf("producer %s url is invalid: %w", ep.ID, err)
		}
	}
	if c.Producers.SubmitRetries < 0 {
		return fmt.Errorf("PRODUCER_SUBMIT_RETRIES must not be negative")
	}
	return nil
}

func (c *Config) validateClassifier() error {
	for producer, p := range c.Classifier.Policies {
		if p.Confidence < 0 || p.Confidence > 1 {
			return fmt.Errorf("classifier policy %s: confidence must be in [0, 1], got %v", producer, p.Confidence)
		}
		for _, tier := range p.Tiers {
			if _, err := models.ParseSeverity(tier.Severity); err != nil {
				return fmt.Errorf("classifier policy %s: %w", producer, err)
			}
			if tier.Signal == "" {
				return fmt.Errorf("classifier policy %s: tier without signal", producer)
			}
		}
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}
