// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Window.Capacity != 500 {
		t.Errorf("Window.Capacity = %d, want 500", cfg.Window.Capacity)
	}
	if cfg.Window.MaxAge != 24*time.Hour {
		t.Errorf("Window.MaxAge = %v, want 24h", cfg.Window.MaxAge)
	}
	if cfg.Hub.QueueCapacity != 100 {
		t.Errorf("Hub.QueueCapacity = %d, want 100", cfg.Hub.QueueCapacity)
	}
	if cfg.Hub.StaleTTL != time.Hour {
		t.Errorf("Hub.StaleTTL = %v, want 1h", cfg.Hub.StaleTTL)
	}
	if cfg.Escalation.Timeout != 30*time.Second {
		t.Errorf("Escalation.Timeout = %v, want 30s", cfg.Escalation.Timeout)
	}
	if cfg.Escalation.SubjectRate != 0 {
		t.Errorf("Escalation.SubjectRate = %v, want 0 (storm guard off)", cfg.Escalation.SubjectRate)
	}
	if got := cfg.Correlation.AnomalyThresholds["price_change"]; got != 0.15 {
		t.Errorf("price_change threshold = %v, want 0.15", got)
	}
	if cfg.Storage.Backend != "badger" {
		t.Errorf("Storage.Backend = %q, want badger", cfg.Storage.Backend)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadWithKoanf_EnvOverrides(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("WINDOW_CAPACITY", "50")
	t.Setenv("ESCALATION_TIMEOUT", "5s")
	t.Setenv("STORAGE_BACKEND", "memory")
	t.Setenv("SUBJECTS", "acme.com, globex.com ,")
	t.Setenv("ANOMALY_PRICE_CHANGE", "0.25")
	t.Setenv("SOME_UNRELATED_VAR", "ignored")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf: %v", err)
	}

	if cfg.Window.Capacity != 50 {
		t.Errorf("Window.Capacity = %d, want 50", cfg.Window.Capacity)
	}
	if cfg.Escalation.Timeout != 5*time.Second {
		t.Errorf("Escalation.Timeout = %v, want 5s", cfg.Escalation.Timeout)
	}
	if cfg.Storage.Backend != "memory" {
		t.Errorf("Storage.Backend = %q, want memory", cfg.Storage.Backend)
	}
	if len(cfg.Producers.Subjects) != 2 || cfg.Producers.Subjects[1] != "globex.com" {
		t.Errorf("Subjects = %v", cfg.Producers.Subjects)
	}
	if got := cfg.Correlation.AnomalyThresholds["price_change"]; got != 0.25 {
		t.Errorf("price_change = %v, want 0.25", got)
	}
	if got := cfg.Correlation.AnomalyThresholds["volume_spike"]; got != 2.0 {
		t.Errorf("volume_spike = %v, want default 2.0 to survive the override", got)
	}
}

func TestLoadWithKoanf_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hydra.yaml")
	content := `
hub:
  queue_capacity: 10
producers:
  subjects: [acme.com]
  endpoints:
    - id: price_watch
      url: http://price-watch:9000
      scan_interval: 2m
classifier:
  policies:
    price_watch:
      confidence: 0.9
      tiers:
        - {signal: price_change_percent, above: 3, severity: medium}
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("STORAGE_BACKEND", "memory")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf: %v", err)
	}
	if cfg.Hub.QueueCapacity != 10 {
		t.Errorf("Hub.QueueCapacity = %d, want 10", cfg.Hub.QueueCapacity)
	}
	if len(cfg.Producers.Endpoints) != 1 {
		t.Fatalf("Endpoints = %v", cfg.Producers.Endpoints)
	}
	ep := cfg.Producers.Endpoints[0]
	if ep.ID != "price_watch" || ep.ScanInterval != 2*time.Minute {
		t.Errorf("endpoint = %+v", ep)
	}
	if got := cfg.Producers.ScanInterval(ep); got != 2*time.Minute {
		t.Errorf("ScanInterval = %v, want 2m", got)
	}
	policy, ok := cfg.Classifier.Policies["price_watch"]
	if !ok || len(policy.Tiers) != 1 || policy.Tiers[0].Above != 3 {
		t.Errorf("policy = %+v", policy)
	}
}

func TestProducersConfig_ScanIntervalFallback(t *testing.T) {
	cfg := defaultConfig()
	if got := cfg.Producers.ScanInterval(ProducerEndpoint{ID: "patent_hawk"}); got != time.Hour {
		t.Errorf("patent_hawk = %v, want 1h", got)
	}
	if got := cfg.Producers.ScanInterval(ProducerEndpoint{ID: "unknown"}); got != 5*time.Minute {
		t.Errorf("unknown = %v, want 5m", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"zero window", func(c *Config) { c.Window.Capacity = 0 }},
		{"threshold above one", func(c *Config) { c.Correlation.CorrelationThreshold = 1.5 }},
		{"min metrics too small", func(c *Config) { c.Correlation.MinCommonMetrics = 1 }},
		{"negative anomaly threshold", func(c *Config) { c.Correlation.AnomalyThresholds["x"] = -1 }},
		{"zero escalation timeout", func(c *Config) { c.Escalation.Timeout = 0 }},
		{"zero hub queue", func(c *Config) { c.Hub.QueueCapacity = 0 }},
		{"unknown storage", func(c *Config) { c.Storage.Backend = "postgres" }},
		{"badger without path", func(c *Config) { c.Storage.Path = " " }},
		{"unknown bus", func(c *Config) { c.Bus.Backend = "kafka" }},
		{"enrich bad url", func(c *Config) { c.Enrich.Enabled = true; c.Enrich.URL = "ftp://x" }},
		{"duplicate producer", func(c *Config) {
			ep := ProducerEndpoint{ID: "a", URL: "http://a:1"}
			c.Producers.Endpoints = []ProducerEndpoint{ep, ep}
		}},
		{"policy bad severity", func(c *Config) {
			c.Classifier.Policies = map[string]PolicyConfig{
				"a": {Confidence: 0.5, Tiers: []TierConfig{{Signal: "s", Above: 1, Severity: "huge"}}},
			}
		}},
		{"policy bad confidence", func(c *Config) {
			c.Classifier.Policies = map[string]PolicyConfig{"a": {Confidence: 1.2}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
