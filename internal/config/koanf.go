// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/hydra/config.yaml",
	"/etc/hydra/config.yml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8088,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			CORSOrigins:       []string{},
			RateLimitRequests: 600,
			RateLimitWindow:   time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Window: WindowConfig{
			Capacity:      500,
			MaxAge:        24 * time.Hour,
			SweepInterval: time.Minute,
		},
		Correlation: CorrelationConfig{
			CorrelationThreshold: 0.7,
			MinCommonMetrics:     3,
			TrailingPeriod:       24 * time.Hour,
			SequenceGap:          24 * time.Hour,
			MinKeywordOverlap:    3,
			MinSignificance:      0.3,
			TextLengthLimit:      1000,
			AnomalyThresholds: map[string]float64{
				"price_change":     0.15,
				"sentiment_shift":  0.3,
				"volume_spike":     2.0,
				"frequency_change": 1.5,
			},
			DisabledDetectors: []string{},
		},
		Escalation: EscalationConfig{
			Enabled:         true,
			Timeout:         30 * time.Second,
			SubjectBurst:    3,
			BreakerFailures: 5,
			BreakerTimeout:  time.Minute,
		},
		Hub: HubConfig{
			QueueCapacity: 100,
			StaleTTL:      time.Hour,
			SweepInterval: time.Minute,
			PingInterval:  30 * time.Second,
			WriteTimeout:  10 * time.Second,
		},
		Storage: StorageConfig{
			Backend:    "badger",
			Path:       "./data/hydra",
			SyncWrites: true,
			MaxMemory:  "1GB",
		},
		Bus: BusConfig{
			Backend:      "gochannel",
			BufferSize:   1024,
			NATSURL:      "nats://127.0.0.1:4222",
			EmbeddedPort: 4222,
			StoreDir:     "./data/nats",
			CloseTimeout: 10 * time.Second,
		},
		Enrich: EnrichConfig{
			Enabled: false,
			URL:     "http://localhost:11434",
			Model:   "llama3.1:8b",
			Timeout: 60 * time.Second,
			Rate:    1,
			Queue:   64,
		},
		Producers: ProducersConfig{
			Subjects:  []string{},
			Endpoints: []ProducerEndpoint{},
			ScanIntervals: map[string]time.Duration{
				"price_watch":  5 * time.Minute,
				"job_spy":      10 * time.Minute,
				"tech_radar":   30 * time.Minute,
				"social_pulse": 15 * time.Minute,
				"patent_hawk":  time.Hour,
				"ad_tracker":   20 * time.Minute,
			},
			SubmitRetries:  3,
			RetryBackoff:   time.Second,
			RequestTimeout: 30 * time.Second,
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  10 * time.Second,
		},
	}
}

// LoadWithKoanf builds the configuration from defaults, file and environment,
// then validates it.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	cfg.fillMapDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// fillMapDefaults restores default map entries. koanf replaces a whole map
// when any single key of it is overridden, so a lone ANOMALY_PRICE_CHANGE
// would otherwise drop the remaining thresholds.
func (c *Config) fillMapDefaults() {
	d := defaultConfig()
	if c.Correlation.AnomalyThresholds == nil {
		c.Correlation.AnomalyThresholds = make(map[string]float64)
	}
	for k, v := range d.Correlation.AnomalyThresholds {
		if _, ok := c.Correlation.AnomalyThresholds[k]; !ok {
			c.Correlation.AnomalyThresholds[k] = v
		}
	}
	if c.Producers.ScanIntervals == nil {
		c.Producers.ScanIntervals = make(map[string]time.Duration)
	}
	for k, v := range d.Producers.ScanIntervals {
		if _, ok := c.Producers.ScanIntervals[k]; !ok {
			c.Producers.ScanIntervals[k] = v
		}
	}
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// sliceConfigPaths are split on commas when they arrive as a single string
// from the environment.
var sliceConfigPaths = []string{
	"server.cors_origins",
	"producers.subjects",
	"correlation.disabled_detectors",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok || s == "" {
			continue
		}
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if err := k.Set(path, out); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings lists every recognized environment variable. Unlisted
// variables are ignored so unrelated environment does not leak into config.
var envMappings = map[string]string{
	"http_host":           "server.host",
	"http_port":           "server.port",
	"http_read_timeout":   "server.read_timeout",
	"http_write_timeout":  "server.write_timeout",
	"shutdown_timeout":    "server.shutdown_timeout",
	"cors_origins":        "server.cors_origins",
	"rate_limit_requests": "server.rate_limit_requests",
	"rate_limit_window":   "server.rate_limit_window",
	"disable_rate_limit":  "server.rate_limit_disabled",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	"window_capacity":       "window.capacity",
	"window_max_age":        "window.max_age",
	"window_sweep_interval": "window.sweep_interval",

	"correlation_threshold":      "correlation.correlation_threshold",
	"correlation_min_metrics":    "correlation.min_common_metrics",
	"correlation_trailing":       "correlation.trailing_period",
	"sequence_gap":               "correlation.sequence_gap",
	"sequence_keyword_overlap":   "correlation.min_keyword_overlap",
	"pattern_min_significance":   "correlation.min_significance",
	"anomaly_text_length":        "correlation.text_length_limit",
	"anomaly_price_change":       "correlation.anomaly_thresholds.price_change",
	"anomaly_sentiment_shift":    "correlation.anomaly_thresholds.sentiment_shift",
	"anomaly_volume_spike":       "correlation.anomaly_thresholds.volume_spike",
	"anomaly_frequency_change":   "correlation.anomaly_thresholds.frequency_change",
	"correlation_disabled_rules": "correlation.disabled_detectors",

	"escalation_enabled":          "escalation.enabled",
	"escalation_timeout":          "escalation.timeout",
	"escalation_subject_rate":     "escalation.subject_rate",
	"escalation_subject_burst":    "escalation.subject_burst",
	"escalation_breaker_failures": "escalation.breaker_failures",
	"escalation_breaker_timeout":  "escalation.breaker_timeout",

	"hub_queue_capacity": "hub.queue_capacity",
	"hub_stale_ttl":      "hub.stale_ttl",
	"hub_sweep_interval": "hub.sweep_interval",
	"hub_ping_interval":  "hub.ping_interval",
	"hub_write_timeout":  "hub.write_timeout",

	"storage_backend":     "storage.backend",
	"storage_path":        "storage.path",
	"storage_sync_writes": "storage.sync_writes",
	"duckdb_max_memory":   "storage.max_memory",

	"bus_backend":       "bus.backend",
	"bus_buffer_size":   "bus.buffer_size",
	"nats_url":          "bus.nats_url",
	"nats_embedded":     "bus.embedded_server",
	"nats_port":         "bus.embedded_port",
	"nats_store_dir":    "bus.store_dir",
	"bus_close_timeout": "bus.close_timeout",

	"enrich_enabled": "enrich.enabled",
	"ollama_url":     "enrich.url",
	"ollama_model":   "enrich.model",
	"enrich_timeout": "enrich.timeout",
	"enrich_rate":    "enrich.rate",
	"enrich_queue":   "enrich.queue",

	"subjects":                 "producers.subjects",
	"producer_submit_retries":  "producers.submit_retries",
	"producer_retry_backoff":   "producers.retry_backoff",
	"producer_request_timeout": "producers.request_timeout",

	"supervisor_failure_threshold": "supervisor.failure_threshold",
	"supervisor_failure_backoff":   "supervisor.failure_backoff",
	"supervisor_shutdown_timeout":  "supervisor.shutdown_timeout",
}

// envTransformFunc maps HYDRA-style variable names (LOG_LEVEL) to koanf paths
// (logging.level). Unknown names return "" and are skipped.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
