// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

// Package config loads Hydra's runtime configuration.
//
// Sources are layered with koanf, later layers overriding earlier ones:
//  1. Built-in defaults (defaultConfig)
//  2. Optional YAML file (CONFIG_PATH, or config.yaml / /etc/hydra/config.yaml)
//  3. Environment variables listed in envMappings
//
// Everything the pipeline needs is in the returned *Config; components never
// read the environment themselves.
package config

import "time"

// Config is the complete runtime configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Logging     LoggingConfig     `koanf:"logging"`
	Window      WindowConfig      `koanf:"window"`
	Correlation CorrelationConfig `koanf:"correlation"`
	Escalation  EscalationConfig  `koanf:"escalation"`
	Hub         HubConfig         `koanf:"hub"`
	Storage     StorageConfig     `koanf:"storage"`
	Bus         BusConfig         `koanf:"bus"`
	Enrich      EnrichConfig      `koanf:"enrich"`
	Producers   ProducersConfig   `koanf:"producers"`
	Classifier  ClassifierConfig  `koanf:"classifier"`
	Supervisor  SupervisorConfig  `koanf:"supervisor"`
}

// ServerConfig controls the HTTP surface.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              int           `koanf:"port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// WindowConfig bounds each producer's window. Whichever of Capacity and
// MaxAge binds first wins.
type WindowConfig struct {
	Capacity      int           `koanf:"capacity"`
	MaxAge        time.Duration `koanf:"max_age"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// CorrelationConfig holds detector thresholds.
type CorrelationConfig struct {
	CorrelationThreshold float64            `koanf:"correlation_threshold"`
	MinCommonMetrics     int                `koanf:"min_common_metrics"`
	TrailingPeriod       time.Duration      `koanf:"trailing_period"`
	SequenceGap          time.Duration      `koanf:"sequence_gap"`
	MinKeywordOverlap    int                `koanf:"min_keyword_overlap"`
	MinSignificance      float64            `koanf:"min_significance"`
	TextLengthLimit      int                `koanf:"text_length_limit"`
	AnomalyThresholds    map[string]float64 `koanf:"anomaly_thresholds"`
	DisabledDetectors    []string           `koanf:"disabled_detectors"`
}

// EscalationConfig controls deep-investigate fan-out.
type EscalationConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Timeout         time.Duration `koanf:"timeout"`
	SubjectRate     time.Duration `koanf:"subject_rate"`
	SubjectBurst    int           `koanf:"subject_burst"`
	BreakerFailures uint32        `koanf:"breaker_failures"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout"`
}

// HubConfig controls subscriber connections.
type HubConfig struct {
	QueueCapacity int           `koanf:"queue_capacity"`
	StaleTTL      time.Duration `koanf:"stale_ttl"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
	PingInterval  time.Duration `koanf:"ping_interval"`
	WriteTimeout  time.Duration `koanf:"write_timeout"`
}

// StorageConfig selects the persistence backend: badger, duckdb or memory.
type StorageConfig struct {
	Backend    string `koanf:"backend"`
	Path       string `koanf:"path"`
	SyncWrites bool   `koanf:"sync_writes"`
	MaxMemory  string `koanf:"max_memory"`
}

// BusConfig selects the stage bus: gochannel (in-process) or nats.
type BusConfig struct {
	Backend        string        `koanf:"backend"`
	BufferSize     int64         `koanf:"buffer_size"`
	NATSURL        string        `koanf:"nats_url"`
	EmbeddedServer bool          `koanf:"embedded_server"`
	EmbeddedPort   int           `koanf:"embedded_port"`
	StoreDir       string        `koanf:"store_dir"`
	CloseTimeout   time.Duration `koanf:"close_timeout"`
}

// EnrichConfig controls the optional LLM summary of high severity events.
type EnrichConfig struct {
	Enabled bool          `koanf:"enabled"`
	URL     string        `koanf:"url"`
	Model   string        `koanf:"model"`
	Timeout time.Duration `koanf:"timeout"`
	Rate    float64       `koanf:"rate"`
	Queue   int           `koanf:"queue"`
}

// ProducerEndpoint attaches a remote producer service.
type ProducerEndpoint struct {
	ID           string        `koanf:"id"`
	URL          string        `koanf:"url"`
	ScanInterval time.Duration `koanf:"scan_interval"`
	Disabled     bool          `koanf:"disabled"`
}

// ProducersConfig lists the attached producers and what they monitor.
type ProducersConfig struct {
	Subjects       []string                 `koanf:"subjects"`
	Endpoints      []ProducerEndpoint       `koanf:"endpoints"`
	ScanIntervals  map[string]time.Duration `koanf:"scan_intervals"`
	SubmitRetries  int                      `koanf:"submit_retries"`
	RetryBackoff   time.Duration            `koanf:"retry_backoff"`
	RequestTimeout time.Duration            `koanf:"request_timeout"`
}

// TierConfig maps a magnitude floor to a severity for one signal type.
type TierConfig struct {
	Signal   string  `koanf:"signal"`
	Above    float64 `koanf:"above"`
	Severity string  `koanf:"severity"`
}

// PolicyConfig overrides the classifier policy of one producer.
type PolicyConfig struct {
	Confidence float64      `koanf:"confidence"`
	Tiers      []TierConfig `koanf:"tiers"`
}

// ClassifierConfig overrides built-in classifier policies per producer id.
type ClassifierConfig struct {
	Policies map[string]PolicyConfig `koanf:"policies"`
}

// SupervisorConfig tunes the suture tree.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold"`
	FailureBackoff   time.Duration `koanf:"failure_backoff"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout"`
}

// ScanInterval returns the configured interval for a producer, falling back
// to the endpoint's own value and then to five minutes.
func (c *ProducersConfig) ScanInterval(ep ProducerEndpoint) time.Duration {
	if ep.ScanInterval > 0 {
		return ep.ScanInterval
	}
	if d, ok := c.ScanIntervals[ep.ID]; ok && d > 0 {
		return d
	}
	return 5 * time.Minute
}

// Load reads configuration from defaults, an optional file and the environment.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
