// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

// Package metrics declares the Prometheus instruments for every pipeline
// stage. Instruments are registered on the default registry at init and
// exposed by the API at /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion
	IngestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hydra_ingest_total",
			Help: "Submissions handled by the ingestion gateway by result",
		},
		[]string{"producer", "result"}, // accepted, duplicate, invalid, storage_error
	)

	IngestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hydra_ingest_duration_seconds",
			Help:    "Time from submit to broadcast for accepted events",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"producer"},
	)

	EventsBySeverity = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hydra_events_total",
			Help: "Accepted events by severity",
		},
		[]string{"severity"},
	)

	// Windowed store
	WindowSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hydra_window_events",
			Help: "Events currently held in each producer window",
		},
		[]string{"producer"},
	)

	WindowEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hydra_window_evictions_total",
			Help: "Events evicted from producer windows",
		},
		[]string{"producer", "reason"}, // capacity, age
	)

	// Correlation engine
	DetectorRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hydra_detector_runs_total",
			Help: "Detector evaluations by outcome",
		},
		[]string{"detector", "outcome"}, // ok, error
	)

	DetectorDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hydra_detector_duration_seconds",
			Help:    "Duration of one detector evaluation",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
		[]string{"detector"},
	)

	PatternsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hydra_patterns_total",
			Help: "Patterns kept after significance filtering",
		},
		[]string{"type"},
	)

	// Escalation
	EscalationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hydra_escalations_total",
			Help: "Escalation fan-outs by result",
		},
		[]string{"result"}, // started, rate_limited
	)

	EscalationCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hydra_escalation_calls_total",
			Help: "Deep-investigate calls by producer and outcome",
		},
		[]string{"producer", "outcome"}, // ok, timeout, error, circuit_open
	)

	EscalationCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hydra_escalation_call_duration_seconds",
			Help:    "Duration of deep-investigate calls",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"producer"},
	)

	// Circuit breakers (escalation per producer, enrichment client)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hydra_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hydra_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Distribution hub
	HubConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hydra_hub_connections",
			Help: "Live subscriber connections",
		},
	)

	HubMessagesDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hydra_hub_messages_delivered_total",
			Help: "Messages written to subscriber transports",
		},
	)

	HubMessagesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hydra_hub_messages_dropped_total",
			Help: "Queued messages dropped by the drop-oldest policy",
		},
	)

	HubDisconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hydra_hub_disconnects_total",
			Help: "Subscriber disconnects by reason",
		},
		[]string{"reason"}, // client, transport_error, stale, shutdown
	)

	// Producers
	ProducerEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hydra_producer_events_total",
			Help: "Raw events emitted by producers",
		},
		[]string{"producer"},
	)

	ProducerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hydra_producer_errors_total",
			Help: "Producer run failures",
		},
		[]string{"producer"},
	)

	// Pipeline stages
	BusMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hydra_bus_messages_total",
			Help: "Events handled by each pipeline stage by result",
		},
		[]string{"stage", "result"}, // ok, error, panic, malformed
	)

	BusPublishErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hydra_bus_publish_errors_total",
			Help: "Events that could not be handed to the pipeline stages",
		},
	)

	// Enrichment
	EnrichmentRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hydra_enrichment_requests_total",
			Help: "Enrichment calls by outcome",
		},
		[]string{"outcome"}, // ok, error, skipped
	)

	// Storage
	StorageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hydra_storage_operation_duration_seconds",
			Help:    "Persistence port latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	StorageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hydra_storage_errors_total",
			Help: "Persistence port failures",
		},
		[]string{"backend", "operation"},
	)

	// API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hydra_api_requests_total",
			Help: "HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hydra_api_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// RecordIngest counts one submission. duration is observed only for accepted events.
func RecordIngest(producer, result string, duration time.Duration) {
	IngestTotal.WithLabelValues(producer, result).Inc()
	if result == "accepted" {
		IngestDuration.WithLabelValues(producer).Observe(duration.Seconds())
	}
}

// RecordDetectorRun records one detector evaluation.
func RecordDetectorRun(detector string, duration time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	DetectorRuns.WithLabelValues(detector, outcome).Inc()
	DetectorDuration.WithLabelValues(detector).Observe(duration.Seconds())
}

// ForgetWindow drops the window series of a producer whose partition was
// released.
func ForgetWindow(producer string) {
	WindowSize.DeleteLabelValues(producer)
	WindowEvictions.DeletePartialMatch(prometheus.Labels{"producer": producer})
}

// RecordEscalationCall records one deep-investigate call.
func RecordEscalationCall(producer, outcome string, duration time.Duration) {
	EscalationCalls.WithLabelValues(producer, outcome).Inc()
	EscalationCallDuration.WithLabelValues(producer).Observe(duration.Seconds())
}

// RecordStorageOp records a persistence call and its failure, if any.
func RecordStorageOp(backend, operation string, duration time.Duration, err error) {
	StorageOperationDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
	if err != nil {
		StorageErrors.WithLabelValues(backend, operation).Inc()
	}
}

// RecordAPIRequest records an HTTP request.
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
