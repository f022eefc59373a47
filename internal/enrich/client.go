// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

// Package enrich adds an optional natural-language analysis to HIGH and
// CRITICAL events. It runs off the hot path: the pipeline stage only queues
// the event, and a single worker calls an Ollama-compatible generate
// endpoint under a rate limit and a circuit breaker. The result is broadcast
// to subscribers as an "analysis" message.
package enrich

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/hydra/internal/logging"
	"github.com/tomtom215/hydra/internal/metrics"
	"github.com/tomtom215/hydra/internal/models"
)

// maxResponseBytes caps the generate response body.
const maxResponseBytes = 1 << 20

// Client calls the generate endpoint of an Ollama-compatible server.
type Client struct {
	baseURL string
	model   string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[string]
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// NewClient creates a client. timeout bounds each request.
func NewClient(baseURL, model string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	name := "enrichment"
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		http:    &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Interval:    5 * time.Minute,
			Timeout:     2 * time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logging.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state transition")
				metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
				switch to {
				case gobreaker.StateOpen:
					metrics.CircuitBreakerState.WithLabelValues(name).Set(2)
				case gobreaker.StateHalfOpen:
					metrics.CircuitBreakerState.WithLabelValues(name).Set(1)
				default:
					metrics.CircuitBreakerState.WithLabelValues(name).Set(0)
				}
			},
		}),
	}
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// Generate returns the model's completion for prompt.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	return c.breaker.Execute(func() (string, error) {
		return c.generate(ctx, prompt)
	})
}

func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{Model: c.model, Prompt: prompt})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("generate request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read generate response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("generate returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode generate response: %w", err)
	}
	if out.Error != "" {
		return "", errors.New(out.Error)
	}
	return strings.TrimSpace(out.Response), nil
}

// Prompt builds the analysis prompt for an event.
func Prompt(e *models.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze this competitive intelligence event in three sentences or fewer.\n")
	fmt.Fprintf(&b, "Source: %s\nSubject: %s\nSeverity: %s (confidence %.2f)\n", e.ProducerID, e.Subject, e.Severity, e.Confidence)
	fmt.Fprintf(&b, "Event: %s\n", e.Description)
	if e.RecommendedAction != "" {
		fmt.Fprintf(&b, "Suggested action: %s\n", e.RecommendedAction)
	}
	b.WriteString("State the likely strategic intent and one concrete response.")
	return b.String()
}
