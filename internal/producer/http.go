// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

package producer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/hydra/internal/logging"
	"github.com/tomtom215/hydra/internal/models"
)

// maxBodyBytes caps producer responses.
const maxBodyBytes = 4 << 20

// HTTPProducer drives a remote producer over two JSON endpoints:
//
//	POST {url}/scan         {"subjects": [...]}  -> {"events": [RawEvent...]}
//	POST {url}/investigate  {"subject", "trigger_description"} -> InvestigationOutcome
type HTTPProducer struct {
	id       string
	baseURL  string
	interval time.Duration
	client   *http.Client
	tracker  *Tracker
}

type scanRequest struct {
	Subjects []string `json:"subjects"`
}

type scanResponse struct {
	Events []models.RawEvent `json:"events"`
}

type investigateRequest struct {
	Subject            string `json:"subject"`
	TriggerDescription string `json:"trigger_description"`
}

// NewHTTPProducer creates a producer polling baseURL every interval.
// timeout bounds each scan request; investigations use the caller's context.
func NewHTTPProducer(id, baseURL string, interval, timeout time.Duration) *HTTPProducer {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPProducer{
		id:       id,
		baseURL:  strings.TrimRight(baseURL, "/"),
		interval: interval,
		client:   &http.Client{Timeout: timeout},
	}
}

// ID implements Producer.
func (p *HTTPProducer) ID() string { return p.id }

// Track attaches a state tracker.
func (p *HTTPProducer) Track(t *Tracker) { p.tracker = t }

// Run scans immediately and then every interval.
func (p *HTTPProducer) Run(ctx context.Context, subjects []string, out chan<- models.RawEvent) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if err := p.scanOnce(ctx, subjects, out); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logging.Warn().Err(err).Str("producer_id", p.id).Msg("scan failed")
			if p.tracker != nil {
				p.tracker.Failed(err)
			}
		}
		if p.tracker != nil {
			p.tracker.ScanFinished(time.Now().Add(p.interval))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *HTTPProducer) scanOnce(ctx context.Context, subjects []string, out chan<- models.RawEvent) error {
	if p.tracker != nil {
		p.tracker.ScanStarted(time.Now())
	}

	var resp scanResponse
	if err := p.post(ctx, "/scan", scanRequest{Subjects: subjects}, &resp); err != nil {
		return err
	}

	for _, raw := range resp.Events {
		if raw.ProducerID == "" {
			raw.ProducerID = p.id
		}
		select {
		case out <- raw:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// DeepInvestigate implements Producer.
func (p *HTTPProducer) DeepInvestigate(ctx context.Context, subject, triggerDescription string) (*models.InvestigationOutcome, error) {
	start := time.Now()
	var outcome models.InvestigationOutcome
	if err := p.post(ctx, "/investigate", investigateRequest{Subject: subject, TriggerDescription: triggerDescription}, &outcome); err != nil {
		return nil, err
	}
	outcome.ProducerID = p.id
	if outcome.Subject == "" {
		outcome.Subject = subject
	}
	if outcome.Duration == 0 {
		outcome.Duration = time.Since(start)
	}
	if outcome.CompletedAt.IsZero() {
		outcome.CompletedAt = time.Now().UTC()
	}
	return &outcome, nil
}

func (p *HTTPProducer) post(ctx context.Context, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", p.id, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s %s returned status %d", p.id, path, resp.StatusCode)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
