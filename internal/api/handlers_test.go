// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

package api

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/hydra/internal/classifier"
	"github.com/tomtom215/hydra/internal/config"
	"github.com/tomtom215/hydra/internal/detection"
	"github.com/tomtom215/hydra/internal/ingest"
	"github.com/tomtom215/hydra/internal/logging"
	"github.com/tomtom215/hydra/internal/models"
	"github.com/tomtom215/hydra/internal/producer"
	"github.com/tomtom215/hydra/internal/storage"
	"github.com/tomtom215/hydra/internal/websocket"
	"github.com/tomtom215/hydra/internal/window"
)

func TestMain(m *testing.M) {
	logging.SetLogger(logging.NewTestLogger(io.Discard))
	os.Exit(m.Run())
}

type testEnv struct {
	server    *httptest.Server
	store     *storage.MemoryStore
	hub       *websocket.Hub
	producers *producer.Registry
	cancel    context.CancelFunc
}

type envOption func(*MiddlewareConfig, *[]string)

func withRateLimit(n int) envOption {
	return func(mc *MiddlewareConfig, _ *[]string) {
		mc.RateLimitDisabled = false
		mc.RateLimitRequests = n
		mc.RateLimitWindow = time.Minute
	}
}

func withOrigins(origins ...string) envOption {
	return func(mc *MiddlewareConfig, o *[]string) {
		mc.CORSAllowedOrigins = origins
		*o = origins
	}
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	store := storage.NewMemoryStore()
	win := window.New(window.Config{})
	reg, err := classifier.NewRegistryFromConfig(config.ClassifierConfig{})
	if err != nil {
		t.Fatalf("NewRegistryFromConfig: %v", err)
	}
	hub := websocket.NewHub(config.HubConfig{})
	gw := ingest.NewGateway(store, win, reg)
	gw.SetHub(hub)
	engine := detection.NewEngineFromConfig(config.CorrelationConfig{}, win, store, hub)
	producers := producer.NewRegistry()

	mc := MiddlewareConfig{RateLimitDisabled: true}
	var origins []string
	for _, opt := range opts {
		opt(&mc, &origins)
	}

	h := NewHandler(Deps{
		Gateway:   gw,
		Store:     store,
		Hub:       hub,
		Window:    win,
		Producers: producers,
		Engine:    engine,
	}, origins)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = hub.RunWithContext(ctx) }()

	srv := httptest.NewServer(NewRouter(h, NewMiddleware(mc)))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return &testEnv{server: srv, store: store, hub: hub, producers: producers, cancel: cancel}
}

type envelope struct {
	Status   string           `json:"status"`
	Data     json.RawMessage  `json:"data"`
	Metadata models.Metadata  `json:"metadata"`
	Error    *models.APIError `json:"error"`
}

func (e *testEnv) do(t *testing.T, method, path, body string) (int, envelope) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.server.URL+path, rdr)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("decode %s: %v", raw, err)
		}
	}
	return resp.StatusCode, env
}

const validEvent = `{
	"producer_id": "price-watch",
	"subject": "Acme",
	"description": "Acme cut the price of Widget Pro",
	"severity": "high",
	"confidence": 0.8,
	"created_at": "2026-03-01T12:00:00Z",
	"payload": {"company": "Acme", "price_change_percent": -12}
}`

func TestSubmitAndQueryEvents(t *testing.T) {
	env := newTestEnv(t)

	status, resp := env.do(t, http.MethodPost, "/api/v1/events", validEvent)
	if status != http.StatusAccepted {
		t.Fatalf("POST status = %d, error = %+v", status, resp.Error)
	}
	var created models.Event
	if err := json.Unmarshal(resp.Data, &created); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if created.ID == "" || created.Severity != models.SeverityHigh || created.Origin != models.OriginAPI {
		t.Errorf("unexpected event %+v", created)
	}

	// Resubmission returns the same stored event.
	status, resp = env.do(t, http.MethodPost, "/api/v1/events", validEvent)
	if status != http.StatusAccepted {
		t.Fatalf("resubmit status = %d", status)
	}
	var again models.Event
	_ = json.Unmarshal(resp.Data, &again)
	if again.ID != created.ID {
		t.Errorf("resubmit id = %s, want %s", again.ID, created.ID)
	}

	status, resp = env.do(t, http.MethodGet, "/api/v1/events?producer_id=price-watch&severity=HIGH", "")
	if status != http.StatusOK {
		t.Fatalf("GET status = %d", status)
	}
	var events []models.Event
	if err := json.Unmarshal(resp.Data, &events); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if len(events) != 1 || resp.Metadata.Count != 1 {
		t.Fatalf("got %d events (count %d), want 1", len(events), resp.Metadata.Count)
	}

	status, _ = env.do(t, http.MethodGet, "/api/v1/events/"+created.ID, "")
	if status != http.StatusOK {
		t.Errorf("GET by id status = %d", status)
	}
}

func TestSubmitEvent_Errors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name      string
		body      string
		wantCode  string
		wantField string
	}{
		{
			name:     "malformed json",
			body:     `{"producer_id":`,
			wantCode: CodeInvalidBody,
		},
		{
			name:      "confidence out of range",
			body:      `{"producer_id":"p","subject":"s","description":"d","severity":"LOW","confidence":1.5}`,
			wantCode:  CodeInvalidConfidence,
			wantField: "confidence",
		},
		{
			name:      "blank subject",
			body:      `{"producer_id":"p","subject":"  ","description":"d","severity":"LOW","confidence":0.5}`,
			wantCode:  CodeValidation,
			wantField: "subject",
		},
		{
			name:     "no severity and no signal",
			body:     `{"producer_id":"p","subject":"s","description":"d"}`,
			wantCode: CodeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, resp := env.do(t, http.MethodPost, "/api/v1/events", tt.body)
			if status != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", status)
			}
			if resp.Error == nil || resp.Error.Code != tt.wantCode {
				t.Fatalf("error = %+v, want code %s", resp.Error, tt.wantCode)
			}
			if tt.wantField != "" {
				if _, ok := resp.Error.Details[tt.wantField]; !ok {
					t.Errorf("details %v missing %s", resp.Error.Details, tt.wantField)
				}
			}
		})
	}

	events, _ := env.store.Query(context.Background(), storage.EventFilter{})
	if len(events) != 0 {
		t.Errorf("rejected submissions stored %d events", len(events))
	}
}

func TestListEvents_BadParameters(t *testing.T) {
	env := newTestEnv(t)

	for _, q := range []string{"severity=urgent", "since=yesterday", "limit=-1", "until=2026-13-01"} {
		t.Run(q, func(t *testing.T) {
			status, resp := env.do(t, http.MethodGet, "/api/v1/events?"+q, "")
			if status != http.StatusBadRequest || resp.Error == nil || resp.Error.Code != CodeInvalidParameter {
				t.Errorf("status = %d, error = %+v", status, resp.Error)
			}
		})
	}
}

func TestGetEvent_NotFound(t *testing.T) {
	env := newTestEnv(t)
	status, resp := env.do(t, http.MethodGet, "/api/v1/events/missing", "")
	if status != http.StatusNotFound || resp.Error.Code != CodeNotFound {
		t.Errorf("status = %d, error = %+v", status, resp.Error)
	}
}

func TestListPatterns(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, p := range []*models.Pattern{
		{ID: "p1", Type: models.PatternTrend, Significance: 0.9, DetectedAt: now, Label: "acme"},
		{ID: "p2", Type: models.PatternAnomaly, Significance: 0.5, DetectedAt: now.Add(time.Second)},
	} {
		if err := env.store.AppendPattern(ctx, p); err != nil {
			t.Fatalf("AppendPattern: %v", err)
		}
	}

	status, resp := env.do(t, http.MethodGet, "/api/v1/patterns?type=trend", "")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	var patterns []models.Pattern
	_ = json.Unmarshal(resp.Data, &patterns)
	if len(patterns) != 1 || patterns[0].ID != "p1" {
		t.Errorf("patterns = %+v, want only p1", patterns)
	}

	_, resp = env.do(t, http.MethodGet, "/api/v1/patterns?min_significance=0.6", "")
	_ = json.Unmarshal(resp.Data, &patterns)
	if len(patterns) != 1 {
		t.Errorf("min_significance filter returned %d patterns", len(patterns))
	}

	status, _ = env.do(t, http.MethodGet, "/api/v1/patterns?type=hunch", "")
	if status != http.StatusBadRequest {
		t.Errorf("unknown type status = %d, want 400", status)
	}

	status, _ = env.do(t, http.MethodGet, "/api/v1/patterns/summary", "")
	if status != http.StatusOK {
		t.Errorf("summary status = %d", status)
	}
}

func TestHealthAndStatus(t *testing.T) {
	env := newTestEnv(t)
	env.producers.Tracker("price-watch").ScanStarted(time.Now())

	status, resp := env.do(t, http.MethodGet, "/api/v1/health", "")
	if status != http.StatusOK {
		t.Fatalf("health status = %d", status)
	}
	var health HealthStatus
	_ = json.Unmarshal(resp.Data, &health)
	if health.Status != "healthy" || health.StorageBackend != "memory" || !health.StorageConnected {
		t.Errorf("health = %+v", health)
	}

	status, resp = env.do(t, http.MethodGet, "/api/v1/status", "")
	if status != http.StatusOK {
		t.Fatalf("status status = %d", status)
	}
	var ps PipelineStatus
	if err := json.Unmarshal(resp.Data, &ps); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if len(ps.Producers) != 1 || ps.Producers[0].Status != producer.StatusScanning {
		t.Errorf("producers = %+v", ps.Producers)
	}
	if ps.Hub == nil || ps.Window == nil || ps.Detection == nil {
		t.Errorf("status missing sections: %+v", ps)
	}
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, withRateLimit(2))

	for i := 0; i < 2; i++ {
		if status, _ := env.do(t, http.MethodGet, "/api/v1/health", ""); status != http.StatusOK {
			t.Fatalf("request %d status = %d", i, status)
		}
	}
	status, resp := env.do(t, http.MethodGet, "/api/v1/health", "")
	if status != http.StatusTooManyRequests {
		t.Fatalf("third request status = %d, want 429", status)
	}
	if resp.Error == nil || resp.Error.Code != "RATE_LIMITED" {
		t.Errorf("error = %+v", resp.Error)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/api/v1/health", "")

	resp, err := http.Get(env.server.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !bytes.Contains(body, []byte("hydra_api_requests_total")) {
		t.Errorf("status = %d, body missing api request counter", resp.StatusCode)
	}
}
