// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

package enrich

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/hydra/internal/config"
	"github.com/tomtom215/hydra/internal/logging"
	"github.com/tomtom215/hydra/internal/models"
)

func TestMain(m *testing.M) {
	logging.SetLogger(logging.NewTestLogger(io.Discard))
	os.Exit(m.Run())
}

func highEvent() *models.Event {
	return &models.Event{
		ID:          "evt-1",
		ProducerID:  "price_watch",
		Subject:     "acme.com",
		Description: "Enterprise plan price cut by 30%",
		Severity:    models.SeverityCritical,
		Confidence:  0.95,
	}
}

func TestClient_Generate(t *testing.T) {
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"response":"  Aggressive land grab.  ","done":true}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "llama3.1:8b", time.Second)
	out, err := c.Generate(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if out != "Aggressive land grab." {
		t.Errorf("Generate() = %q", out)
	}
	if got.Model != "llama3.1:8b" || got.Stream {
		t.Errorf("request = %+v", got)
	}
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"server error", http.StatusInternalServerError, "model not loaded", "status 500"},
		{"error field", http.StatusOK, `{"error":"model not found"}`, "model not found"},
		{"bad json", http.StatusOK, `{`, "decode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, "m", time.Second).Generate(context.Background(), "p")
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Generate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestClient_BreakerOpens(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "m", time.Second)
	for i := 0; i < 5; i++ {
		_, _ = c.Generate(context.Background(), "p")
	}

	mu.Lock()
	defer mu.Unlock()
	if calls != 3 {
		t.Errorf("server called %d times, want 3 before the breaker opens", calls)
	}
}

func TestPrompt(t *testing.T) {
	e := highEvent()
	e.RecommendedAction = "review pricing"
	p := Prompt(e)
	for _, want := range []string{"price_watch", "acme.com", "CRITICAL", "0.95", "review pricing"} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

type fakeGenerator struct {
	err error
}

func (f fakeGenerator) Generate(context.Context, string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "summary", nil
}

func (fakeGenerator) Model() string { return "fake" }

type mockBroadcaster struct {
	mu       sync.Mutex
	messages []Analysis
}

func (m *mockBroadcaster) BroadcastJSON(messageType string, data interface{}) {
	if messageType != "analysis" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, data.(Analysis))
}

func (m *mockBroadcaster) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

func TestEnricher_AnalyzesHighSeverity(t *testing.T) {
	b := &mockBroadcaster{}
	en := NewEnricher(config.EnrichConfig{Queue: 4}, fakeGenerator{}, b)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- en.RunWithContext(ctx) }()

	low := highEvent()
	low.ID = "low"
	low.Severity = models.SeverityMedium
	_ = en.Enqueue(ctx, low)
	_ = en.Enqueue(ctx, highEvent())

	deadline := time.Now().Add(2 * time.Second)
	for b.count() < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)

	b.mu.Lock()
	if len(b.messages) != 1 || b.messages[0].EventID != "evt-1" || b.messages[0].Model != "fake" {
		t.Errorf("analysis messages = %+v", b.messages)
	}
	b.mu.Unlock()

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("RunWithContext() = %v", err)
	}
}

func TestEnricher_FailureNotBroadcast(t *testing.T) {
	b := &mockBroadcaster{}
	en := NewEnricher(config.EnrichConfig{}, fakeGenerator{err: errors.New("down")}, b)
	en.analyze(context.Background(), highEvent())
	if b.count() != 0 {
		t.Error("failed analysis was broadcast")
	}
}

func TestEnricher_FullQueueDrops(t *testing.T) {
	en := NewEnricher(config.EnrichConfig{Queue: 1}, fakeGenerator{}, &mockBroadcaster{})
	for i := 0; i < 3; i++ {
		if err := en.Enqueue(context.Background(), highEvent()); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}
	if len(en.queue) != 1 {
		t.Errorf("queue length = %d, want 1", len(en.queue))
	}
}
