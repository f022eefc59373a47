// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/hydra/internal/classifier"
	"github.com/tomtom215/hydra/internal/config"
	"github.com/tomtom215/hydra/internal/logging"
	"github.com/tomtom215/hydra/internal/models"
	"github.com/tomtom215/hydra/internal/storage"
	"github.com/tomtom215/hydra/internal/websocket"
	"github.com/tomtom215/hydra/internal/window"
)

func TestMain(m *testing.M) {
	logging.SetLogger(logging.NewTestLogger(io.Discard))
	os.Exit(m.Run())
}

// recorder captures hub and bus traffic in arrival order.
type recorder struct {
	mu     sync.Mutex
	hub    []*models.Event
	bus    []*models.Event
	busErr error
}

func (r *recorder) Publish(msg websocket.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hub = append(r.hub, msg.Data.(websocket.EventData).Event)
}

func (r *recorder) PublishEvent(_ context.Context, e *models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bus = append(r.bus, e)
	return r.busErr
}

func (r *recorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.hub), len(r.bus)
}

// failingStore fails every append.
type failingStore struct{}

func (failingStore) Append(context.Context, *models.Event) (string, error) {
	return "", &storage.StorageError{Backend: "test", Op: "append", Err: errors.New("disk full")}
}

func (failingStore) Get(context.Context, string) (*models.Event, error) {
	return nil, storage.ErrNotFound
}

type fixture struct {
	gw     *Gateway
	store  *storage.MemoryStore
	window *window.Store
	rec    *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg, err := classifier.NewRegistryFromConfig(config.ClassifierConfig{})
	if err != nil {
		t.Fatalf("NewRegistryFromConfig() error = %v", err)
	}
	f := &fixture{
		store:  storage.NewMemoryStore(),
		window: window.New(window.Config{}),
		rec:    &recorder{},
	}
	f.gw = NewGateway(f.store, f.window, reg)
	f.gw.SetHub(f.rec)
	f.gw.SetPublisher(f.rec)
	return f
}

func rawEvent(producer, subject string, created time.Time) models.RawEvent {
	return models.RawEvent{
		ProducerID:  producer,
		Subject:     subject,
		Description: "price dropped on flagship plan",
		Severity:    "high",
		Confidence:  models.Float64(0.8),
		CreatedAt:   models.Time(created),
	}
}

func TestSubmit_Accepted(t *testing.T) {
	f := newFixture(t)
	created := time.Now().Add(-time.Minute)

	e, err := f.gw.Submit(context.Background(), rawEvent("price_watch", "acme.com", created))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if e.Severity != models.SeverityHigh || e.Confidence != 0.8 {
		t.Errorf("severity/confidence = %s/%v", e.Severity, e.Confidence)
	}
	if e.Origin != models.OriginProducer {
		t.Errorf("origin = %q, want producer", e.Origin)
	}
	if e.ID != models.EventID(e.IdempotencyKey()) {
		t.Error("event id not derived from idempotency key")
	}

	stored, err := f.store.Get(context.Background(), e.ID)
	if err != nil || stored.ID != e.ID {
		t.Fatalf("stored event = %v, %v", stored, err)
	}
	if got := f.window.Recent("price_watch", window.Bound{}); len(got) != 1 {
		t.Errorf("window holds %d events, want 1", len(got))
	}
	if hub, bus := f.rec.counts(); hub != 1 || bus != 1 {
		t.Errorf("hub=%d bus=%d, want 1/1", hub, bus)
	}
}

func TestSubmit_DuplicateIsNoOp(t *testing.T) {
	f := newFixture(t)
	created := time.Now().Add(-time.Minute)
	raw := rawEvent("price_watch", "acme.com", created)

	first, err := f.gw.Submit(context.Background(), raw)
	if err != nil {
		t.Fatalf("first Submit() error = %v", err)
	}

	// Same instant expressed in another zone.
	raw.CreatedAt = models.Time(created.In(time.FixedZone("X", 5*3600)))
	second, err := f.gw.Submit(context.Background(), raw)
	if err != nil {
		t.Fatalf("duplicate Submit() error = %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("duplicate id = %s, want %s", second.ID, first.ID)
	}
	if hub, bus := f.rec.counts(); hub != 1 || bus != 1 {
		t.Errorf("hub=%d bus=%d after duplicate, want 1/1", hub, bus)
	}
	if got := f.window.Recent("price_watch", window.Bound{}); len(got) != 1 {
		t.Errorf("window holds %d events, want 1", len(got))
	}
}

func TestSubmit_Validation(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name   string
		mutate func(*models.RawEvent)
		kind   Kind
	}{
		{"blank producer", func(r *models.RawEvent) { r.ProducerID = "  " }, KindValidation},
		{"empty subject", func(r *models.RawEvent) { r.Subject = "" }, KindValidation},
		{"blank description", func(r *models.RawEvent) { r.Description = "\t" }, KindValidation},
		{"unknown severity", func(r *models.RawEvent) { r.Severity = "urgent" }, KindValidation},
		{"confidence above one", func(r *models.RawEvent) { r.Confidence = models.Float64(1.01) }, KindInvalidConfidence},
		{"confidence below zero", func(r *models.RawEvent) { r.Confidence = models.Float64(-0.1) }, KindInvalidConfidence},
		{"confidence NaN", func(r *models.RawEvent) { r.Confidence = models.Float64(math.NaN()) }, KindInvalidConfidence},
		{"no severity and no signal", func(r *models.RawEvent) { r.Severity = "" }, KindValidation},
		{"signal without policy", func(r *models.RawEvent) {
			r.ProducerID = "unknown_source"
			r.Severity = ""
			r.Signal = &models.Signal{Type: "x", Magnitude: 1}
		}, KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			raw := rawEvent("price_watch", "acme.com", now)
			tt.mutate(&raw)

			_, err := f.gw.Submit(context.Background(), raw)
			var ie *IngestError
			if !errors.As(err, &ie) {
				t.Fatalf("Submit() error = %v, want *IngestError", err)
			}
			if ie.Kind != tt.kind {
				t.Errorf("Kind = %s, want %s", ie.Kind, tt.kind)
			}
			if ie.Retryable() {
				t.Error("validation failure reported retryable")
			}
			if hub, bus := f.rec.counts(); hub != 0 || bus != 0 {
				t.Errorf("side effects after rejection: hub=%d bus=%d", hub, bus)
			}
		})
	}
}

func TestSubmit_Classified(t *testing.T) {
	tests := []struct {
		name       string
		magnitude  float64
		severity   string
		confidence *float64
		wantSev    models.Severity
		wantConf   float64
	}{
		{"policy fills both", 12, "", nil, models.SeverityHigh, 0.95},
		{"negative change uses magnitude", -25, "", nil, models.SeverityCritical, 0.95},
		{"below lowest tier", 1, "", nil, models.SeverityLow, 0.95},
		{"reported confidence wins", 12, "", models.Float64(0.6), models.SeverityHigh, 0.6},
		{"reported severity wins", 12, "MEDIUM", nil, models.SeverityMedium, 0.95},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			raw := models.RawEvent{
				ProducerID:  "price_watch",
				Subject:     "acme.com",
				Description: fmt.Sprintf("price moved %v%%", tt.magnitude),
				Severity:    tt.severity,
				Confidence:  tt.confidence,
				Signal:      &models.Signal{Type: "price_change_percent", Magnitude: tt.magnitude},
			}
			e, err := f.gw.Submit(context.Background(), raw)
			if err != nil {
				t.Fatalf("Submit() error = %v", err)
			}
			if e.Severity != tt.wantSev || e.Confidence != tt.wantConf {
				t.Errorf("got %s/%v, want %s/%v", e.Severity, e.Confidence, tt.wantSev, tt.wantConf)
			}
		})
	}
}

func TestSubmit_DefaultsCreatedAt(t *testing.T) {
	f := newFixture(t)
	fixed := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	f.gw.SetClock(func() time.Time { return fixed })

	raw := rawEvent("job_spy", "acme.com", time.Time{})
	raw.CreatedAt = nil
	e, err := f.gw.Submit(context.Background(), raw)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if !e.CreatedAt.Equal(fixed) || !e.IngestedAt.Equal(fixed) {
		t.Errorf("created_at=%v ingested_at=%v, want %v", e.CreatedAt, e.IngestedAt, fixed)
	}
}

func TestSubmit_StorageFailureHasNoSideEffects(t *testing.T) {
	rec := &recorder{}
	w := window.New(window.Config{})
	gw := NewGateway(failingStore{}, w, nil)
	gw.SetHub(rec)
	gw.SetPublisher(rec)

	_, err := gw.Submit(context.Background(), rawEvent("price_watch", "acme.com", time.Now()))
	var ie *IngestError
	if !errors.As(err, &ie) || ie.Kind != KindStorage {
		t.Fatalf("Submit() error = %v, want storage IngestError", err)
	}
	if !IsRetryable(err) {
		t.Error("storage failure not retryable")
	}
	var se *storage.StorageError
	if !errors.As(err, &se) {
		t.Error("StorageError not reachable through IngestError")
	}
	if hub, bus := rec.counts(); hub != 0 || bus != 0 {
		t.Errorf("hub=%d bus=%d after storage failure", hub, bus)
	}
	if got := w.Recent("price_watch", window.Bound{}); len(got) != 0 {
		t.Errorf("window holds %d events after storage failure", len(got))
	}
}

func TestSubmit_BusFailureStillAccepted(t *testing.T) {
	f := newFixture(t)
	f.rec.busErr = errors.New("bus closed")

	if _, err := f.gw.Submit(context.Background(), rawEvent("price_watch", "acme.com", time.Now())); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if hub, _ := f.rec.counts(); hub != 1 {
		t.Errorf("hub = %d, want 1", hub)
	}
}

func TestSubmit_ExpiredFromWindowStillPersisted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	now := time.Now()

	recent, err := f.gw.Submit(ctx, rawEvent("price_watch", "acme.com", now.Add(-time.Hour)))
	if err != nil {
		t.Fatalf("Submit(recent) error = %v", err)
	}
	stale, err := f.gw.Submit(ctx, rawEvent("price_watch", "globex.com", now.Add(-48*time.Hour)))
	if err != nil {
		t.Fatalf("Submit(stale) error = %v", err)
	}

	// Older than the window bound on arrival.
	if got := f.window.Recent("price_watch", window.Bound{}); len(got) != 1 || got[0].ID != recent.ID {
		t.Fatalf("window before expiry = %d events, want only the recent one", len(got))
	}

	// Age the recent event past the bound and sweep.
	later := now.Add(25 * time.Hour)
	f.window.SetClock(func() time.Time { return later })
	f.window.Sweep(later)
	if got := f.window.Recent("price_watch", window.Bound{}); len(got) != 0 {
		t.Fatalf("window after expiry holds %d events, want 0", len(got))
	}

	for _, want := range []*models.Event{recent, stale} {
		got, err := f.store.Get(ctx, want.ID)
		if err != nil {
			t.Fatalf("store.Get(%s) error = %v", want.ID, err)
		}
		if got.Subject != want.Subject {
			t.Errorf("store.Get(%s) subject = %q, want %q", want.ID, got.Subject, want.Subject)
		}
	}
	persisted, err := f.store.Query(ctx, storage.EventFilter{ProducerID: "price_watch"})
	if err != nil {
		t.Fatalf("store.Query() error = %v", err)
	}
	if len(persisted) != 2 {
		t.Errorf("store.Query() = %d events, want 2", len(persisted))
	}
}

func TestLaneIndex_StablePerProducer(t *testing.T) {
	used := make(map[int]bool)
	for i := 0; i < 1000; i++ {
		id := fmt.Sprintf("producer-%d", i)
		idx := laneIndex(id)
		if idx < 0 || idx >= laneCount {
			t.Fatalf("laneIndex(%q) = %d out of range", id, idx)
		}
		if laneIndex(id) != idx {
			t.Fatalf("laneIndex(%q) not stable", id)
		}
		used[idx] = true
	}
	// Unrelated producers spread over the lanes instead of serialising.
	if len(used) < laneCount/2 {
		t.Errorf("1000 producers used only %d of %d lanes", len(used), laneCount)
	}
}

func TestSubmit_PerProducerOrder(t *testing.T) {
	f := newFixture(t)
	base := time.Now().Add(-time.Hour)

	const perProducer = 50
	producers := []string{"price_watch", "job_spy", "tech_radar"}

	var wg sync.WaitGroup
	for _, p := range producers {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				raw := rawEvent(p, fmt.Sprintf("subject-%d", i), base.Add(time.Duration(i)*time.Second))
				if _, err := f.gw.Submit(context.Background(), raw); err != nil {
					t.Errorf("Submit(%s, %d) error = %v", p, i, err)
				}
			}
		}(p)
	}
	wg.Wait()

	f.rec.mu.Lock()
	defer f.rec.mu.Unlock()
	for _, p := range producers {
		var broadcast []string
		for _, e := range f.rec.hub {
			if e.ProducerID == p {
				broadcast = append(broadcast, e.ID)
			}
		}
		windowed := f.window.Recent(p, window.Bound{})
		if len(broadcast) != perProducer || len(windowed) != perProducer {
			t.Fatalf("%s: broadcast=%d window=%d", p, len(broadcast), len(windowed))
		}
		for i := range windowed {
			if windowed[i].ID != broadcast[i] {
				t.Fatalf("%s: window and broadcast order differ at %d", p, i)
			}
		}
	}
}
