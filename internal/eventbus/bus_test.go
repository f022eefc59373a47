// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

package eventbus

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/hydra/internal/config"
	"github.com/tomtom215/hydra/internal/logging"
	"github.com/tomtom215/hydra/internal/models"
)

func TestMain(m *testing.M) {
	logging.SetLogger(logging.NewTestLogger(io.Discard))
	os.Exit(m.Run())
}

type collector struct {
	mu   sync.Mutex
	seen []string
}

func (c *collector) add(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, id)
}

func (c *collector) ids() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.seen...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func startBus(t *testing.T, b *Bus) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- b.RunWithContext(ctx) }()

	select {
	case <-b.Ready():
	case <-time.After(3 * time.Second):
		cancel()
		t.Fatal("bus did not become ready")
	}
	return cancel, errCh
}

func event(id, producer string) *models.Event {
	return &models.Event{
		ID:          id,
		ProducerID:  producer,
		Subject:     "acme.com",
		Description: "test",
		Severity:    models.SeverityHigh,
		Confidence:  0.8,
		CreatedAt:   time.Now().UTC(),
		Origin:      models.OriginProducer,
	}
}

func TestNew_UnknownBackend(t *testing.T) {
	if _, err := New(config.BusConfig{Backend: "kafka"}); err == nil {
		t.Fatal("New() accepted unknown backend")
	}
}

func TestBus_FansOutToEveryStage(t *testing.T) {
	b, err := New(config.BusConfig{Backend: "gochannel", BufferSize: 16})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	var correlation, escalation collector
	b.AddStage("correlation", func(_ context.Context, e *models.Event) error {
		correlation.add(e.ID)
		return nil
	})
	b.AddStage("escalation", func(_ context.Context, e *models.Event) error {
		escalation.add(e.ID)
		if e.ID == "e2" {
			return errors.New("producer unavailable")
		}
		return nil
	})

	cancel, errCh := startBus(t, b)
	defer cancel()

	for _, id := range []string{"e1", "e2", "e3"} {
		if err := b.PublishEvent(context.Background(), event(id, "price_watch")); err != nil {
			t.Fatalf("PublishEvent(%s) error = %v", id, err)
		}
	}

	waitFor(t, "correlation stage", func() bool { return len(correlation.ids()) == 3 })
	waitFor(t, "escalation stage", func() bool { return len(escalation.ids()) == 3 })

	// A failed stage acknowledges; nothing is redelivered.
	time.Sleep(50 * time.Millisecond)
	if got := escalation.ids(); len(got) != 3 {
		t.Errorf("escalation saw %v, want each event once", got)
	}

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("RunWithContext() = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("bus did not stop")
	}
}

func TestBus_StagePanicIsContained(t *testing.T) {
	b, _ := New(config.BusConfig{})
	var seen collector
	b.AddStage("flaky", func(_ context.Context, e *models.Event) error {
		if e.ID == "boom" {
			panic("detector bug")
		}
		seen.add(e.ID)
		return nil
	})

	cancel, _ := startBus(t, b)
	defer cancel()

	_ = b.PublishEvent(context.Background(), event("boom", "job_spy"))
	_ = b.PublishEvent(context.Background(), event("after", "job_spy"))

	waitFor(t, "event after panic", func() bool {
		ids := seen.ids()
		return len(ids) == 1 && ids[0] == "after"
	})
}

func TestBus_PublishWithoutRouter(t *testing.T) {
	b, _ := New(config.BusConfig{})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := b.PublishEvent(ctx, event("e1", "price_watch"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("PublishEvent() = %v, want deadline exceeded", err)
	}
}

func TestBus_Restart(t *testing.T) {
	b, _ := New(config.BusConfig{})
	var seen collector
	b.AddStage("correlation", func(_ context.Context, e *models.Event) error {
		seen.add(e.ID)
		return nil
	})

	cancel, errCh := startBus(t, b)
	_ = b.PublishEvent(context.Background(), event("first", "price_watch"))
	waitFor(t, "first run", func() bool { return len(seen.ids()) == 1 })
	cancel()
	<-errCh

	cancel2, _ := startBus(t, b)
	defer cancel2()
	if err := b.PublishEvent(context.Background(), event("second", "price_watch")); err != nil {
		t.Fatalf("PublishEvent() after restart error = %v", err)
	}
	waitFor(t, "second run", func() bool { return len(seen.ids()) == 2 })
}

func TestStages(t *testing.T) {
	b, _ := New(config.BusConfig{})
	b.AddStage("correlation", func(context.Context, *models.Event) error { return nil })
	b.AddStage("enrichment", func(context.Context, *models.Event) error { return nil })

	got := b.Stages()
	if len(got) != 2 || got[0] != "correlation" || got[1] != "enrichment" {
		t.Errorf("Stages() = %v", got)
	}
}
