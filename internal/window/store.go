// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

// Package window holds the bounded recent history of events per producer.
//
// Each producer owns a partition: a ring buffer with its own lock and a key
// set for deduplication. The partition map is only locked to find or create a
// partition, so appends for one producer never wait on reads or writes of
// another. Age is measured against an event's created_at. Reads filter by age
// so an expired event is never returned even between sweeps.
package window

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/hydra/internal/logging"
	"github.com/tomtom215/hydra/internal/metrics"
	"github.com/tomtom215/hydra/internal/models"
)

// Config bounds every partition.
type Config struct {
	Capacity      int
	MaxAge        time.Duration
	SweepInterval time.Duration
}

// Bound narrows a read. Zero fields fall back to the store's limits.
type Bound struct {
	MaxAge   time.Duration
	MaxCount int
}

// Stats is a point-in-time view of the store.
type Stats struct {
	Producers   int            `json:"producers"`
	TotalEvents int            `json:"total_events"`
	PerProducer map[string]int `json:"per_producer"`
	Evicted     uint64         `json:"evicted"`
	Capacity    int            `json:"capacity"`
	MaxAge      string         `json:"max_age"`
}

type partition struct {
	mu       sync.RWMutex
	buf      []*models.Event
	head     int // index of the oldest entry
	size     int
	capacity int
	keys     map[string]struct{}
	evicted  uint64
	// removed is set once Sweep has dropped the empty partition from the
	// store; appenders must fetch a fresh one.
	removed bool
}

// initialSlots is the ring size a new partition starts with. It doubles up
// to the configured capacity.
const initialSlots = 8

func newPartition(capacity int) *partition {
	return &partition{
		capacity: capacity,
		keys:     make(map[string]struct{}),
	}
}

// grow enlarges a full ring, keeping entries oldest first. Caller holds
// the write lock.
func (p *partition) grow() {
	n := 2 * len(p.buf)
	if n < initialSlots {
		n = initialSlots
	}
	if n > p.capacity {
		n = p.capacity
	}
	buf := make([]*models.Event, n)
	for i := 0; i < p.size; i++ {
		buf[i] = p.at(i)
	}
	p.buf = buf
	p.head = 0
}

// at returns the i-th oldest entry. Caller holds the lock.
func (p *partition) at(i int) *models.Event {
	return p.buf[(p.head+i)%len(p.buf)]
}

// popOldest removes the oldest entry. Caller holds the write lock.
func (p *partition) popOldest() *models.Event {
	e := p.buf[p.head]
	p.buf[p.head] = nil
	p.head = (p.head + 1) % len(p.buf)
	p.size--
	delete(p.keys, e.IdempotencyKey())
	p.evicted++
	return e
}

// Store is the windowed store. The zero value is not usable; use New.
type Store struct {
	cfg Config
	now func() time.Time

	mu         sync.RWMutex
	partitions map[string]*partition
}

// New creates a store. Non-positive limits get the defaults of 500 events and 24h.
func New(cfg Config) *Store {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 500
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 24 * time.Hour
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	return &Store{
		cfg:        cfg,
		now:        time.Now,
		partitions: make(map[string]*partition),
	}
}

// SetClock replaces the clock used for age checks.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// MaxAge returns the configured age bound.
func (s *Store) MaxAge() time.Duration {
	return s.cfg.MaxAge
}

func (s *Store) clock() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.now()
}

func (s *Store) get(producerID string) *partition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.partitions[producerID]
}

func (s *Store) getOrCreate(producerID string) *partition {
	if p := s.get(producerID); p != nil {
		return p
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.partitions[producerID]; ok {
		return p
	}
	p := newPartition(s.cfg.Capacity)
	s.partitions[producerID] = p
	return p
}

// Append adds e to its producer's window, evicting the oldest entry when
// full. It returns false if an event with the same identity tuple is
// already held.
func (s *Store) Append(e *models.Event) bool {
	key := e.IdempotencyKey()

	var p *partition
	for {
		p = s.getOrCreate(e.ProducerID)
		p.mu.Lock()
		if !p.removed {
			break
		}
		p.mu.Unlock()
	}

	if _, dup := p.keys[key]; dup {
		p.mu.Unlock()
		return false
	}
	switch {
	case p.size == p.capacity:
		p.popOldest()
		metrics.WindowEvictions.WithLabelValues(e.ProducerID, "capacity").Inc()
	case p.size == len(p.buf):
		p.grow()
	}
	p.buf[(p.head+p.size)%len(p.buf)] = e
	p.size++
	p.keys[key] = struct{}{}
	size := p.size
	p.mu.Unlock()

	metrics.WindowSize.WithLabelValues(e.ProducerID).Set(float64(size))
	return true
}

// Recent returns the producer's events within the bound, oldest first.
// MaxCount keeps the newest entries.
func (s *Store) Recent(producerID string, b Bound) []*models.Event {
	p := s.get(producerID)
	if p == nil {
		return nil
	}
	return s.read(p, s.cutoff(b.MaxAge), b.MaxCount)
}

// AllRecent returns the events of every producer no older than maxAge.
// Producers with no live events are omitted.
func (s *Store) AllRecent(maxAge time.Duration) map[string][]*models.Event {
	cutoff := s.cutoff(maxAge)

	s.mu.RLock()
	parts := make(map[string]*partition, len(s.partitions))
	for id, p := range s.partitions {
		parts[id] = p
	}
	s.mu.RUnlock()

	out := make(map[string][]*models.Event, len(parts))
	for id, p := range parts {
		if events := s.read(p, cutoff, 0); len(events) > 0 {
			out[id] = events
		}
	}
	return out
}

func (s *Store) cutoff(maxAge time.Duration) time.Time {
	if maxAge <= 0 || maxAge > s.cfg.MaxAge {
		maxAge = s.cfg.MaxAge
	}
	return s.clock().Add(-maxAge)
}

func (s *Store) read(p *partition, cutoff time.Time, maxCount int) []*models.Event {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*models.Event, 0, p.size)
	for i := 0; i < p.size; i++ {
		if e := p.at(i); !e.CreatedAt.Before(cutoff) {
			out = append(out, e)
		}
	}
	if maxCount > 0 && len(out) > maxCount {
		out = out[len(out)-maxCount:]
	}
	return out
}

// Sweep evicts every event older than the store's max age and returns how
// many were removed. Entries are dropped from the front while expired; an
// older event appended after a newer one is still filtered on read.
func (s *Store) Sweep(now time.Time) int {
	cutoff := now.Add(-s.cfg.MaxAge)

	s.mu.RLock()
	ids := make([]string, 0, len(s.partitions))
	for id := range s.partitions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	total := 0
	for _, id := range ids {
		p := s.get(id)
		if p == nil {
			continue
		}
		p.mu.Lock()
		n := 0
		for p.size > 0 && p.buf[p.head].CreatedAt.Before(cutoff) {
			p.popOldest()
			n++
		}
		size := p.size
		p.mu.Unlock()

		if n > 0 {
			metrics.WindowEvictions.WithLabelValues(id, "age").Add(float64(n))
			metrics.WindowSize.WithLabelValues(id).Set(float64(size))
		}
		if size == 0 {
			s.dropIfEmpty(id)
		}
		total += n
	}
	return total
}

// dropIfEmpty removes an empty partition so producers that stop reporting
// release their memory and metric series.
func (s *Store) dropIfEmpty(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.partitions[id]
	if !ok {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.size > 0 {
		return
	}
	p.removed = true
	delete(s.partitions, id)
	metrics.ForgetWindow(id)
}

// Stats reports partition sizes.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	parts := make(map[string]*partition, len(s.partitions))
	for id, p := range s.partitions {
		parts[id] = p
	}
	s.mu.RUnlock()

	st := Stats{
		Producers:   len(parts),
		PerProducer: make(map[string]int, len(parts)),
		Capacity:    s.cfg.Capacity,
		MaxAge:      s.cfg.MaxAge.String(),
	}
	for id, p := range parts {
		p.mu.RLock()
		st.PerProducer[id] = p.size
		st.TotalEvents += p.size
		st.Evicted += p.evicted
		p.mu.RUnlock()
	}
	return st
}

// Producers lists producers that have a partition, sorted.
func (s *Store) Producers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.partitions))
	for id := range s.partitions {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// RunWithContext sweeps on the configured interval until ctx is canceled.
func (s *Store) RunWithContext(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	log := logging.WithComponent("window")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := s.Sweep(s.clock()); n > 0 {
				log.Debug().Int("evicted", n).Msg("Window sweep")
			}
		}
	}
}
