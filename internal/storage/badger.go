// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/hydra/internal/logging"
	"github.com/tomtom215/hydra/internal/models"
)

// Key layout:
//
//	event:<id>                   -> event JSON
//	event_ts:<nanos>:<id>        -> empty, ordered index by created_at
//	pattern:<id>                 -> pattern JSON
//	pattern_ts:<nanos>:<id>      -> empty, ordered index by detected_at
const (
	prefixEvent     = "event:"
	prefixEventTS   = "event_ts:"
	prefixPattern   = "pattern:"
	prefixPatternTS = "pattern_ts:"

	gcInterval = 10 * time.Minute
)

// BadgerOptions configures OpenBadger.
type BadgerOptions struct {
	Path       string
	SyncWrites bool
	// InMemory runs badger without touching disk. Path is ignored.
	InMemory bool
}

// BadgerStore persists events in BadgerDB.
type BadgerStore struct {
	db *badger.DB

	mu     sync.RWMutex
	closed bool
}

// OpenBadger opens or creates a store at opts.Path.
func OpenBadger(opts BadgerOptions) (*BadgerStore, error) {
	bopts := badger.DefaultOptions(opts.Path)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	}
	bopts.SyncWrites = opts.SyncWrites

	// Reduce logging verbosity
	bopts.Logger = nil

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	logging.Info().
		Str("path", opts.Path).
		Bool("sync_writes", opts.SyncWrites).
		Bool("in_memory", opts.InMemory).
		Msg("Event store opened")

	return &BadgerStore{db: db}, nil
}

func (b *BadgerStore) Backend() string { return "badger" }

func (b *BadgerStore) checkOpen() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	return nil
}

func tsKey(prefix string, t time.Time, id string) []byte {
	nanos := t.UTC().UnixNano()
	if nanos < 0 {
		nanos = 0
	}
	return []byte(fmt.Sprintf("%s%020d:%s", prefix, nanos, id))
}

func (b *BadgerStore) Append(ctx context.Context, e *models.Event) (id string, err error) {
	start := time.Now()
	defer func() { observe(b.Backend(), "append", start, err) }()

	if err := b.checkOpen(); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", &StorageError{Backend: b.Backend(), Op: "append", Err: err}
	}

	data, err := json.Marshal(e)
	if err != nil {
		return "", &StorageError{Backend: b.Backend(), Op: "append", Err: fmt.Errorf("marshal event: %w", err)}
	}

	key := []byte(prefixEvent + e.ID)
	err = b.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return ErrDuplicate
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set(tsKey(prefixEventTS, e.CreatedAt, e.ID), nil)
	})
	if isDuplicate(err) {
		return e.ID, ErrDuplicate
	}
	if err != nil {
		return "", &StorageError{Backend: b.Backend(), Op: "append", Err: err}
	}
	return e.ID, nil
}

func (b *BadgerStore) Get(_ context.Context, id string) (*models.Event, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	var e models.Event
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixEvent + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &e)
		})
	})
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &StorageError{Backend: b.Backend(), Op: "get", Err: err}
	}
	return &e, nil
}

// Query walks the created_at index newest first and stops at Limit.
func (b *BadgerStore) Query(ctx context.Context, f EventFilter) (out []*models.Event, err error) {
	start := time.Now()
	defer func() { observe(b.Backend(), "query", start, err) }()

	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	err = b.db.View(func(txn *badger.Txn) error {
		return reverseIndex(ctx, txn, prefixEventTS, func(id string) (bool, error) {
			item, err := txn.Get([]byte(prefixEvent + id))
			if errors.Is(err, badger.ErrKeyNotFound) {
				return true, nil
			}
			if err != nil {
				return false, err
			}
			var e models.Event
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &e) }); err != nil {
				logging.Warn().Err(err).Str("id", id).Msg("Skipping unreadable event")
				return true, nil
			}
			if !f.Since.IsZero() && e.CreatedAt.Before(f.Since) {
				return false, nil
			}
			if f.Match(&e) {
				out = append(out, &e)
			}
			return f.Limit <= 0 || len(out) < f.Limit, nil
		})
	})
	if err != nil {
		return nil, &StorageError{Backend: b.Backend(), Op: "query", Err: err}
	}
	return out, nil
}

func (b *BadgerStore) AppendPattern(ctx context.Context, p *models.Pattern) (err error) {
	start := time.Now()
	defer func() { observe(b.Backend(), "append_pattern", start, err) }()

	if err := b.checkOpen(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return &StorageError{Backend: b.Backend(), Op: "append_pattern", Err: err}
	}

	data, err := json.Marshal(p)
	if err != nil {
		return &StorageError{Backend: b.Backend(), Op: "append_pattern", Err: fmt.Errorf("marshal pattern: %w", err)}
	}

	key := []byte(prefixPattern + p.ID)
	err = b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err == nil {
			return ErrDuplicate
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set(tsKey(prefixPatternTS, p.DetectedAt, p.ID), nil)
	})
	if isDuplicate(err) {
		return ErrDuplicate
	}
	if err != nil {
		return &StorageError{Backend: b.Backend(), Op: "append_pattern", Err: err}
	}
	return nil
}

func (b *BadgerStore) QueryPatterns(ctx context.Context, f PatternFilter) ([]*models.Pattern, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	var out []*models.Pattern
	err := b.db.View(func(txn *badger.Txn) error {
		return reverseIndex(ctx, txn, prefixPatternTS, func(id string) (bool, error) {
			item, err := txn.Get([]byte(prefixPattern + id))
			if errors.Is(err, badger.ErrKeyNotFound) {
				return true, nil
			}
			if err != nil {
				return false, err
			}
			var p models.Pattern
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &p) }); err != nil {
				logging.Warn().Err(err).Str("id", id).Msg("Skipping unreadable pattern")
				return true, nil
			}
			if !f.Since.IsZero() && p.DetectedAt.Before(f.Since) {
				return false, nil
			}
			if f.Match(&p) {
				out = append(out, &p)
			}
			return f.Limit <= 0 || len(out) < f.Limit, nil
		})
	})
	if err != nil {
		return nil, &StorageError{Backend: b.Backend(), Op: "query_patterns", Err: err}
	}
	return out, nil
}

// reverseIndex calls fn with the id of each index key under prefix, newest
// first, until fn returns false or an error.
func reverseIndex(ctx context.Context, txn *badger.Txn, prefix string, fn func(id string) (bool, error)) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Reverse = true
	opts.Prefix = []byte(prefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	seek := append([]byte(prefix), 0xFF)
	for it.Seek(seek); it.ValidForPrefix([]byte(prefix)); it.Next() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		key := string(it.Item().Key())
		// <prefix><20 digits>:<id>
		rest := key[len(prefix):]
		if len(rest) < 22 {
			continue
		}
		more, err := fn(rest[21:])
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return nil
}

// RunGC reclaims value log space until badger reports nothing to rewrite.
func (b *BadgerStore) RunGC() error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	for {
		err := b.db.RunValueLogGC(0.5)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) || errors.Is(err, badger.ErrGCInMemoryMode) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// RunWithContext runs value log GC every interval until ctx is canceled.
func (b *BadgerStore) RunWithContext(ctx context.Context) error {
	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := b.RunGC(); err != nil && !errors.Is(err, ErrClosed) {
				logging.Warn().Err(err).Msg("Event store GC failed")
			}
		}
	}
}

func (b *BadgerStore) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	if err := b.db.Close(); err != nil {
		return fmt.Errorf("close BadgerDB: %w", err)
	}
	logging.Info().Msg("Event store closed")
	return nil
}
