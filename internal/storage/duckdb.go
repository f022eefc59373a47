// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2" // registers the "duckdb" driver
	"github.com/goccy/go-json"

	"github.com/tomtom215/hydra/internal/logging"
	"github.com/tomtom215/hydra/internal/models"
)

// DuckDBOptions configures OpenDuckDB.
type DuckDBOptions struct {
	// Path is the database file, or ":memory:".
	Path      string
	MaxMemory string
}

// DuckDBStore persists events in a DuckDB table so history can be explored
// with SQL alongside the pipeline.
type DuckDBStore struct {
	conn *sql.DB

	mu     sync.RWMutex
	closed bool
}

var duckdbSchema = []string{
	`CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		producer_id TEXT NOT NULL,
		subject TEXT NOT NULL,
		description TEXT NOT NULL,
		severity TEXT NOT NULL,
		severity_rank INTEGER NOT NULL,
		confidence DOUBLE NOT NULL,
		created_at TIMESTAMP NOT NULL,
		ingested_at TIMESTAMP NOT NULL,
		payload TEXT,
		recommended_action TEXT,
		origin TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_created_at ON events(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_events_producer ON events(producer_id)`,
	`CREATE TABLE IF NOT EXISTS patterns (
		id TEXT PRIMARY KEY,
		pattern_type TEXT NOT NULL,
		significance DOUBLE NOT NULL,
		detected_at TIMESTAMP NOT NULL,
		body TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_patterns_detected_at ON patterns(detected_at)`,
}

// OpenDuckDB opens the database and creates the schema.
func OpenDuckDB(opts DuckDBOptions) (*DuckDBStore, error) {
	if opts.Path == "" {
		opts.Path = ":memory:"
	}
	if opts.MaxMemory == "" {
		opts.MaxMemory = "1GB"
	}
	if opts.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0o750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	// Disable auto-install/auto-load to prevent hangs in restricted network environments
	connStr := fmt.Sprintf("%s?max_memory=%s&autoinstall_known_extensions=false&autoload_known_extensions=false",
		opts.Path, opts.MaxMemory)

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	for _, q := range duckdbSchema {
		if _, err := conn.Exec(q); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	logging.Info().Str("path", opts.Path).Msg("Event store opened")
	return &DuckDBStore{conn: conn}, nil
}

func (d *DuckDBStore) Backend() string { return "duckdb" }

func (d *DuckDBStore) checkOpen() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	return nil
}

func (d *DuckDBStore) Append(ctx context.Context, e *models.Event) (id string, err error) {
	start := time.Now()
	defer func() { observe(d.Backend(), "append", start, err) }()

	if err := d.checkOpen(); err != nil {
		return "", err
	}

	var payload []byte
	if e.Payload != nil {
		payload, err = json.Marshal(e.Payload)
		if err != nil {
			return "", &StorageError{Backend: d.Backend(), Op: "append", Err: fmt.Errorf("marshal payload: %w", err)}
		}
	}

	// DuckDB-native: ON CONFLICT DO NOTHING keeps the first write
	res, err := d.conn.ExecContext(ctx, `INSERT INTO events (
		id, producer_id, subject, description, severity, severity_rank, confidence,
		created_at, ingested_at, payload, recommended_action, origin
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT DO NOTHING`,
		e.ID, e.ProducerID, e.Subject, e.Description, string(e.Severity), e.Severity.Rank(), e.Confidence,
		e.CreatedAt.UTC(), e.IngestedAt.UTC(), nullString(string(payload)), nullString(e.RecommendedAction), string(e.Origin))
	if err != nil {
		return "", &StorageError{Backend: d.Backend(), Op: "append", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", &StorageError{Backend: d.Backend(), Op: "append", Err: err}
	}
	if n == 0 {
		return e.ID, ErrDuplicate
	}
	return e.ID, nil
}

const eventColumns = `id, producer_id, subject, description, severity, confidence,
	created_at, ingested_at, payload, recommended_action, origin`

func (d *DuckDBStore) Get(ctx context.Context, id string) (*models.Event, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := d.conn.QueryContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	if err != nil {
		return nil, &StorageError{Backend: d.Backend(), Op: "get", Err: err}
	}
	events, err := scanEvents(rows)
	if err != nil {
		return nil, &StorageError{Backend: d.Backend(), Op: "get", Err: err}
	}
	if len(events) == 0 {
		return nil, ErrNotFound
	}
	return events[0], nil
}

func (d *DuckDBStore) Query(ctx context.Context, f EventFilter) (out []*models.Event, err error) {
	start := time.Now()
	defer func() { observe(d.Backend(), "query", start, err) }()

	if err := d.checkOpen(); err != nil {
		return nil, err
	}

	var (
		where []string
		args  []interface{}
	)
	add := func(clause string, arg interface{}) {
		where = append(where, clause)
		args = append(args, arg)
	}
	if f.ProducerID != "" {
		add("producer_id = ?", f.ProducerID)
	}
	if f.Subject != "" {
		add("subject = ?", f.Subject)
	}
	if f.Severity != "" {
		add("severity = ?", string(f.Severity))
	}
	if f.Origin != "" {
		add("origin = ?", string(f.Origin))
	}
	if !f.Since.IsZero() {
		add("created_at >= ?", f.Since.UTC())
	}
	if !f.Until.IsZero() {
		add("created_at <= ?", f.Until.UTC())
	}

	q := `SELECT ` + eventColumns + ` FROM events`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at DESC, id ASC`
	if f.Limit > 0 {
		q += fmt.Sprintf(` LIMIT %d`, f.Limit)
	}

	rows, err := d.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, &StorageError{Backend: d.Backend(), Op: "query", Err: err}
	}
	out, err = scanEvents(rows)
	if err != nil {
		return nil, &StorageError{Backend: d.Backend(), Op: "query", Err: err}
	}
	return out, nil
}

func scanEvents(rows *sql.Rows) ([]*models.Event, error) {
	defer rows.Close()

	var out []*models.Event
	for rows.Next() {
		var (
			e                 models.Event
			severity, origin  string
			payload, recAct   sql.NullString
			created, ingested time.Time
		)
		if err := rows.Scan(&e.ID, &e.ProducerID, &e.Subject, &e.Description, &severity, &e.Confidence,
			&created, &ingested, &payload, &recAct, &origin); err != nil {
			return nil, err
		}
		e.Severity = models.Severity(severity)
		e.Origin = models.Origin(origin)
		e.CreatedAt = created.UTC()
		e.IngestedAt = ingested.UTC()
		e.RecommendedAction = recAct.String
		if payload.Valid && payload.String != "" {
			if err := json.Unmarshal([]byte(payload.String), &e.Payload); err != nil {
				return nil, fmt.Errorf("decode payload of %s: %w", e.ID, err)
			}
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (d *DuckDBStore) AppendPattern(ctx context.Context, p *models.Pattern) (err error) {
	start := time.Now()
	defer func() { observe(d.Backend(), "append_pattern", start, err) }()

	if err := d.checkOpen(); err != nil {
		return err
	}
	body, err := json.Marshal(p)
	if err != nil {
		return &StorageError{Backend: d.Backend(), Op: "append_pattern", Err: fmt.Errorf("marshal pattern: %w", err)}
	}

	res, err := d.conn.ExecContext(ctx, `INSERT INTO patterns (id, pattern_type, significance, detected_at, body)
		VALUES (?, ?, ?, ?, ?) ON CONFLICT DO NOTHING`,
		p.ID, string(p.Type), p.Significance, p.DetectedAt.UTC(), string(body))
	if err != nil {
		return &StorageError{Backend: d.Backend(), Op: "append_pattern", Err: err}
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrDuplicate
	}
	return nil
}

func (d *DuckDBStore) QueryPatterns(ctx context.Context, f PatternFilter) ([]*models.Pattern, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}

	q := `SELECT body FROM patterns WHERE significance >= ?`
	args := []interface{}{f.MinSignificance}
	if f.Type != "" {
		q += ` AND pattern_type = ?`
		args = append(args, string(f.Type))
	}
	if !f.Since.IsZero() {
		q += ` AND detected_at >= ?`
		args = append(args, f.Since.UTC())
	}
	q += ` ORDER BY detected_at DESC, id ASC`
	if f.Limit > 0 {
		q += fmt.Sprintf(` LIMIT %d`, f.Limit)
	}

	rows, err := d.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, &StorageError{Backend: d.Backend(), Op: "query_patterns", Err: err}
	}
	defer rows.Close()

	var out []*models.Pattern
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, &StorageError{Backend: d.Backend(), Op: "query_patterns", Err: err}
		}
		var p models.Pattern
		if err := json.Unmarshal([]byte(body), &p); err != nil {
			return nil, &StorageError{Backend: d.Backend(), Op: "query_patterns", Err: err}
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Backend: d.Backend(), Op: "query_patterns", Err: err}
	}
	return out, nil
}

func (d *DuckDBStore) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.conn.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
