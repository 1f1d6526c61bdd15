// Package sqlite implements store.Store on modernc.org/sqlite (CGO-free).
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/atelierhq/stagehand/internal/store"
)

type DB struct {
	db *sql.DB
}

// New opens a SQLite database at path. Use ":memory:" for in-memory.
func New(path string) (*DB, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	d, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// busy timeout helps with short concurrent locks
	_, _ = d.Exec("PRAGMA busy_timeout=3000;")
	return &DB{db: d}, nil
}

func (s *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS service_events(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			service TEXT NOT NULL,
			kind TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_service_events_service ON service_events(service);`,
		`CREATE INDEX IF NOT EXISTS idx_service_events_at ON service_events(at);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *DB) Append(ctx context.Context, e store.Event) error {
	at := e.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO service_events(service, kind, detail, at) VALUES(?, ?, ?, ?);`,
		e.Service, e.Kind, e.Detail, at.UTC())
	return err
}

func (s *DB) Recent(ctx context.Context, limit int) ([]store.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, service, kind, detail, at FROM service_events ORDER BY id DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []store.Event
	for rows.Next() {
		var e store.Event
		if err := rows.Scan(&e.ID, &e.Service, &e.Kind, &e.Detail, &e.At); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *DB) Close() error { return s.db.Close() }
