// Package costdb persists measured artifact rebuild costs in SQLite so a
// restarted engine does not fall back to default estimates.
package costdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS rebuild_costs (
	artifact    TEXT PRIMARY KEY,
	seconds     REAL NOT NULL,
	measured_at TEXT NOT NULL
);`

// Store implements prefetch.CostStore with SQLite.
type Store struct {
	db *sql.DB
}

// Open opens or creates a SQLite DB at path and ensures the schema.
// Creates the parent directory if it does not exist.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create cost db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows one writer; background rebuilds write concurrently.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create cost schema: %w", err)
	}
	return &Store{db: db}, nil
}

// SaveCost records cost as the latest measurement for artifact, replacing any previous one.
func (s *Store) SaveCost(ctx context.Context, artifact string, cost time.Duration) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rebuild_costs (artifact, seconds, measured_at) VALUES (?, ?, ?)
		 ON CONFLICT(artifact) DO UPDATE SET seconds = excluded.seconds, measured_at = excluded.measured_at`,
		artifact, cost.Seconds(), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save cost %s: %w", artifact, err)
	}
	return nil
}

// LoadCosts returns every persisted cost keyed by artifact.
func (s *Store) LoadCosts(ctx context.Context) (map[string]time.Duration, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT artifact, seconds FROM rebuild_costs`)
	if err != nil {
		return nil, fmt.Errorf("load costs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	costs := make(map[string]time.Duration)
	for rows.Next() {
		var name string
		var seconds float64
		if err := rows.Scan(&name, &seconds); err != nil {
			return nil, fmt.Errorf("scan cost: %w", err)
		}
		costs[name] = time.Duration(seconds * float64(time.Second))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load costs: %w", err)
	}
	return costs, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
