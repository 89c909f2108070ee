package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/inference-sim/mvprefetch/prefetch"
)

// PostgresStore refreshes materialized views and runs catalog queries
// against PostgreSQL through the pgx database/sql driver.
type PostgresStore struct {
	db      *sql.DB
	queries map[prefetch.OperationID]string
}

// NewPostgresStore opens dsn and verifies the connection.
// queries maps each operation to the SQL executed by Execute.
func NewPostgresStore(ctx context.Context, dsn string, queries map[prefetch.OperationID]string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return newPostgresStore(db, queries), nil
}

func newPostgresStore(db *sql.DB, queries map[prefetch.OperationID]string) *PostgresStore {
	q := make(map[prefetch.OperationID]string, len(queries))
	for op, text := range queries {
		q[op] = text
	}
	return &PostgresStore{db: db, queries: q}
}

// refreshStatement builds the REFRESH statement for a possibly
// schema-qualified view name, quoting every part.
func refreshStatement(artifact string) string {
	return "REFRESH MATERIALIZED VIEW " + pgx.Identifier(strings.Split(artifact, ".")).Sanitize()
}

// Refresh implements prefetch.ArtifactStore.
func (p *PostgresStore) Refresh(ctx context.Context, artifact string) error {
	if artifact == "" {
		return fmt.Errorf("refresh: empty view name")
	}
	if _, err := p.db.ExecContext(ctx, refreshStatement(artifact)); err != nil {
		return fmt.Errorf("refresh %s: %w", artifact, err)
	}
	return nil
}

// Execute implements prefetch.ArtifactStore. All result rows are read so the
// timing covers the full query.
func (p *PostgresStore) Execute(ctx context.Context, op prefetch.OperationID) error {
	query, ok := p.queries[op]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownOperation, op)
	}
	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("execute %s: %w", op, err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("execute %s: %w", op, err)
	}
	return nil
}

// Close closes the database handle.
func (p *PostgresStore) Close() error {
	return p.db.Close()
}
