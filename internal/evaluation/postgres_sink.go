package evaluation

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// pgExecutor is the subset of *pgxpool.Pool used by PostgresSink.
type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// PostgresSink upserts changed buckets, one row per (bucket, client).
type PostgresSink struct {
	db    pgExecutor
	table string
}

// NewPostgresSink creates a sink writing to table.
func NewPostgresSink(db pgExecutor, table string) *PostgresSink {
	return &PostgresSink{
		db:    db,
		table: pgx.Identifier{table}.Sanitize(),
	}
}

// Name implements Sink.
func (s *PostgresSink) Name() string { return "postgres" }

// EnsureSchema creates the target table if it does not exist.
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			bucket     TEXT        NOT NULL,
			client_id  TEXT        NOT NULL,
			location   JSONB       NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (bucket, client_id)
		)`, s.table))
	if err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// Write upserts every location in the changed buckets using pgx.Batch.
func (s *PostgresSink) Write(ctx context.Context, snap Snapshot) error {
	batch := s.buildBatch(snap)
	if batch.Len() == 0 {
		return nil
	}

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert evaluation: %w", err)
		}
	}
	return nil
}

func (s *PostgresSink) buildBatch(snap Snapshot) *pgx.Batch {
	query := fmt.Sprintf(`
		INSERT INTO %s (bucket, client_id, location, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (bucket, client_id) DO UPDATE
		SET location = EXCLUDED.location, updated_at = EXCLUDED.updated_at
	`, s.table)

	batch := &pgx.Batch{}
	for _, key := range snap.Changed {
		for id, loc := range snap.Buckets[key] {
			batch.Queue(query, key, id, string(loc))
		}
	}
	return batch
}
