// Package checkpoint persists readmodel.Listener positions so a process
// restart resumes a category projection without re-reading the whole
// stream. Grounded on internal/agency/repository.go's pgxpool query/scan
// idiom and internal/shared/database/postgres.go's pool-construction style,
// generalized from agency/worker rows to a single (listener, category,
// position) upsert.
package checkpoint

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists checkpoint positions in a single table, keyed by
// the listener name and the category stream it tracks. A process with
// several listeners on different categories shares one PostgresStore and
// one pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an already-constructed pool. The caller owns the
// pool's lifecycle (ConfiguredConnection doesn't build one — checkpointing
// is optional scaffolding a host opts into, same as httpapi).
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the checkpoints table if it doesn't already exist.
// Safe to call on every process start.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS reactivedomain_checkpoints (
			listener_name TEXT NOT NULL,
			category      TEXT NOT NULL,
			position      BIGINT NOT NULL,
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (listener_name, category)
		)`)
	if err != nil {
		return fmt.Errorf("checkpoint: ensure schema: %w", err)
	}
	return nil
}

// Load returns the last saved position for (listenerName, category), or
// (0, false, nil) if none has been saved yet — a caller then starts the
// listener from the beginning of the category stream.
func (s *PostgresStore) Load(ctx context.Context, listenerName, category string) (int64, bool, error) {
	var position int64
	err := s.pool.QueryRow(ctx, `
		SELECT position FROM reactivedomain_checkpoints
		WHERE listener_name = $1 AND category = $2`,
		listenerName, category,
	).Scan(&position)

	if err == pgx.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("checkpoint: load %s/%s: %w", listenerName, category, err)
	}
	return position, true, nil
}

// Save upserts the position for (listenerName, category).
func (s *PostgresStore) Save(ctx context.Context, listenerName, category string, position int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO reactivedomain_checkpoints (listener_name, category, position, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (listener_name, category)
		DO UPDATE SET position = EXCLUDED.position, updated_at = EXCLUDED.updated_at`,
		listenerName, category, position,
	)
	if err != nil {
		return fmt.Errorf("checkpoint: save %s/%s: %w", listenerName, category, err)
	}
	return nil
}

// SavePeriodically saves *position to (listenerName, category) every
// interval until ctx is done, then performs one final save. If a periodic
// save fails it returns at once, without the final save. Intended to run
// in its own goroutine alongside a readmodel.Start call sharing the same
// position pointer; readmodel.Listener advances that pointer under no lock
// of its own (§7), so callers reading it here accept the same benign race
// spec.md documents for dashboard-style position reporting.
func (s *PostgresStore) SavePeriodically(ctx context.Context, listenerName, category string, position *int64, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = s.Save(context.Background(), listenerName, category, *position)
			return
		case <-ticker.C:
			if err := s.Save(ctx, listenerName, category, *position); err != nil {
				return
			}
		}
	}
}
