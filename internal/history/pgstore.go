// File: internal/history/pgstore.go
// Description: PostgreSQL persistence for the healing history, for teams that
// share repairs across CI runners.

package history

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// PGPool abstracts the pgx pool so tests can substitute pgxmock.
type PGPool interface {
	Ping(ctx context.Context) error
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PGStore persists the healing history in a two-column table
// (original_locator primary key, healed_locator).
type PGStore struct {
	pool PGPool
	log  *zap.Logger
}

// NewPGStore verifies the connection and returns a Postgres-backed store.
func NewPGStore(ctx context.Context, pool PGPool, logger *zap.Logger) (*PGStore, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PGStore{pool: pool, log: logger.Named("history_pg")}, nil
}

// Load reads the full mapping.
func (s *PGStore) Load(ctx context.Context) (map[string]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT original_locator, healed_locator FROM healing_history;`)
	if err != nil {
		return nil, fmt.Errorf("failed to query healing history: %w", err)
	}
	defer rows.Close()

	entries := map[string]string{}
	for rows.Next() {
		var original, healed string
		if err := rows.Scan(&original, &healed); err != nil {
			return nil, fmt.Errorf("failed to scan healing history row: %w", err)
		}
		entries[original] = healed
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return entries, nil
}

// Clear deletes every recorded heal.
func (s *PGStore) Clear(ctx context.Context) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM healing_history;`)
	if err != nil {
		return fmt.Errorf("failed to clear healing history: %w", err)
	}
	s.log.Info("Cleared healing history", zap.Int64("entries", tag.RowsAffected()))
	return nil
}

// Put upserts one entry; a later heal for the same original replaces the
// prior value.
func (s *PGStore) Put(ctx context.Context, original, healed string) error {
	_, err := s.pool.Exec(ctx, `
        INSERT INTO healing_history (original_locator, healed_locator, updated_at)
        VALUES ($1, $2, NOW())
        ON CONFLICT (original_locator) DO UPDATE SET
            healed_locator = EXCLUDED.healed_locator,
            updated_at = EXCLUDED.updated_at;`,
		original, healed)
	if err != nil {
		return fmt.Errorf("failed to upsert healing history entry: %w", err)
	}
	return nil
}
