package analysis

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AnalyzedMediaStore records content checksums that already went through the
// pipeline, so resubmissions can be flagged on the audit trail.
type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type AnalyzedMediaStore struct {
	pool rowQuerier
}

func NewAnalyzedMediaStore(pool *pgxpool.Pool) *AnalyzedMediaStore {
	if pool == nil {
		panic("analysis: pgx pool required")
	}
	return &AnalyzedMediaStore{pool: pool}
}

func newAnalyzedMediaStoreWithExec(exec rowQuerier) *AnalyzedMediaStore {
	if exec == nil {
		panic("analysis: exec required")
	}
	return &AnalyzedMediaStore{pool: exec}
}

// AlreadyAnalyzed checks if we've seen this checksum before.
func (s *AnalyzedMediaStore) AlreadyAnalyzed(ctx context.Context, checksum string) (bool, error) {
	query := `SELECT 1 FROM analyzed_media WHERE checksum = $1`
	var exists int
	if err := s.pool.QueryRow(ctx, query, checksum).Scan(&exists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("analysis: check analyzed: %w", err)
	}
	return true, nil
}

// MarkAnalyzed inserts a checksum, returning false if it already exists.
func (s *AnalyzedMediaStore) MarkAnalyzed(ctx context.Context, checksum string) (bool, error) {
	query := `
		INSERT INTO analyzed_media (checksum)
		VALUES ($1)
		ON CONFLICT DO NOTHING
	`
	ct, err := s.pool.Exec(ctx, query, checksum)
	if err != nil {
		return false, fmt.Errorf("analysis: mark analyzed: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}
