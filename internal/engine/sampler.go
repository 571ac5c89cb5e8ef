package engine

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"lakegov/internal/domain"
)

var _ domain.JoinSampler = (*DuckDBSampler)(nil)

// DuckDBSampler observes join statistics by running a sampling query in
// DuckDB against the physical relations of two table versions.
type DuckDBSampler struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewDuckDBSampler creates a new DuckDBSampler.
func NewDuckDBSampler(db *sql.DB, logger *slog.Logger) *DuckDBSampler {
	return &DuckDBSampler{db: db, logger: logger.With("component", "duckdb_sampler")}
}

// Sample implements domain.JoinSampler.
func (s *DuckDBSampler) Sample(ctx context.Context, left, right *domain.Table, cond domain.JoinCondition, sampleSize int) (*domain.JoinSample, error) {
	lrel, err := Relation(left)
	if err != nil {
		return nil, err
	}
	rrel, err := Relation(right)
	if err != nil {
		return nil, err
	}
	query, err := JoinSampleSQL(lrel, rrel, cond, sampleSize)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var out domain.JoinSample
	if err := s.db.QueryRowContext(ctx, query).Scan(
		&out.LeftRows, &out.DistinctLeftKeys, &out.JoinedRows, &out.MaxFanOut, &out.NullKeyRows,
	); err != nil {
		return nil, fmt.Errorf("sample join %s to %s: %w", left.LogicalName, right.LogicalName, err)
	}
	s.logger.Debug("join sampled",
		"left", left.LogicalName,
		"right", right.LogicalName,
		"condition", cond.String(),
		"left_rows", out.LeftRows,
		"joined_rows", out.JoinedRows,
		"duration", time.Since(start),
	)
	return &out, nil
}
