// Package ingestion replays and backfills contract data with idempotent,
// deduplicated writes, and lands new physical versions of contract tables.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"lakegov/internal/domain"
	"lakegov/internal/metrics"
	"lakegov/internal/service/auditutil"
	"lakegov/internal/service/security"
)

const (
	// DefaultBatchSize is used when a request leaves BatchSize unset.
	DefaultBatchSize = 500
	// MaxBatchSize bounds the rows held in memory per batch.
	MaxBatchSize = 10000
)

// ShadowRegistrar lands SHADOW table versions.
type ShadowRegistrar interface {
	RegisterShadow(ctx context.Context, actor domain.Actor, req domain.RegisterShadowRequest) (*domain.Table, error)
}

// DriftRecorder stores a drift report for a contract schema change.
type DriftRecorder interface {
	Detect(ctx context.Context, actor domain.Actor, contractID string, from, to domain.Schema) (*domain.DriftReport, error)
}

// Service runs replay, backfill and landing for contracts.
type Service struct {
	contracts domain.ContractRepository
	tables    domain.TableRepository
	rows      domain.IngestedRowRepository
	sources   domain.RecordSourceOpener
	audit     domain.AuditRepository
	registry  ShadowRegistrar
	drift     DriftRecorder
	authz     *security.RoleAuthorizer
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a new ingestion Service. registry and drift are only
// needed by Land.
func NewService(
	contracts domain.ContractRepository,
	tables domain.TableRepository,
	rows domain.IngestedRowRepository,
	sources domain.RecordSourceOpener,
	audit domain.AuditRepository,
	registry ShadowRegistrar,
	drift DriftRecorder,
	authz *security.RoleAuthorizer,
	logger *slog.Logger,
) *Service {
	return &Service{
		contracts: contracts,
		tables:    tables,
		rows:      rows,
		sources:   sources,
		audit:     audit,
		registry:  registry,
		drift:     drift,
		authz:     authz,
		logger:    logger.With("component", "ingestion"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// job is a validated replay or backfill.
type job struct {
	action    string
	contract  *domain.Contract
	source    string
	timeRange domain.TimeRange
	batchSize int
	dryRun    bool
}

// Replay re-ingests the contract's landed data for a time range. The data is
// read from the location of the newest table version that has one, falling
// back to the producer endpoint.
func (s *Service) Replay(ctx context.Context, actor domain.Actor, req domain.ReplayRequest) (*domain.IngestionResult, error) {
	j, err := s.prepare(ctx, actor, domain.ActionReplay, req.ContractID, req.TimeRange, req.DedupeStrategy, req.BatchSize, req.DryRun)
	if err != nil {
		return nil, err
	}
	if j.source, err = s.replaySource(ctx, j.contract); err != nil {
		return nil, err
	}
	return s.execute(ctx, actor, j)
}

// Backfill ingests historical data for a time range from an explicit source.
func (s *Service) Backfill(ctx context.Context, actor domain.Actor, req domain.BackfillRequest) (*domain.IngestionResult, error) {
	if req.Source == "" {
		return nil, domain.ErrFieldValidation("source", "is required")
	}
	j, err := s.prepare(ctx, actor, domain.ActionBackfill, req.ContractID, req.TimeRange, req.DedupeStrategy, req.BatchSize, req.DryRun)
	if err != nil {
		return nil, err
	}
	j.source = req.Source
	return s.execute(ctx, actor, j)
}

func (s *Service) prepare(ctx context.Context, actor domain.Actor, action, contractID string, tr domain.TimeRange, strategy string, batchSize int, dryRun *bool) (*job, error) {
	check := security.Check{
		Permission: domain.PermIngest,
		Action:     action,
		EntityType: domain.EntityContract,
		EntityID:   contractID,
	}
	if err := s.authz.Require(ctx, actor, check); err != nil {
		return nil, err
	}
	j := &job{action: action, timeRange: tr, batchSize: batchSize, dryRun: dryRun == nil || *dryRun}
	if !j.dryRun {
		if err := s.authz.RequireAdmin(ctx, actor, check); err != nil {
			return nil, err
		}
	}

	if contractID == "" {
		return nil, domain.ErrFieldValidation("contract_id", "is required")
	}
	if err := tr.Validate(); err != nil {
		return nil, err
	}
	if strategy == "" {
		return nil, domain.ErrFieldValidation("dedupe_strategy", "is required")
	}
	if strategy != domain.DedupeStrategyIdempotencyKey {
		return nil, domain.ErrFieldValidation("dedupe_strategy", "unsupported strategy %q, want %q", strategy, domain.DedupeStrategyIdempotencyKey)
	}
	switch {
	case j.batchSize == 0:
		j.batchSize = DefaultBatchSize
	case j.batchSize < 0 || j.batchSize > MaxBatchSize:
		return nil, domain.ErrFieldValidation("batch_size", "must be between 1 and %d, got %d", MaxBatchSize, j.batchSize)
	}

	c, err := s.contracts.GetByID(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if c.State == domain.ContractDeprecated {
		return nil, domain.ErrConflict("contract %s is deprecated", contractID)
	}
	j.contract = c
	return j, nil
}

func (s *Service) replaySource(ctx context.Context, c *domain.Contract) (string, error) {
	versions, err := s.tables.ListVersions(ctx, c.TargetTableName)
	if err != nil {
		return "", err
	}
	for i := len(versions) - 1; i >= 0; i-- {
		if versions[i].Location != "" {
			return versions[i].Location, nil
		}
	}
	return c.ProducerEndpoint, nil
}

func (s *Service) execute(ctx context.Context, actor domain.Actor, j *job) (*domain.IngestionResult, error) {
	start := s.now()
	res := &domain.IngestionResult{ContractID: j.contract.ID, DryRun: j.dryRun}

	runErr := s.run(ctx, j, res)
	if runErr == nil {
		n, err := s.rows.Count(ctx, j.contract.ID)
		if err != nil {
			runErr = fmt.Errorf("count landed rows: %w", err)
		} else {
			res.FinalRowCount = n
			if j.dryRun {
				res.FinalRowCount += res.RowsApplied
			}
		}
	}

	if !j.dryRun {
		metrics.IngestedRows(res.RowsApplied, res.RowsUpdated, res.Duplicates)
		s.record(ctx, actor, j, res, runErr)
	}

	attrs := []any{
		"action", j.action,
		"contract_id", j.contract.ID,
		"source", j.source,
		"dry_run", j.dryRun,
		"batches", res.Batches,
		"rows_scanned", res.RowsScanned,
		"rows_applied", res.RowsApplied,
		"rows_updated", res.RowsUpdated,
		"duplicates", res.Duplicates,
		"duration", time.Since(start),
	}
	if runErr != nil {
		s.logger.Error("ingestion failed", append(attrs, "error", runErr)...)
		return nil, runErr
	}
	s.logger.Info("ingestion completed", attrs...)
	return res, nil
}

// run streams the source batch by batch. Each batch is applied in its own
// transaction, so a cancelled or failed run keeps the batches that committed.
func (s *Service) run(ctx context.Context, j *job, res *domain.IngestionResult) error {
	src, err := s.sources.Open(ctx, j.source)
	if err != nil {
		return err
	}
	sem := j.contract.Semantics

	var preview domain.RowPreview
	if j.dryRun {
		preview = s.rows.NewPreview(j.contract.ID, sem.DedupeRules())
	}

	return src.Read(ctx, j.batchSize, func(records []domain.Record) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch := make([]domain.IngestRow, 0, len(records))
		for _, rec := range records {
			res.RowsScanned++
			row, err := decodeRecord(rec, sem, s.now)
			if err != nil {
				return domain.ErrFieldValidation("records", "record %d: %v", res.RowsScanned, err)
			}
			if !j.timeRange.Contains(row.EventTime) {
				continue
			}
			batch = append(batch, row)
		}
		res.RowsInRange += int64(len(batch))
		res.Batches++
		if len(batch) == 0 {
			return nil
		}

		var out domain.ApplyOutcome
		if j.dryRun {
			out, err = preview.Add(ctx, batch)
		} else {
			out, err = s.rows.Apply(ctx, j.contract.ID, batch, sem.DedupeRules())
		}
		if err != nil {
			return err
		}
		res.RowsApplied += out.Applied
		res.RowsUpdated += out.Updated
		res.Duplicates += out.Duplicates
		return nil
	})
}

// record appends the audit entry of an executed run. Failed and cancelled
// runs are recorded too, with the counts of the batches that committed.
func (s *Service) record(ctx context.Context, actor domain.Actor, j *job, res *domain.IngestionResult, runErr error) {
	e := auditutil.Entry(actor, j.action, domain.EntityContract, j.contract.ID)
	e.After = auditutil.Snapshot(map[string]any{
		"source":       j.source,
		"time_range":   j.timeRange,
		"batches":      res.Batches,
		"rows_scanned": res.RowsScanned,
		"rows_applied": res.RowsApplied,
		"rows_updated": res.RowsUpdated,
		"duplicates":   res.Duplicates,
	})
	if runErr != nil {
		reason := "failed: " + runErr.Error()
		if errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) {
			reason = "cancelled after committed batches: " + runErr.Error()
		}
		auditutil.WithReason(e, reason)
	}
	// The caller's context may already be done; the record still has to land.
	if err := s.audit.Insert(context.WithoutCancel(ctx), e); err != nil {
		s.logger.Error("audit ingestion", "contract_id", j.contract.ID, "action", j.action, "error", err)
	}
}
