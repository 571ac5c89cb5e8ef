package repository

import (
	"context"
	"database/sql"
	"time"

	"lakegov/internal/db/mapper"
	"lakegov/internal/domain"
)

var _ domain.DriftReportRepository = (*DriftReportRepo)(nil)

// DriftReportRepo stores drift reports.
type DriftReportRepo struct {
	db *sql.DB
}

// NewDriftReportRepo creates a new DriftReportRepo.
func NewDriftReportRepo(db *sql.DB) *DriftReportRepo {
	return &DriftReportRepo{db: db}
}

const driftColumns = `id, contract_id, from_version, to_version, changes_json, severity,
	acknowledged_by, acknowledged_at, created_at`

// Create persists a report.
func (r *DriftReportRepo) Create(ctx context.Context, rep *domain.DriftReport) (*domain.DriftReport, error) {
	if rep.ID == "" {
		rep.ID = domain.NewID()
	}
	if rep.CreatedAt.IsZero() {
		rep.CreatedAt = time.Now().UTC()
	}
	changes, err := domain.MarshalChanges(rep.Changes)
	if err != nil {
		return nil, err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO drift_reports (`+driftColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, NULL, NULL, ?)
	`, rep.ID, rep.ContractID, rep.FromVersion, rep.ToVersion, string(changes),
		string(rep.Severity), rep.CreatedAt.UTC())
	if err != nil {
		return nil, mapDBError(err)
	}
	return r.GetByID(ctx, rep.ID)
}

// GetByID returns a report by ID.
func (r *DriftReportRepo) GetByID(ctx context.Context, id string) (*domain.DriftReport, error) {
	rep, err := scanDriftReport(r.db.QueryRowContext(ctx,
		`SELECT `+driftColumns+` FROM drift_reports WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "drift report %q not found", id)
	}
	return rep, nil
}

// Latest returns the most recent report for a contract.
func (r *DriftReportRepo) Latest(ctx context.Context, contractID string) (*domain.DriftReport, error) {
	rep, err := scanDriftReport(r.db.QueryRowContext(ctx, `
		SELECT `+driftColumns+` FROM drift_reports
		WHERE contract_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1
	`, contractID))
	if err != nil {
		return nil, notFound(err, "contract %q has no drift reports", contractID)
	}
	return rep, nil
}

// ListForContract returns every report of a contract, newest first.
func (r *DriftReportRepo) ListForContract(ctx context.Context, contractID string) ([]domain.DriftReport, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+driftColumns+` FROM drift_reports
		WHERE contract_id = ?
		ORDER BY created_at DESC, rowid DESC
	`, contractID)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.DriftReport
	for rows.Next() {
		rep, err := scanDriftReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rep)
	}
	return out, rows.Err()
}

// Acknowledge records who accepted a warning report.
func (r *DriftReportRepo) Acknowledge(ctx context.Context, id, actor string, at time.Time, audit *domain.AuditEntry) (*domain.DriftReport, error) {
	err := withTx(ctx, r.db, "acknowledge drift report", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE drift_reports SET acknowledged_by = ?, acknowledged_at = ?
			WHERE id = ? AND acknowledged_by IS NULL
		`, actor, at.UTC(), id)
		if err != nil {
			return err
		}
		ok, err := requireOneRow(res)
		if err != nil {
			return err
		}
		if !ok {
			var exists int
			if err := tx.QueryRowContext(ctx, `SELECT 1 FROM drift_reports WHERE id = ?`, id).Scan(&exists); err != nil {
				return notFound(err, "drift report %q not found", id)
			}
			return domain.ErrConflict("drift report %q is already acknowledged", id)
		}
		if audit != nil {
			audit.EntityID = id
			return insertAudit(ctx, tx, audit)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func scanDriftReport(s rowScanner) (*domain.DriftReport, error) {
	var (
		rep            domain.DriftReport
		changes, sev   string
		acknowledgedBy sql.NullString
		acknowledgedAt sql.NullTime
	)
	if err := s.Scan(&rep.ID, &rep.ContractID, &rep.FromVersion, &rep.ToVersion, &changes, &sev,
		&acknowledgedBy, &acknowledgedAt, &rep.CreatedAt); err != nil {
		return nil, err
	}
	decoded, err := domain.UnmarshalChanges([]byte(changes))
	if err != nil {
		return nil, err
	}
	rep.Changes = decoded
	rep.Severity = domain.DriftSeverity(sev)
	rep.AcknowledgedBy = mapper.PtrFromNullStr(acknowledgedBy)
	rep.AcknowledgedAt = mapper.PtrFromNullTime(acknowledgedAt)
	rep.CreatedAt = rep.CreatedAt.UTC()
	return &rep, nil
}
