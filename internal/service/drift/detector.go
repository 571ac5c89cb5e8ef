// Package drift classifies schema changes between contract versions and
// gates promotion on the result.
package drift

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"lakegov/internal/domain"
	"lakegov/internal/metrics"
	"lakegov/internal/service/auditutil"
	"lakegov/internal/service/security"
)

// Detector stores drift reports and answers the promotion drift gate.
type Detector struct {
	contracts       domain.ContractRepository
	reports         domain.DriftReportRepository
	authz           *security.RoleAuthorizer
	logger          *slog.Logger
	renameThreshold float64
}

// NewDetector creates a new Detector. A threshold outside (0, 1] selects
// DefaultRenameSimilarity.
func NewDetector(
	contracts domain.ContractRepository,
	reports domain.DriftReportRepository,
	authz *security.RoleAuthorizer,
	renameThreshold float64,
	logger *slog.Logger,
) *Detector {
	if renameThreshold <= 0 || renameThreshold > 1 {
		renameThreshold = DefaultRenameSimilarity
	}
	return &Detector{
		contracts:       contracts,
		reports:         reports,
		authz:           authz,
		logger:          logger.With("component", "drift"),
		renameThreshold: renameThreshold,
	}
}

// Detect classifies the change between two schema snapshots of a contract and
// stores the report against the contract's next schema version.
func (d *Detector) Detect(ctx context.Context, actor domain.Actor, contractID string, from, to domain.Schema) (*domain.DriftReport, error) {
	if err := d.authz.Require(ctx, actor, security.Check{
		Permission: domain.PermCreateContract,
		Action:     domain.ActionDetectDrift,
		EntityType: domain.EntityContract,
		EntityID:   contractID,
	}); err != nil {
		return nil, err
	}
	c, err := d.contracts.GetByID(ctx, contractID)
	if err != nil {
		return nil, err
	}

	changes, severity := Diff(from, to, d.renameThreshold)
	rep, err := d.reports.Create(ctx, &domain.DriftReport{
		ContractID:  contractID,
		FromVersion: c.CurrentSchemaVersion,
		ToVersion:   c.CurrentSchemaVersion + 1,
		Changes:     changes,
		Severity:    severity,
	})
	if err != nil {
		return nil, err
	}
	metrics.DriftReport(string(severity))
	d.logger.Info("drift detected",
		"contract_id", contractID,
		"report_id", rep.ID,
		"severity", severity,
		"changes", len(changes),
	)
	return rep, nil
}

// DiffVersions compares two stored schema versions of a contract without
// persisting anything.
func (d *Detector) DiffVersions(ctx context.Context, contractID string, from, to int) (*domain.DriftReport, error) {
	if from <= 0 || to <= 0 {
		return nil, domain.ErrFieldValidation("from", "versions must be positive (from=%d, to=%d)", from, to)
	}
	oldVersion, err := d.contracts.GetSchemaVersion(ctx, contractID, from)
	if err != nil {
		return nil, err
	}
	newVersion, err := d.contracts.GetSchemaVersion(ctx, contractID, to)
	if err != nil {
		return nil, err
	}
	changes, severity := Diff(oldVersion.Schema, newVersion.Schema, d.renameThreshold)
	return &domain.DriftReport{
		ContractID:  contractID,
		FromVersion: from,
		ToVersion:   to,
		Changes:     changes,
		Severity:    severity,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// Acknowledge records an Admin's acceptance of a warning report.
func (d *Detector) Acknowledge(ctx context.Context, actor domain.Actor, reportID string) (*domain.DriftReport, error) {
	check := security.Check{
		Permission: domain.PermPromote,
		Action:     domain.ActionAcknowledgeDrift,
		EntityType: domain.EntityDriftReport,
		EntityID:   reportID,
	}
	if err := d.authz.RequireAdmin(ctx, actor, check); err != nil {
		return nil, err
	}
	rep, err := d.reports.GetByID(ctx, reportID)
	if err != nil {
		return nil, err
	}
	switch rep.Severity {
	case domain.DriftWarning:
	case domain.DriftBreaking:
		return nil, domain.ErrFieldValidation("severity",
			"drift report %s is breaking and cannot be acknowledged; create a new contract version", reportID)
	default:
		return nil, domain.ErrFieldValidation("severity",
			"drift report %s is %s and needs no acknowledgment", reportID, rep.Severity)
	}

	audit := auditutil.WithSnapshots(
		auditutil.Entry(actor, domain.ActionAcknowledgeDrift, domain.EntityDriftReport, reportID),
		map[string]any{"severity": rep.Severity, "acknowledged": false},
		map[string]any{"severity": rep.Severity, "acknowledged": true},
	)
	return d.reports.Acknowledge(ctx, reportID, actor.Name, time.Now().UTC(), audit)
}

// Latest returns the most recent report of a contract.
func (d *Detector) Latest(ctx context.Context, contractID string) (*domain.DriftReport, error) {
	return d.reports.Latest(ctx, contractID)
}

// List returns every report of a contract, newest first.
func (d *Detector) List(ctx context.Context, contractID string) ([]domain.DriftReport, error) {
	return d.reports.ListForContract(ctx, contractID)
}

// CheckPromotion applies the drift gate to a table about to be promoted. A
// breaking report blocks until the contract has moved past the report's
// target version; a warning report blocks until acknowledged, or until an
// Admin promoter passes acknowledgeWarnings.
func (d *Detector) CheckPromotion(ctx context.Context, t *domain.Table, acknowledgeWarnings bool) error {
	if t.ContractID == nil {
		return nil
	}
	contractID := *t.ContractID
	rep, err := d.reports.Latest(ctx, contractID)
	if err != nil {
		var nf *domain.NotFoundError
		if errors.As(err, &nf) {
			return nil
		}
		return err
	}

	blocked := &domain.DriftBreakingChangeError{
		TableID:    t.ID,
		ContractID: contractID,
		ReportID:   rep.ID,
		Severity:   rep.Severity,
	}
	switch rep.Severity {
	case domain.DriftCompatible:
		return nil
	case domain.DriftWarning:
		if rep.AcknowledgedBy != nil || acknowledgeWarnings {
			return nil
		}
		return blocked
	default:
		c, err := d.contracts.GetByID(ctx, contractID)
		if err != nil {
			return err
		}
		if c.CurrentSchemaVersion >= rep.ToVersion {
			return nil
		}
		blocked.Severity = domain.DriftBreaking
		return blocked
	}
}
