package ingestion

import (
	"context"

	"lakegov/internal/domain"
	"lakegov/internal/service/security"
)

// Land registers a new physical landing of a contract's data as a SHADOW
// version of the contract's table. When the landed schema differs from the
// contract's current schema a drift report is stored first, so the promotion
// gate sees it.
func (s *Service) Land(ctx context.Context, actor domain.Actor, req domain.LandRequest) (*domain.LandResult, error) {
	if err := s.authz.Require(ctx, actor, security.Check{
		Permission: domain.PermIngest,
		Action:     domain.ActionRegisterShadow,
		EntityType: domain.EntityContract,
		EntityID:   req.ContractID,
	}); err != nil {
		return nil, err
	}
	if req.ContractID == "" {
		return nil, domain.ErrFieldValidation("contract_id", "is required")
	}
	if err := req.Schema.Validate(); err != nil {
		return nil, err
	}
	c, err := s.contracts.GetByID(ctx, req.ContractID)
	if err != nil {
		return nil, err
	}
	if c.State == domain.ContractDeprecated {
		return nil, domain.ErrConflict("contract %s is deprecated", c.ID)
	}

	out := &domain.LandResult{}
	if len(c.Schema.Columns) > 0 && !c.Schema.Equal(req.Schema) {
		if out.Drift, err = s.drift.Detect(ctx, actor, c.ID, c.Schema, req.Schema); err != nil {
			return nil, err
		}
	}

	contractID := c.ID
	out.Table, err = s.registry.RegisterShadow(ctx, actor, domain.RegisterShadowRequest{
		LogicalName: c.TargetTableName,
		Schema:      req.Schema,
		Owner:       actor.Name,
		ContractID:  &contractID,
		Location:    req.Location,
	})
	if err != nil {
		return nil, err
	}

	attrs := []any{"contract_id", c.ID, "table_id", out.Table.ID, "version", out.Table.Version}
	if out.Drift != nil {
		attrs = append(attrs, "drift_severity", out.Drift.Severity, "drift_report_id", out.Drift.ID)
	}
	s.logger.Info("landed shadow version", attrs...)
	return out, nil
}
