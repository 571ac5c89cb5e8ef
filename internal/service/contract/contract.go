// Package contract validates and stores ingestion contracts.
package contract

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

// Service registers contracts and manages their schema versions.
type Service struct {
	contracts domain.ContractRepository
	authz     *security.RoleAuthorizer
	logger    *slog.Logger
}

// NewService creates a new contract Service.
func NewService(contracts domain.ContractRepository, authz *security.RoleAuthorizer, logger *slog.Logger) *Service {
	return &Service{contracts: contracts, authz: authz, logger: logger.With("component", "contract")}
}

// Register validates draft exhaustively and, on success, stores the contract
// in pending state together with a SHADOW version of its target table.
// Nothing is written when validation fails.
func (s *Service) Register(ctx context.Context, actor domain.Actor, draft domain.ContractDraft) (*domain.ContractRegistration, error) {
	var target string
	if draft.TargetTableName != nil {
		target = *draft.TargetTableName
	}
	if err := s.authz.Require(ctx, actor, security.Check{
		Permission: domain.PermCreateContract,
		Action:     domain.ActionRegisterContract,
		EntityType: domain.EntityContract,
		EntityID:   target,
	}); err != nil {
		return nil, err
	}

	if err := checkStructure(&draft); err != nil {
		return nil, err
	}
	c, unsafe, err := normalize(&draft)
	if err != nil {
		return nil, err
	}
	c.CreatedBy = actor.Name
	c.CreatedAt = time.Now().UTC()

	audit := auditutil.Entry(actor, domain.ActionRegisterContract, domain.EntityContract, "")
	if unsafe {
		s.logger.Warn("contract registered with unsafe processing time",
			"table_name", c.TargetTableName,
			"actor", actor.Name,
			"event_time_column", c.Semantics.EventTimeColumn.Name,
			"processing_time_column", c.Semantics.ProcessingTimeColumn.Name,
			"processing_time_source", c.Semantics.ProcessingTimeColumn.Source,
		)
		auditutil.WithReason(audit, "unsafe_allow_processing_time acknowledged: replays of this contract are not reproducible")
	}

	shadow := &domain.Table{
		LogicalName: c.TargetTableName,
		State:       domain.TableShadow,
		Owner:       actor.Name,
		Location:    draft.Location,
	}
	created, err := s.contracts.CreateWithShadow(ctx, c, shadow, audit)
	if err != nil {
		return nil, err
	}
	s.logger.Info("contract registered",
		"contract_id", created.ID,
		"table_name", created.TargetTableName,
		"table_id", shadow.ID,
		"table_version", shadow.Version,
	)
	return &domain.ContractRegistration{Contract: created, Table: shadow}, nil
}

// CreateVersion appends a new schema version to a contract. Moving the
// contract past a breaking drift report's target version lifts the report's
// promotion gate.
func (s *Service) CreateVersion(ctx context.Context, actor domain.Actor, contractID string, schema domain.Schema) (*domain.Contract, error) {
	if err := s.authz.Require(ctx, actor, security.Check{
		Permission: domain.PermCreateContract,
		Action:     domain.ActionContractVersion,
		EntityType: domain.EntityContract,
		EntityID:   contractID,
	}); err != nil {
		return nil, err
	}
	c, err := s.contracts.GetByID(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if c.State == domain.ContractDeprecated {
		return nil, domain.ErrConflict("contract %s is deprecated", contractID)
	}
	if err := checkSchema(c.Semantics, schema); err != nil {
		return nil, err
	}

	audit := auditutil.WithSnapshots(
		auditutil.Entry(actor, domain.ActionContractVersion, domain.EntityContract, contractID),
		map[string]any{"schema_version": c.CurrentSchemaVersion},
		map[string]any{"schema_version": c.CurrentSchemaVersion + 1, "schema": schema},
	)
	out, err := s.contracts.AddSchemaVersion(ctx, contractID, c.CurrentSchemaVersion, schema, actor.Name, audit)
	if err != nil {
		var cm *domain.ConcurrentModificationError
		if errors.As(err, &cm) {
			metrics.CASConflict("contract")
		}
		return nil, err
	}
	s.logger.Info("contract schema version created", "contract_id", contractID, "version", out.CurrentSchemaVersion)
	return out, nil
}

// Get returns a contract with its current schema.
func (s *Service) Get(ctx context.Context, actor domain.Actor, contractID string) (*domain.Contract, error) {
	if err := s.requireRead(ctx, actor, contractID); err != nil {
		return nil, err
	}
	return s.contracts.GetByID(ctx, contractID)
}

// GetByTableName returns the contract that targets a logical table.
func (s *Service) GetByTableName(ctx context.Context, actor domain.Actor, tableName string) (*domain.Contract, error) {
	if err := s.requireRead(ctx, actor, tableName); err != nil {
		return nil, err
	}
	return s.contracts.GetByTableName(ctx, tableName)
}

// List returns a page of contracts ordered by target table.
func (s *Service) List(ctx context.Context, actor domain.Actor, page domain.PageRequest) ([]domain.Contract, int64, error) {
	if err := s.requireRead(ctx, actor, ""); err != nil {
		return nil, 0, err
	}
	return s.contracts.List(ctx, page)
}

// SchemaVersion returns one stored schema version of a contract.
func (s *Service) SchemaVersion(ctx context.Context, actor domain.Actor, contractID string, version int) (*domain.ContractSchemaVersion, error) {
	if err := s.requireRead(ctx, actor, contractID); err != nil {
		return nil, err
	}
	if version <= 0 {
		return nil, domain.ErrFieldValidation("version", "must be positive, got %d", version)
	}
	return s.contracts.GetSchemaVersion(ctx, contractID, version)
}

func (s *Service) requireRead(ctx context.Context, actor domain.Actor, entityID string) error {
	return s.authz.Require(ctx, actor, security.Check{
		Permission: domain.PermQuery,
		Action:     domain.ActionGetContract,
		EntityType: domain.EntityContract,
		EntityID:   entityID,
	})
}
