package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"lakegov/internal/db/mapper"
	"lakegov/internal/domain"
)

var _ domain.ContractRepository = (*ContractRepo)(nil)

// ContractRepo stores ingestion contracts and their schema versions.
type ContractRepo struct {
	db *sql.DB
}

// NewContractRepo creates a new ContractRepo.
func NewContractRepo(db *sql.DB) *ContractRepo {
	return &ContractRepo{db: db}
}

const contractSelect = `
	SELECT c.id, c.producer_endpoint, c.target_table_name, c.semantics_json, c.state,
	       c.current_schema_version, v.schema_json, c.created_by, c.created_at
	FROM contracts c
	JOIN contract_schema_versions v
	  ON v.contract_id = c.id AND v.version = c.current_schema_version`

// Create persists a contract together with schema version 1.
func (r *ContractRepo) Create(ctx context.Context, c *domain.Contract, audit *domain.AuditEntry) (*domain.Contract, error) {
	return r.CreateWithShadow(ctx, c, nil, audit)
}

// CreateWithShadow is Create that also lands shadow, when non-nil, as the
// next version of its logical name in the same transaction. shadow is
// updated in place with its assigned id and version.
func (r *ContractRepo) CreateWithShadow(ctx context.Context, c *domain.Contract, shadow *domain.Table, audit *domain.AuditEntry) (*domain.Contract, error) {
	if c.ID == "" {
		c.ID = domain.NewID()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.State == "" {
		c.State = domain.ContractPending
	}
	c.CurrentSchemaVersion = 1

	semantics, err := mapper.JSON(c.Semantics)
	if err != nil {
		return nil, err
	}
	schema, err := mapper.JSON(c.Schema)
	if err != nil {
		return nil, err
	}

	err = withTx(ctx, r.db, "create contract", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO contracts (id, producer_endpoint, target_table_name, semantics_json, state,
			                       current_schema_version, created_by, created_at)
			VALUES (?, ?, ?, ?, ?, 1, ?, ?)
		`, c.ID, c.ProducerEndpoint, c.TargetTableName, semantics, string(c.State),
			c.CreatedBy, c.CreatedAt.UTC()); err != nil {
			var conflict *domain.ConflictError
			if errors.As(mapDBError(err), &conflict) {
				return domain.ErrConflict("contract for table %q already exists", c.TargetTableName)
			}
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO contract_schema_versions (contract_id, version, schema_json, created_by, created_at)
			VALUES (?, 1, ?, ?, ?)
		`, c.ID, schema, c.CreatedBy, c.CreatedAt.UTC()); err != nil {
			return err
		}
		if shadow != nil {
			if shadow.ID == "" {
				shadow.ID = domain.NewID()
			}
			shadow.ContractID = &c.ID
			shadow.Schema = c.Schema
			shadow.CreatedAt = c.CreatedAt
			if err := insertTableVersion(ctx, tx, shadow, schema); err != nil {
				return err
			}
		}
		if audit != nil {
			audit.EntityID = c.ID
			if audit.After == nil {
				audit.After = mapper.Snapshot(contractSnapshot(c))
			}
			return insertAudit(ctx, tx, audit)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, c.ID)
}

// GetByID returns a contract with its current schema.
func (r *ContractRepo) GetByID(ctx context.Context, id string) (*domain.Contract, error) {
	c, err := scanContract(r.db.QueryRowContext(ctx, contractSelect+` WHERE c.id = ?`, id))
	if err != nil {
		return nil, notFound(err, "contract %q not found", id)
	}
	return c, nil
}

// GetByTableName returns the contract that targets tableName.
func (r *ContractRepo) GetByTableName(ctx context.Context, tableName string) (*domain.Contract, error) {
	c, err := scanContract(r.db.QueryRowContext(ctx, contractSelect+` WHERE c.target_table_name = ?`, tableName))
	if err != nil {
		return nil, notFound(err, "no contract targets table %q", tableName)
	}
	return c, nil
}

// List returns a page of contracts ordered by table name.
func (r *ContractRepo) List(ctx context.Context, page domain.PageRequest) ([]domain.Contract, int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM contracts`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.QueryContext(ctx, contractSelect+` ORDER BY c.target_table_name LIMIT ? OFFSET ?`,
		page.Limit(), page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *c)
	}
	return out, total, rows.Err()
}

// AddSchemaVersion appends schema as version expectedVersion+1.
func (r *ContractRepo) AddSchemaVersion(ctx context.Context, contractID string, expectedVersion int, schema domain.Schema, actor string, audit *domain.AuditEntry) (*domain.Contract, error) {
	schemaJSON, err := mapper.JSON(schema)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	next := expectedVersion + 1

	err = withTx(ctx, r.db, "add contract schema version", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE contracts SET current_schema_version = ?
			WHERE id = ? AND current_schema_version = ?
		`, next, contractID, expectedVersion)
		if err != nil {
			return err
		}
		ok, err := requireOneRow(res)
		if err != nil {
			return err
		}
		if !ok {
			var actual int
			err := tx.QueryRowContext(ctx,
				`SELECT current_schema_version FROM contracts WHERE id = ?`, contractID).Scan(&actual)
			if err != nil {
				return notFound(err, "contract %q not found", contractID)
			}
			return &domain.ConcurrentModificationError{
				EntityID:         contractID,
				ExpectedRevision: int64(expectedVersion),
				ActualRevision:   int64(actual),
			}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO contract_schema_versions (contract_id, version, schema_json, created_by, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, contractID, next, schemaJSON, actor, now); err != nil {
			return mapDBError(err)
		}
		if audit != nil {
			audit.EntityID = contractID
			return insertAudit(ctx, tx, audit)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, contractID)
}

// GetSchemaVersion returns one historical schema version.
func (r *ContractRepo) GetSchemaVersion(ctx context.Context, contractID string, version int) (*domain.ContractSchemaVersion, error) {
	v := &domain.ContractSchemaVersion{ContractID: contractID, Version: version}
	var schemaJSON string
	err := r.db.QueryRowContext(ctx, `
		SELECT schema_json, created_by, created_at FROM contract_schema_versions
		WHERE contract_id = ? AND version = ?
	`, contractID, version).Scan(&schemaJSON, &v.CreatedBy, &v.CreatedAt)
	if err != nil {
		return nil, notFound(err, "contract %q has no schema version %d", contractID, version)
	}
	if err := mapper.FromJSON(schemaJSON, &v.Schema); err != nil {
		return nil, err
	}
	return v, nil
}

// UpdateState moves a contract from one lifecycle state to another.
func (r *ContractRepo) UpdateState(ctx context.Context, contractID string, from, to domain.ContractState) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE contracts SET state = ? WHERE id = ? AND state = ?`, string(to), contractID, string(from))
	if err != nil {
		return err
	}
	ok, err := requireOneRow(res)
	if err != nil {
		return err
	}
	if !ok {
		if _, err := r.GetByID(ctx, contractID); err != nil {
			return err
		}
		return domain.ErrConflict("contract %q is not %s", contractID, from)
	}
	return nil
}

func scanContract(s rowScanner) (*domain.Contract, error) {
	var (
		c                     domain.Contract
		semantics, schema, st string
	)
	if err := s.Scan(&c.ID, &c.ProducerEndpoint, &c.TargetTableName, &semantics, &st,
		&c.CurrentSchemaVersion, &schema, &c.CreatedBy, &c.CreatedAt); err != nil {
		return nil, err
	}
	if err := mapper.FromJSON(semantics, &c.Semantics); err != nil {
		return nil, err
	}
	if err := mapper.FromJSON(schema, &c.Schema); err != nil {
		return nil, err
	}
	c.State = domain.ContractState(st)
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

func contractSnapshot(c *domain.Contract) map[string]any {
	return map[string]any{
		"id":                  c.ID,
		"endpoint":            c.ProducerEndpoint,
		"table_name":          c.TargetTableName,
		"ingestion_semantics": c.Semantics,
		"state":               c.State,
		"schema_version":      c.CurrentSchemaVersion,
	}
}
