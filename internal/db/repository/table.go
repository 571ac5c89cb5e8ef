package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"lakegov/internal/db/mapper"
	"lakegov/internal/domain"
)

var _ domain.TableRepository = (*TableRepo)(nil)

// TableRepo stores immutable table versions and the per-logical-name ACTIVE
// pointer. State changes go through a compare-and-swap on the pointer's
// revision; the write pool serializes the transactions themselves.
type TableRepo struct {
	db *sql.DB
}

// NewTableRepo creates a new TableRepo.
func NewTableRepo(db *sql.DB) *TableRepo {
	return &TableRepo{db: db}
}

const tableColumns = `id, logical_name, version, state, schema_json, owner, contract_id,
	location, supersedes, created_at, deprecated_at`

// CreateVersion appends the next version of t.LogicalName.
func (r *TableRepo) CreateVersion(ctx context.Context, t *domain.Table, audit *domain.AuditEntry) (*domain.Table, error) {
	if t.ID == "" {
		t.ID = domain.NewID()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	schemaJSON, err := mapper.JSON(t.Schema)
	if err != nil {
		return nil, err
	}

	err = withTx(ctx, r.db, "create table version", func(tx *sql.Tx) error {
		if err := insertTableVersion(ctx, tx, t, schemaJSON); err != nil {
			return err
		}
		if audit != nil {
			audit.EntityID = t.ID
			if audit.After == nil {
				audit.After = mapper.Snapshot(tableSnapshot(t))
			}
			return insertAudit(ctx, tx, audit)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, t.ID)
}

// insertTableVersion assigns t the next version of its logical name, inserts
// it and makes sure the name has a pointer row.
func insertTableVersion(ctx context.Context, tx *sql.Tx, t *domain.Table, schemaJSON string) error {
	var latest int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM table_versions WHERE logical_name = ?`,
		t.LogicalName).Scan(&latest); err != nil {
		return err
	}
	t.Version = latest + 1
	t.Supersedes = nil
	if latest > 0 {
		prev := latest
		t.Supersedes = &prev
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO table_versions (`+tableColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
	`, t.ID, t.LogicalName, t.Version, string(t.State), schemaJSON, t.Owner,
		mapper.NullStrFromPtr(t.ContractID), t.Location, mapper.NullIntFromPtr(t.Supersedes),
		t.CreatedAt.UTC()); err != nil {
		return mapDBError(err)
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO table_pointers (logical_name, current_table_id, revision, updated_at)
		VALUES (?, NULL, 0, ?)
		ON CONFLICT (logical_name) DO NOTHING
	`, t.LogicalName, t.CreatedAt.UTC())
	return err
}

// GetByID returns a table version by ID.
func (r *TableRepo) GetByID(ctx context.Context, id string) (*domain.Table, error) {
	return r.getByID(ctx, r.db, id)
}

func (r *TableRepo) getByID(ctx context.Context, q dbtx, id string) (*domain.Table, error) {
	row := q.QueryRowContext(ctx, `SELECT `+tableColumns+` FROM table_versions WHERE id = ?`, id)
	t, err := scanTable(row)
	if err != nil {
		return nil, notFound(err, "table %q not found", id)
	}
	return t, nil
}

// ListVersions returns every version of a logical name, oldest first.
func (r *TableRepo) ListVersions(ctx context.Context, logicalName string) ([]domain.Table, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+tableColumns+` FROM table_versions WHERE logical_name = ? ORDER BY version`, logicalName)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.Table
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// GetPointer returns the pointer of a logical name. Names that were never
// registered have a zero pointer at revision 0.
func (r *TableRepo) GetPointer(ctx context.Context, logicalName string) (*domain.TablePointer, error) {
	return getTablePointer(ctx, r.db, logicalName)
}

func getTablePointer(ctx context.Context, q dbtx, logicalName string) (*domain.TablePointer, error) {
	var current sql.NullString
	p := &domain.TablePointer{LogicalName: logicalName}
	err := q.QueryRowContext(ctx,
		`SELECT current_table_id, revision FROM table_pointers WHERE logical_name = ?`,
		logicalName).Scan(&current, &p.Revision)
	if errors.Is(err, sql.ErrNoRows) {
		return p, nil
	}
	if err != nil {
		return nil, err
	}
	p.CurrentTableID = mapper.PtrFromNullStr(current)
	return p, nil
}

// Swap moves the target version to swap.TargetState and, when set, the
// displaced ACTIVE version to DEPRECATED, in one transaction guarded by the
// pointer revision.
func (r *TableRepo) Swap(ctx context.Context, swap domain.TableSwap, audit *domain.AuditEntry) (*domain.Table, error) {
	at := swap.At.UTC()
	if at.IsZero() {
		at = time.Now().UTC()
	}

	err := withTx(ctx, r.db, "swap table pointer", func(tx *sql.Tx) error {
		if err := casTablePointer(ctx, tx, swap.LogicalName, swap.ExpectedRevision, pointerTarget(swap), at); err != nil {
			return err
		}

		if swap.DisplacedID != nil {
			res, err := tx.ExecContext(ctx, `
				UPDATE table_versions SET state = ?, deprecated_at = ?
				WHERE id = ? AND state = ?
			`, string(domain.TableDeprecated), at, *swap.DisplacedID, string(domain.TableActive))
			if err != nil {
				return err
			}
			if ok, err := requireOneRow(res); err != nil {
				return err
			} else if !ok {
				return &domain.ConcurrentModificationError{
					EntityID:         *swap.DisplacedID,
					ExpectedRevision: swap.ExpectedRevision,
					ActualRevision:   swap.ExpectedRevision + 1,
				}
			}
			if err := insertTransition(ctx, tx, *swap.DisplacedID, domain.TableActive, domain.TableDeprecated, swap.Actor, at); err != nil {
				return err
			}
		}

		var deprecatedAt any
		if swap.TargetState == domain.TableDeprecated {
			deprecatedAt = at
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE table_versions SET state = ?, deprecated_at = ?
			WHERE id = ? AND state = ?
		`, string(swap.TargetState), deprecatedAt, swap.TargetID, string(swap.TargetFrom))
		if err != nil {
			return err
		}
		if ok, err := requireOneRow(res); err != nil {
			return err
		} else if !ok {
			return &domain.ConcurrentModificationError{
				EntityID:         swap.TargetID,
				ExpectedRevision: swap.ExpectedRevision,
				ActualRevision:   swap.ExpectedRevision + 1,
			}
		}
		if err := insertTransition(ctx, tx, swap.TargetID, swap.TargetFrom, swap.TargetState, swap.Actor, at); err != nil {
			return err
		}

		if audit != nil {
			audit.EntityID = swap.TargetID
			return insertAudit(ctx, tx, audit)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, swap.TargetID)
}

// Deprecate moves an ACTIVE version to DEPRECATED and clears the pointer.
func (r *TableRepo) Deprecate(ctx context.Context, logicalName string, expectedRevision int64, tableID string, at time.Time, audit *domain.AuditEntry) (*domain.Table, error) {
	return r.Swap(ctx, domain.TableSwap{
		LogicalName:      logicalName,
		ExpectedRevision: expectedRevision,
		TargetID:         tableID,
		TargetFrom:       domain.TableActive,
		TargetState:      domain.TableDeprecated,
		Actor:            actorOf(audit),
		At:               at,
	}, audit)
}

// ListTransitions returns the recorded state history of a version, oldest first.
func (r *TableRepo) ListTransitions(ctx context.Context, tableID string) ([]domain.Transition, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT from_state, to_state FROM table_transitions
		WHERE table_id = ? ORDER BY created_at, rowid
	`, tableID)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.Transition
	for rows.Next() {
		var from, to string
		if err := rows.Scan(&from, &to); err != nil {
			return nil, err
		}
		out = append(out, domain.Transition{From: domain.TableState(from), To: domain.TableState(to)})
	}
	return out, rows.Err()
}

// pointerTarget is the pointer value after a swap: the target when it becomes
// ACTIVE, otherwise empty.
func pointerTarget(swap domain.TableSwap) *string {
	if swap.TargetState == domain.TableActive {
		id := swap.TargetID
		return &id
	}
	return nil
}

func casTablePointer(ctx context.Context, tx *sql.Tx, logicalName string, expected int64, current *string, at time.Time) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE table_pointers
		SET current_table_id = ?, revision = revision + 1, updated_at = ?
		WHERE logical_name = ? AND revision = ?
	`, mapper.NullStrFromPtr(current), at, logicalName, expected)
	if err != nil {
		return err
	}
	ok, err := requireOneRow(res)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	p, err := getTablePointer(ctx, tx, logicalName)
	if err != nil {
		return err
	}
	return &domain.ConcurrentModificationError{
		EntityID:         logicalName,
		ExpectedRevision: expected,
		ActualRevision:   p.Revision,
	}
}

func insertTransition(ctx context.Context, tx *sql.Tx, tableID string, from, to domain.TableState, actor string, at time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO table_transitions (id, table_id, from_state, to_state, actor, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, domain.NewID(), tableID, string(from), string(to), actor, at)
	if err != nil {
		return fmt.Errorf("record transition: %w", err)
	}
	return nil
}

func actorOf(audit *domain.AuditEntry) string {
	if audit == nil {
		return ""
	}
	return audit.Actor
}

func scanTable(s rowScanner) (*domain.Table, error) {
	var (
		t            domain.Table
		state        string
		schemaJSON   string
		contractID   sql.NullString
		supersedes   sql.NullInt64
		deprecatedAt sql.NullTime
	)
	if err := s.Scan(&t.ID, &t.LogicalName, &t.Version, &state, &schemaJSON, &t.Owner,
		&contractID, &t.Location, &supersedes, &t.CreatedAt, &deprecatedAt); err != nil {
		return nil, err
	}
	if err := mapper.FromJSON(schemaJSON, &t.Schema); err != nil {
		return nil, err
	}
	t.State = domain.TableState(state)
	t.ContractID = mapper.PtrFromNullStr(contractID)
	t.Supersedes = mapper.PtrFromNullInt(supersedes)
	t.DeprecatedAt = mapper.PtrFromNullTime(deprecatedAt)
	t.CreatedAt = t.CreatedAt.UTC()
	return &t, nil
}

// tableSnapshot is the audit representation of a table version.
func tableSnapshot(t *domain.Table) map[string]any {
	return map[string]any{
		"id":           t.ID,
		"logical_name": t.LogicalName,
		"version":      t.Version,
		"state":        t.State,
		"owner":        t.Owner,
	}
}
