package repository

import (
	"context"
	"database/sql"
	"strings"

	"lakegov/internal/db/mapper"
	"lakegov/internal/domain"
)

var _ domain.AuditRepository = (*AuditRepo)(nil)

// AuditRepo reads and appends the audit log. The table rejects updates and
// deletes at the storage layer.
type AuditRepo struct {
	db *sql.DB
}

// NewAuditRepo creates a new AuditRepo.
func NewAuditRepo(db *sql.DB) *AuditRepo {
	return &AuditRepo{db: db}
}

// Insert appends a standalone entry, typically a denial.
func (r *AuditRepo) Insert(ctx context.Context, e *domain.AuditEntry) error {
	return insertAudit(ctx, r.db, e)
}

// List returns entries matching filter, newest first, with the total count.
func (r *AuditRepo) List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, int64, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, v any) {
		where = append(where, clause)
		args = append(args, v)
	}
	if filter.Actor != nil {
		add("actor = ?", *filter.Actor)
	}
	if filter.Action != nil {
		add("action = ?", *filter.Action)
	}
	if filter.EntityType != nil {
		add("entity_type = ?", *filter.EntityType)
	}
	if filter.EntityID != nil {
		add("entity_id = ?", *filter.EntityID)
	}
	if filter.Status != nil {
		add("status = ?", *filter.Status)
	}
	if filter.Since != nil {
		add("created_at >= ?", filter.Since.UTC())
	}
	if filter.Until != nil {
		add("created_at < ?", filter.Until.UTC())
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_log`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, actor, role, action, entity_type, entity_id, before_json, after_json,
		       reason, status, created_at
		FROM audit_log`+clause+`
		ORDER BY created_at DESC, rowid DESC
		LIMIT ? OFFSET ?`,
		append(args, filter.Page.Limit(), filter.Page.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close() //nolint:errcheck

	var entries []domain.AuditEntry
	for rows.Next() {
		var (
			e                     domain.AuditEntry
			role                  string
			before, after, reason sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Actor, &role, &e.Action, &e.EntityType, &e.EntityID,
			&before, &after, &reason, &e.Status, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		e.Role = domain.Role(role)
		e.Before = mapper.PtrFromNullStr(before)
		e.After = mapper.PtrFromNullStr(after)
		e.Reason = mapper.PtrFromNullStr(reason)
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}
