// Package auditutil builds audit entries for governed operations.
package auditutil

import (
	"context"
	"encoding/json"
	"log/slog"

	"lakegov/internal/domain"
)

// Entry builds an ALLOWED entry for a mutation by actor. The repository
// performing the mutation writes it in the same transaction.
func Entry(actor domain.Actor, action, entityType, entityID string) *domain.AuditEntry {
	return &domain.AuditEntry{
		Actor:      actor.Name,
		Role:       actor.Role,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Status:     domain.AuditAllowed,
	}
}

// WithSnapshots sets the before/after snapshots of e.
func WithSnapshots(e *domain.AuditEntry, before, after any) *domain.AuditEntry {
	e.Before = Snapshot(before)
	e.After = Snapshot(after)
	return e
}

// WithReason sets the reason of e when non-empty.
func WithReason(e *domain.AuditEntry, reason string) *domain.AuditEntry {
	if reason != "" {
		e.Reason = &reason
	}
	return e
}

// Snapshot JSON-encodes v. Nil values and encoding failures yield nil.
func Snapshot(v any) *string {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	s := string(data)
	return &s
}

// LogDenied appends a DENIED entry. A failed append is logged and swallowed so
// the caller still receives the authorization error.
func LogDenied(ctx context.Context, repo domain.AuditRepository, logger *slog.Logger, actor domain.Actor, action, entityType, entityID, reason string) {
	if repo == nil {
		return
	}
	e := WithReason(Entry(actor, action, entityType, entityID), reason)
	e.Status = domain.AuditDenied
	if err := repo.Insert(ctx, e); err != nil && logger != nil {
		logger.Error("audit denied entry", "actor", actor.Name, "action", action, "entity_id", entityID, "error", err)
	}
}
