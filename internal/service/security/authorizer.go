// Package security enforces the fixed role-permission matrix.
package security

import (
	"context"
	"log/slog"

	"lakegov/internal/domain"
	"lakegov/internal/metrics"
	"lakegov/internal/service/auditutil"
)

// RoleAuthorizer checks actors against the role-permission matrix. Every
// denial is recorded in the audit log.
type RoleAuthorizer struct {
	audit  domain.AuditRepository
	logger *slog.Logger
}

// NewRoleAuthorizer creates a new RoleAuthorizer.
func NewRoleAuthorizer(audit domain.AuditRepository, logger *slog.Logger) *RoleAuthorizer {
	return &RoleAuthorizer{audit: audit, logger: logger.With("component", "authorizer")}
}

// Check is the audited form of a permission check against one entity.
type Check struct {
	Permission domain.Permission
	Action     string
	EntityType string
	EntityID   string
}

// Require returns an UnauthorizedError when actor lacks c.Permission.
func (a *RoleAuthorizer) Require(ctx context.Context, actor domain.Actor, c Check) error {
	if actor.Role.Can(c.Permission) {
		return nil
	}
	err := domain.ErrUnauthorized(actor, c.Permission, c.EntityID)
	a.logger.Warn("permission denied",
		"actor", actor.Name,
		"role", actor.Role,
		"permission", c.Permission,
		"action", c.Action,
		"entity_id", c.EntityID,
	)
	metrics.AuthzDenied(string(c.Permission))
	auditutil.LogDenied(ctx, a.audit, a.logger, actor, c.Action, c.EntityType, c.EntityID, err.Error())
	return err
}

// RequireAdmin is Require for operations gated on the Admin role itself
// rather than a single permission.
func (a *RoleAuthorizer) RequireAdmin(ctx context.Context, actor domain.Actor, c Check) error {
	if actor.IsAdmin() {
		return nil
	}
	if c.Permission == "" {
		c.Permission = domain.PermPromote
	}
	err := domain.ErrUnauthorized(actor, c.Permission, c.EntityID)
	a.logger.Warn("admin required", "actor", actor.Name, "role", actor.Role, "action", c.Action, "entity_id", c.EntityID)
	metrics.AuthzDenied(string(c.Permission))
	auditutil.LogDenied(ctx, a.audit, a.logger, actor, c.Action, c.EntityType, c.EntityID, err.Error())
	return err
}
