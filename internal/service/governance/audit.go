// Package governance implements governance and audit services.
package governance

import (
	"context"
	"log/slog"

	"lakegov/internal/domain"
	"lakegov/internal/service/security"
)

// AuditService provides audit log operations.
type AuditService struct {
	repo   domain.AuditRepository
	authz  *security.RoleAuthorizer
	logger *slog.Logger
}

// NewAuditService creates a new AuditService.
func NewAuditService(repo domain.AuditRepository, authz *security.RoleAuthorizer, logger *slog.Logger) *AuditService {
	return &AuditService{repo: repo, authz: authz, logger: logger.With("component", "audit")}
}

// List returns a filtered, paginated list of audit log entries. Requires admin privileges.
func (s *AuditService) List(ctx context.Context, actor domain.Actor, filter domain.AuditFilter) ([]domain.AuditEntry, int64, error) {
	if err := s.authz.RequireAdmin(ctx, actor, security.Check{
		Action:     domain.ActionListAudit,
		EntityType: "audit_log",
	}); err != nil {
		return nil, 0, err
	}
	if filter.Since != nil && filter.Until != nil && !filter.Since.Before(*filter.Until) {
		return nil, 0, domain.ErrFieldValidation("since", "must be before until")
	}
	if filter.Status != nil && *filter.Status != domain.AuditAllowed && *filter.Status != domain.AuditDenied {
		return nil, 0, domain.ErrFieldValidation("status", "must be %s or %s, got %q",
			domain.AuditAllowed, domain.AuditDenied, *filter.Status)
	}
	return s.repo.List(ctx, filter)
}
