package registry

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"lakegov/internal/domain"
	"lakegov/internal/metrics"
	"lakegov/internal/service/security"
)

// resolveConcurrency bounds concurrent per-name lookups.
const resolveConcurrency = 8

// Resolver turns logical table names into the single artifact the query layer
// may read: ACTIVE, then READ_ONLY, then DEPRECATED when opted in. SHADOW
// versions are never returned.
type Resolver struct {
	tables domain.TableRepository
	authz  *security.RoleAuthorizer
	logger *slog.Logger
}

// NewResolver creates a new Resolver.
func NewResolver(tables domain.TableRepository, authz *security.RoleAuthorizer, logger *slog.Logger) *Resolver {
	return &Resolver{tables: tables, authz: authz, logger: logger.With("component", "resolver")}
}

// Resolve resolves every name or fails with an UnresolvedTableError listing
// all names that have no eligible artifact. Results follow the input order.
func (r *Resolver) Resolve(ctx context.Context, actor domain.Actor, names []string, includeDeprecated bool) ([]domain.Table, error) {
	res, err := r.ResolvePartial(ctx, actor, names, includeDeprecated)
	if err != nil {
		return nil, err
	}
	if len(res.Unresolved) > 0 {
		return nil, &domain.UnresolvedTableError{Names: res.Unresolved}
	}
	return res.Resolved, nil
}

// ResolvePartial resolves what it can and reports the rest. The caller
// decides whether a partial set is acceptable.
func (r *Resolver) ResolvePartial(ctx context.Context, actor domain.Actor, names []string, includeDeprecated bool) (*domain.Resolution, error) {
	defer metrics.ObserveResolve(time.Now())

	if err := r.authz.Require(ctx, actor, security.Check{
		Permission: domain.PermQuery,
		Action:     domain.ActionResolve,
		EntityType: domain.EntityTable,
	}); err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, domain.ErrFieldValidation("names", "must not be empty")
	}
	for i, n := range names {
		if n == "" {
			return nil, domain.ErrFieldValidation("names", "entry %d is empty", i)
		}
	}

	found := make([]*domain.Table, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resolveConcurrency)
	for i, name := range names {
		g.Go(func() error {
			t, err := r.resolveOne(gctx, name, includeDeprecated)
			if err != nil {
				return err
			}
			found[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &domain.Resolution{}
	for i, t := range found {
		if t == nil {
			res.Unresolved = append(res.Unresolved, names[i])
			continue
		}
		res.Resolved = append(res.Resolved, *t)
	}
	if len(res.Unresolved) > 0 {
		r.logger.Info("unresolved tables", "actor", actor.Name, "names", res.Unresolved)
	}
	return res, nil
}

// resolveOne picks the eligible version of name from one consistent read of
// its history, or nil when none qualifies.
func (r *Resolver) resolveOne(ctx context.Context, name string, includeDeprecated bool) (*domain.Table, error) {
	versions, err := r.tables.ListVersions(ctx, name)
	if err != nil {
		return nil, err
	}
	priority := []domain.TableState{domain.TableActive, domain.TableReadOnly}
	if includeDeprecated {
		priority = append(priority, domain.TableDeprecated)
	}
	for _, state := range priority {
		for i := len(versions) - 1; i >= 0; i-- {
			if versions[i].State == state {
				t := versions[i]
				return &t, nil
			}
		}
	}
	return nil, nil
}
