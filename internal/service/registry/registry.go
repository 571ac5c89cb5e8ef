// Package registry owns the table lifecycle and the query-time resolver.
package registry

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

// DefaultPromoteRetries bounds automatic CAS retries of a promotion.
const DefaultPromoteRetries = 3

// DriftGate decides whether a SHADOW version may be promoted.
type DriftGate interface {
	CheckPromotion(ctx context.Context, t *domain.Table, acknowledgeWarnings bool) error
}

// TableRegistry owns table versions and their lifecycle transitions.
type TableRegistry struct {
	tables     domain.TableRepository
	contracts  domain.ContractRepository
	gate       DriftGate
	authz      *security.RoleAuthorizer
	logger     *slog.Logger
	maxRetries int
	now        func() time.Time
}

// NewTableRegistry creates a new TableRegistry. contracts and gate may be nil,
// in which case promotion skips contract activation and the drift gate.
func NewTableRegistry(
	tables domain.TableRepository,
	contracts domain.ContractRepository,
	gate DriftGate,
	authz *security.RoleAuthorizer,
	maxRetries int,
	logger *slog.Logger,
) *TableRegistry {
	if maxRetries <= 0 {
		maxRetries = DefaultPromoteRetries
	}
	return &TableRegistry{
		tables:     tables,
		contracts:  contracts,
		gate:       gate,
		authz:      authz,
		logger:     logger.With("component", "registry"),
		maxRetries: maxRetries,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// RegisterShadow lands a new SHADOW version of req.LogicalName.
func (r *TableRegistry) RegisterShadow(ctx context.Context, actor domain.Actor, req domain.RegisterShadowRequest) (*domain.Table, error) {
	if err := r.authz.Require(ctx, actor, security.Check{
		Permission: domain.PermIngest,
		Action:     domain.ActionRegisterShadow,
		EntityType: domain.EntityTable,
		EntityID:   req.LogicalName,
	}); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	owner := req.Owner
	if owner == "" {
		owner = actor.Name
	}

	t, err := r.tables.CreateVersion(ctx, &domain.Table{
		LogicalName: req.LogicalName,
		State:       domain.TableShadow,
		Schema:      req.Schema,
		Owner:       owner,
		ContractID:  req.ContractID,
		Location:    req.Location,
		CreatedAt:   r.now(),
	}, auditutil.Entry(actor, domain.ActionRegisterShadow, domain.EntityTable, ""))
	if err != nil {
		return nil, err
	}
	r.logger.Info("shadow version registered", "table_id", t.ID, "logical_name", t.LogicalName, "version", t.Version)
	return t, nil
}

// RegisterExternal registers a READ_ONLY version. READ_ONLY is terminal.
func (r *TableRegistry) RegisterExternal(ctx context.Context, actor domain.Actor, req domain.RegisterExternalRequest) (*domain.Table, error) {
	if err := r.authz.RequireAdmin(ctx, actor, security.Check{
		Action:     domain.ActionRegisterExternal,
		EntityType: domain.EntityTable,
		EntityID:   req.LogicalName,
	}); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	owner := req.Owner
	if owner == "" {
		owner = actor.Name
	}

	t, err := r.tables.CreateVersion(ctx, &domain.Table{
		LogicalName: req.LogicalName,
		State:       domain.TableReadOnly,
		Schema:      req.Schema,
		Owner:       owner,
		Location:    req.Location,
		CreatedAt:   r.now(),
	}, auditutil.Entry(actor, domain.ActionRegisterExternal, domain.EntityTable, ""))
	if err != nil {
		return nil, err
	}
	r.logger.Info("external table registered", "table_id", t.ID, "logical_name", t.LogicalName, "location", t.Location)
	return t, nil
}

// Promote moves a SHADOW version to ACTIVE, deprecating the version it
// displaces. Without opts.ExpectedRevision a lost CAS is retried against
// fresh state up to the configured bound.
func (r *TableRegistry) Promote(ctx context.Context, actor domain.Actor, tableID string, opts domain.PromoteOptions) (*domain.Table, error) {
	if err := r.authz.Require(ctx, actor, security.Check{
		Permission: domain.PermPromote,
		Action:     domain.ActionPromote,
		EntityType: domain.EntityTable,
		EntityID:   tableID,
	}); err != nil {
		return nil, err
	}

	attempts := r.maxRetries
	if opts.ExpectedRevision != nil {
		attempts = 1
	}
	for attempt := 1; ; attempt++ {
		t, err := r.promoteOnce(ctx, actor, tableID, opts)
		var cm *domain.ConcurrentModificationError
		if !errors.As(err, &cm) {
			return t, err
		}
		metrics.CASConflict("table")
		if attempt >= attempts {
			cm.Attempts = attempt
			r.logger.Warn("promotion lost compare-and-swap",
				"table_id", tableID,
				"attempts", attempt,
				"expected_revision", cm.ExpectedRevision,
				"actual_revision", cm.ActualRevision,
			)
			return nil, cm
		}
		r.logger.Debug("retrying promotion", "table_id", tableID, "attempt", attempt)
	}
}

func (r *TableRegistry) promoteOnce(ctx context.Context, actor domain.Actor, tableID string, opts domain.PromoteOptions) (*domain.Table, error) {
	t, err := r.tables.GetByID(ctx, tableID)
	if err != nil {
		return nil, err
	}
	if t.State != domain.TableShadow {
		return nil, &domain.InvalidTransitionError{EntityID: t.ID, From: t.State, To: domain.TableActive}
	}
	if r.gate != nil {
		if err := r.gate.CheckPromotion(ctx, t, opts.AcknowledgeWarnings); err != nil {
			return nil, err
		}
	}

	p, err := r.tables.GetPointer(ctx, t.LogicalName)
	if err != nil {
		return nil, err
	}
	expected := p.Revision
	if opts.ExpectedRevision != nil {
		expected = *opts.ExpectedRevision
		if expected != p.Revision {
			return nil, &domain.ConcurrentModificationError{
				EntityID:         t.LogicalName,
				ExpectedRevision: expected,
				ActualRevision:   p.Revision,
			}
		}
	}

	if opts.DryRun {
		preview := *t
		preview.State = domain.TableActive
		r.logger.Info("promotion dry run passed", "table_id", t.ID, "revision", p.Revision)
		return &preview, nil
	}

	after := *t
	after.State = domain.TableActive
	audit := auditutil.WithSnapshots(
		auditutil.Entry(actor, domain.ActionPromote, domain.EntityTable, t.ID),
		snapshot(t), snapshot(&after),
	)
	out, err := r.tables.Swap(ctx, domain.TableSwap{
		LogicalName:      t.LogicalName,
		ExpectedRevision: expected,
		TargetID:         t.ID,
		TargetFrom:       domain.TableShadow,
		TargetState:      domain.TableActive,
		DisplacedID:      p.CurrentTableID,
		Actor:            actor.Name,
		At:               r.now(),
	}, audit)
	if err != nil {
		return nil, err
	}

	metrics.TableTransition(string(domain.TableShadow), string(domain.TableActive))
	if p.CurrentTableID != nil {
		metrics.TableTransition(string(domain.TableActive), string(domain.TableDeprecated))
	}
	r.activateContract(ctx, out)
	r.logger.Info("table promoted",
		"table_id", out.ID,
		"logical_name", out.LogicalName,
		"version", out.Version,
		"actor", actor.Name,
	)
	return out, nil
}

// activateContract moves the table's contract from pending to active on its
// first promotion. Contracts already active are left alone.
func (r *TableRegistry) activateContract(ctx context.Context, t *domain.Table) {
	if r.contracts == nil || t.ContractID == nil {
		return
	}
	err := r.contracts.UpdateState(ctx, *t.ContractID, domain.ContractPending, domain.ContractActive)
	var conflict *domain.ConflictError
	if err != nil && !errors.As(err, &conflict) {
		r.logger.Warn("activate contract", "contract_id", *t.ContractID, "error", err)
	}
}

// Deprecate retires an ACTIVE version and clears its logical name's pointer.
func (r *TableRegistry) Deprecate(ctx context.Context, actor domain.Actor, tableID, reason string) (*domain.Table, error) {
	if err := r.authz.Require(ctx, actor, security.Check{
		Permission: domain.PermDeprecate,
		Action:     domain.ActionDeprecate,
		EntityType: domain.EntityTable,
		EntityID:   tableID,
	}); err != nil {
		return nil, err
	}
	t, err := r.tables.GetByID(ctx, tableID)
	if err != nil {
		return nil, err
	}
	if _, err := domain.CheckTransition(t.ID, t.State, domain.TableDeprecated); err != nil {
		return nil, err
	}
	p, err := r.tables.GetPointer(ctx, t.LogicalName)
	if err != nil {
		return nil, err
	}

	after := *t
	after.State = domain.TableDeprecated
	audit := auditutil.WithReason(auditutil.WithSnapshots(
		auditutil.Entry(actor, domain.ActionDeprecate, domain.EntityTable, t.ID),
		snapshot(t), snapshot(&after),
	), reason)
	out, err := r.tables.Deprecate(ctx, t.LogicalName, p.Revision, t.ID, r.now(), audit)
	if err != nil {
		var cm *domain.ConcurrentModificationError
		if errors.As(err, &cm) {
			metrics.CASConflict("table")
		}
		return nil, err
	}
	metrics.TableTransition(string(domain.TableActive), string(domain.TableDeprecated))
	r.logger.Info("table deprecated", "table_id", out.ID, "logical_name", out.LogicalName, "reason", reason)
	return out, nil
}

// Restore returns a DEPRECATED version to ACTIVE. The version currently
// ACTIVE under the same logical name, if any, is deprecated in the same swap.
func (r *TableRegistry) Restore(ctx context.Context, actor domain.Actor, tableID string) (*domain.Table, error) {
	if err := r.authz.Require(ctx, actor, security.Check{
		Permission: domain.PermDeprecate,
		Action:     domain.ActionRestore,
		EntityType: domain.EntityTable,
		EntityID:   tableID,
	}); err != nil {
		return nil, err
	}
	t, err := r.tables.GetByID(ctx, tableID)
	if err != nil {
		return nil, err
	}
	if t.State != domain.TableDeprecated {
		return nil, &domain.InvalidTransitionError{EntityID: t.ID, From: t.State, To: domain.TableActive}
	}
	p, err := r.tables.GetPointer(ctx, t.LogicalName)
	if err != nil {
		return nil, err
	}

	after := *t
	after.State = domain.TableActive
	audit := auditutil.WithSnapshots(
		auditutil.Entry(actor, domain.ActionRestore, domain.EntityTable, t.ID),
		snapshot(t), snapshot(&after),
	)
	out, err := r.tables.Swap(ctx, domain.TableSwap{
		LogicalName:      t.LogicalName,
		ExpectedRevision: p.Revision,
		TargetID:         t.ID,
		TargetFrom:       domain.TableDeprecated,
		TargetState:      domain.TableActive,
		DisplacedID:      p.CurrentTableID,
		Actor:            actor.Name,
		At:               r.now(),
	}, audit)
	if err != nil {
		var cm *domain.ConcurrentModificationError
		if errors.As(err, &cm) {
			metrics.CASConflict("table")
		}
		return nil, err
	}
	metrics.TableTransition(string(domain.TableDeprecated), string(domain.TableActive))
	if p.CurrentTableID != nil {
		metrics.TableTransition(string(domain.TableActive), string(domain.TableDeprecated))
	}
	r.logger.Info("table restored", "table_id", out.ID, "logical_name", out.LogicalName, "version", out.Version)
	return out, nil
}

// Transition applies the lifecycle edge from the table's current state to
// req.To, dispatching to Promote, Deprecate or Restore. Dry runs are only
// defined for promotion.
func (r *TableRegistry) Transition(ctx context.Context, actor domain.Actor, tableID string, req domain.TransitionRequest) (*domain.Table, error) {
	t, err := r.tables.GetByID(ctx, tableID)
	if err != nil {
		return nil, err
	}
	if req.From != nil && *req.From != t.State {
		return nil, &domain.InvalidTransitionError{EntityID: t.ID, From: t.State, To: req.To, ClaimedFrom: *req.From}
	}
	if _, err := domain.CheckTransition(t.ID, t.State, req.To); err != nil {
		return nil, err
	}
	switch {
	case t.State == domain.TableShadow:
		return r.Promote(ctx, actor, tableID, req.Promote)
	case req.Promote.DryRun:
		return nil, domain.ErrFieldValidation("dry_run", "only supported for %s -> %s", domain.TableShadow, domain.TableActive)
	case req.To == domain.TableDeprecated:
		return r.Deprecate(ctx, actor, tableID, req.Reason)
	default:
		return r.Restore(ctx, actor, tableID)
	}
}

// Get returns the latest version of name, optionally restricted to one state.
// SHADOW versions are visible only to actors holding view_shadow.
func (r *TableRegistry) Get(ctx context.Context, actor domain.Actor, name string, stateFilter *domain.TableState) (*domain.Table, error) {
	perm := domain.PermQuery
	if stateFilter != nil && *stateFilter == domain.TableShadow {
		perm = domain.PermViewShadow
	}
	if err := r.authz.Require(ctx, actor, security.Check{
		Permission: perm,
		Action:     domain.ActionGetTable,
		EntityType: domain.EntityTable,
		EntityID:   name,
	}); err != nil {
		return nil, err
	}

	versions, err := r.tables.ListVersions(ctx, name)
	if err != nil {
		return nil, err
	}
	for i := len(versions) - 1; i >= 0; i-- {
		t := versions[i]
		if stateFilter != nil && t.State != *stateFilter {
			continue
		}
		if t.State == domain.TableShadow && !actor.Role.Can(domain.PermViewShadow) {
			continue
		}
		return &t, nil
	}
	if stateFilter != nil {
		return nil, domain.ErrNotFound("no %s version of table %q", *stateFilter, name)
	}
	return nil, domain.ErrNotFound("table %q not found", name)
}

// GetByID returns one version. SHADOW versions require view_shadow.
func (r *TableRegistry) GetByID(ctx context.Context, actor domain.Actor, tableID string) (*domain.Table, error) {
	if err := r.authz.Require(ctx, actor, security.Check{
		Permission: domain.PermQuery,
		Action:     domain.ActionGetTable,
		EntityType: domain.EntityTable,
		EntityID:   tableID,
	}); err != nil {
		return nil, err
	}
	t, err := r.tables.GetByID(ctx, tableID)
	if err != nil {
		return nil, err
	}
	if t.State == domain.TableShadow {
		if err := r.authz.Require(ctx, actor, security.Check{
			Permission: domain.PermViewShadow,
			Action:     domain.ActionGetTable,
			EntityType: domain.EntityTable,
			EntityID:   tableID,
		}); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// History returns every version of name visible to actor, oldest first.
func (r *TableRegistry) History(ctx context.Context, actor domain.Actor, name string) ([]domain.Table, error) {
	if err := r.authz.Require(ctx, actor, security.Check{
		Permission: domain.PermQuery,
		Action:     domain.ActionTableHistory,
		EntityType: domain.EntityTable,
		EntityID:   name,
	}); err != nil {
		return nil, err
	}
	versions, err := r.tables.ListVersions(ctx, name)
	if err != nil {
		return nil, err
	}
	if actor.Role.Can(domain.PermViewShadow) {
		return versions, nil
	}
	out := versions[:0]
	for _, t := range versions {
		if t.State != domain.TableShadow {
			out = append(out, t)
		}
	}
	return out, nil
}

// Transitions returns the recorded lifecycle edges of one version.
func (r *TableRegistry) Transitions(ctx context.Context, actor domain.Actor, tableID string) ([]domain.Transition, error) {
	if _, err := r.GetByID(ctx, actor, tableID); err != nil {
		return nil, err
	}
	return r.tables.ListTransitions(ctx, tableID)
}

func snapshot(t *domain.Table) map[string]any {
	return map[string]any{
		"id":           t.ID,
		"logical_name": t.LogicalName,
		"version":      t.Version,
		"state":        t.State,
	}
}
