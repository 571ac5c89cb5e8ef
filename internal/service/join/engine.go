// Package join proposes, validates and accepts joins between governed tables.
// A join is usable by the query layer only once it has been accepted.
package join

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"lakegov/internal/domain"
	"lakegov/internal/metrics"
	"lakegov/internal/service/auditutil"
	"lakegov/internal/service/security"
)

// Defaults for Config fields left at zero.
const (
	DefaultKeyWeight      = 0.7
	DefaultProducerWeight = 0.3
	DefaultSampleSize     = 10000
)

// TableResolver resolves logical names to queryable table versions.
type TableResolver interface {
	Resolve(ctx context.Context, actor domain.Actor, names []string, includeDeprecated bool) ([]domain.Table, error)
}

// Config tunes candidate scoring and sampling.
type Config struct {
	KeyWeight      float64
	ProducerWeight float64
	SampleSize     int
}

func (c Config) withDefaults() Config {
	if c.KeyWeight == 0 && c.ProducerWeight == 0 {
		c.KeyWeight, c.ProducerWeight = DefaultKeyWeight, DefaultProducerWeight
	}
	if c.SampleSize <= 0 {
		c.SampleSize = DefaultSampleSize
	}
	return c
}

// Engine manages the join candidate lifecycle.
type Engine struct {
	joins     domain.JoinRepository
	contracts domain.ContractRepository
	resolver  TableResolver
	sampler   domain.JoinSampler
	authz     *security.RoleAuthorizer
	cfg       Config
	logger    *slog.Logger
}

// NewEngine creates a new Engine.
func NewEngine(
	joins domain.JoinRepository,
	contracts domain.ContractRepository,
	resolver TableResolver,
	sampler domain.JoinSampler,
	authz *security.RoleAuthorizer,
	cfg Config,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		joins:     joins,
		contracts: contracts,
		resolver:  resolver,
		sampler:   sampler,
		authz:     authz,
		cfg:       cfg.withDefaults(),
		logger:    logger.With("component", "join"),
	}
}

// Propose scores a join between two resolvable tables and stores it as a
// proposed candidate. When req.Condition is nil the condition is inferred
// from shared key columns.
func (e *Engine) Propose(ctx context.Context, actor domain.Actor, req domain.ProposeRequest) (*domain.JoinCandidate, error) {
	if err := e.authz.Require(ctx, actor, security.Check{
		Permission: domain.PermCreateContract,
		Action:     domain.ActionProposeJoin,
		EntityType: domain.EntityJoinCandidate,
		EntityID:   domain.JoinPairKey(req.TableA, req.TableB),
	}); err != nil {
		return nil, err
	}

	req.TableA, req.TableB = strings.TrimSpace(req.TableA), strings.TrimSpace(req.TableB)
	if req.TableA == "" {
		return nil, domain.ErrFieldValidation("table_a", "is required")
	}
	if req.TableB == "" {
		return nil, domain.ErrFieldValidation("table_b", "is required")
	}
	if req.TableA == req.TableB {
		return nil, domain.ErrFieldValidation("table_b", "must differ from table_a")
	}
	relation := req.DeclaredRelation
	if relation == "" {
		relation = domain.RelationOneToMany
	}
	if _, err := domain.ParseDeclaredRelation(string(relation)); err != nil {
		return nil, err
	}

	tables, err := e.resolver.Resolve(ctx, actor, []string{req.TableA, req.TableB}, false)
	if err != nil {
		return nil, err
	}
	left, right := &tables[0], &tables[1]

	keysA, err := e.keyColumns(ctx, left)
	if err != nil {
		return nil, err
	}
	keysB, err := e.keyColumns(ctx, right)
	if err != nil {
		return nil, err
	}

	var cond domain.JoinCondition
	if req.Condition != nil {
		cond = *req.Condition
		if err := checkCondition(cond, left, right); err != nil {
			return nil, err
		}
	} else {
		var ok bool
		cond, ok = inferCondition(left, right, keysA.columns, keysB.columns)
		if !ok {
			return nil, domain.ErrFieldValidation("condition",
				"no shared key columns between %s and %s; supply a condition", req.TableA, req.TableB)
		}
	}

	existing, err := e.joins.ListCandidates(ctx, &req.TableA, &req.TableB, ptr(domain.CandidateProposed))
	if err != nil {
		return nil, err
	}
	for _, c := range existing {
		if sameJoin(c, req.TableA, cond) {
			return nil, domain.ErrConflict("candidate %s already proposes %s between %s and %s",
				c.ID, cond.String(), req.TableA, req.TableB)
		}
	}

	confidence := e.confidence(keysA, keysB)
	c := &domain.JoinCandidate{
		TableA:           req.TableA,
		TableB:           req.TableB,
		Condition:        cond,
		DeclaredRelation: relation,
		Confidence:       confidence,
		RiskLevel:        domain.RiskForConfidence(confidence),
		State:            domain.CandidateProposed,
		CreatedBy:        actor.Name,
	}
	created, err := e.joins.CreateCandidate(ctx, c)
	if err != nil {
		return nil, err
	}
	e.logger.Info("join proposed",
		"candidate_id", created.ID,
		"table_a", created.TableA,
		"table_b", created.TableB,
		"condition", created.Condition.String(),
		"confidence", created.Confidence,
		"risk_level", created.RiskLevel,
	)
	return created, nil
}

// Validate samples the candidate's join and persists a report. Check
// failures are part of the report, not errors. overrideFanOut records an
// Admin's decision to tolerate an explosive join on the report.
func (e *Engine) Validate(ctx context.Context, actor domain.Actor, candidateID string, overrideFanOut bool) (*domain.ValidationReport, error) {
	check := security.Check{
		Permission: domain.PermCreateContract,
		Action:     domain.ActionValidateJoin,
		EntityType: domain.EntityJoinCandidate,
		EntityID:   candidateID,
	}
	if err := e.authz.Require(ctx, actor, check); err != nil {
		return nil, err
	}
	if overrideFanOut {
		if err := e.authz.RequireAdmin(ctx, actor, check); err != nil {
			return nil, err
		}
	}

	c, err := e.joins.GetCandidate(ctx, candidateID)
	if err != nil {
		return nil, err
	}
	if c.State != domain.CandidateProposed {
		return nil, domain.ErrConflict("candidate %s is %s; only proposed candidates are validated", c.ID, c.State)
	}
	tables, err := e.resolver.Resolve(ctx, actor, []string{c.TableA, c.TableB}, false)
	if err != nil {
		return nil, err
	}

	sample, err := e.sampler.Sample(ctx, &tables[0], &tables[1], c.Condition, e.cfg.SampleSize)
	if err != nil {
		return nil, err
	}
	stats, checks := evaluate(*sample, c.DeclaredRelation)

	report, err := e.joins.SaveValidation(ctx, &domain.ValidationReport{
		CandidateID:    c.ID,
		Stats:          stats,
		Checks:         checks,
		FanOutOverride: overrideFanOut,
		ValidatedBy:    actor.Name,
		ValidatedAt:    time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	outcome := "passed"
	if hf := report.HardFailure(); hf != nil {
		outcome = hf.Name
		e.logger.Warn("join validation failed",
			"candidate_id", c.ID,
			"check", hf.Name,
			"detail", hf.Detail,
		)
	} else {
		e.logger.Info("join validated",
			"candidate_id", c.ID,
			"relation", stats.CardinalityRelation,
			"fan_out", stats.FanOutMultiplier,
			"null_percentage", stats.NullPercentage,
		)
	}
	metrics.JoinValidation(outcome)
	return report, nil
}

// Accept turns a validated candidate into the current accepted join of its
// table pair. The previous accepted join, if any, is superseded, never
// deleted.
func (e *Engine) Accept(ctx context.Context, actor domain.Actor, candidateID, rationale string, opts domain.AcceptOptions) (*domain.AcceptedJoin, error) {
	if err := e.authz.RequireAdmin(ctx, actor, security.Check{
		Action:     domain.ActionAcceptJoin,
		EntityType: domain.EntityJoinCandidate,
		EntityID:   candidateID,
	}); err != nil {
		return nil, err
	}
	rationale = strings.TrimSpace(rationale)
	if rationale == "" {
		return nil, domain.ErrFieldValidation("rationale", "is required")
	}

	c, err := e.joins.GetCandidate(ctx, candidateID)
	if err != nil {
		return nil, err
	}
	if c.State != domain.CandidateProposed {
		return nil, domain.ErrConflict("candidate %s is %s; only proposed candidates can be accepted", c.ID, c.State)
	}
	if _, err := e.resolver.Resolve(ctx, actor, []string{c.TableA, c.TableB}, false); err != nil {
		return nil, err
	}

	report, err := e.joins.LatestValidation(ctx, c.ID)
	if err != nil {
		var nf *domain.NotFoundError
		if errors.As(err, &nf) {
			return nil, &domain.JoinValidationError{
				CandidateID: c.ID,
				Check:       "not_validated",
				Detail:      "candidate has no validation report",
			}
		}
		return nil, err
	}
	effective := *report
	effective.FanOutOverride = opts.OverrideFanOut
	if hf := effective.HardFailure(); hf != nil {
		return nil, &domain.JoinValidationError{CandidateID: c.ID, Check: hf.Name, Detail: hf.Detail}
	}

	pairKey := domain.JoinPairKey(c.TableA, c.TableB)
	pointer, err := e.joins.GetPointer(ctx, pairKey)
	if err != nil {
		return nil, err
	}
	audit := auditutil.WithReason(
		auditutil.Entry(actor, domain.ActionAcceptJoin, domain.EntityJoinCandidate, c.ID),
		rationale,
	)
	audit.Before = auditutil.Snapshot(map[string]any{
		"state":              c.State,
		"current_join_id":    pointer.CurrentJoinID,
		"validation_id":      report.ID,
		"fan_out_override":   opts.OverrideFanOut,
		"fan_out_multiplier": report.Stats.FanOutMultiplier,
	})

	accepted, err := e.joins.Accept(ctx, domain.JoinAcceptance{
		PairKey:          pairKey,
		ExpectedRevision: pointer.Revision,
		Join: domain.AcceptedJoin{
			CandidateID: c.ID,
			TableA:      c.TableA,
			TableB:      c.TableB,
			Condition:   c.Condition,
			AcceptedBy:  actor.Name,
			Rationale:   rationale,
		},
	}, audit)
	if err != nil {
		var cm *domain.ConcurrentModificationError
		if errors.As(err, &cm) {
			metrics.CASConflict("join")
		}
		return nil, err
	}
	e.logger.Info("join accepted",
		"candidate_id", c.ID,
		"join_id", accepted.JoinID,
		"version", accepted.Version,
		"actor", actor.Name,
		"fan_out_override", opts.OverrideFanOut,
	)
	return accepted, nil
}

// Reject closes a proposed candidate without accepting it.
func (e *Engine) Reject(ctx context.Context, actor domain.Actor, candidateID, reason string) (*domain.JoinCandidate, error) {
	if err := e.authz.RequireAdmin(ctx, actor, security.Check{
		Action:     domain.ActionRejectJoin,
		EntityType: domain.EntityJoinCandidate,
		EntityID:   candidateID,
	}); err != nil {
		return nil, err
	}
	c, err := e.joins.GetCandidate(ctx, candidateID)
	if err != nil {
		return nil, err
	}
	if c.State != domain.CandidateProposed {
		return nil, domain.ErrConflict("candidate %s is %s; only proposed candidates can be rejected", c.ID, c.State)
	}
	audit := auditutil.WithReason(auditutil.WithSnapshots(
		auditutil.Entry(actor, domain.ActionRejectJoin, domain.EntityJoinCandidate, c.ID),
		map[string]any{"state": c.State},
		map[string]any{"state": domain.CandidateRejected},
	), strings.TrimSpace(reason))
	if err := e.joins.SetCandidateState(ctx, c.ID, domain.CandidateProposed, domain.CandidateRejected, audit); err != nil {
		return nil, err
	}
	e.logger.Info("join rejected", "candidate_id", c.ID, "actor", actor.Name)
	return e.joins.GetCandidate(ctx, c.ID)
}

// GetCandidate returns one candidate.
func (e *Engine) GetCandidate(ctx context.Context, actor domain.Actor, candidateID string) (*domain.JoinCandidate, error) {
	if err := e.requireRead(ctx, actor, candidateID); err != nil {
		return nil, err
	}
	return e.joins.GetCandidate(ctx, candidateID)
}

// ListCandidates lists candidates touching table1 and, when given, table2,
// newest first.
func (e *Engine) ListCandidates(ctx context.Context, actor domain.Actor, table1, table2 *string, state *domain.CandidateState) ([]domain.JoinCandidate, error) {
	if err := e.requireRead(ctx, actor, ""); err != nil {
		return nil, err
	}
	return e.joins.ListCandidates(ctx, table1, table2, state)
}

// ListAccepted returns the accepted join history of a table pair, including
// superseded versions.
func (e *Engine) ListAccepted(ctx context.Context, actor domain.Actor, table1, table2 string) ([]domain.AcceptedJoin, error) {
	if err := e.requireRead(ctx, actor, ""); err != nil {
		return nil, err
	}
	if err := requirePair(table1, table2); err != nil {
		return nil, err
	}
	return e.joins.ListAccepted(ctx, domain.JoinPairKey(table1, table2))
}

// UsableJoin returns the current accepted join between two tables. Proposed
// candidates are never returned.
func (e *Engine) UsableJoin(ctx context.Context, actor domain.Actor, table1, table2 string) (*domain.AcceptedJoin, error) {
	if err := e.requireRead(ctx, actor, ""); err != nil {
		return nil, err
	}
	if err := requirePair(table1, table2); err != nil {
		return nil, err
	}
	p, err := e.joins.GetPointer(ctx, domain.JoinPairKey(table1, table2))
	if err != nil {
		return nil, err
	}
	if p.CurrentJoinID == nil {
		return nil, domain.ErrNotFound("no accepted join between %s and %s", table1, table2)
	}
	return e.joins.GetAccepted(ctx, *p.CurrentJoinID)
}

func (e *Engine) requireRead(ctx context.Context, actor domain.Actor, entityID string) error {
	return e.authz.Require(ctx, actor, security.Check{
		Permission: domain.PermQuery,
		Action:     domain.ActionResolve,
		EntityType: domain.EntityJoinCandidate,
		EntityID:   entityID,
	})
}

func requirePair(table1, table2 string) error {
	if table1 == "" {
		return domain.ErrFieldValidation("table1", "is required")
	}
	if table2 == "" {
		return domain.ErrFieldValidation("table2", "is required")
	}
	return nil
}

// sameJoin reports whether c joins the same pair on the same columns,
// regardless of which side was named first.
func sameJoin(c domain.JoinCandidate, tableA string, cond domain.JoinCondition) bool {
	if c.TableA == tableA {
		return c.Condition.String() == cond.String()
	}
	swapped := domain.JoinCondition{LeftColumns: cond.RightColumns, RightColumns: cond.LeftColumns}
	return c.Condition.String() == swapped.String()
}

func ptr[T any](v T) *T { return &v }
