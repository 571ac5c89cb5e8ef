package registry

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internaldb "lakegov/internal/db"
	"lakegov/internal/db/repository"
	"lakegov/internal/domain"
	"lakegov/internal/service/security"
	"lakegov/internal/testutil"
)

var (
	admin    = domain.Actor{Name: "ada", Role: domain.RoleAdmin}
	engineer = domain.Actor{Name: "eve", Role: domain.RoleEngineer}
	analyst  = domain.Actor{Name: "bob", Role: domain.RoleAnalyst}
	viewer   = domain.Actor{Name: "vic", Role: domain.RoleViewer}
)

type gateFunc func(ctx context.Context, t *domain.Table, ack bool) error

func (f gateFunc) CheckPromotion(ctx context.Context, t *domain.Table, ack bool) error {
	return f(ctx, t, ack)
}

type fixture struct {
	tables    *repository.TableRepo
	contracts *repository.ContractRepo
	audit     *repository.AuditRepo
	reg       *TableRegistry
	resolver  *Resolver
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func setup(t *testing.T, gate DriftGate) *fixture {
	t.Helper()
	store := internaldb.OpenTestStore(t)
	f := &fixture{
		tables:    repository.NewTableRepo(store.Write),
		contracts: repository.NewContractRepo(store.Write),
		audit:     repository.NewAuditRepo(store.Write),
	}
	authz := security.NewRoleAuthorizer(f.audit, discard())
	f.reg = NewTableRegistry(f.tables, f.contracts, gate, authz, 0, discard())
	f.resolver = NewResolver(f.tables, authz, discard())
	return f
}

func ordersSchema() domain.Schema {
	return domain.Schema{Columns: []domain.Column{
		{Name: "order_id", Type: "BIGINT"},
		{Name: "amount", Type: "DECIMAL(18,2)", Nullable: true},
	}}
}

func (f *fixture) shadow(t *testing.T, name string) *domain.Table {
	t.Helper()
	tbl, err := f.reg.RegisterShadow(context.Background(), engineer, domain.RegisterShadowRequest{
		LogicalName: name,
		Schema:      ordersSchema(),
	})
	require.NoError(t, err)
	return tbl
}

func (f *fixture) active(t *testing.T, name string) *domain.Table {
	t.Helper()
	tbl, err := f.reg.Promote(context.Background(), admin, f.shadow(t, name).ID, domain.PromoteOptions{})
	require.NoError(t, err)
	return tbl
}

func (f *fixture) state(t *testing.T, id string) domain.TableState {
	t.Helper()
	tbl, err := f.tables.GetByID(context.Background(), id)
	require.NoError(t, err)
	return tbl.State
}

// entries lists audit entries for action with the given status. Mutations
// write ALLOWED entries; authorization failures write DENIED ones.
func (f *fixture) entries(t *testing.T, action, status string) []domain.AuditEntry {
	t.Helper()
	entries, _, err := f.audit.List(context.Background(), domain.AuditFilter{Action: &action, Status: &status})
	require.NoError(t, err)
	return entries
}

func TestRegisterShadow(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()

	t.Run("engineer", func(t *testing.T) {
		tbl := f.shadow(t, "orders")
		assert.Equal(t, domain.TableShadow, tbl.State)
		assert.Equal(t, 1, tbl.Version)
		assert.Equal(t, "eve", tbl.Owner)

		entries := f.entries(t, domain.ActionRegisterShadow, domain.AuditAllowed)
		require.Len(t, entries, 1)
		assert.Equal(t, tbl.ID, entries[0].EntityID)
	})

	t.Run("next_version_supersedes_previous", func(t *testing.T) {
		tbl := f.shadow(t, "orders")
		assert.Equal(t, 2, tbl.Version)
		require.NotNil(t, tbl.Supersedes)
		assert.Equal(t, 1, *tbl.Supersedes)
	})

	t.Run("viewer_denied", func(t *testing.T) {
		_, err := f.reg.RegisterShadow(ctx, viewer, domain.RegisterShadowRequest{LogicalName: "x", Schema: ordersSchema()})
		var ue *domain.UnauthorizedError
		require.ErrorAs(t, err, &ue)
		assert.Equal(t, domain.PermIngest, ue.Permission)
	})

	t.Run("missing_name", func(t *testing.T) {
		_, err := f.reg.RegisterShadow(ctx, engineer, domain.RegisterShadowRequest{Schema: ordersSchema()})
		var ve *domain.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "logical_name", ve.Field)
	})
}

func TestRegisterExternal(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()

	tbl, err := f.reg.RegisterExternal(ctx, admin, domain.RegisterExternalRequest{
		LogicalName: "fx_rates",
		Schema:      ordersSchema(),
		Location:    "s3://ref/fx_rates",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TableReadOnly, tbl.State)

	_, err = f.reg.RegisterExternal(ctx, engineer, domain.RegisterExternalRequest{
		LogicalName: "fx_rates", Schema: ordersSchema(), Location: "s3://ref/fx_rates",
	})
	var ue *domain.UnauthorizedError
	require.ErrorAs(t, err, &ue)

	_, err = f.reg.RegisterExternal(ctx, admin, domain.RegisterExternalRequest{LogicalName: "fx", Schema: ordersSchema()})
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "location", ve.Field)
}

func TestPromote(t *testing.T) {
	ctx := context.Background()

	t.Run("first_promotion", func(t *testing.T) {
		f := setup(t, nil)
		tbl := f.active(t, "orders")
		assert.Equal(t, domain.TableActive, tbl.State)

		p, err := f.tables.GetPointer(ctx, "orders")
		require.NoError(t, err)
		require.NotNil(t, p.CurrentTableID)
		assert.Equal(t, tbl.ID, *p.CurrentTableID)
		assert.Equal(t, int64(1), p.Revision)

		entries := f.entries(t, domain.ActionPromote, domain.AuditAllowed)
		require.Len(t, entries, 1)
		assert.Equal(t, domain.AuditAllowed, entries[0].Status)
		require.NotNil(t, entries[0].Before)
		assert.Contains(t, *entries[0].Before, `"state":"SHADOW"`)
		assert.Contains(t, *entries[0].After, `"state":"ACTIVE"`)
	})

	t.Run("displaces_active_version", func(t *testing.T) {
		f := setup(t, nil)
		v1 := f.active(t, "orders")
		v2 := f.active(t, "orders")

		assert.Equal(t, domain.TableDeprecated, f.state(t, v1.ID))
		assert.Equal(t, domain.TableActive, f.state(t, v2.ID))

		old, err := f.tables.GetByID(ctx, v1.ID)
		require.NoError(t, err)
		assert.NotNil(t, old.DeprecatedAt)
	})

	t.Run("analyst_denied", func(t *testing.T) {
		f := setup(t, nil)
		tbl := f.shadow(t, "orders")

		_, err := f.reg.Promote(ctx, analyst, tbl.ID, domain.PromoteOptions{})
		var ue *domain.UnauthorizedError
		require.ErrorAs(t, err, &ue)
		assert.Equal(t, tbl.ID, ue.EntityID)
		assert.Equal(t, domain.TableShadow, f.state(t, tbl.ID))

		entries := f.entries(t, domain.ActionPromote, domain.AuditDenied)
		require.Len(t, entries, 1)
		assert.Empty(t, f.entries(t, domain.ActionPromote, domain.AuditAllowed))
		assert.Equal(t, "bob", entries[0].Actor)
	})

	t.Run("not_shadow", func(t *testing.T) {
		f := setup(t, nil)
		tbl := f.active(t, "orders")

		_, err := f.reg.Promote(ctx, admin, tbl.ID, domain.PromoteOptions{})
		var it *domain.InvalidTransitionError
		require.ErrorAs(t, err, &it)
		assert.Equal(t, domain.TableActive, it.From)
	})

	t.Run("dry_run_writes_nothing", func(t *testing.T) {
		f := setup(t, nil)
		tbl := f.shadow(t, "orders")

		preview, err := f.reg.Promote(ctx, admin, tbl.ID, domain.PromoteOptions{DryRun: true})
		require.NoError(t, err)
		assert.Equal(t, domain.TableActive, preview.State)
		assert.Equal(t, domain.TableShadow, f.state(t, tbl.ID))
		assert.Empty(t, f.entries(t, domain.ActionPromote, domain.AuditAllowed))

		p, err := f.tables.GetPointer(ctx, "orders")
		require.NoError(t, err)
		assert.Equal(t, int64(0), p.Revision)
	})

	t.Run("stale_expected_revision", func(t *testing.T) {
		f := setup(t, nil)
		tbl := f.shadow(t, "orders")
		stale := int64(7)

		_, err := f.reg.Promote(ctx, admin, tbl.ID, domain.PromoteOptions{ExpectedRevision: &stale})
		var cm *domain.ConcurrentModificationError
		require.ErrorAs(t, err, &cm)
		assert.Equal(t, int64(7), cm.ExpectedRevision)
		assert.Equal(t, int64(0), cm.ActualRevision)
		assert.Equal(t, 1, cm.Attempts)
		assert.Equal(t, domain.TableShadow, f.state(t, tbl.ID))
	})

	t.Run("drift_gate_blocks", func(t *testing.T) {
		var acked bool
		f := setup(t, gateFunc(func(_ context.Context, tbl *domain.Table, ack bool) error {
			acked = ack
			return &domain.DriftBreakingChangeError{TableID: tbl.ID, ReportID: "r1", Severity: domain.DriftBreaking}
		}))
		tbl := f.shadow(t, "orders")

		_, err := f.reg.Promote(ctx, admin, tbl.ID, domain.PromoteOptions{AcknowledgeWarnings: true})
		var blocked *domain.DriftBreakingChangeError
		require.ErrorAs(t, err, &blocked)
		assert.True(t, acked)
		assert.Equal(t, domain.TableShadow, f.state(t, tbl.ID))
		assert.Empty(t, f.entries(t, domain.ActionPromote, domain.AuditAllowed))
	})

	t.Run("activates_contract", func(t *testing.T) {
		f := setup(t, nil)
		c, err := f.contracts.Create(ctx, &domain.Contract{
			ProducerEndpoint: "https://orders.example.com",
			TargetTableName:  "orders",
			Schema:           ordersSchema(),
			CreatedBy:        "eve",
		}, nil)
		require.NoError(t, err)
		require.Equal(t, domain.ContractPending, c.State)

		tbl, err := f.reg.RegisterShadow(ctx, engineer, domain.RegisterShadowRequest{
			LogicalName: "orders", Schema: ordersSchema(), ContractID: &c.ID,
		})
		require.NoError(t, err)
		_, err = f.reg.Promote(ctx, admin, tbl.ID, domain.PromoteOptions{})
		require.NoError(t, err)

		c, err = f.contracts.GetByID(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ContractActive, c.State)
	})
}

func TestPromote_RetriesLostCAS(t *testing.T) {
	shadow := &domain.Table{ID: "t2", LogicalName: "orders", State: domain.TableShadow}

	newRegistry := func(swaps *int) *TableRegistry {
		tables := &testutil.MockTableRepo{
			GetByIDFn: func(context.Context, string) (*domain.Table, error) {
				out := *shadow
				return &out, nil
			},
			GetPointerFn: func(context.Context, string) (*domain.TablePointer, error) {
				return &domain.TablePointer{LogicalName: "orders", Revision: 5}, nil
			},
			SwapFn: func(_ context.Context, swap domain.TableSwap, _ *domain.AuditEntry) (*domain.Table, error) {
				*swaps++
				return nil, &domain.ConcurrentModificationError{
					EntityID: swap.LogicalName, ExpectedRevision: swap.ExpectedRevision, ActualRevision: 6,
				}
			},
		}
		authz := security.NewRoleAuthorizer(&testutil.MockAuditRepo{}, discard())
		return NewTableRegistry(tables, nil, nil, authz, 3, discard())
	}

	t.Run("bounded_retry", func(t *testing.T) {
		var swaps int
		_, err := newRegistry(&swaps).Promote(context.Background(), admin, "t2", domain.PromoteOptions{})
		var cm *domain.ConcurrentModificationError
		require.ErrorAs(t, err, &cm)
		assert.Equal(t, 3, swaps)
		assert.Equal(t, 3, cm.Attempts)
		assert.Contains(t, cm.Error(), "after 3 attempts")
	})

	t.Run("expected_revision_fails_fast", func(t *testing.T) {
		var swaps int
		rev := int64(5)
		_, err := newRegistry(&swaps).Promote(context.Background(), admin, "t2", domain.PromoteOptions{ExpectedRevision: &rev})
		var cm *domain.ConcurrentModificationError
		require.ErrorAs(t, err, &cm)
		assert.Equal(t, 1, swaps)
		assert.Equal(t, 1, cm.Attempts)
	})
}

func TestDeprecateAndRestore(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()
	v1 := f.active(t, "orders")

	t.Run("engineer_cannot_deprecate", func(t *testing.T) {
		_, err := f.reg.Deprecate(ctx, engineer, v1.ID, "retire")
		var ue *domain.UnauthorizedError
		require.ErrorAs(t, err, &ue)
		assert.Equal(t, domain.TableActive, f.state(t, v1.ID))
	})

	t.Run("deprecate_clears_pointer", func(t *testing.T) {
		out, err := f.reg.Deprecate(ctx, admin, v1.ID, "superseded by v2 feed")
		require.NoError(t, err)
		assert.Equal(t, domain.TableDeprecated, out.State)

		p, err := f.tables.GetPointer(ctx, "orders")
		require.NoError(t, err)
		assert.Nil(t, p.CurrentTableID)

		entries := f.entries(t, domain.ActionDeprecate, domain.AuditAllowed)
		require.Len(t, entries, 1)
		require.NotNil(t, entries[0].Reason)
		assert.Equal(t, "superseded by v2 feed", *entries[0].Reason)
		assert.Len(t, f.entries(t, domain.ActionDeprecate, domain.AuditDenied), 1)
	})

	t.Run("restore", func(t *testing.T) {
		out, err := f.reg.Restore(ctx, admin, v1.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TableActive, out.State)
		assert.Nil(t, out.DeprecatedAt)
	})

	t.Run("restore_displaces_current", func(t *testing.T) {
		v2 := f.active(t, "orders")
		require.Equal(t, domain.TableDeprecated, f.state(t, v1.ID))

		_, err := f.reg.Restore(ctx, admin, v1.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TableActive, f.state(t, v1.ID))
		assert.Equal(t, domain.TableDeprecated, f.state(t, v2.ID))

		transitions, err := f.reg.Transitions(ctx, admin, v1.ID)
		require.NoError(t, err)
		assert.Equal(t, []domain.Transition{
			{From: domain.TableShadow, To: domain.TableActive},
			{From: domain.TableActive, To: domain.TableDeprecated},
			{From: domain.TableDeprecated, To: domain.TableActive},
			{From: domain.TableActive, To: domain.TableDeprecated},
			{From: domain.TableDeprecated, To: domain.TableActive},
		}, transitions)
	})

	t.Run("restore_active_is_invalid", func(t *testing.T) {
		_, err := f.reg.Restore(ctx, admin, v1.ID)
		var it *domain.InvalidTransitionError
		require.ErrorAs(t, err, &it)
	})
}

// Every state pair is attempted through Transition; only the three graph
// edges succeed, and only for an Admin.
func TestTransition_StateGraphClosure(t *testing.T) {
	states := []domain.TableState{domain.TableShadow, domain.TableActive, domain.TableDeprecated, domain.TableReadOnly}
	legal := map[domain.Transition]bool{
		{From: domain.TableShadow, To: domain.TableActive}:     true,
		{From: domain.TableActive, To: domain.TableDeprecated}: true,
		{From: domain.TableDeprecated, To: domain.TableActive}: true,
	}

	build := func(t *testing.T, f *fixture, state domain.TableState) *domain.Table {
		ctx := context.Background()
		switch state {
		case domain.TableShadow:
			return f.shadow(t, "orders")
		case domain.TableActive:
			return f.active(t, "orders")
		case domain.TableDeprecated:
			tbl := f.active(t, "orders")
			out, err := f.reg.Deprecate(ctx, admin, tbl.ID, "")
			require.NoError(t, err)
			return out
		default:
			out, err := f.reg.RegisterExternal(ctx, admin, domain.RegisterExternalRequest{
				LogicalName: "orders", Schema: ordersSchema(), Location: "file:///data/orders",
			})
			require.NoError(t, err)
			return out
		}
	}

	for _, from := range states {
		for _, to := range states {
			edge := domain.Transition{From: from, To: to}
			t.Run(string(from)+"_to_"+string(to), func(t *testing.T) {
				ctx := context.Background()

				f := setup(t, nil)
				tbl := build(t, f, from)
				_, err := f.reg.Transition(ctx, engineer, tbl.ID, domain.TransitionRequest{To: to})
				require.Error(t, err)
				assert.Equal(t, from, f.state(t, tbl.ID))
				if legal[edge] {
					var ue *domain.UnauthorizedError
					assert.ErrorAs(t, err, &ue)
				} else {
					var it *domain.InvalidTransitionError
					assert.ErrorAs(t, err, &it)
				}

				out, err := f.reg.Transition(ctx, admin, tbl.ID, domain.TransitionRequest{To: to})
				if legal[edge] {
					require.NoError(t, err)
					assert.Equal(t, to, out.State)
					return
				}
				var it *domain.InvalidTransitionError
				require.ErrorAs(t, err, &it)
				assert.Equal(t, from, f.state(t, tbl.ID))
			})
		}
	}
}

func TestTransition_Request(t *testing.T) {
	ctx := context.Background()
	shadowState := domain.TableShadow
	activeState := domain.TableActive

	t.Run("claimed_from_must_match", func(t *testing.T) {
		f := setup(t, nil)
		tbl := f.shadow(t, "orders")
		_, err := f.reg.Transition(ctx, admin, tbl.ID, domain.TransitionRequest{From: &activeState, To: domain.TableDeprecated})
		var it *domain.InvalidTransitionError
		require.ErrorAs(t, err, &it)
		assert.Equal(t, domain.TableShadow, it.From)
		assert.Equal(t, domain.TableActive, it.ClaimedFrom)
		assert.Contains(t, err.Error(), "but the table is SHADOW")
		assert.Equal(t, domain.TableShadow, f.state(t, tbl.ID))
	})

	t.Run("promote_options_pass_through", func(t *testing.T) {
		f := setup(t, nil)
		tbl := f.shadow(t, "orders")
		out, err := f.reg.Transition(ctx, admin, tbl.ID, domain.TransitionRequest{
			From:    &shadowState,
			To:      domain.TableActive,
			Promote: domain.PromoteOptions{DryRun: true},
		})
		require.NoError(t, err)
		assert.Equal(t, domain.TableActive, out.State)
		assert.Equal(t, domain.TableShadow, f.state(t, tbl.ID))
	})

	t.Run("dry_run_only_for_promotion", func(t *testing.T) {
		f := setup(t, nil)
		tbl := f.active(t, "orders")
		_, err := f.reg.Transition(ctx, admin, tbl.ID, domain.TransitionRequest{
			To:      domain.TableDeprecated,
			Promote: domain.PromoteOptions{DryRun: true},
		})
		var ve *domain.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, domain.TableActive, f.state(t, tbl.ID))
	})

	t.Run("deprecate_records_reason", func(t *testing.T) {
		f := setup(t, nil)
		tbl := f.active(t, "orders")
		out, err := f.reg.Transition(ctx, admin, tbl.ID, domain.TransitionRequest{
			From:   &activeState,
			To:     domain.TableDeprecated,
			Reason: "replaced by v2",
		})
		require.NoError(t, err)
		assert.Equal(t, domain.TableDeprecated, out.State)

		entries := f.entries(t, domain.ActionDeprecate, domain.AuditAllowed)
		require.Len(t, entries, 1)
		require.NotNil(t, entries[0].Reason)
		assert.Equal(t, "replaced by v2", *entries[0].Reason)
	})
}

func TestGetAndHistory(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()
	v1 := f.active(t, "orders")
	v2 := f.shadow(t, "orders")

	t.Run("latest_visible_to_analyst", func(t *testing.T) {
		got, err := f.reg.Get(ctx, analyst, "orders", nil)
		require.NoError(t, err)
		assert.Equal(t, v2.ID, got.ID)
	})

	t.Run("shadow_hidden_from_viewer", func(t *testing.T) {
		got, err := f.reg.Get(ctx, viewer, "orders", nil)
		require.NoError(t, err)
		assert.Equal(t, v1.ID, got.ID)

		shadow := domain.TableShadow
		_, err = f.reg.Get(ctx, viewer, "orders", &shadow)
		var ue *domain.UnauthorizedError
		require.ErrorAs(t, err, &ue)

		_, err = f.reg.GetByID(ctx, viewer, v2.ID)
		require.ErrorAs(t, err, &ue)
	})

	t.Run("state_filter", func(t *testing.T) {
		deprecated := domain.TableDeprecated
		_, err := f.reg.Get(ctx, admin, "orders", &deprecated)
		var nf *domain.NotFoundError
		require.ErrorAs(t, err, &nf)

		active := domain.TableActive
		got, err := f.reg.Get(ctx, admin, "orders", &active)
		require.NoError(t, err)
		assert.Equal(t, v1.ID, got.ID)
	})

	t.Run("history", func(t *testing.T) {
		all, err := f.reg.History(ctx, engineer, "orders")
		require.NoError(t, err)
		assert.Len(t, all, 2)

		visible, err := f.reg.History(ctx, viewer, "orders")
		require.NoError(t, err)
		require.Len(t, visible, 1)
		assert.Equal(t, v1.ID, visible[0].ID)
	})

	t.Run("unknown_name", func(t *testing.T) {
		_, err := f.reg.Get(ctx, admin, "missing", nil)
		var nf *domain.NotFoundError
		require.ErrorAs(t, err, &nf)
	})
}
