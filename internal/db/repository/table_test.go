package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internaldb "lakegov/internal/db"
	"lakegov/internal/domain"
)

func setupTableRepo(t *testing.T) (*TableRepo, *AuditRepo) {
	t.Helper()
	store := internaldb.OpenTestStore(t)
	return NewTableRepo(store.Write), NewAuditRepo(store.Write)
}

func shadowTable(name string) *domain.Table {
	return &domain.Table{
		LogicalName: name,
		State:       domain.TableShadow,
		Owner:       "eve",
		Schema: domain.Schema{Columns: []domain.Column{
			{Name: "order_id", Type: "BIGINT"},
			{Name: "amount", Type: "DECIMAL(18,2)", Nullable: true},
		}},
	}
}

func auditFor(action string) *domain.AuditEntry {
	return &domain.AuditEntry{Actor: "ada", Role: domain.RoleAdmin, Action: action, EntityType: domain.EntityTable}
}

func TestTableRepo_CreateVersion(t *testing.T) {
	repo, audit := setupTableRepo(t)
	ctx := context.Background()

	v1, err := repo.CreateVersion(ctx, shadowTable("orders"), auditFor(domain.ActionRegisterShadow))
	require.NoError(t, err)
	assert.Equal(t, 1, v1.Version)
	assert.Nil(t, v1.Supersedes)
	assert.Equal(t, domain.TableShadow, v1.State)
	assert.Len(t, v1.Schema.Columns, 2)

	v2, err := repo.CreateVersion(ctx, shadowTable("orders"), auditFor(domain.ActionRegisterShadow))
	require.NoError(t, err)
	assert.Equal(t, 2, v2.Version)
	require.NotNil(t, v2.Supersedes)
	assert.Equal(t, 1, *v2.Supersedes)

	versions, err := repo.ListVersions(ctx, "orders")
	require.NoError(t, err)
	assert.Len(t, versions, 2)

	p, err := repo.GetPointer(ctx, "orders")
	require.NoError(t, err)
	assert.Nil(t, p.CurrentTableID)
	assert.Equal(t, int64(0), p.Revision)

	entries, total, err := audit.List(ctx, domain.AuditFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, v2.ID, entries[0].EntityID)
	require.NotNil(t, entries[0].After)
	assert.Contains(t, *entries[0].After, `"version":2`)
}

func TestTableRepo_GetByID_NotFound(t *testing.T) {
	repo, _ := setupTableRepo(t)

	_, err := repo.GetByID(context.Background(), "missing")
	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestTableRepo_SwapPromoteAndRestore(t *testing.T) {
	repo, audit := setupTableRepo(t)
	ctx := context.Background()

	v1, err := repo.CreateVersion(ctx, shadowTable("orders"), nil)
	require.NoError(t, err)
	v2, err := repo.CreateVersion(ctx, shadowTable("orders"), nil)
	require.NoError(t, err)

	promoted, err := repo.Swap(ctx, domain.TableSwap{
		LogicalName: "orders", ExpectedRevision: 0,
		TargetID: v1.ID, TargetFrom: domain.TableShadow, TargetState: domain.TableActive,
		Actor: "ada", At: time.Now(),
	}, auditFor(domain.ActionPromote))
	require.NoError(t, err)
	assert.Equal(t, domain.TableActive, promoted.State)

	_, err = repo.Swap(ctx, domain.TableSwap{
		LogicalName: "orders", ExpectedRevision: 1,
		TargetID: v2.ID, TargetFrom: domain.TableShadow, TargetState: domain.TableActive,
		DisplacedID: &v1.ID, Actor: "ada", At: time.Now(),
	}, auditFor(domain.ActionPromote))
	require.NoError(t, err)

	old, err := repo.GetByID(ctx, v1.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TableDeprecated, old.State)
	assert.NotNil(t, old.DeprecatedAt)

	// Restore v1, displacing v2.
	restored, err := repo.Swap(ctx, domain.TableSwap{
		LogicalName: "orders", ExpectedRevision: 2,
		TargetID: v1.ID, TargetFrom: domain.TableDeprecated, TargetState: domain.TableActive,
		DisplacedID: &v2.ID, Actor: "ada", At: time.Now(),
	}, auditFor(domain.ActionRestore))
	require.NoError(t, err)
	assert.Equal(t, domain.TableActive, restored.State)
	assert.Nil(t, restored.DeprecatedAt)

	p, err := repo.GetPointer(ctx, "orders")
	require.NoError(t, err)
	require.NotNil(t, p.CurrentTableID)
	assert.Equal(t, v1.ID, *p.CurrentTableID)
	assert.Equal(t, int64(3), p.Revision)

	history, err := repo.ListTransitions(ctx, v1.ID)
	require.NoError(t, err)
	assert.Equal(t, []domain.Transition{
		{From: domain.TableShadow, To: domain.TableActive},
		{From: domain.TableActive, To: domain.TableDeprecated},
		{From: domain.TableDeprecated, To: domain.TableActive},
	}, history)

	_, total, err := audit.List(ctx, domain.AuditFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
}

func TestTableRepo_SwapStaleRevision(t *testing.T) {
	repo, audit := setupTableRepo(t)
	ctx := context.Background()

	v1, err := repo.CreateVersion(ctx, shadowTable("orders"), nil)
	require.NoError(t, err)

	_, err = repo.Swap(ctx, domain.TableSwap{
		LogicalName: "orders", ExpectedRevision: 5,
		TargetID: v1.ID, TargetFrom: domain.TableShadow, TargetState: domain.TableActive,
	}, auditFor(domain.ActionPromote))
	var cme *domain.ConcurrentModificationError
	require.ErrorAs(t, err, &cme)
	assert.Equal(t, int64(5), cme.ExpectedRevision)
	assert.Equal(t, int64(0), cme.ActualRevision)

	// Nothing was written, including the audit entry.
	got, err := repo.GetByID(ctx, v1.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TableShadow, got.State)
	_, total, err := audit.List(ctx, domain.AuditFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
}

func TestTableRepo_Deprecate(t *testing.T) {
	repo, _ := setupTableRepo(t)
	ctx := context.Background()

	v1, err := repo.CreateVersion(ctx, shadowTable("orders"), nil)
	require.NoError(t, err)
	_, err = repo.Swap(ctx, domain.TableSwap{
		LogicalName: "orders", TargetID: v1.ID,
		TargetFrom: domain.TableShadow, TargetState: domain.TableActive,
	}, nil)
	require.NoError(t, err)

	dep, err := repo.Deprecate(ctx, "orders", 1, v1.ID, time.Now(), auditFor(domain.ActionDeprecate))
	require.NoError(t, err)
	assert.Equal(t, domain.TableDeprecated, dep.State)

	p, err := repo.GetPointer(ctx, "orders")
	require.NoError(t, err)
	assert.Nil(t, p.CurrentTableID)
	assert.Equal(t, int64(2), p.Revision)
}

func TestTableRepo_SchemaIsImmutable(t *testing.T) {
	store := internaldb.OpenTestStore(t)
	repo := NewTableRepo(store.Write)
	ctx := context.Background()

	v1, err := repo.CreateVersion(ctx, shadowTable("orders"), nil)
	require.NoError(t, err)

	_, err = store.Write.ExecContext(ctx, `UPDATE table_versions SET schema_json = '{}' WHERE id = ?`, v1.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "immutable")
}
