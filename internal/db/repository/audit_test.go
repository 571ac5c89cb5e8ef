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

func TestAuditRepo_InsertAndFilter(t *testing.T) {
	repo := NewAuditRepo(internaldb.OpenTestStore(t).Write)
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, &domain.AuditEntry{
		Actor: "eve", Role: domain.RoleEngineer, Action: domain.ActionPromote,
		EntityType: domain.EntityTable, EntityID: "t1", Status: domain.AuditDenied,
	}))
	require.NoError(t, repo.Insert(ctx, &domain.AuditEntry{
		Actor: "ada", Role: domain.RoleAdmin, Action: domain.ActionPromote,
		EntityType: domain.EntityTable, EntityID: "t1",
	}))

	all, total, err := repo.List(ctx, domain.AuditFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, all, 2)
	assert.Equal(t, "ada", all[0].Actor)
	assert.Equal(t, domain.AuditAllowed, all[0].Status)
	assert.NotEmpty(t, all[0].ID)

	denied := domain.AuditDenied
	entries, total, err := repo.List(ctx, domain.AuditFilter{Status: &denied})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, domain.RoleEngineer, entries[0].Role)

	future := time.Now().Add(time.Hour)
	_, total, err = repo.List(ctx, domain.AuditFilter{Since: &future})
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)

	_, total, err = repo.List(ctx, domain.AuditFilter{Page: domain.PageRequest{MaxResults: 1}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}
