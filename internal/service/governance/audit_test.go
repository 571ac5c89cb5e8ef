package governance

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lakegov/internal/domain"
	"lakegov/internal/service/security"
	"lakegov/internal/testutil"
)

var errTest = errors.New("test error")

func newService(repo *testutil.MockAuditRepo) *AuditService {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewAuditService(repo, security.NewRoleAuthorizer(repo, logger), logger)
}

var admin = domain.Actor{Name: "ada", Role: domain.RoleAdmin}

func TestAuditService_List(t *testing.T) {
	t.Run("happy_path", func(t *testing.T) {
		expected := []domain.AuditEntry{
			{ID: "ae-1", Actor: "alice", Action: domain.ActionPromote, Status: domain.AuditAllowed, CreatedAt: time.Now()},
			{ID: "ae-2", Actor: "bob", Action: domain.ActionDeprecate, Status: domain.AuditAllowed, CreatedAt: time.Now()},
		}
		repo := &testutil.MockAuditRepo{
			ListFn: func(_ context.Context, _ domain.AuditFilter) ([]domain.AuditEntry, int64, error) {
				return expected, 2, nil
			},
		}

		entries, total, err := newService(repo).List(context.Background(), admin, domain.AuditFilter{})
		require.NoError(t, err)
		assert.Len(t, entries, 2)
		assert.Equal(t, int64(2), total)
		assert.Equal(t, "ae-1", entries[0].ID)
	})

	t.Run("with_filters", func(t *testing.T) {
		actor := "alice"
		action := domain.ActionPromote
		repo := &testutil.MockAuditRepo{
			ListFn: func(_ context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, int64, error) {
				assert.Equal(t, &actor, filter.Actor)
				assert.Equal(t, &action, filter.Action)
				return []domain.AuditEntry{{ID: "ae-1", Actor: "alice", Action: action}}, 1, nil
			},
		}

		entries, total, err := newService(repo).List(context.Background(), admin, domain.AuditFilter{
			Actor:  &actor,
			Action: &action,
		})
		require.NoError(t, err)
		assert.Len(t, entries, 1)
		assert.Equal(t, int64(1), total)
	})

	t.Run("inverted_time_range", func(t *testing.T) {
		since := time.Now()
		until := since.Add(-time.Hour)
		_, _, err := newService(&testutil.MockAuditRepo{}).List(context.Background(), admin,
			domain.AuditFilter{Since: &since, Until: &until})
		var ve *domain.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "since", ve.Field)
	})

	t.Run("unknown_status", func(t *testing.T) {
		status := "MAYBE"
		_, _, err := newService(&testutil.MockAuditRepo{}).List(context.Background(), admin,
			domain.AuditFilter{Status: &status})
		var ve *domain.ValidationError
		require.ErrorAs(t, err, &ve)
	})

	t.Run("repo_error", func(t *testing.T) {
		repo := &testutil.MockAuditRepo{
			ListFn: func(_ context.Context, _ domain.AuditFilter) ([]domain.AuditEntry, int64, error) {
				return nil, 0, errTest
			},
		}

		_, _, err := newService(repo).List(context.Background(), admin, domain.AuditFilter{})
		require.Error(t, err)
		assert.ErrorIs(t, err, errTest)
	})
}

func TestAuditService_List_RequiresAdmin(t *testing.T) {
	repo := &testutil.MockAuditRepo{}

	for _, role := range []domain.Role{domain.RoleViewer, domain.RoleAnalyst, domain.RoleEngineer} {
		t.Run(string(role), func(t *testing.T) {
			_, _, err := newService(repo).List(context.Background(), domain.Actor{Name: "x", Role: role}, domain.AuditFilter{})
			var ue *domain.UnauthorizedError
			require.ErrorAs(t, err, &ue)
		})
	}
	require.Len(t, repo.Entries, 3)
	for _, e := range repo.Entries {
		assert.Equal(t, domain.AuditDenied, e.Status)
		assert.Equal(t, domain.ActionListAudit, e.Action)
	}
}
