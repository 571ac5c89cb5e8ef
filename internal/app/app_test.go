package app

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lakegov/internal/config"
	internaldb "lakegov/internal/db"
	"lakegov/internal/domain"
)

func newTestApp(t *testing.T, schedule string) *App {
	t.Helper()
	duckDB, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = duckDB.Close() })

	cfg := &config.Config{
		Auth: config.AuthConfig{JWTSecret: "app-test-secret", RoleClaim: "role"},
		Governance: config.GovernanceConfig{
			PromoteMaxRetries:      3,
			RenameSimilarity:       0.8,
			JoinKeyWeight:          0.7,
			JoinProducerWeight:     0.3,
			JoinSampleSize:         100,
			JoinRevalidateSchedule: schedule,
		},
	}
	a, err := New(context.Background(), Deps{
		Cfg:    cfg,
		Store:  internaldb.OpenTestStore(t),
		DuckDB: duckDB,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return a
}

func TestNew_WiresServices(t *testing.T) {
	a := newTestApp(t, "")
	require.NoError(t, a.Start())
	t.Cleanup(func() { _ = a.Close() })

	svcs := a.Services
	assert.NotNil(t, svcs.Registry)
	assert.NotNil(t, svcs.Resolver)
	assert.NotNil(t, svcs.Contracts)
	assert.NotNil(t, svcs.Drift)
	assert.NotNil(t, svcs.Ingestion)
	assert.NotNil(t, svcs.Joins)
	assert.NotNil(t, svcs.Audit)
	assert.NotNil(t, a.Authenticator)

	// The registry and resolver share one metastore.
	ctx := context.Background()
	eng := domain.Actor{Name: "eve", Role: domain.RoleEngineer}
	adm := domain.Actor{Name: "ada", Role: domain.RoleAdmin}
	shadow, err := svcs.Registry.RegisterShadow(ctx, eng, domain.RegisterShadowRequest{
		LogicalName: "orders",
		Schema:      domain.Schema{Columns: []domain.Column{{Name: "order_id", Type: "BIGINT"}}},
	})
	require.NoError(t, err)
	_, err = svcs.Registry.Promote(ctx, adm, shadow.ID, domain.PromoteOptions{})
	require.NoError(t, err)

	tables, err := svcs.Resolver.Resolve(ctx, eng, []string{"orders"}, false)
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, shadow.ID, tables[0].ID)
}

func TestNew_InvalidSchedule(t *testing.T) {
	a := newTestApp(t, "not a cron spec")
	t.Cleanup(func() { _ = a.Close() })
	assert.Error(t, a.Start())
}

func TestNewValidator(t *testing.T) {
	_, err := newValidator(context.Background(), config.AuthConfig{})
	require.Error(t, err)

	v, err := newValidator(context.Background(), config.AuthConfig{JWTSecret: "secret"})
	require.NoError(t, err)
	assert.NotNil(t, v)

	v, err = newValidator(context.Background(), config.AuthConfig{
		IssuerURL: "https://idp.example",
		JWKSURL:   "https://idp.example/keys",
		Audience:  "lakegov",
	})
	require.NoError(t, err)
	assert.NotNil(t, v)
}
