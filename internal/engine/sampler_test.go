package engine

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lakegov/internal/domain"
)

func openDuckDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestDuckDBSampler(t *testing.T) {
	db := openDuckDB(t)
	ctx := context.Background()
	_, err := db.ExecContext(ctx, `
		CREATE TABLE customers (id INTEGER, name VARCHAR);
		INSERT INTO customers VALUES (1, 'ada'), (2, 'bob'), (3, 'cy');
		CREATE TABLE orders (id INTEGER, customer_id INTEGER);
		INSERT INTO orders VALUES (10, 1), (11, 1), (12, 2), (13, NULL);
		CREATE TABLE events (customer_id INTEGER);
		INSERT INTO events VALUES (1), (1), (1), (2);
	`)
	require.NoError(t, err)

	sampler := NewDuckDBSampler(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
	orders := &domain.Table{LogicalName: "orders"}
	customers := &domain.Table{LogicalName: "customers"}
	events := &domain.Table{LogicalName: "events"}

	t.Run("many_to_one", func(t *testing.T) {
		got, err := sampler.Sample(ctx, orders, customers, domain.JoinCondition{
			LeftColumns: []string{"customer_id"}, RightColumns: []string{"id"},
		}, 1000)
		require.NoError(t, err)
		assert.Equal(t, domain.JoinSample{
			LeftRows:         4,
			DistinctLeftKeys: 2,
			JoinedRows:       3,
			MaxFanOut:        1,
			NullKeyRows:      1,
		}, *got)
	})

	t.Run("one_to_many", func(t *testing.T) {
		got, err := sampler.Sample(ctx, customers, events, domain.JoinCondition{
			LeftColumns: []string{"id"}, RightColumns: []string{"customer_id"},
		}, 1000)
		require.NoError(t, err)
		assert.Equal(t, int64(3), got.LeftRows)
		assert.Equal(t, int64(3), got.DistinctLeftKeys)
		assert.Equal(t, int64(4), got.JoinedRows)
		assert.Equal(t, int64(3), got.MaxFanOut)
		assert.Equal(t, int64(0), got.NullKeyRows)
	})

	t.Run("missing_relation", func(t *testing.T) {
		_, err := sampler.Sample(ctx, &domain.Table{LogicalName: "nope"}, customers, domain.JoinCondition{
			LeftColumns: []string{"id"}, RightColumns: []string{"id"},
		}, 10)
		require.Error(t, err)
	})
}
