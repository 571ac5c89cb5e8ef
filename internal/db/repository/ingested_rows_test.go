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

func setupIngestedRows(t *testing.T) (*IngestedRowRepo, string) {
	t.Helper()
	store := internaldb.OpenTestStore(t)
	c, err := NewContractRepo(store.Write).Create(context.Background(), testContract("orders"), nil)
	require.NoError(t, err)
	return NewIngestedRowRepo(store.Write), c.ID
}

func row(key string, at time.Time, payload string) domain.IngestRow {
	return domain.IngestRow{KeyHash: "h-" + key, KeyJSON: `["` + key + `"]`, EventTime: at, Payload: payload}
}

func hourly(mode domain.IngestMode, conflict domain.ConflictResolution) domain.DedupeRules {
	return domain.DedupeRules{Mode: mode, Window: time.Hour, Conflict: conflict}
}

func TestIngestedRowRepo_ApplyIsIdempotent(t *testing.T) {
	repo, contractID := setupIngestedRows(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	batch := []domain.IngestRow{
		row("1", base, `{"amount":10}`),
		row("2", base.Add(time.Minute), `{"amount":20}`),
		row("1", base.Add(time.Second), `{"amount":10}`),
	}

	out, err := repo.Apply(ctx, contractID, batch, hourly(domain.IngestAppend, domain.ConflictLatestWins))
	require.NoError(t, err)
	assert.Equal(t, domain.ApplyOutcome{Applied: 2, Duplicates: 1}, out)

	out, err = repo.Apply(ctx, contractID, batch, hourly(domain.IngestAppend, domain.ConflictLatestWins))
	require.NoError(t, err)
	assert.Equal(t, domain.ApplyOutcome{Duplicates: 3}, out)

	n, err := repo.Count(ctx, contractID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestIngestedRowRepo_LatestWins(t *testing.T) {
	repo, contractID := setupIngestedRows(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := repo.Apply(ctx, contractID, []domain.IngestRow{row("1", base, `{"v":1}`)}, hourly(domain.IngestAppend, domain.ConflictLatestWins))
	require.NoError(t, err)

	out, err := repo.Apply(ctx, contractID, []domain.IngestRow{
		row("1", base.Add(-time.Minute), `{"v":0}`), // older: ignored
		row("1", base.Add(time.Minute), `{"v":2}`),  // newer: wins
		row("1", base.Add(2*time.Hour), `{"v":3}`),  // outside window: new row
	}, hourly(domain.IngestAppend, domain.ConflictLatestWins))
	require.NoError(t, err)
	assert.Equal(t, domain.ApplyOutcome{Applied: 1, Updated: 1, Duplicates: 1}, out)

	n, err := repo.Count(ctx, contractID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestIngestedRowRepo_ConflictErrorAbortsBatch(t *testing.T) {
	repo, contractID := setupIngestedRows(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := repo.Apply(ctx, contractID, []domain.IngestRow{
		row("1", base, `{"v":1}`),
		row("2", base, `{"v":1}`),
		row("1", base.Add(time.Minute), `{"v":2}`),
	}, hourly(domain.IngestAppend, domain.ConflictFail))
	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict)

	n, err := repo.Count(ctx, contractID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestIngestedRowRepo_PreviewMatchesApply(t *testing.T) {
	repo, contractID := setupIngestedRows(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	batch := []domain.IngestRow{
		row("1", base, `{"v":1}`),
		row("1", base.Add(time.Minute), `{"v":2}`),
		row("2", base, `{"v":1}`),
	}

	preview, err := repo.Preview(ctx, contractID, batch, hourly(domain.IngestAppend, domain.ConflictLatestWins))
	require.NoError(t, err)
	n, err := repo.Count(ctx, contractID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	applied, err := repo.Apply(ctx, contractID, batch, hourly(domain.IngestAppend, domain.ConflictLatestWins))
	require.NoError(t, err)
	assert.Equal(t, applied, preview)
	assert.Equal(t, domain.ApplyOutcome{Applied: 2, Updated: 1}, applied)
}

func TestIngestedRowRepo_PreviewSpansBatches(t *testing.T) {
	repo, contractID := setupIngestedRows(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	preview := repo.NewPreview(contractID, hourly(domain.IngestAppend, domain.ConflictLatestWins))
	first, err := preview.Add(ctx, []domain.IngestRow{row("1", base, `{"v":1}`)})
	require.NoError(t, err)
	assert.Equal(t, domain.ApplyOutcome{Applied: 1}, first)

	second, err := preview.Add(ctx, []domain.IngestRow{row("1", base, `{"v":1}`), row("2", base, `{"v":1}`)})
	require.NoError(t, err)
	assert.Equal(t, domain.ApplyOutcome{Applied: 1, Duplicates: 1}, second)

	n, err := repo.Count(ctx, contractID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestIngestedRowRepo_UpsertIgnoresWindow(t *testing.T) {
	repo, contractID := setupIngestedRows(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 1, 0, 0, 0, time.UTC)
	upsert := hourly(domain.IngestUpsert, domain.ConflictLatestWins)

	_, err := repo.Apply(ctx, contractID, []domain.IngestRow{row("1", base, `{"v":1}`)}, upsert)
	require.NoError(t, err)

	out, err := repo.Apply(ctx, contractID, []domain.IngestRow{
		row("1", base.Add(4*time.Hour), `{"v":2}`),  // newer, far outside the window: replaces
		row("1", base.Add(-3*time.Hour), `{"v":0}`), // older: ignored
		row("2", base, `{"v":1}`),
	}, upsert)
	require.NoError(t, err)
	assert.Equal(t, domain.ApplyOutcome{Applied: 1, Updated: 1, Duplicates: 1}, out)

	n, err := repo.Count(ctx, contractID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestIngestedRowRepo_AppendKeepsRowsOutsideWindow(t *testing.T) {
	repo, contractID := setupIngestedRows(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 1, 0, 0, 0, time.UTC)

	out, err := repo.Apply(ctx, contractID, []domain.IngestRow{
		row("1", base, `{"v":1}`),
		row("1", base.Add(4*time.Hour), `{"v":2}`),
	}, hourly(domain.IngestAppend, domain.ConflictLatestWins))
	require.NoError(t, err)
	assert.Equal(t, domain.ApplyOutcome{Applied: 2}, out)
}

func TestIngestedRowRepo_UpsertConflictFail(t *testing.T) {
	repo, contractID := setupIngestedRows(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 1, 0, 0, 0, time.UTC)
	rules := hourly(domain.IngestUpsert, domain.ConflictFail)

	_, err := repo.Apply(ctx, contractID, []domain.IngestRow{row("1", base, `{"v":1}`)}, rules)
	require.NoError(t, err)

	_, err = repo.Apply(ctx, contractID, []domain.IngestRow{row("1", base.Add(24*time.Hour), `{"v":2}`)}, rules)
	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict)
}
