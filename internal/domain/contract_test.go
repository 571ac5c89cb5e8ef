package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDedupeWindow(t *testing.T) {
	d, err := ParseDedupeWindow("24h")
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, d)

	d, err = ParseDedupeWindow("7d")
	require.NoError(t, err)
	assert.Equal(t, 7*24*time.Hour, d)

	_, err = ParseDedupeWindow("xd")
	assert.Error(t, err)

	_, err = ParseDedupeWindow("soon")
	assert.Error(t, err)
}

func TestChanges_TaggedEncoding(t *testing.T) {
	changes := []Change{
		NewColumnAdded(Column{Name: "status", Type: "VARCHAR", Nullable: true}, DriftCompatible),
		ColumnRemoved{Column: Column{Name: "customer_id", Type: "BIGINT"}},
		ColumnRenamed{Old: "amount", New: "amount_usd", Similarity: 0.82},
		NewColumnTypeChanged("qty", "BIGINT", "INTEGER", "integer narrowed", DriftBreaking),
	}
	data, err := MarshalChanges(changes)
	require.NoError(t, err)

	decoded, err := UnmarshalChanges(data)
	require.NoError(t, err)
	require.Len(t, decoded, 4)
	assert.Equal(t, changes, decoded)
}

func TestMaxSeverity(t *testing.T) {
	assert.Equal(t, DriftWarning, MaxSeverity(DriftCompatible, DriftWarning))
	assert.Equal(t, DriftBreaking, MaxSeverity(DriftBreaking, DriftWarning))
	assert.Equal(t, DriftCompatible, MaxSeverity(DriftCompatible, DriftCompatible))
}

func TestTemporalColumnDraft_JSON(t *testing.T) {
	var sem IngestionSemanticsDraft
	require.NoError(t, json.Unmarshal([]byte(`{"event_time_column":{"name":"ts","source":"event"}}`), &sem))
	require.NotNil(t, sem.EventTimeColumn)
	assert.Equal(t, "ts", *sem.EventTimeColumn.Name)
	assert.Equal(t, "event", *sem.EventTimeColumn.Source)

	err := json.Unmarshal([]byte(`{"event_time_column":"ts"}`), &sem)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `must be given as an object {"name": "ts"`)

	err = json.Unmarshal([]byte(`{"event_time_column":{"name":"ts","source":"event","tz":"UTC"}}`), &sem)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tz")
}
