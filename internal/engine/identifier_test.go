package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateIdentifier(t *testing.T) {
	for _, ok := range []string{"orders", "_tmp", "Orders2026", strings.Repeat("a", 128)} {
		assert.NoError(t, ValidateIdentifier(ok), ok)
	}
	tests := []struct {
		input   string
		wantErr string
	}{
		{"", "name is required"},
		{strings.Repeat("a", 129), "at most 128 characters"},
		{"1orders", "must match"},
		{"order lines", "must match"},
		{"main.orders", "must match"},
		{`orders"; DROP TABLE x; --`, "must match"},
	}
	for _, tt := range tests {
		err := ValidateIdentifier(tt.input)
		require.Error(t, err, tt.input)
		assert.Contains(t, err.Error(), tt.wantErr)
	}
}

func TestQuoting(t *testing.T) {
	assert.Equal(t, `"orders"`, QuoteIdentifier("orders"))
	assert.Equal(t, `"a""b"`, QuoteIdentifier(`a"b`))
	assert.Equal(t, `'s3://lake/orders/'`, QuoteLiteral("s3://lake/orders/"))
	assert.Equal(t, `'/tmp/it''s'`, QuoteLiteral("/tmp/it's"))
}

func TestQualifiedName(t *testing.T) {
	got, err := QualifiedName("lake.main.orders")
	require.NoError(t, err)
	assert.Equal(t, `"lake"."main"."orders"`, got)

	got, err = QualifiedName("orders")
	require.NoError(t, err)
	assert.Equal(t, `"orders"`, got)

	for _, bad := range []string{"", "a.b.c.d", "main.", "main.orders;"} {
		_, err := QualifiedName(bad)
		assert.Error(t, err, bad)
	}
}

func TestValidateColumnType(t *testing.T) {
	for _, ok := range []string{"BIGINT", "VARCHAR(255)", "DECIMAL(18,2)", "NUMERIC(18, 4)", "INTEGER[]", "timestamp with time zone"} {
		assert.NoError(t, ValidateColumnType(ok), ok)
	}
	tests := []struct {
		input   string
		wantErr string
	}{
		{"", "column type is required"},
		{strings.Repeat("A", 65), "at most 64 characters"},
		{"INTEGER); DROP TABLE orders; --", "invalid characters"},
		{"VARCHAR'", "invalid characters"},
		{"DECIMAL(18,2", "not a recognized type pattern"},
		{"MAP(VARCHAR, INTEGER)", "not a recognized type pattern"},
	}
	for _, tt := range tests {
		err := ValidateColumnType(tt.input)
		require.Error(t, err, tt.input)
		assert.Contains(t, err.Error(), tt.wantErr)
	}
}
