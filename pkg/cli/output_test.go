package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintTable_Basic(t *testing.T) {
	var buf bytes.Buffer
	PrintTable(&buf, []string{"name", "age"}, [][]string{{"Alice", "30"}, {"Bob", "25"}})
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")

	require.Len(t, lines, 3, "expected header + 2 data rows")
	assert.Equal(t, "NAME   AGE", lines[0])
	assert.Equal(t, "Alice  30", lines[1])
	assert.Equal(t, "Bob    25", lines[2])
}

func TestPrintTable_EmptyColumns(t *testing.T) {
	var buf bytes.Buffer
	PrintTable(&buf, []string{}, [][]string{{"a"}})
	assert.Empty(t, buf.String(), "empty columns should produce no output")
}

func TestPrintTable_EmptyRows(t *testing.T) {
	var buf bytes.Buffer
	PrintTable(&buf, []string{"id", "value"}, nil)
	assert.Equal(t, "ID  VALUE\n", buf.String())
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintJSON(&buf, map[string]string{"hello": "world"}))

	var parsed map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &parsed))
	assert.Equal(t, "world", parsed["hello"])
	assert.Contains(t, buf.String(), "\n  ")

	buf.Reset()
	require.NoError(t, PrintJSON(&buf, nil))
	assert.Equal(t, "null\n", buf.String())
}

func TestPrintDetail_SortedAndPadded(t *testing.T) {
	var buf bytes.Buffer
	PrintDetail(&buf, map[string]any{
		"id":          "123",
		"description": "some text",
		"status":      nil,
	})
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")

	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "description:"))
	assert.Equal(t, "id:"+strings.Repeat(" ", 9)+"  123", lines[1])
	assert.NotContains(t, lines[2], "<nil>")
}

func TestExtractField(t *testing.T) {
	data := map[string]any{
		"name":   "alice",
		"count":  42.0,
		"none":   nil,
		"tags":   []any{"a", "b"},
		"nested": map[string]any{"k": "v", "deep": map[string]any{"x": true}},
	}

	tests := []struct {
		path string
		want string
	}{
		{"name", "alice"},
		{"count", "42"},
		{"none", ""},
		{"missing", ""},
		{"tags", `["a","b"]`},
		{"nested", `{"deep":{"x":true},"k":"v"}`},
		{"nested.k", "v"},
		{"nested.deep.x", "true"},
		{"name.sub", ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractField(data, tt.path))
		})
	}
}

func TestExtractRows(t *testing.T) {
	items := []any{
		map[string]any{"id": "1", "name": "foo"},
		"not a map",
		42,
		map[string]any{"id": "3"},
	}

	rows := ExtractRows(items, []string{"id", "name"})

	require.Len(t, rows, 2, "non-map items should be skipped")
	assert.Equal(t, []string{"1", "foo"}, rows[0])
	assert.Equal(t, []string{"3", ""}, rows[1])
}
