package cli

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateOutputFormat(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		wantErr bool
	}{
		{name: "empty ok", output: "", wantErr: false},
		{name: "table ok", output: "table", wantErr: false},
		{name: "json ok", output: "json", wantErr: false},
		{name: "yaml rejected", output: "yaml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateOutputFormat(tt.output)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

// outputCmd builds a root/child pair with the --output flag set to format.
func outputCmd(t *testing.T, format string, out *bytes.Buffer) *cobra.Command {
	t.Helper()
	root := &cobra.Command{Use: "govctl"}
	root.PersistentFlags().StringP("output", "o", "", "")
	require.NoError(t, root.PersistentFlags().Set("output", format))
	child := &cobra.Command{Use: "child"}
	root.AddCommand(child)
	child.SetOut(out)
	return child
}

func TestPrintResource_TableSkipsNested(t *testing.T) {
	var out bytes.Buffer
	cmd := outputCmd(t, "table", &out)

	require.NoError(t, printResource(cmd, map[string]any{
		"table_id": "t1",
		"state":    "SHADOW",
		"schema":   map[string]any{"columns": []any{}},
		"tags":     []any{"pii"},
	}))

	assert.Contains(t, out.String(), "table_id:")
	assert.Contains(t, out.String(), "SHADOW")
	assert.NotContains(t, out.String(), "schema")
	assert.NotContains(t, out.String(), "pii")
}

func TestPrintResource_JSONKeepsNested(t *testing.T) {
	var out bytes.Buffer
	cmd := outputCmd(t, "json", &out)

	require.NoError(t, printResource(cmd, map[string]any{"schema": map[string]any{"version": 2.0}}))
	assert.JSONEq(t, `{"schema":{"version":2}}`, out.String())
}

func TestPrintList(t *testing.T) {
	items := []any{
		map[string]any{"id": "j1", "state": "PROPOSED"},
		map[string]any{"id": "j2", "state": "ACCEPTED"},
	}

	var table bytes.Buffer
	require.NoError(t, printList(outputCmd(t, "table", &table), items, []string{"id", "state"}))
	assert.Equal(t, "ID  STATE\nj1  PROPOSED\nj2  ACCEPTED\n", table.String())

	var empty bytes.Buffer
	require.NoError(t, printList(outputCmd(t, "json", &empty), nil, []string{"id"}))
	assert.Equal(t, "[]\n", empty.String())
}
