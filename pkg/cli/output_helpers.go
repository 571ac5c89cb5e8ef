package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// getOutputFormat returns the effective output format from the root command's persistent flags.
func getOutputFormat(cmd *cobra.Command) string {
	v, _ := cmd.Root().PersistentFlags().GetString("output")
	return v
}

func validateOutputFormat(output string) error {
	if output != "" && output != "table" && output != "json" {
		return fmt.Errorf("unsupported output format %q: use 'table' or 'json'", output)
	}
	return nil
}

// printResource renders a single JSON object: as-is in json mode, as a
// detail listing otherwise.
func printResource(cmd *cobra.Command, v map[string]any) error {
	if getOutputFormat(cmd) == "json" {
		return PrintJSON(cmd.OutOrStdout(), v)
	}
	fields := make(map[string]any, len(v))
	for k, val := range v {
		switch val.(type) {
		case map[string]any, []any:
			// Nested values are shown with -o json.
			continue
		}
		fields[k] = val
	}
	PrintDetail(cmd.OutOrStdout(), fields)
	return nil
}

// printList renders items as a table of columns, or as a JSON array.
func printList(cmd *cobra.Command, items []any, columns []string) error {
	if getOutputFormat(cmd) == "json" {
		if items == nil {
			items = []any{}
		}
		return PrintJSON(cmd.OutOrStdout(), items)
	}
	PrintTable(cmd.OutOrStdout(), columns, ExtractRows(items, columns))
	return nil
}
