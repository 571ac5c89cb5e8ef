package cli

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
)

func newTableCmd(client *Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "table",
		Short: "Manage the table lifecycle",
	}

	cmd.AddCommand(newTableGetCmd(client))
	cmd.AddCommand(newTableStateCmd(client))
	cmd.AddCommand(newTableHistoryCmd(client))
	cmd.AddCommand(newTablePromoteCmd(client))
	cmd.AddCommand(newTableDeprecateCmd(client))
	cmd.AddCommand(newTableRestoreCmd(client))

	return cmd
}

func tablePath(id string, action string) string {
	p := "/tables/" + url.PathEscape(id)
	if action != "" {
		p += "/" + action
	}
	return p
}

func newTableGetCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "get <table-id>",
		Short: "Show a table version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]any
			if err := client.Call(http.MethodGet, tablePath(args[0], ""), nil, nil, &out); err != nil {
				return err
			}
			return printResource(cmd, out)
		},
	}
}

func newTableStateCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "state <table-id>",
		Short: "Show the lifecycle state of a table version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]any
			if err := client.Call(http.MethodGet, tablePath(args[0], "state"), nil, nil, &out); err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(cmd.OutOrStdout(), out)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), ExtractField(out, "state"))
			return nil
		},
	}
}

func newTableHistoryCmd(client *Client) *cobra.Command {
	var state string

	cmd := &cobra.Command{
		Use:   "history <logical-name>",
		Short: "List every version of a logical table, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{"name": {args[0]}}
			if state != "" {
				q.Set("state", state)
			}
			var out PaginatedResponse
			if err := client.Call(http.MethodGet, "/tables", q, nil, &out); err != nil {
				return err
			}
			return printList(cmd, out.Data, []string{"id", "version", "state", "owner", "created_at"})
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "Only versions in this state (SHADOW, ACTIVE, DEPRECATED, READ_ONLY)")

	return cmd
}

func newTablePromoteCmd(client *Client) *cobra.Command {
	var (
		expectedRevision int64
		acknowledge      bool
		dryRun           bool
		fromState        string
	)

	cmd := &cobra.Command{
		Use:   "promote <table-id>",
		Short: "Promote a SHADOW table to ACTIVE (Admin)",
		Long: "Promote a SHADOW table to ACTIVE. The previously active version of the same " +
			"logical name is deprecated in the same step. Warning-level drift must be acknowledged.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{
				"acknowledge_warnings": acknowledge,
				"dry_run":              dryRun,
			}
			if cmd.Flags().Changed("expected-revision") {
				body["expected_revision"] = expectedRevision
			}
			if fromState != "" {
				body["from_state"] = strings.ToUpper(fromState)
			}
			var out map[string]any
			if err := client.Call(http.MethodPost, tablePath(args[0], "promote"), nil, body, &out); err != nil {
				return err
			}
			return printResource(cmd, out)
		},
	}

	cmd.Flags().Int64Var(&expectedRevision, "expected-revision", 0, "Fail unless the active version still has this revision")
	cmd.Flags().BoolVar(&acknowledge, "acknowledge-warnings", false, "Accept warning-level drift")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Check the promotion without applying it")
	cmd.Flags().StringVar(&fromState, "from-state", "", "Fail unless the table is currently in this state")

	return cmd
}

func newTableDeprecateCmd(client *Client) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "deprecate <table-id>",
		Short: "Deprecate a table version (Admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]any
			body := map[string]string{"reason": reason}
			if err := client.Call(http.MethodPost, tablePath(args[0], "deprecate"), nil, body, &out); err != nil {
				return err
			}
			return printResource(cmd, out)
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded in the audit log")

	return cmd
}

func newTableRestoreCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <table-id>",
		Short: "Restore a DEPRECATED table version to ACTIVE (Admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]any
			if err := client.Call(http.MethodPost, tablePath(args[0], "restore"), nil, map[string]any{}, &out); err != nil {
				return err
			}
			return printResource(cmd, out)
		},
	}
}

func newResolveCmd(client *Client) *cobra.Command {
	var includeDeprecated, partial bool

	cmd := &cobra.Command{
		Use:   "resolve <name>...",
		Short: "Resolve logical table names to their queryable versions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{
				"names":              args,
				"include_deprecated": includeDeprecated,
				"partial":            partial,
			}
			var out map[string]any
			if err := client.Call(http.MethodPost, "/resolve", nil, body, &out); err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(cmd.OutOrStdout(), out)
			}
			resolved, _ := out["resolved"].([]any)
			PrintTable(cmd.OutOrStdout(), []string{"logical_name", "id", "version", "state"},
				ExtractRows(resolved, []string{"logical_name", "id", "version", "state"}))
			if unresolved, _ := out["unresolved"].([]any); len(unresolved) > 0 {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "unresolved: %s\n", formatValue(unresolved))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&includeDeprecated, "include-deprecated", false, "Also resolve DEPRECATED versions")
	cmd.Flags().BoolVar(&partial, "partial", false, "Report unresolved names instead of failing")

	return cmd
}
