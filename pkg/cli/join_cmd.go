package cli

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
)

var candidateColumns = []string{"id", "table_a", "table_b", "declared_relation", "confidence", "risk_level", "state"}

func newJoinCmd(client *Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "join",
		Short: "Propose, validate and accept join relationships",
	}

	cmd.AddCommand(newJoinProposeCmd(client))
	cmd.AddCommand(newJoinGetCmd(client))
	cmd.AddCommand(newJoinValidateCmd(client))
	cmd.AddCommand(newJoinAcceptCmd(client))
	cmd.AddCommand(newJoinRejectCmd(client))
	cmd.AddCommand(newJoinListCmd(client))
	cmd.AddCommand(newJoinAcceptedCmd(client))
	cmd.AddCommand(newJoinUsableCmd(client))

	return cmd
}

func candidatePath(id, action string) string {
	p := "/joins/candidates/" + url.PathEscape(id)
	if action != "" {
		p += "/" + action
	}
	return p
}

func newJoinProposeCmd(client *Client) *cobra.Command {
	var (
		left     []string
		right    []string
		relation string
	)

	cmd := &cobra.Command{
		Use:     "propose <table-a> <table-b>",
		Short:   "Propose a join candidate between two tables",
		Example: `  govctl join propose customers orders --left id --right customer_id --relation one_to_many`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{
				"table_a":           args[0],
				"table_b":           args[1],
				"declared_relation": strings.ToLower(relation),
			}
			if len(left) > 0 || len(right) > 0 {
				body["condition"] = map[string]any{
					"left_columns":  left,
					"right_columns": right,
				}
			}
			var out map[string]any
			if err := client.Call(http.MethodPost, "/joins/candidates", nil, body, &out); err != nil {
				return err
			}
			return printResource(cmd, out)
		},
	}

	cmd.Flags().StringSliceVar(&left, "left", nil, "Join columns of table A (omit to infer from shared names)")
	cmd.Flags().StringSliceVar(&right, "right", nil, "Join columns of table B, paired with --left")
	cmd.Flags().StringVar(&relation, "relation", "", "Declared relation: one_to_one or one_to_many")
	_ = cmd.MarkFlagRequired("relation")

	return cmd
}

func newJoinGetCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "get <candidate-id>",
		Short: "Show a join candidate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]any
			if err := client.Call(http.MethodGet, candidatePath(args[0], ""), nil, nil, &out); err != nil {
				return err
			}
			return printResource(cmd, out)
		},
	}
}

func newJoinValidateCmd(client *Client) *cobra.Command {
	var overrideFanOut bool

	cmd := &cobra.Command{
		Use:   "validate <candidate-id>",
		Short: "Sample both tables and check the candidate's cardinality",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]any
			body := map[string]bool{"override_fan_out": overrideFanOut}
			if err := client.Call(http.MethodPost, candidatePath(args[0], "validate"), nil, body, &out); err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(cmd.OutOrStdout(), out)
			}
			checks, _ := out["checks"].([]any)
			cols := []string{"name", "outcome", "detail"}
			PrintTable(cmd.OutOrStdout(), cols, ExtractRows(checks, cols))
			return nil
		},
	}

	cmd.Flags().BoolVar(&overrideFanOut, "override-fan-out", false, "Accept fan-out above the threshold (Admin)")

	return cmd
}

func newJoinAcceptCmd(client *Client) *cobra.Command {
	var (
		rationale      string
		overrideFanOut bool
	)

	cmd := &cobra.Command{
		Use:   "accept <candidate-id>",
		Short: "Accept a validated join candidate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{
				"candidate_id":     args[0],
				"rationale":        rationale,
				"override_fan_out": overrideFanOut,
			}
			var out map[string]any
			if err := client.Call(http.MethodPost, "/joins/accept", nil, body, &out); err != nil {
				return err
			}
			return printResource(cmd, out)
		},
	}

	cmd.Flags().StringVar(&rationale, "rationale", "", "Why the join is accepted")
	cmd.Flags().BoolVar(&overrideFanOut, "override-fan-out", false, "Accept fan-out above the threshold (Admin)")

	return cmd
}

func newJoinRejectCmd(client *Client) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "reject <candidate-id>",
		Short: "Reject a join candidate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]any
			if err := client.Call(http.MethodPost, candidatePath(args[0], "reject"), nil, map[string]string{"reason": reason}, &out); err != nil {
				return err
			}
			return printResource(cmd, out)
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded with the rejection")

	return cmd
}

func newJoinListCmd(client *Client) *cobra.Command {
	var table1, table2, state string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List join candidates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{}
			for k, v := range map[string]string{"table1": table1, "table2": table2, "state": state} {
				if v != "" {
					q.Set(k, v)
				}
			}
			var out PaginatedResponse
			if err := client.Call(http.MethodGet, "/joins/candidates", q, nil, &out); err != nil {
				return err
			}
			return printList(cmd, out.Data, candidateColumns)
		},
	}

	cmd.Flags().StringVar(&table1, "table1", "", "Only candidates involving this table")
	cmd.Flags().StringVar(&table2, "table2", "", "Only candidates also involving this table")
	cmd.Flags().StringVar(&state, "state", "", "Only candidates in this state")

	return cmd
}

func newJoinAcceptedCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "accepted",
		Short: "List accepted joins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var out PaginatedResponse
			if err := client.Call(http.MethodGet, "/joins/accepted", nil, nil, &out); err != nil {
				return err
			}
			return printList(cmd, out.Data, []string{"join_id", "table_a", "table_b", "version", "accepted_by", "accepted_at"})
		},
	}
}

func newJoinUsableCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "usable <table1> <table2>",
		Short: "Show the accepted join usable between two tables",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{"table1": {args[0]}, "table2": {args[1]}}
			var out map[string]any
			if err := client.Call(http.MethodGet, "/joins/usable", q, nil, &out); err != nil {
				return err
			}
			return printResource(cmd, out)
		},
	}
}
