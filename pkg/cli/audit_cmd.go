package cli

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

func newAuditCmd(client *Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the governance audit log (Admin)",
	}

	cmd.AddCommand(newAuditListCmd(client))
	return cmd
}

func newAuditListCmd(client *Client) *cobra.Command {
	var (
		actor      string
		action     string
		entityType string
		entityID   string
		status     string
		since      string
		until      string
		maxResults int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List audit entries, newest first",
		Example: `  govctl audit list --action PROMOTE --since 2026-01-01T00:00:00Z
  govctl audit list --status DENIED --max-results 20`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{}
			for k, v := range map[string]string{
				"actor":       actor,
				"action":      action,
				"entity_type": entityType,
				"entity_id":   entityID,
				"status":      status,
				"since":       since,
				"until":       until,
			} {
				if v != "" {
					q.Set(k, v)
				}
			}

			columns := []string{"created_at", "actor", "role", "action", "entity_type", "entity_id", "status"}
			if cmd.Flags().Changed("max-results") {
				q.Set("max_results", strconv.Itoa(maxResults))
				var out PaginatedResponse
				if err := client.Call(http.MethodGet, "/audit", q, nil, &out); err != nil {
					return err
				}
				return printList(cmd, out.Data, columns)
			}
			items, err := FetchAllPages(client, http.MethodGet, "/audit", q)
			if err != nil {
				return err
			}
			return printList(cmd, items, columns)
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "", "Filter by actor name")
	cmd.Flags().StringVar(&action, "action", "", "Filter by action")
	cmd.Flags().StringVar(&entityType, "entity-type", "", "Filter by entity type")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "Filter by entity ID")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (ALLOWED or DENIED)")
	cmd.Flags().StringVar(&since, "since", "", "Only entries at or after this time (RFC3339)")
	cmd.Flags().StringVar(&until, "until", "", "Only entries before this time (RFC3339)")
	cmd.Flags().IntVar(&maxResults, "max-results", 0, "Return a single page of at most this many entries")

	return cmd
}
