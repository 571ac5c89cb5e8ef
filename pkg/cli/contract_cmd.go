package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"lakegov/internal/domain"
)

func newContractCmd(client *Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contract",
		Short: "Register and inspect ingestion contracts",
	}

	cmd.AddCommand(newContractRegisterCmd(client))
	cmd.AddCommand(newContractGetCmd(client))
	cmd.AddCommand(newContractListCmd(client))
	cmd.AddCommand(newContractVersionCmd(client))
	cmd.AddCommand(newContractDiffCmd(client))
	cmd.AddCommand(newContractDriftCmd(client))
	cmd.AddCommand(newContractAckDriftCmd(client))

	return cmd
}

// readManifest decodes a YAML (or JSON) file into v, rejecting unknown keys.
// A path of "-" reads stdin.
func readManifest(cmd *cobra.Command, path string, v any) error {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%s is empty", path)
		}
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func newContractRegisterCmd(client *Client) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:     "register",
		Short:   "Register a contract and its shadow target table",
		Example: `  govctl contract register -f contract.yaml`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var draft domain.ContractDraft
			if err := readManifest(cmd, file, &draft); err != nil {
				return err
			}
			var out map[string]any
			if err := client.Call(http.MethodPost, "/contracts/register", nil, draft, &out); err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(cmd.OutOrStdout(), out)
			}
			PrintDetail(cmd.OutOrStdout(), map[string]any{
				"contract_id":    ExtractField(out, "contract.id"),
				"contract_state": ExtractField(out, "contract.state"),
				"table_id":       ExtractField(out, "table.id"),
				"table_name":     ExtractField(out, "table.logical_name"),
				"table_state":    ExtractField(out, "table.state"),
			})
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Contract manifest (YAML or JSON, - for stdin)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func newContractGetCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "get <contract-id>",
		Short: "Show a contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]any
			if err := client.Call(http.MethodGet, "/contracts/"+url.PathEscape(args[0]), nil, nil, &out); err != nil {
				return err
			}
			return printResource(cmd, out)
		},
	}
}

func newContractListCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List contracts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			items, err := FetchAllPages(client, http.MethodGet, "/contracts", nil)
			if err != nil {
				return err
			}
			return printList(cmd, items, []string{"id", "table_name", "endpoint", "state", "schema_version"})
		},
	}
}

func newContractVersionCmd(client *Client) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "version <contract-id>",
		Short: "Record a new schema version for a contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var schema domain.Schema
			if err := readManifest(cmd, file, &schema); err != nil {
				return err
			}
			var out map[string]any
			body := map[string]any{"schema": schema}
			if err := client.Call(http.MethodPost, "/contracts/"+url.PathEscape(args[0])+"/versions", nil, body, &out); err != nil {
				return err
			}
			return printResource(cmd, out)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Schema file with a columns list (YAML or JSON, - for stdin)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func newContractDiffCmd(client *Client) *cobra.Command {
	var from, to int

	cmd := &cobra.Command{
		Use:   "diff <contract-id>",
		Short: "Classify the schema changes between two contract versions",
		Example: `  # Compare the current version with the previous one
  govctl contract diff 0191e7c4-...

  govctl contract diff 0191e7c4-... --from 1 --to 3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if cmd.Flags().Changed("from") {
				q.Set("from", strconv.Itoa(from))
			}
			if cmd.Flags().Changed("to") {
				q.Set("to", strconv.Itoa(to))
			}
			var out map[string]any
			if err := client.Call(http.MethodGet, "/contracts/"+url.PathEscape(args[0])+"/diff", q, nil, &out); err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(cmd.OutOrStdout(), out)
			}
			return printDriftReport(cmd.OutOrStdout(), out)
		},
	}

	cmd.Flags().IntVar(&from, "from", 0, "Base schema version (default: previous version)")
	cmd.Flags().IntVar(&to, "to", 0, "Target schema version (default: current version)")

	return cmd
}

func newContractDriftCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "drift <contract-id>",
		Short: "List recorded drift reports for a contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := FetchAllPages(client, http.MethodGet, "/contracts/"+url.PathEscape(args[0])+"/drift", nil)
			if err != nil {
				return err
			}
			return printList(cmd, items, []string{"id", "from_version", "to_version", "severity", "acknowledged_by", "created_at"})
		},
	}
}

func newContractAckDriftCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "ack-drift <report-id>",
		Short: "Acknowledge a warning-level drift report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]any
			if err := client.Call(http.MethodPost, "/drift/"+url.PathEscape(args[0])+"/acknowledge", nil, map[string]any{}, &out); err != nil {
				return err
			}
			return printResource(cmd, out)
		},
	}
}

// printDriftReport writes the overall severity followed by one line per
// change.
func printDriftReport(w io.Writer, report map[string]any) error {
	_, _ = fmt.Fprintf(w, "v%s -> v%s: %s\n",
		ExtractField(report, "from_version"),
		ExtractField(report, "to_version"),
		ExtractField(report, "severity"),
	)
	raw, err := json.Marshal(report["changes"])
	if err != nil {
		return fmt.Errorf("encode changes: %w", err)
	}
	changes, err := domain.UnmarshalChanges(raw)
	if err != nil {
		return fmt.Errorf("decode changes: %w", err)
	}
	rows := make([][]string, 0, len(changes))
	for _, ch := range changes {
		rows = append(rows, []string{string(ch.Severity()), string(ch.Kind()), ch.Describe()})
	}
	PrintTable(w, []string{"severity", "kind", "change"}, rows)
	return nil
}
