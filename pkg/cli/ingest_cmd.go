package cli

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"lakegov/internal/domain"
)

// timeValue is an RFC3339 flag. Malformed bounds fail during flag parsing,
// before any request is sent.
type timeValue struct{ t *time.Time }

var _ pflag.Value = timeValue{}

func (v timeValue) String() string {
	if v.t == nil || v.t.IsZero() {
		return ""
	}
	return v.t.Format(time.RFC3339)
}

func (v timeValue) Set(s string) error {
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fmt.Errorf("expected RFC3339 timestamp: %w", err)
	}
	*v.t = parsed
	return nil
}

func (timeValue) Type() string { return "time" }

type ingestFlags struct {
	contractID string
	start      time.Time
	end        time.Time
	dedupe     string
	batchSize  int
	dryRun     bool
	source     string
}

func (f *ingestFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.contractID, "contract", "", "Contract ID (required)")
	cmd.Flags().Var(timeValue{&f.start}, "start", "Inclusive start of the event-time range (RFC3339, required)")
	cmd.Flags().Var(timeValue{&f.end}, "end", "Exclusive end of the event-time range (RFC3339, required)")
	cmd.Flags().StringVar(&f.dedupe, "dedupe", "", "Dedupe strategy (default: idempotency_key)")
	cmd.Flags().IntVar(&f.batchSize, "batch-size", 0, "Rows per batch (default: server setting)")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", true, "Count the effect without writing; pass --dry-run=false to apply")
	_ = cmd.MarkFlagRequired("contract")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
}

// body builds the request payload.
func (f *ingestFlags) body(cmd *cobra.Command) (map[string]any, error) {
	tr := domain.TimeRange{Start: f.start, End: f.end}
	if err := tr.Validate(); err != nil {
		return nil, err
	}
	body := map[string]any{
		"contract_id": f.contractID,
		"time_range":  tr,
		"dry_run":     f.dryRun,
	}
	if f.dedupe != "" {
		body["dedupe_strategy"] = f.dedupe
	}
	if cmd.Flags().Changed("batch-size") {
		body["batch_size"] = f.batchSize
	}
	if f.source != "" {
		body["source"] = f.source
	}
	return body, nil
}

func newIngestCmd(client *Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Replay, backfill and land contract data",
	}

	cmd.AddCommand(newIngestRunCmd(client, "replay", "Re-apply a contract's own source over a time range"))
	cmd.AddCommand(newIngestRunCmd(client, "backfill", "Apply records from another source over a time range"))
	cmd.AddCommand(newIngestLandCmd(client))

	return cmd
}

func newIngestRunCmd(client *Client, name, short string) *cobra.Command {
	var f ingestFlags

	cmd := &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			body, err := f.body(cmd)
			if err != nil {
				return err
			}
			var out map[string]any
			if err := client.Call(http.MethodPost, "/ingestion/"+name, nil, body, &out); err != nil {
				return err
			}
			return printResource(cmd, out)
		},
	}

	f.register(cmd)
	if name == "backfill" {
		cmd.Flags().StringVar(&f.source, "source", "", "Source URI to read records from (required)")
		_ = cmd.MarkFlagRequired("source")
	}

	return cmd
}

func newIngestLandCmd(client *Client) *cobra.Command {
	var contractID, schemaFile, location string

	cmd := &cobra.Command{
		Use:   "land",
		Short: "Record a new physical landing of a contract's data as a SHADOW table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var schema domain.Schema
			if err := readManifest(cmd, schemaFile, &schema); err != nil {
				return err
			}
			body := map[string]any{
				"contract_id": contractID,
				"schema":      schema,
				"location":    location,
			}
			var out map[string]any
			if err := client.Call(http.MethodPost, "/ingestion/land", nil, body, &out); err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(cmd.OutOrStdout(), out)
			}
			PrintDetail(cmd.OutOrStdout(), map[string]any{
				"table_id":       ExtractField(out, "table.id"),
				"table_state":    ExtractField(out, "table.state"),
				"table_version":  ExtractField(out, "table.version"),
				"drift_severity": ExtractField(out, "drift.severity"),
			})
			return nil
		},
	}

	cmd.Flags().StringVar(&contractID, "contract", "", "Contract ID (required)")
	cmd.Flags().StringVarP(&schemaFile, "schema-file", "f", "", "Schema of the landed data (YAML or JSON, required)")
	cmd.Flags().StringVar(&location, "location", "", "Physical location of the landed data")
	_ = cmd.MarkFlagRequired("contract")
	_ = cmd.MarkFlagRequired("schema-file")

	return cmd
}
