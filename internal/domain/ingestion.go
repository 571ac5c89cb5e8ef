package domain

import (
	"encoding/json"
	"time"
)

// DedupeStrategyIdempotencyKey deduplicates rows on the contract's idempotency key.
const DedupeStrategyIdempotencyKey = "idempotency_key"

// TimeRange is a half-open event-time interval [Start, End).
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Validate checks that both bounds are set and ordered.
func (r TimeRange) Validate() error {
	if r.Start.IsZero() {
		return ErrFieldValidation("time_range.start", "is required")
	}
	if r.End.IsZero() {
		return ErrFieldValidation("time_range.end", "is required")
	}
	if !r.Start.Before(r.End) {
		return ErrFieldValidation("time_range", "start %s must be before end %s",
			r.Start.Format(time.RFC3339), r.End.Format(time.RFC3339))
	}
	return nil
}

// Contains reports whether t falls within the range.
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// Record is one raw row read from an ingestion source.
type Record map[string]json.RawMessage

// IngestRow is a decoded record ready to be applied.
type IngestRow struct {
	KeyHash   string
	KeyJSON   string
	EventTime time.Time
	Payload   string
}

// DedupeRules decide which landed row a new row is matched against. In append
// mode a row matches a landed row with the same key hash within Window of its
// event time. In upsert mode there is one row per key hash and Window is not
// consulted.
type DedupeRules struct {
	Mode     IngestMode
	Window   time.Duration
	Conflict ConflictResolution
}

// DedupeRules returns the matching rules of the contract.
func (s IngestionSemantics) DedupeRules() DedupeRules {
	return DedupeRules{Mode: s.Mode, Window: s.DedupeWindow, Conflict: s.ConflictResolution}
}

// ApplyOutcome counts what happened to one applied batch.
type ApplyOutcome struct {
	Applied    int64
	Updated    int64
	Duplicates int64
}

// ReplayRequest re-ingests a contract's producer data for a time range.
type ReplayRequest struct {
	ContractID     string
	TimeRange      TimeRange
	DedupeStrategy string
	BatchSize      int
	// DryRun defaults to true when nil.
	DryRun *bool
}

// BackfillRequest ingests historical data from an explicit source.
type BackfillRequest struct {
	ContractID     string
	Source         string
	TimeRange      TimeRange
	DedupeStrategy string
	BatchSize      int
	DryRun         *bool
}

// IngestionResult is the preview or execution result of a replay or backfill.
type IngestionResult struct {
	ContractID    string `json:"contract_id"`
	DryRun        bool   `json:"dry_run"`
	Batches       int    `json:"batches"`
	RowsScanned   int64  `json:"rows_scanned"`
	RowsInRange   int64  `json:"rows_in_range"`
	RowsApplied   int64  `json:"rows_applied"`
	RowsUpdated   int64  `json:"rows_updated"`
	Duplicates    int64  `json:"duplicates"`
	FinalRowCount int64  `json:"final_row_count"`
}

// LandRequest records a new physical landing of a contract's data as a SHADOW
// version of its target table.
type LandRequest struct {
	ContractID string
	Schema     Schema
	Location   string
}

// LandResult is the landed SHADOW version and, when the landed schema differs
// from the contract's, the drift report stored for it.
type LandResult struct {
	Table *Table
	Drift *DriftReport
}
