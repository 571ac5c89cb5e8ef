package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// IngestMode is how a producer's rows are applied.
type IngestMode string

const (
	IngestAppend IngestMode = "append"
	IngestUpsert IngestMode = "upsert"
)

// ConflictResolution decides what happens when a deduplicated key reappears
// with a different payload.
type ConflictResolution string

const (
	ConflictLatestWins ConflictResolution = "latest_wins"
	ConflictFail       ConflictResolution = "error"
)

// TimeSource tags where a temporal column's values come from.
type TimeSource string

const (
	TimeSourceEvent     TimeSource = "event"
	TimeSourceProducer  TimeSource = "producer"
	TimeSourceWallClock TimeSource = "wall_clock"
)

// ContractState is the lifecycle state of an ingestion contract.
type ContractState string

const (
	ContractPending    ContractState = "pending"
	ContractActive     ContractState = "active"
	ContractDeprecated ContractState = "deprecated"
)

// TemporalColumn is a time column with an explicit source tag.
type TemporalColumn struct {
	Name   string     `json:"name"`
	Source TimeSource `json:"source"`
}

// IngestionSemantics is the fully-populated ingestion contract. Values of this
// type are only produced by contract validation, so every field is set.
type IngestionSemantics struct {
	Mode                      IngestMode         `json:"mode"`
	IdempotencyKey            []string           `json:"idempotency_key"`
	EventTimeColumn           TemporalColumn     `json:"event_time_column"`
	ProcessingTimeColumn      TemporalColumn     `json:"processing_time_column"`
	DedupeWindow              time.Duration      `json:"dedupe_window"`
	ConflictResolution        ConflictResolution `json:"conflict_resolution"`
	UnsafeAllowProcessingTime bool               `json:"unsafe_allow_processing_time"`
}

// Contract binds a producer endpoint to a target table.
type Contract struct {
	ID                   string
	ProducerEndpoint     string
	TargetTableName      string
	Semantics            IngestionSemantics
	State                ContractState
	CurrentSchemaVersion int
	Schema               Schema
	CreatedBy            string
	CreatedAt            time.Time
}

// ContractSchemaVersion is one append-only schema version of a contract.
type ContractSchemaVersion struct {
	ContractID string
	Version    int
	Schema     Schema
	CreatedBy  string
	CreatedAt  time.Time
}

// TemporalColumnDraft is the unvalidated form of a TemporalColumn.
type TemporalColumnDraft struct {
	Name   *string `json:"name" yaml:"name" validate:"required,min=1"`
	Source *string `json:"source" yaml:"source" validate:"required,oneof=event producer wall_clock"`
}

func bareTemporalColumn(name string) error {
	return fmt.Errorf(`temporal column %q must be given as an object {"name": %q, "source": "event|producer|wall_clock"}`, name, name)
}

// UnmarshalJSON rejects the bare column-name form with a message naming the
// required object form.
func (d *TemporalColumnDraft) UnmarshalJSON(data []byte) error {
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '"' {
		var name string
		if err := json.Unmarshal(trimmed, &name); err != nil {
			return err
		}
		return bareTemporalColumn(name)
	}
	type plain TemporalColumnDraft
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode((*plain)(d))
}

// UnmarshalYAML is the YAML counterpart of UnmarshalJSON.
func (d *TemporalColumnDraft) UnmarshalYAML(unmarshal func(any) error) error {
	var name string
	if err := unmarshal(&name); err == nil {
		return bareTemporalColumn(name)
	}
	type plain TemporalColumnDraft
	return unmarshal((*plain)(d))
}

// IngestionSemanticsDraft is the unvalidated form of IngestionSemantics.
// Pointer fields distinguish "missing" from "zero".
type IngestionSemanticsDraft struct {
	Mode                      *string              `json:"mode" yaml:"mode" validate:"required,oneof=append upsert"`
	IdempotencyKey            []string             `json:"idempotency_key" yaml:"idempotency_key" validate:"required,min=1,dive,required"`
	EventTimeColumn           *TemporalColumnDraft `json:"event_time_column" yaml:"event_time_column" validate:"required"`
	ProcessingTimeColumn      *TemporalColumnDraft `json:"processing_time_column" yaml:"processing_time_column" validate:"required"`
	DedupeWindow              *string              `json:"dedupe_window" yaml:"dedupe_window" validate:"required,min=1"`
	ConflictResolution        *string              `json:"conflict_resolution" yaml:"conflict_resolution" validate:"required,oneof=latest_wins error"`
	UnsafeAllowProcessingTime bool                 `json:"unsafe_allow_processing_time" yaml:"unsafe_allow_processing_time"`
}

// ContractDraft is a contract registration request.
type ContractDraft struct {
	ProducerEndpoint  *string                  `json:"endpoint" yaml:"endpoint" validate:"required,min=1"`
	TargetTableName   *string                  `json:"table_name" yaml:"table_name" validate:"required,min=1"`
	IngestionSemantic *IngestionSemanticsDraft `json:"ingestion_semantics" yaml:"ingestion_semantics" validate:"required"`
	Schema            *Schema                  `json:"schema,omitempty" yaml:"schema,omitempty"`
	Location          string                   `json:"location,omitempty" yaml:"location,omitempty"`
}

// ParseDedupeWindow parses a Go duration, additionally accepting a whole
// number of days with a "d" suffix (e.g. "7d").
func ParseDedupeWindow(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return 0, fmt.Errorf("invalid day count in %q", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

// ContractRegistration is a registered contract and the SHADOW table version
// created for it.
type ContractRegistration struct {
	Contract *Contract
	Table    *Table
}
