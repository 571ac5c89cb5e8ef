package api

import (
	"encoding/json"
	"time"

	"lakegov/internal/domain"
)

// === Tables ===

type tableJSON struct {
	ID           string        `json:"id"`
	LogicalName  string        `json:"logical_name"`
	State        string        `json:"state"`
	Version      int           `json:"version"`
	Schema       domain.Schema `json:"schema"`
	Owner        string        `json:"owner"`
	ContractID   *string       `json:"contract_id,omitempty"`
	Location     string        `json:"location,omitempty"`
	Supersedes   *int          `json:"supersedes,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	DeprecatedAt *time.Time    `json:"deprecated_at,omitempty"`
}

func tableToAPI(t domain.Table) tableJSON {
	if t.Schema.Columns == nil {
		t.Schema.Columns = []domain.Column{}
	}
	return tableJSON{
		ID:           t.ID,
		LogicalName:  t.LogicalName,
		State:        string(t.State),
		Version:      t.Version,
		Schema:       t.Schema,
		Owner:        t.Owner,
		ContractID:   t.ContractID,
		Location:     t.Location,
		Supersedes:   t.Supersedes,
		CreatedAt:    t.CreatedAt,
		DeprecatedAt: t.DeprecatedAt,
	}
}

type transitionJSON struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func transitionToAPI(t domain.Transition) transitionJSON {
	return transitionJSON{From: string(t.From), To: string(t.To)}
}

type resolutionJSON struct {
	Resolved   []tableJSON `json:"resolved"`
	Unresolved []string    `json:"unresolved"`
}

// === Contracts ===

type semanticsJSON struct {
	Mode                      string                `json:"mode"`
	IdempotencyKey            []string              `json:"idempotency_key"`
	EventTimeColumn           domain.TemporalColumn `json:"event_time_column"`
	ProcessingTimeColumn      domain.TemporalColumn `json:"processing_time_column"`
	DedupeWindow              string                `json:"dedupe_window"`
	ConflictResolution        string                `json:"conflict_resolution"`
	UnsafeAllowProcessingTime bool                  `json:"unsafe_allow_processing_time"`
}

type contractJSON struct {
	ID                 string        `json:"id"`
	Endpoint           string        `json:"endpoint"`
	TableName          string        `json:"table_name"`
	IngestionSemantics semanticsJSON `json:"ingestion_semantics"`
	State              string        `json:"state"`
	SchemaVersion      int           `json:"schema_version"`
	Schema             domain.Schema `json:"schema"`
	CreatedBy          string        `json:"created_by"`
	CreatedAt          time.Time     `json:"created_at"`
}

func contractToAPI(c domain.Contract) contractJSON {
	sem := c.Semantics
	if c.Schema.Columns == nil {
		c.Schema.Columns = []domain.Column{}
	}
	return contractJSON{
		ID:        c.ID,
		Endpoint:  c.ProducerEndpoint,
		TableName: c.TargetTableName,
		IngestionSemantics: semanticsJSON{
			Mode:                      string(sem.Mode),
			IdempotencyKey:            sem.IdempotencyKey,
			EventTimeColumn:           sem.EventTimeColumn,
			ProcessingTimeColumn:      sem.ProcessingTimeColumn,
			DedupeWindow:              sem.DedupeWindow.String(),
			ConflictResolution:        string(sem.ConflictResolution),
			UnsafeAllowProcessingTime: sem.UnsafeAllowProcessingTime,
		},
		State:         string(c.State),
		SchemaVersion: c.CurrentSchemaVersion,
		Schema:        c.Schema,
		CreatedBy:     c.CreatedBy,
		CreatedAt:     c.CreatedAt,
	}
}

type registrationJSON struct {
	Contract contractJSON `json:"contract"`
	Table    tableJSON    `json:"table"`
}

type schemaVersionJSON struct {
	ContractID string        `json:"contract_id"`
	Version    int           `json:"version"`
	Schema     domain.Schema `json:"schema"`
	CreatedBy  string        `json:"created_by"`
	CreatedAt  time.Time     `json:"created_at"`
}

// === Drift ===

type driftJSON struct {
	ID             string          `json:"id,omitempty"`
	ContractID     string          `json:"contract_id"`
	FromVersion    int             `json:"from_version"`
	ToVersion      int             `json:"to_version"`
	Severity       string          `json:"severity"`
	Changes        json.RawMessage `json:"changes"`
	AcknowledgedBy *string         `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time      `json:"acknowledged_at,omitempty"`
	CreatedAt      *time.Time      `json:"created_at,omitempty"`
}

func driftToAPI(d domain.DriftReport) (driftJSON, error) {
	changes, err := domain.MarshalChanges(d.Changes)
	if err != nil {
		return driftJSON{}, err
	}
	out := driftJSON{
		ID:             d.ID,
		ContractID:     d.ContractID,
		FromVersion:    d.FromVersion,
		ToVersion:      d.ToVersion,
		Severity:       string(d.Severity),
		Changes:        changes,
		AcknowledgedBy: d.AcknowledgedBy,
		AcknowledgedAt: d.AcknowledgedAt,
	}
	if !d.CreatedAt.IsZero() {
		out.CreatedAt = &d.CreatedAt
	}
	return out, nil
}

// === Joins ===

type candidateJSON struct {
	ID               string                  `json:"id"`
	TableA           string                  `json:"table_a"`
	TableB           string                  `json:"table_b"`
	Condition        domain.JoinCondition    `json:"condition"`
	DeclaredRelation string                  `json:"declared_relation"`
	Confidence       float64                 `json:"confidence"`
	RiskLevel        string                  `json:"risk_level"`
	ValidationStats  *domain.ValidationStats `json:"validation_stats,omitempty"`
	State            string                  `json:"state"`
	CreatedBy        string                  `json:"created_by"`
	CreatedAt        time.Time               `json:"created_at"`
	UpdatedAt        time.Time               `json:"updated_at"`
}

func candidateToAPI(c domain.JoinCandidate) candidateJSON {
	return candidateJSON{
		ID:               c.ID,
		TableA:           c.TableA,
		TableB:           c.TableB,
		Condition:        c.Condition,
		DeclaredRelation: string(c.DeclaredRelation),
		Confidence:       c.Confidence,
		RiskLevel:        string(c.RiskLevel),
		ValidationStats:  c.ValidationStats,
		State:            string(c.State),
		CreatedBy:        c.CreatedBy,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
}

type reportJSON struct {
	ID             string                 `json:"id"`
	CandidateID    string                 `json:"candidate_id"`
	Stats          domain.ValidationStats `json:"stats"`
	Checks         []domain.CheckResult   `json:"checks"`
	HardFailure    *domain.CheckResult    `json:"hard_failure"`
	FanOutOverride bool                   `json:"fan_out_override"`
	ValidatedBy    string                 `json:"validated_by"`
	ValidatedAt    time.Time              `json:"validated_at"`
}

func reportToAPI(r domain.ValidationReport) reportJSON {
	return reportJSON{
		ID:             r.ID,
		CandidateID:    r.CandidateID,
		Stats:          r.Stats,
		Checks:         r.Checks,
		HardFailure:    r.HardFailure(),
		FanOutOverride: r.FanOutOverride,
		ValidatedBy:    r.ValidatedBy,
		ValidatedAt:    r.ValidatedAt,
	}
}

type acceptedJSON struct {
	JoinID       string               `json:"join_id"`
	CandidateID  string               `json:"candidate_id"`
	TableA       string               `json:"table_a"`
	TableB       string               `json:"table_b"`
	Condition    domain.JoinCondition `json:"condition"`
	Version      int                  `json:"version"`
	AcceptedBy   string               `json:"accepted_by"`
	Rationale    string               `json:"rationale"`
	AcceptedAt   time.Time            `json:"accepted_at"`
	Supersedes   *string              `json:"supersedes,omitempty"`
	SupersededAt *time.Time           `json:"superseded_at,omitempty"`
}

func acceptedToAPI(j domain.AcceptedJoin) acceptedJSON {
	return acceptedJSON{
		JoinID:       j.JoinID,
		CandidateID:  j.CandidateID,
		TableA:       j.TableA,
		TableB:       j.TableB,
		Condition:    j.Condition,
		Version:      j.Version,
		AcceptedBy:   j.AcceptedBy,
		Rationale:    j.Rationale,
		AcceptedAt:   j.AcceptedAt,
		Supersedes:   j.Supersedes,
		SupersededAt: j.SupersededAt,
	}
}

// === Audit ===

type auditJSON struct {
	ID         string          `json:"id"`
	Actor      string          `json:"actor"`
	Role       string          `json:"role"`
	Action     string          `json:"action"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
	Reason     *string         `json:"reason,omitempty"`
	Status     string          `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
}

func auditToAPI(e domain.AuditEntry) auditJSON {
	return auditJSON{
		ID:         e.ID,
		Actor:      e.Actor,
		Role:       string(e.Role),
		Action:     e.Action,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Before:     rawSnapshot(e.Before),
		After:      rawSnapshot(e.After),
		Reason:     e.Reason,
		Status:     e.Status,
		CreatedAt:  e.CreatedAt,
	}
}

// rawSnapshot embeds a stored JSON snapshot verbatim. Anything that is not
// valid JSON is embedded as a string.
func rawSnapshot(s *string) json.RawMessage {
	if s == nil {
		return nil
	}
	if json.Valid([]byte(*s)) {
		return json.RawMessage(*s)
	}
	quoted, _ := json.Marshal(*s)
	return quoted
}
