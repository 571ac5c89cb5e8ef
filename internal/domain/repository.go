package domain

import (
	"context"
	"time"
)

// AuditRepository provides operations for audit log entries.
type AuditRepository interface {
	Insert(ctx context.Context, e *AuditEntry) error
	List(ctx context.Context, filter AuditFilter) ([]AuditEntry, int64, error)
}

// TableRepository stores immutable table versions and the per-logical-name
// ACTIVE pointer. Every mutating method writes its audit entry in the same
// transaction, before commit.
type TableRepository interface {
	CreateVersion(ctx context.Context, t *Table, audit *AuditEntry) (*Table, error)
	GetByID(ctx context.Context, id string) (*Table, error)
	ListVersions(ctx context.Context, logicalName string) ([]Table, error)
	GetPointer(ctx context.Context, logicalName string) (*TablePointer, error)
	// Swap applies a TableSwap if the pointer revision still matches, returning
	// ConcurrentModificationError otherwise.
	Swap(ctx context.Context, swap TableSwap, audit *AuditEntry) (*Table, error)
	// Deprecate moves an ACTIVE version to DEPRECATED and clears the pointer
	// under the same revision check.
	Deprecate(ctx context.Context, logicalName string, expectedRevision int64, tableID string, at time.Time, audit *AuditEntry) (*Table, error)
	ListTransitions(ctx context.Context, tableID string) ([]Transition, error)
}

// ContractRepository stores contracts and their append-only schema versions.
type ContractRepository interface {
	Create(ctx context.Context, c *Contract, audit *AuditEntry) (*Contract, error)
	// CreateWithShadow also lands shadow as a new table version in the same
	// transaction, so a failed registration leaves no table behind.
	CreateWithShadow(ctx context.Context, c *Contract, shadow *Table, audit *AuditEntry) (*Contract, error)
	GetByID(ctx context.Context, id string) (*Contract, error)
	GetByTableName(ctx context.Context, tableName string) (*Contract, error)
	List(ctx context.Context, page PageRequest) ([]Contract, int64, error)
	// AddSchemaVersion appends version expectedVersion+1 and moves the current
	// pointer, failing with ConcurrentModificationError on a stale version.
	AddSchemaVersion(ctx context.Context, contractID string, expectedVersion int, schema Schema, actor string, audit *AuditEntry) (*Contract, error)
	GetSchemaVersion(ctx context.Context, contractID string, version int) (*ContractSchemaVersion, error)
	UpdateState(ctx context.Context, contractID string, from, to ContractState) error
}

// DriftReportRepository stores drift reports.
type DriftReportRepository interface {
	Create(ctx context.Context, r *DriftReport) (*DriftReport, error)
	GetByID(ctx context.Context, id string) (*DriftReport, error)
	Latest(ctx context.Context, contractID string) (*DriftReport, error)
	ListForContract(ctx context.Context, contractID string) ([]DriftReport, error)
	Acknowledge(ctx context.Context, id, actor string, at time.Time, audit *AuditEntry) (*DriftReport, error)
}

// JoinRepository stores candidates, validation reports and accepted joins.
type JoinRepository interface {
	CreateCandidate(ctx context.Context, c *JoinCandidate) (*JoinCandidate, error)
	GetCandidate(ctx context.Context, id string) (*JoinCandidate, error)
	ListCandidates(ctx context.Context, tableA, tableB *string, state *CandidateState) ([]JoinCandidate, error)
	SetCandidateState(ctx context.Context, id string, from, to CandidateState, audit *AuditEntry) error
	SaveValidation(ctx context.Context, r *ValidationReport) (*ValidationReport, error)
	LatestValidation(ctx context.Context, candidateID string) (*ValidationReport, error)
	GetPointer(ctx context.Context, pairKey string) (*JoinPointer, error)
	// Accept appends the accepted join, supersedes the previous one and marks
	// the candidate accepted, all under the pair pointer's revision check.
	Accept(ctx context.Context, acc JoinAcceptance, audit *AuditEntry) (*AcceptedJoin, error)
	GetAccepted(ctx context.Context, joinID string) (*AcceptedJoin, error)
	ListAccepted(ctx context.Context, pairKey string) ([]AcceptedJoin, error)
}

// IngestedRowRepository stores landed rows keyed by idempotency-key hash.
type IngestedRowRepository interface {
	// Apply writes a batch, deduplicating by key hash under rules.
	Apply(ctx context.Context, contractID string, rows []IngestRow, rules DedupeRules) (ApplyOutcome, error)
	// Preview computes what Apply would do without writing.
	Preview(ctx context.Context, contractID string, rows []IngestRow, rules DedupeRules) (ApplyOutcome, error)
	// NewPreview starts a dry run that spans several batches.
	NewPreview(contractID string, rules DedupeRules) RowPreview
	Count(ctx context.Context, contractID string) (int64, error)
}

// RowPreview accumulates dry-run state across batches.
type RowPreview interface {
	Add(ctx context.Context, rows []IngestRow) (ApplyOutcome, error)
}

// JoinSampler observes join statistics over sampled data.
type JoinSampler interface {
	Sample(ctx context.Context, left, right *Table, cond JoinCondition, sampleSize int) (*JoinSample, error)
}

// RecordSource streams raw records in batches of at most batchSize.
type RecordSource interface {
	Read(ctx context.Context, batchSize int, fn func([]Record) error) error
}

// RecordSourceOpener opens a RecordSource from a URI (file://, s3://, gs://, az://).
type RecordSourceOpener interface {
	Open(ctx context.Context, uri string) (RecordSource, error)
}
