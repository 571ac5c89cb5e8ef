package domain

import (
	"fmt"
	"strings"
	"time"
)

// RiskLevel is derived from a candidate's confidence score.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// RiskForConfidence maps confidence to a risk level:
// >= 0.8 low, [0.5, 0.8) medium, < 0.5 high.
func RiskForConfidence(confidence float64) RiskLevel {
	switch {
	case confidence >= 0.8:
		return RiskLow
	case confidence >= 0.5:
		return RiskMedium
	default:
		return RiskHigh
	}
}

// CandidateState is the review state of a join candidate.
type CandidateState string

const (
	CandidateProposed   CandidateState = "proposed"
	CandidateAccepted   CandidateState = "accepted"
	CandidateRejected   CandidateState = "rejected"
	CandidateDeprecated CandidateState = "deprecated"
)

// CardinalityRelation describes how many right rows match a left row.
type CardinalityRelation string

const (
	RelationOneToOne   CardinalityRelation = "one_to_one"
	RelationOneToMany  CardinalityRelation = "one_to_many"
	RelationManyToOne  CardinalityRelation = "many_to_one"
	RelationManyToMany CardinalityRelation = "many_to_many"
)

// ParseDeclaredRelation accepts the relations a candidate may declare.
func ParseDeclaredRelation(s string) (CardinalityRelation, error) {
	switch r := CardinalityRelation(s); r {
	case RelationOneToOne, RelationOneToMany:
		return r, nil
	default:
		return "", ErrFieldValidation("declared_relation", "must be one_to_one or one_to_many, got %q", s)
	}
}

// JoinCondition is an equi-join on pairwise columns.
type JoinCondition struct {
	LeftColumns  []string `json:"left_columns"`
	RightColumns []string `json:"right_columns"`
}

// Validate checks that the condition pairs at least one column on each side.
func (c JoinCondition) Validate() error {
	if len(c.LeftColumns) == 0 {
		return ErrFieldValidation("condition.left_columns", "must not be empty")
	}
	if len(c.LeftColumns) != len(c.RightColumns) {
		return ErrFieldValidation("condition", "left and right column counts differ (%d vs %d)",
			len(c.LeftColumns), len(c.RightColumns))
	}
	return nil
}

// String renders the condition as "a.x = b.y AND ...".
func (c JoinCondition) String() string {
	parts := make([]string, len(c.LeftColumns))
	for i := range c.LeftColumns {
		parts[i] = fmt.Sprintf("a.%s = b.%s", c.LeftColumns[i], c.RightColumns[i])
	}
	return strings.Join(parts, " AND ")
}

// ValidationStats are the sampled statistics of a join.
type ValidationStats struct {
	CardinalityRelation CardinalityRelation `json:"cardinality_relation"`
	NullPercentage      float64             `json:"null_percentage"`
	FanOutMultiplier    float64             `json:"fan_out_multiplier"`
	SampleSize          int64               `json:"sample_size"`
}

// JoinCandidate is a scored, unaccepted join suggestion. It confers no
// permission on its own.
type JoinCandidate struct {
	ID               string
	TableA           string
	TableB           string
	Condition        JoinCondition
	DeclaredRelation CardinalityRelation
	Confidence       float64
	RiskLevel        RiskLevel
	ValidationStats  *ValidationStats
	State            CandidateState
	CreatedBy        string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// JoinSample is what a sampler observes for a candidate.
type JoinSample struct {
	LeftRows         int64
	DistinctLeftKeys int64
	JoinedRows       int64
	MaxFanOut        int64
	NullKeyRows      int64
}

// CheckOutcome is the result of one validation check.
type CheckOutcome string

const (
	CheckPass CheckOutcome = "pass"
	CheckWarn CheckOutcome = "warn"
	CheckFail CheckOutcome = "fail"
)

// Validation check names.
const (
	CheckCardinality = "cardinality"
	CheckNullKeys    = "null_percentage"
	CheckFanOut      = "fan_out"
)

// CheckResult is one check within a validation report.
type CheckResult struct {
	Name    string       `json:"name"`
	Outcome CheckOutcome `json:"outcome"`
	Detail  string       `json:"detail"`
}

// ValidationReport is the persisted outcome of validating a candidate.
type ValidationReport struct {
	ID             string
	CandidateID    string
	Stats          ValidationStats
	Checks         []CheckResult
	FanOutOverride bool
	ValidatedBy    string
	ValidatedAt    time.Time
}

// HardFailure returns the first failing check, honouring the fan-out override.
// Cardinality failures are never overridable.
func (r *ValidationReport) HardFailure() *CheckResult {
	for i := range r.Checks {
		c := &r.Checks[i]
		if c.Outcome != CheckFail {
			continue
		}
		if c.Name == CheckFanOut && r.FanOutOverride {
			continue
		}
		return c
	}
	return nil
}

// AcceptedJoin is a versioned, explicitly accepted join. It is the only thing
// that makes a join usable by the query layer.
type AcceptedJoin struct {
	JoinID       string
	CandidateID  string
	TableA       string
	TableB       string
	Condition    JoinCondition
	Version      int
	AcceptedBy   string
	Rationale    string
	AcceptedAt   time.Time
	Supersedes   *string
	SupersededAt *time.Time
}

// JoinPairKey is the order-independent key of a table pair.
func JoinPairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// JoinAcceptance describes one compare-and-swap on a table pair's accepted
// join pointer. The candidate moves proposed -> accepted in the same
// transaction.
type JoinAcceptance struct {
	PairKey          string
	ExpectedRevision int64
	Join             AcceptedJoin
}

// JoinPointer is the mutable "current accepted join" pointer of a table pair.
type JoinPointer struct {
	PairKey       string
	CurrentJoinID *string
	Revision      int64
}

// ProposeRequest holds parameters for proposing a join.
type ProposeRequest struct {
	TableA           string
	TableB           string
	Condition        *JoinCondition
	DeclaredRelation CardinalityRelation
}

// AcceptOptions tunes a join acceptance.
type AcceptOptions struct {
	OverrideFanOut bool
}
