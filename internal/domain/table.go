package domain

import (
	"fmt"
	"time"
)

// TableState is the lifecycle state of a table version.
type TableState string

const (
	TableShadow     TableState = "SHADOW"
	TableActive     TableState = "ACTIVE"
	TableDeprecated TableState = "DEPRECATED"
	TableReadOnly   TableState = "READ_ONLY"
)

// ParseTableState converts a state name into a TableState.
func ParseTableState(s string) (TableState, error) {
	switch st := TableState(s); st {
	case TableShadow, TableActive, TableDeprecated, TableReadOnly:
		return st, nil
	default:
		return "", ErrFieldValidation("state", "unknown table state %q", s)
	}
}

// Transition is a directed edge in the table lifecycle graph.
type Transition struct {
	From TableState
	To   TableState
}

// transitionPermission maps every legal edge to the permission it requires.
// READ_ONLY has no edges; SHADOW is only ever left through promotion.
var transitionPermission = map[Transition]Permission{
	{From: TableShadow, To: TableActive}:     PermPromote,
	{From: TableActive, To: TableDeprecated}: PermDeprecate,
	{From: TableDeprecated, To: TableActive}: PermDeprecate,
}

// CheckTransition returns the permission required for from -> to, or an
// InvalidTransitionError when the edge does not exist.
func CheckTransition(tableID string, from, to TableState) (Permission, error) {
	perm, ok := transitionPermission[Transition{From: from, To: to}]
	if !ok {
		return "", &InvalidTransitionError{EntityID: tableID, From: from, To: to}
	}
	return perm, nil
}

// Column describes one column of a schema snapshot.
type Column struct {
	Name     string  `json:"name" yaml:"name"`
	Type     string  `json:"type" yaml:"type"`
	Nullable bool    `json:"nullable" yaml:"nullable"`
	Default  *string `json:"default,omitempty" yaml:"default,omitempty"`
}

// Schema is an ordered snapshot of a table's columns.
type Schema struct {
	Columns []Column `json:"columns" yaml:"columns"`
}

// Column returns the named column, if present.
func (s Schema) Column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Equal reports whether s and o list the same columns in the same order.
func (s Schema) Equal(o Schema) bool {
	if len(s.Columns) != len(o.Columns) {
		return false
	}
	for i, c := range s.Columns {
		d := o.Columns[i]
		if c.Name != d.Name || c.Type != d.Type || c.Nullable != d.Nullable {
			return false
		}
		if (c.Default == nil) != (d.Default == nil) || (c.Default != nil && *c.Default != *d.Default) {
			return false
		}
	}
	return true
}

// Validate checks that column names are present and unique.
func (s Schema) Validate() error {
	seen := make(map[string]bool, len(s.Columns))
	for i, c := range s.Columns {
		if c.Name == "" {
			return ErrFieldValidation(fmt.Sprintf("schema.columns[%d].name", i), "is required")
		}
		if c.Type == "" {
			return ErrFieldValidation(fmt.Sprintf("schema.columns[%d].type", i), "is required")
		}
		if seen[c.Name] {
			return ErrFieldValidation("schema.columns", "duplicate column %q", c.Name)
		}
		seen[c.Name] = true
	}
	return nil
}

// Table is one immutable version of a logical table. Only State and
// DeprecatedAt change after creation.
type Table struct {
	ID           string
	LogicalName  string
	State        TableState
	Version      int
	Schema       Schema
	Owner        string
	ContractID   *string
	Location     string
	Supersedes   *int
	CreatedAt    time.Time
	DeprecatedAt *time.Time
}

// TablePointer is the single mutable "current ACTIVE version" pointer of a
// logical name. Revision increments on every committed swap.
type TablePointer struct {
	LogicalName    string
	CurrentTableID *string
	Revision       int64
}

// TableSwap describes one compare-and-swap on a logical name's pointer.
// Target moves to TargetState; Displaced (the previously ACTIVE version, if
// any) moves to DEPRECATED in the same transaction.
type TableSwap struct {
	LogicalName      string
	ExpectedRevision int64
	TargetID         string
	TargetFrom       TableState
	TargetState      TableState
	DisplacedID      *string
	Actor            string
	At               time.Time
}

// RegisterShadowRequest holds parameters for landing a new SHADOW version.
type RegisterShadowRequest struct {
	LogicalName string
	Schema      Schema
	Owner       string
	ContractID  *string
	Location    string
}

// Validate checks that the request is well-formed.
func (r *RegisterShadowRequest) Validate() error {
	if r.LogicalName == "" {
		return ErrFieldValidation("logical_name", "is required")
	}
	return r.Schema.Validate()
}

// PromoteOptions tunes a promotion request.
type PromoteOptions struct {
	// ExpectedRevision, when set, disables automatic CAS retry.
	ExpectedRevision    *int64
	AcknowledgeWarnings bool
	DryRun              bool
}

// TransitionRequest asks for one lifecycle edge. From, when set, must equal
// the table's current state.
type TransitionRequest struct {
	From    *TableState
	To      TableState
	Reason  string
	Promote PromoteOptions
}

// RegisterExternalRequest holds parameters for registering a READ_ONLY table
// owned outside the governed ingestion path.
type RegisterExternalRequest struct {
	LogicalName string
	Schema      Schema
	Owner       string
	Location    string
}

// Validate checks that the request is well-formed.
func (r *RegisterExternalRequest) Validate() error {
	if r.LogicalName == "" {
		return ErrFieldValidation("logical_name", "is required")
	}
	if r.Location == "" {
		return ErrFieldValidation("location", "is required for external tables")
	}
	return r.Schema.Validate()
}

// Resolution is the explicit partial result of resolving several names.
type Resolution struct {
	Resolved   []Table
	Unresolved []string
}
