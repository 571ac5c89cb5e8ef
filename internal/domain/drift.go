package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// DriftSeverity orders drift outcomes: compatible < warning < breaking.
type DriftSeverity string

const (
	DriftCompatible DriftSeverity = "compatible"
	DriftWarning    DriftSeverity = "warning"
	DriftBreaking   DriftSeverity = "breaking"
)

func (s DriftSeverity) rank() int {
	switch s {
	case DriftCompatible:
		return 0
	case DriftWarning:
		return 1
	case DriftBreaking:
		return 2
	}
	// Unknown severities are treated as breaking.
	return 2
}

// MaxSeverity returns the more severe of a and b.
func MaxSeverity(a, b DriftSeverity) DriftSeverity {
	if b.rank() > a.rank() {
		return b
	}
	return a
}

// ChangeKind tags a Change variant.
type ChangeKind string

const (
	ChangeAdd        ChangeKind = "add"
	ChangeRemove     ChangeKind = "remove"
	ChangeRename     ChangeKind = "rename"
	ChangeTypeChange ChangeKind = "type_change"
)

// Change is a closed set of schema differences. Only the types in this file
// implement it.
type Change interface {
	Kind() ChangeKind
	Severity() DriftSeverity
	Describe() string
	isChange()
}

// ColumnAdded is a column present only in the new schema.
type ColumnAdded struct {
	Column   Column
	severity DriftSeverity
}

// ColumnRemoved is a column present only in the old schema.
type ColumnRemoved struct {
	Column Column
}

// ColumnRenamed is a heuristically matched remove+add pair.
type ColumnRenamed struct {
	Old        string
	New        string
	Similarity float64
}

// ColumnTypeChanged is a same-named column whose type or nullability changed.
type ColumnTypeChanged struct {
	Column   string
	OldType  string
	NewType  string
	Reason   string
	severity DriftSeverity
}

// NewColumnAdded builds an Add change with its classified severity.
func NewColumnAdded(c Column, sev DriftSeverity) ColumnAdded {
	return ColumnAdded{Column: c, severity: sev}
}

// NewColumnTypeChanged builds a TypeChange with its classified severity.
func NewColumnTypeChanged(column, oldType, newType, reason string, sev DriftSeverity) ColumnTypeChanged {
	return ColumnTypeChanged{Column: column, OldType: oldType, NewType: newType, Reason: reason, severity: sev}
}

func (c ColumnAdded) Kind() ChangeKind        { return ChangeAdd }
func (c ColumnAdded) Severity() DriftSeverity { return c.severity }
func (c ColumnAdded) Describe() string        { return fmt.Sprintf("add column %s %s", c.Column.Name, c.Column.Type) }
func (ColumnAdded) isChange()                 {}

func (c ColumnRemoved) Kind() ChangeKind        { return ChangeRemove }
func (c ColumnRemoved) Severity() DriftSeverity { return DriftBreaking }
func (c ColumnRemoved) Describe() string        { return fmt.Sprintf("remove column %s", c.Column.Name) }
func (ColumnRemoved) isChange()                 {}

func (c ColumnRenamed) Kind() ChangeKind { return ChangeRename }

// Severity is always breaking; renames are never auto-applied.
func (c ColumnRenamed) Severity() DriftSeverity { return DriftBreaking }
func (c ColumnRenamed) Describe() string {
	return fmt.Sprintf("rename column %s -> %s (similarity %.2f)", c.Old, c.New, c.Similarity)
}
func (ColumnRenamed) isChange() {}

func (c ColumnTypeChanged) Kind() ChangeKind        { return ChangeTypeChange }
func (c ColumnTypeChanged) Severity() DriftSeverity { return c.severity }
func (c ColumnTypeChanged) Describe() string {
	return fmt.Sprintf("change column %s %s -> %s (%s)", c.Column, c.OldType, c.NewType, c.Reason)
}
func (ColumnTypeChanged) isChange() {}

// DriftReport is the classified difference between two schema versions.
type DriftReport struct {
	ID             string
	ContractID     string
	FromVersion    int
	ToVersion      int
	Changes        []Change
	Severity       DriftSeverity
	AcknowledgedBy *string
	AcknowledgedAt *time.Time
	CreatedAt      time.Time
}

// changeRecord is the wire/storage form of a Change.
type changeRecord struct {
	Kind       ChangeKind    `json:"kind"`
	Severity   DriftSeverity `json:"severity"`
	Column     *Column       `json:"column,omitempty"`
	Name       string        `json:"name,omitempty"`
	Old        string        `json:"old,omitempty"`
	New        string        `json:"new,omitempty"`
	OldType    string        `json:"old_type,omitempty"`
	NewType    string        `json:"new_type,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	Similarity float64       `json:"similarity,omitempty"`
}

// MarshalChanges encodes changes into their tagged JSON form.
func MarshalChanges(changes []Change) ([]byte, error) {
	recs := make([]changeRecord, 0, len(changes))
	for _, ch := range changes {
		rec := changeRecord{Kind: ch.Kind(), Severity: ch.Severity()}
		switch c := ch.(type) {
		case ColumnAdded:
			col := c.Column
			rec.Column = &col
		case ColumnRemoved:
			col := c.Column
			rec.Column = &col
		case ColumnRenamed:
			rec.Old, rec.New, rec.Similarity = c.Old, c.New, c.Similarity
		case ColumnTypeChanged:
			rec.Name, rec.OldType, rec.NewType, rec.Reason = c.Column, c.OldType, c.NewType, c.Reason
		default:
			return nil, fmt.Errorf("unknown change type %T", ch)
		}
		recs = append(recs, rec)
	}
	return json.Marshal(recs)
}

// UnmarshalChanges decodes the tagged JSON form produced by MarshalChanges.
func UnmarshalChanges(data []byte) ([]Change, error) {
	var recs []changeRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, err
	}
	out := make([]Change, 0, len(recs))
	for _, rec := range recs {
		switch rec.Kind {
		case ChangeAdd:
			if rec.Column == nil {
				return nil, fmt.Errorf("add change without column")
			}
			out = append(out, NewColumnAdded(*rec.Column, rec.Severity))
		case ChangeRemove:
			if rec.Column == nil {
				return nil, fmt.Errorf("remove change without column")
			}
			out = append(out, ColumnRemoved{Column: *rec.Column})
		case ChangeRename:
			out = append(out, ColumnRenamed{Old: rec.Old, New: rec.New, Similarity: rec.Similarity})
		case ChangeTypeChange:
			out = append(out, NewColumnTypeChanged(rec.Name, rec.OldType, rec.NewType, rec.Reason, rec.Severity))
		default:
			return nil, fmt.Errorf("unknown change kind %q", rec.Kind)
		}
	}
	return out, nil
}
