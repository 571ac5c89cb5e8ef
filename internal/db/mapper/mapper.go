// Package mapper converts between domain values and their SQLite column forms.
package mapper

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// NullStrFromPtr converts a *string to sql.NullString.
func NullStrFromPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// PtrFromNullStr converts a sql.NullString back to *string.
func PtrFromNullStr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// NullIntFromPtr converts a *int to sql.NullInt64.
func NullIntFromPtr(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

// PtrFromNullInt converts a sql.NullInt64 back to *int.
func PtrFromNullInt(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	i := int(ni.Int64)
	return &i
}

// NullTimeFromPtr converts a *time.Time to sql.NullTime in UTC.
func NullTimeFromPtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// PtrFromNullTime converts a sql.NullTime back to *time.Time.
func PtrFromNullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

// JSON encodes v for a TEXT column.
func JSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode %T: %w", v, err)
	}
	return string(data), nil
}

// FromJSON decodes a TEXT column into v.
func FromJSON(s string, v any) error {
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	return nil
}

// Snapshot encodes v as an audit before/after snapshot. Encoding failures
// yield nil so a snapshot never blocks the audited mutation.
func Snapshot(v any) *string {
	s, err := JSON(v)
	if err != nil {
		return nil
	}
	return &s
}

// BoolToInt converts a bool to SQLite's 0/1 representation.
func BoolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
