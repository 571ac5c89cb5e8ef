// Package domain defines core types, interfaces, and errors for the governance layer.
package domain

import (
	"fmt"
	"strings"
)

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ConflictError indicates a conflict (e.g., duplicate resource).
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// ValidationError indicates incomplete or malformed input. Field names the
// offending input field when the failure is attributable to a single one.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// UnauthorizedError indicates the actor's role lacks the required permission.
// It is never retried automatically.
type UnauthorizedError struct {
	Actor      string
	Role       Role
	Permission Permission
	EntityID   string
}

func (e *UnauthorizedError) Error() string {
	if e.EntityID == "" {
		return fmt.Sprintf("actor %q with role %s lacks permission %s", e.Actor, e.Role, e.Permission)
	}
	return fmt.Sprintf("actor %q with role %s lacks permission %s on %s", e.Actor, e.Role, e.Permission, e.EntityID)
}

// InvalidTransitionError indicates a requested lifecycle edge that does not
// exist in the table state graph.
// ClaimedFrom is set when the caller named a source state that is not the
// table's current one.
type InvalidTransitionError struct {
	EntityID    string
	From        TableState
	To          TableState
	ClaimedFrom TableState
}

func (e *InvalidTransitionError) Error() string {
	if e.ClaimedFrom != "" {
		return fmt.Sprintf("table %s: requested transition %s -> %s but the table is %s",
			e.EntityID, e.ClaimedFrom, e.To, e.From)
	}
	return fmt.Sprintf("table %s: transition %s -> %s is not permitted", e.EntityID, e.From, e.To)
}

// ConcurrentModificationError indicates an optimistic compare-and-swap lost a
// race. Callers may retry against fresh state.
type ConcurrentModificationError struct {
	EntityID         string
	ExpectedRevision int64
	ActualRevision   int64
	Attempts         int
}

func (e *ConcurrentModificationError) Error() string {
	msg := fmt.Sprintf("%s: concurrent modification (expected revision %d, found %d)",
		e.EntityID, e.ExpectedRevision, e.ActualRevision)
	if e.Attempts > 1 {
		msg += fmt.Sprintf(" after %d attempts", e.Attempts)
	}
	return msg
}

// JoinValidationError indicates a hard join validation failure. Check names
// the failing check (cardinality, fan_out, not_validated, ...).
type JoinValidationError struct {
	CandidateID string
	Check       string
	Detail      string
}

func (e *JoinValidationError) Error() string {
	return fmt.Sprintf("join candidate %s failed %s check: %s", e.CandidateID, e.Check, e.Detail)
}

// DriftBreakingChangeError indicates that promotion is gated by a drift report.
// Severity is breaking for an unversioned breaking change or warning for an
// unacknowledged warning report.
type DriftBreakingChangeError struct {
	TableID    string
	ContractID string
	ReportID   string
	Severity   DriftSeverity
}

func (e *DriftBreakingChangeError) Error() string {
	if e.Severity == DriftWarning {
		return fmt.Sprintf("table %s: promotion blocked by unacknowledged drift report %s (contract %s, severity warning)",
			e.TableID, e.ReportID, e.ContractID)
	}
	return fmt.Sprintf("table %s: promotion blocked by breaking drift report %s (contract %s); create a new logical version",
		e.TableID, e.ReportID, e.ContractID)
}

// UnresolvedTableError lists the requested table names that have no eligible
// artifact under the resolution policy.
type UnresolvedTableError struct {
	Names []string
}

func (e *UnresolvedTableError) Error() string {
	return fmt.Sprintf("unresolved table(s): %s", strings.Join(e.Names, ", "))
}

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrConflict creates a ConflictError with a formatted message.
func ErrConflict(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrFieldValidation creates a ValidationError attributed to a single field.
func ErrFieldValidation(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: field + ": " + fmt.Sprintf(format, args...)}
}

// ErrUnauthorized creates an UnauthorizedError for the actor and permission.
func ErrUnauthorized(actor Actor, perm Permission, entityID string) *UnauthorizedError {
	return &UnauthorizedError{Actor: actor.Name, Role: actor.Role, Permission: perm, EntityID: entityID}
}
