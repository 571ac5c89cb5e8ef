package domain

import "time"

// Audit statuses.
const (
	AuditAllowed = "ALLOWED"
	AuditDenied  = "DENIED"
)

// Audit actions.
const (
	ActionRegisterShadow   = "REGISTER_SHADOW"
	ActionRegisterExternal = "REGISTER_EXTERNAL"
	ActionPromote          = "PROMOTE"
	ActionDeprecate        = "DEPRECATE"
	ActionRestore          = "RESTORE"
	ActionRegisterContract = "REGISTER_CONTRACT"
	ActionContractVersion  = "CREATE_CONTRACT_VERSION"
	ActionAcceptJoin       = "ACCEPT_JOIN"
	ActionRejectJoin       = "REJECT_JOIN"
	ActionAcknowledgeDrift = "ACKNOWLEDGE_DRIFT"
	ActionDetectDrift      = "DETECT_DRIFT"
	ActionProposeJoin      = "PROPOSE_JOIN"
	ActionValidateJoin     = "VALIDATE_JOIN"
	ActionResolve          = "RESOLVE"
	ActionListAudit        = "LIST_AUDIT"
	ActionGetTable         = "GET_TABLE"
	ActionGetContract      = "GET_CONTRACT"
	ActionTableHistory     = "TABLE_HISTORY"
	ActionReplay           = "REPLAY"
	ActionBackfill         = "BACKFILL"
)

// Audited entity types.
const (
	EntityTable         = "table"
	EntityContract      = "contract"
	EntityJoinCandidate = "join_candidate"
	EntityDriftReport   = "drift_report"
)

// AuditEntry represents a single audit log record. Before and After hold JSON
// snapshots of the entity around the mutation.
type AuditEntry struct {
	ID         string
	Actor      string
	Role       Role
	Action     string
	EntityType string
	EntityID   string
	Before     *string
	After      *string
	Reason     *string
	Status     string
	CreatedAt  time.Time
}

// AuditFilter holds filter parameters for querying audit logs.
type AuditFilter struct {
	Actor      *string
	Action     *string
	EntityType *string
	EntityID   *string
	Status     *string
	Since      *time.Time
	Until      *time.Time
	Page       PageRequest
}
