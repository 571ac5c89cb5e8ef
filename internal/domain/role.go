package domain

import "strings"

// Role is the coarse authority level of an actor.
type Role string

const (
	RoleViewer   Role = "VIEWER"
	RoleAnalyst  Role = "ANALYST"
	RoleEngineer Role = "ENGINEER"
	RoleAdmin    Role = "ADMIN"
)

// Permission names a governed capability.
type Permission string

const (
	PermQuery          Permission = "QUERY"
	PermViewShadow     Permission = "VIEW_SHADOW"
	PermCreateContract Permission = "CREATE_CONTRACT"
	PermIngest         Permission = "INGEST"
	PermPromote        Permission = "PROMOTE"
	PermDeprecate      Permission = "DEPRECATE"
)

// permissionMatrix is fixed; promote and deprecate are Admin-only.
var permissionMatrix = map[Role]map[Permission]bool{
	RoleViewer: {
		PermQuery: true,
	},
	RoleAnalyst: {
		PermQuery:      true,
		PermViewShadow: true,
	},
	RoleEngineer: {
		PermQuery:          true,
		PermViewShadow:     true,
		PermCreateContract: true,
		PermIngest:         true,
	},
	RoleAdmin: {
		PermQuery:          true,
		PermViewShadow:     true,
		PermCreateContract: true,
		PermIngest:         true,
		PermPromote:        true,
		PermDeprecate:      true,
	},
}

// Can reports whether the role holds the permission. Unknown roles hold nothing.
func (r Role) Can(p Permission) bool {
	return permissionMatrix[r][p]
}

// Valid reports whether r is one of the four known roles.
func (r Role) Valid() bool {
	_, ok := permissionMatrix[r]
	return ok
}

// ParseRole converts a case-insensitive role name into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", ErrFieldValidation("role", "unknown role %q", s)
	}
	return r, nil
}

// Actor is the authenticated identity performing an operation.
type Actor struct {
	Name string
	Role Role
}

// IsAdmin reports whether the actor holds the Admin role.
func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }
