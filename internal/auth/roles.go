package auth

import (
	"strings"

	"github.com/imrishuroy/go-meatshop-orderflow/internal/apperr"
)

// Role is the normalized access level of an authenticated caller.
type Role string

const (
	RoleUser  Role = "user"
	RoleStaff Role = "staff"
	RoleAdmin Role = "admin"
)

// ParseRole normalizes a role claim. Unknown values resolve to RoleUser.
func ParseRole(s string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin
	case RoleStaff:
		return RoleStaff
	default:
		return RoleUser
	}
}

// Identity is a verified caller.
type Identity struct {
	UID  string
	Role Role
}

// Elevated reports whether the caller may bypass the 24-hour modification
// window and activate EMERGENCY mode.
func (id Identity) Elevated() bool {
	return id.Role == RoleAdmin
}

// RequireRole returns a 403 error unless id holds one of the allowed roles.
func RequireRole(id Identity, allowed ...Role) error {
	for _, r := range allowed {
		if id.Role == r {
			return nil
		}
	}
	return apperr.Forbidden("Acceso denegado: Privilegios insuficientes")
}
