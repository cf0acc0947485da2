package enums

import (
	"fmt"
	"strings"
)

// UserRole maps to the user_role enum owned by the identity service.
type UserRole string

const (
	UserRoleAdmin UserRole = "admin"
	UserRoleDev   UserRole = "dev"
	UserRoleUser  UserRole = "user"
)

var validUserRoles = []UserRole{UserRoleAdmin, UserRoleDev, UserRoleUser}

// PrivilegedRoles lists the roles allowed to review budgets.
var PrivilegedRoles = []UserRole{UserRoleAdmin, UserRoleDev}

func (r UserRole) String() string {
	return string(r)
}

func (r UserRole) IsValid() bool {
	for _, candidate := range validUserRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// IsPrivileged reports whether the role may act on any user's budget.
func (r UserRole) IsPrivileged() bool {
	for _, candidate := range PrivilegedRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseUserRole converts raw input into a UserRole. Matching ignores case.
func ParseUserRole(value string) (UserRole, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validUserRoles {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid user role %q", value)
}
