package auth

import "sort"

// Role is the closed set of user roles
type Role string

const (
	// RoleUser is a regular account
	RoleUser Role = "user"
	// RoleAdmin is an elevated account
	RoleAdmin Role = "admin"
)

// IsValid checks if the role is one of the predefined roles
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleAdmin:
		return true
	default:
		return false
	}
}

// GetAllRoles returns all roles in presentation order
func GetAllRoles() []Role {
	return []Role{
		RoleUser,
		RoleAdmin,
	}
}

// ParseRole safely parses a string into a Role
func ParseRole(s string) (Role, bool) {
	role := Role(s)
	return role, role.IsValid()
}

// RoleSet is a membership set of roles declared on a route.
type RoleSet map[Role]struct{}

// Roles builds a RoleSet from the given roles
func Roles(roles ...Role) RoleSet {
	set := make(RoleSet, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}

// Has reports membership. Order between roles is never consulted.
func (s RoleSet) Has(role Role) bool {
	if len(s) == 0 {
		return false
	}
	_, ok := s[role]
	return ok
}

// Empty reports whether the set declares no requirement
func (s RoleSet) Empty() bool {
	return len(s) == 0
}

// Slice returns the roles sorted by name, for logs and error metadata
func (s RoleSet) Slice() []string {
	out := make([]string, 0, len(s))
	for r := range s {
		out = append(out, string(r))
	}
	sort.Strings(out)
	return out
}
