// Package auth - roles.go defines the member roles used to authorize
// organization-level operations such as registering new members.
package auth

import "fmt"

// Role represents a member's role within their organization
type Role string

const (
	// RoleAdmin may register members and read the organization's activity log
	RoleAdmin Role = "admin"
	// RoleMember is the default role for registered members
	RoleMember Role = "member"
)

// AllRoles returns all valid roles
func AllRoles() []Role {
	return []Role{RoleAdmin, RoleMember}
}

// ParseRole converts a string into a Role
func ParseRole(s string) (Role, error) {
	for _, r := range AllRoles() {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("invalid role: %s", s)
}

// Satisfies reports whether role grants at least the permissions of required.
// Admins satisfy every role.
func (r Role) Satisfies(required Role) bool {
	if r == RoleAdmin {
		return true
	}
	return r == required
}
