// Package models - user.go defines the User model for organization members: a
// username unique within the organization, a globally unique email, and the
// bcrypt password hash that never leaves the server.
package models

import "time"

// User represents a member of an organization
type User struct {
	ID             string        `json:"userId"`
	OrganizationID string        `json:"-"`
	Organization   *Organization `json:"organization,omitempty"`
	Username       string        `json:"username"`
	Email          string        `json:"email"`
	PasswordHash   string        `json:"-"`
	Name           string        `json:"name"`
	Position       string        `json:"position"`
	Role           string        `json:"role"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// IsAdmin returns true if the user holds the admin role in their organization
func (u *User) IsAdmin() bool {
	return u.Role == "admin"
}

// OrganizationName returns the name of the user's organization, or "" when it
// has not been loaded.
func (u *User) OrganizationName() string {
	if u.Organization == nil {
		return ""
	}
	return u.Organization.Name
}
