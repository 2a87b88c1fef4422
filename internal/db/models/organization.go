// Package models - organization.go defines the Organization model, the tenant that
// owns members and documents. Organization names are globally unique.
package models

import "time"

// Organization represents a tenant organization
type Organization struct {
	ID        string    `json:"organizationId"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
