// Package models - log_entry.go defines the LogEntry model, the persisted record of
// authentication and document activity written by the activity recorder.
package models

import "time"

// LogEntry represents one activity log record
type LogEntry struct {
	ID             int64     `json:"id"`
	Level          string    `json:"level"`      // "INFO", "WARN", "ERROR"
	Message        string    `json:"message"`
	RequestURI     string    `json:"requestUri"` // e.g. "/auth/login"
	UserID         *string   `json:"userId,omitempty"`
	OrganizationID *string   `json:"organizationId,omitempty"`
	RequestID      *string   `json:"requestId,omitempty"`
	CreatedAt      time.Time `json:"timestamp"`
}
