// Package models - document.go defines the Document model: an uploaded file with
// its keyed digest, used to prove later that a copy has not been altered.
package models

import "time"

// Document represents a stored document and its integrity fingerprints
type Document struct {
	ID             string    `db:"id" json:"documentId"`
	OrganizationID string    `db:"organization_id" json:"organizationId"`
	UploadedBy     string    `db:"uploaded_by" json:"uploadedBy"`
	Name           string    `db:"name" json:"name"`
	StoragePath    string    `db:"storage_path" json:"-"`
	Size           int64     `db:"size" json:"size"`
	Digest         string    `db:"digest" json:"digest"`
	Algorithm      string    `db:"algorithm" json:"algorithm"`
	SHA256         string    `db:"sha256" json:"sha256"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}
