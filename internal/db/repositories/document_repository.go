// document_repository.go implements DocumentRepository on top of sqlx, mapping rows
// directly onto models.Document through its db struct tags.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/momofin/momofin-backend/internal/db/models"
)

const documentColumns = `id, organization_id, uploaded_by, name, storage_path, size, digest, algorithm, sha256, created_at`

// DocumentRepository handles document database operations
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository creates a new DocumentRepository
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create inserts a document. The caller assigns the ID so the storage path can
// be derived from it before the row exists.
func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO documents (` + documentColumns + `)
		VALUES (:id, :organization_id, :uploaded_by, :name, :storage_path, :size, :digest, :algorithm, :sha256, :created_at)
	`
	_, err := r.db.NamedExecContext(ctx, query, doc)
	return err
}

// GetByID retrieves a document within an organization
func (r *DocumentRepository) GetByID(ctx context.Context, organizationID, id string) (*models.Document, error) {
	var doc models.Document
	query := `SELECT ` + documentColumns + ` FROM documents WHERE organization_id = $1 AND id = $2`
	err := r.db.GetContext(ctx, &doc, query, organizationID, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// GetByDigest retrieves the document in an organization whose digest matches
func (r *DocumentRepository) GetByDigest(ctx context.Context, organizationID, digest, algorithm string) (*models.Document, error) {
	var doc models.Document
	query := `SELECT ` + documentColumns + ` FROM documents WHERE organization_id = $1 AND digest = $2 AND algorithm = $3`
	err := r.db.GetContext(ctx, &doc, query, organizationID, digest, algorithm)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListByOrganization lists an organization's documents, newest first
func (r *DocumentRepository) ListByOrganization(ctx context.Context, organizationID string, limit, offset int) ([]*models.Document, error) {
	docs := make([]*models.Document, 0)
	query := `SELECT ` + documentColumns + ` FROM documents WHERE organization_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	if err := r.db.SelectContext(ctx, &docs, query, organizationID, limit, offset); err != nil {
		return nil, err
	}
	return docs, nil
}

// Delete removes a document row
func (r *DocumentRepository) Delete(ctx context.Context, organizationID, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE organization_id = $1 AND id = $2`, organizationID, id)
	return err
}
