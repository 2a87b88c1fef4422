// organization_repository.go implements OrganizationRepository. Organizations are only
// looked up by name at request time; creation is used by the bootstrap command.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/momofin/momofin-backend/internal/db/models"
)

// OrganizationRepository handles organization database operations
type OrganizationRepository struct {
	db *sql.DB
}

// NewOrganizationRepository creates a new OrganizationRepository
func NewOrganizationRepository(db *sql.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

// Create inserts a new organization
func (r *OrganizationRepository) Create(ctx context.Context, org *models.Organization) error {
	org.ID = uuid.New().String()
	org.CreatedAt = time.Now()
	org.UpdatedAt = org.CreatedAt

	query := `
		INSERT INTO organizations (id, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.db.ExecContext(ctx, query, org.ID, org.Name, org.CreatedAt, org.UpdatedAt)
	return err
}

// GetByName retrieves an organization by its unique name
func (r *OrganizationRepository) GetByName(ctx context.Context, name string) (*models.Organization, error) {
	query := `
		SELECT id, name, created_at, updated_at
		FROM organizations
		WHERE name = $1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, name))
}

// GetByID retrieves an organization by ID
func (r *OrganizationRepository) GetByID(ctx context.Context, id string) (*models.Organization, error) {
	query := `
		SELECT id, name, created_at, updated_at
		FROM organizations
		WHERE id = $1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// Count returns the number of organizations
func (r *OrganizationRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM organizations`).Scan(&n)
	return n, err
}

func (r *OrganizationRepository) scanOne(row *sql.Row) (*models.Organization, error) {
	org := &models.Organization{}
	err := row.Scan(&org.ID, &org.Name, &org.CreatedAt, &org.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return org, nil
}
