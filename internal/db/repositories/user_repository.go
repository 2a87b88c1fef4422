// user_repository.go implements UserRepository. Every read joins the owning
// organization so callers receive a fully populated member record.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/momofin/momofin-backend/internal/db/models"
)

const userSelect = `
	SELECT u.id, u.organization_id, u.username, u.email, u.password_hash, u.name, u.position, u.role,
	       u.created_at, u.updated_at, o.name, o.created_at, o.updated_at
	FROM users u
	JOIN organizations o ON o.id = u.organization_id
`

// UserRepository handles user database operations
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user. Uniqueness of email and (organization, username)
// is enforced by the schema; callers can detect it with UniqueViolation.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	user.ID = uuid.New().String()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt

	query := `
		INSERT INTO users (id, organization_id, username, email, password_hash, name, position, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.OrganizationID,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.Name,
		user.Position,
		user.Role,
		user.CreatedAt,
		user.UpdatedAt,
	)

	return err
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, userSelect+` WHERE u.id = $1`, id))
}

// GetByEmail retrieves a user by email
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, userSelect+` WHERE u.email = $1`, email))
}

// GetByOrganizationAndUsername retrieves a member of an organization by username
func (r *UserRepository) GetByOrganizationAndUsername(ctx context.Context, organizationID, username string) (*models.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		userSelect+` WHERE u.organization_id = $1 AND u.username = $2`,
		organizationID, username,
	))
}

// ListByUsername retrieves every user with the given username across all
// organizations, oldest first.
func (r *UserRepository) ListByUsername(ctx context.Context, username string) ([]*models.User, error) {
	rows, err := r.db.QueryContext(ctx, userSelect+` WHERE u.username = $1 ORDER BY u.created_at`, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]*models.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// Count returns the number of users
func (r *UserRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*models.User, error) {
	user := &models.User{Organization: &models.Organization{}}
	err := row.Scan(
		&user.ID,
		&user.OrganizationID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.Name,
		&user.Position,
		&user.Role,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.Organization.Name,
		&user.Organization.CreatedAt,
		&user.Organization.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	user.Organization.ID = user.OrganizationID
	return user, nil
}
