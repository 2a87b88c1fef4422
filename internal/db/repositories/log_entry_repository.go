// log_entry_repository.go implements LogEntryRepository, providing queries for writing
// activity log entries and listing them per organization with optional filters.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/momofin/momofin-backend/internal/db/models"
)

// LogEntryRepository handles activity log database operations
type LogEntryRepository struct {
	db *sql.DB
}

// NewLogEntryRepository creates a new LogEntryRepository
func NewLogEntryRepository(db *sql.DB) *LogEntryRepository {
	return &LogEntryRepository{db: db}
}

// LogEntryFilters contains filters for querying log entries
type LogEntryFilters struct {
	OrganizationID *string
	UserID         *string
	Level          *string
	RequestURI     *string
	StartDate      *time.Time
	EndDate        *time.Time
}

// Create inserts a log entry and sets its ID
func (r *LogEntryRepository) Create(ctx context.Context, entry *models.LogEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO log_entries (level, message, request_uri, user_id, organization_id, request_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	return r.db.QueryRowContext(ctx, query,
		entry.Level,
		entry.Message,
		entry.RequestURI,
		entry.UserID,
		entry.OrganizationID,
		entry.RequestID,
		entry.CreatedAt,
	).Scan(&entry.ID)
}

// List retrieves log entries with optional filters and pagination, newest first
func (r *LogEntryRepository) List(ctx context.Context, filters LogEntryFilters, limit, offset int) ([]*models.LogEntry, int, error) {
	where := ` WHERE 1=1`
	args := make([]interface{}, 0)
	paramIndex := 1

	add := func(column string, value interface{}) {
		where += fmt.Sprintf(` AND %s $%d`, column, paramIndex)
		args = append(args, value)
		paramIndex++
	}

	if filters.OrganizationID != nil {
		add("organization_id =", *filters.OrganizationID)
	}
	if filters.UserID != nil {
		add("user_id =", *filters.UserID)
	}
	if filters.Level != nil {
		add("level =", *filters.Level)
	}
	if filters.RequestURI != nil {
		add("request_uri =", *filters.RequestURI)
	}
	if filters.StartDate != nil {
		add("created_at >=", *filters.StartDate)
	}
	if filters.EndDate != nil {
		add("created_at <=", *filters.EndDate)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM log_entries`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT id, level, message, request_uri, user_id, organization_id, request_id, created_at
		FROM log_entries` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, paramIndex, paramIndex+1)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries := make([]*models.LogEntry, 0)
	for rows.Next() {
		e := &models.LogEntry{}
		if err := rows.Scan(
			&e.ID,
			&e.Level,
			&e.Message,
			&e.RequestURI,
			&e.UserID,
			&e.OrganizationID,
			&e.RequestID,
			&e.CreatedAt,
		); err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}

	return entries, total, rows.Err()
}
