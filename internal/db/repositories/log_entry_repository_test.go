package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/momofin/momofin-backend/internal/db/models"
)

var logCols = []string{"id", "level", "message", "request_uri", "user_id", "organization_id", "request_id", "created_at"}

func newLogRepo(t *testing.T) (*LogEntryRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewLogEntryRepository(db), mock
}

func TestLogEntryCreate(t *testing.T) {
	repo, mock := newLogRepo(t)
	mock.ExpectQuery("INSERT INTO log_entries.*RETURNING id").
		WithArgs("INFO", "Successful login for user: testUser from organization: Momofin", "/auth/login",
			nil, nil, nil, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

	entry := &models.LogEntry{
		Level:      "INFO",
		Message:    "Successful login for user: testUser from organization: Momofin",
		RequestURI: "/auth/login",
	}
	if err := repo.Create(context.Background(), entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.ID != 42 {
		t.Errorf("ID = %d, want 42", entry.ID)
	}
	if entry.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
}

func TestLogEntryList_WithFilters(t *testing.T) {
	repo, mock := newLogRepo(t)
	org := "org-1"
	level := "ERROR"

	mock.ExpectQuery("SELECT COUNT.*FROM log_entries.*organization_id = \\$1.*level = \\$2").
		WithArgs(org, level).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT id, level.*FROM log_entries.*ORDER BY created_at DESC LIMIT \\$3 OFFSET \\$4").
		WithArgs(org, level, 20, 0).
		WillReturnRows(sqlmock.NewRows(logCols).
			AddRow(int64(7), "ERROR", "Failed login attempt for user: x from organization: Momofin", "/auth/login",
				nil, org, "req-1", time.Now()))

	entries, total, err := repo.List(context.Background(), LogEntryFilters{OrganizationID: &org, Level: &level}, 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || len(entries) != 1 {
		t.Fatalf("total=%d len=%d, want 1/1", total, len(entries))
	}
	if entries[0].RequestID == nil || *entries[0].RequestID != "req-1" {
		t.Errorf("RequestID = %v, want req-1", entries[0].RequestID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestLogEntryList_CountError(t *testing.T) {
	repo, mock := newLogRepo(t)
	mock.ExpectQuery("SELECT COUNT").WillReturnError(errDB)

	if _, _, err := repo.List(context.Background(), LogEntryFilters{}, 10, 0); err == nil {
		t.Error("expected error, got nil")
	}
}
