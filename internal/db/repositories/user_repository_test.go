package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/momofin/momofin-backend/internal/db/models"
)

var errDB = errors.New("db error")

var userCols = []string{
	"id", "organization_id", "username", "email", "password_hash", "name", "position", "role",
	"created_at", "updated_at", "name", "created_at", "updated_at",
}

func sampleUserRow() *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(userCols).
		AddRow("user-1", "org-1", "testUser", "test.user@gmail.com", "$2a$hash", "Test User", "Tester", "member",
			now, now, "Momofin", now, now)
}

func emptyUserRow() *sqlmock.Rows {
	return sqlmock.NewRows(userCols)
}

func newUserRepo(t *testing.T) (*UserRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewUserRepository(db), mock
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestUserCreate_Success(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectExec("INSERT INTO users").
		WithArgs(sqlmock.AnyArg(), "org-1", "testUser", "test.user@gmail.com", "$2a$hash", "Test User", "Tester", "member",
			sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	u := &models.User{
		OrganizationID: "org-1",
		Username:       "testUser",
		Email:          "test.user@gmail.com",
		PasswordHash:   "$2a$hash",
		Name:           "Test User",
		Position:       "Tester",
		Role:           "member",
	}
	if err := repo.Create(context.Background(), u); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.ID == "" {
		t.Error("expected ID to be assigned")
	}
	if u.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestUserCreate_UniqueViolation(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectExec("INSERT INTO users").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_email_key"})

	err := repo.Create(context.Background(), &models.User{Email: "dup@example.com"})
	constraint, ok := UniqueViolation(err)
	if !ok {
		t.Fatalf("UniqueViolation(%v) = false, want true", err)
	}
	if constraint != "users_email_key" {
		t.Errorf("constraint = %q, want users_email_key", constraint)
	}
}

func TestUniqueViolation_OtherErrors(t *testing.T) {
	if _, ok := UniqueViolation(errDB); ok {
		t.Error("UniqueViolation(plain error) = true")
	}
	if _, ok := UniqueViolation(&pq.Error{Code: "23503"}); ok {
		t.Error("UniqueViolation(foreign key violation) = true")
	}
	if _, ok := UniqueViolation(nil); ok {
		t.Error("UniqueViolation(nil) = true")
	}
}

// ---------------------------------------------------------------------------
// Lookups
// ---------------------------------------------------------------------------

func TestGetByOrganizationAndUsername_Found(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("SELECT.*FROM users u.*JOIN organizations.*WHERE u.organization_id = .* AND u.username").
		WithArgs("org-1", "testUser").
		WillReturnRows(sampleUserRow())

	user, err := repo.GetByOrganizationAndUsername(context.Background(), "org-1", "testUser")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user == nil {
		t.Fatal("expected user, got nil")
	}
	if user.Username != "testUser" {
		t.Errorf("Username = %s, want testUser", user.Username)
	}
	if user.Organization == nil || user.Organization.Name != "Momofin" || user.Organization.ID != "org-1" {
		t.Errorf("Organization = %+v, want Momofin/org-1", user.Organization)
	}
	if user.PasswordHash != "$2a$hash" {
		t.Errorf("PasswordHash = %q, want $2a$hash", user.PasswordHash)
	}
}

func TestGetByOrganizationAndUsername_NotFound(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("SELECT.*FROM users").
		WithArgs("org-1", "ghost").
		WillReturnRows(emptyUserRow())

	user, err := repo.GetByOrganizationAndUsername(context.Background(), "org-1", "ghost")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user != nil {
		t.Errorf("expected nil user for not found, got %v", user)
	}
}

func TestGetByEmail(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("SELECT.*FROM users.*WHERE u.email").
		WithArgs("test.user@gmail.com").
		WillReturnRows(sampleUserRow())

	user, err := repo.GetByEmail(context.Background(), "test.user@gmail.com")
	if err != nil || user == nil {
		t.Fatalf("GetByEmail() = %v, %v", user, err)
	}
}

func TestGetByID_DBError(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("SELECT.*FROM users.*WHERE u.id").
		WithArgs("user-1").
		WillReturnError(errDB)

	if _, err := repo.GetByID(context.Background(), "user-1"); err == nil {
		t.Error("expected error, got nil")
	}
}

func TestListByUsername(t *testing.T) {
	repo, mock := newUserRepo(t)
	now := time.Now()
	rows := sampleUserRow().
		AddRow("user-2", "org-2", "testUser", "other@gmail.com", "$2a$hash", "Other", "", "admin",
			now, now, "Other Org", now, now)
	mock.ExpectQuery("SELECT.*FROM users.*WHERE u.username").
		WithArgs("testUser").
		WillReturnRows(rows)

	users, err := repo.ListByUsername(context.Background(), "testUser")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("len = %d, want 2", len(users))
	}
	if users[1].Organization.Name != "Other Org" {
		t.Errorf("users[1].Organization.Name = %q", users[1].Organization.Name)
	}
}

func TestUserCount(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	n, err := repo.Count(context.Background())
	if err != nil || n != 3 {
		t.Errorf("Count() = %d, %v; want 3, nil", n, err)
	}
}
