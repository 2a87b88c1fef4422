package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/momofin/momofin-backend/internal/db/models"
	"github.com/momofin/momofin-backend/internal/db/repositories"
)

// ---- shared test data -------------------------------------------------------

const (
	sampleOrgID  = "00000000-0000-0000-0000-0000000000aa"
	sampleUserID = "00000000-0000-0000-0000-0000000000bb"
)

var orgCols = []string{"id", "name", "created_at", "updated_at"}

var userCols = []string{
	"id", "organization_id", "username", "email", "password_hash", "name", "position", "role",
	"created_at", "updated_at", "name", "created_at", "updated_at",
}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func orgRow() *sqlmock.Rows {
	return sqlmock.NewRows(orgCols).AddRow(sampleOrgID, "Momofin", time.Now(), time.Now())
}

func userRow(username, email, hash, role string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(userCols).AddRow(
		sampleUserID, sampleOrgID, username, email, hash, "test User real name", "Tester", role,
		now, now, "Momofin", now, now,
	)
}

func newAuthService(t *testing.T) (*AuthenticationService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	svc := NewAuthenticationService(
		repositories.NewOrganizationRepository(db),
		repositories.NewUserRepository(db),
		bcrypt.MinCost,
	)
	return svc, mock
}

func expectOrg(mock sqlmock.Sqlmock, name string, found bool) {
	rows := sqlmock.NewRows(orgCols)
	if found {
		rows = orgRow()
	}
	mock.ExpectQuery("SELECT.*FROM organizations.*WHERE name").WithArgs(name).WillReturnRows(rows)
}

// ---- Authenticate -----------------------------------------------------------

func TestAuthenticate_Success(t *testing.T) {
	svc, mock := newAuthService(t)
	expectOrg(mock, "Momofin", true)
	mock.ExpectQuery("SELECT.*FROM users u.*WHERE u.organization_id").
		WithArgs(sampleOrgID, "testUser").
		WillReturnRows(userRow("testUser", "test.user@gmail.com", mustHash(t, "testPassword"), "member"))

	user, err := svc.Authenticate(context.Background(), "Momofin", "testUser", "testPassword")
	require.NoError(t, err)
	assert.Equal(t, "testUser", user.Username)
	require.NotNil(t, user.Organization)
	assert.Equal(t, "Momofin", user.Organization.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthenticate_WrongPasswordAndUnknownUserAreIndistinguishable(t *testing.T) {
	svc, mock := newAuthService(t)

	expectOrg(mock, "Momofin", true)
	mock.ExpectQuery("SELECT.*FROM users").
		WithArgs(sampleOrgID, "testUser").
		WillReturnRows(userRow("testUser", "test.user@gmail.com", mustHash(t, "testPassword"), "member"))
	_, wrongPassword := svc.Authenticate(context.Background(), "Momofin", "testUser", "wrongPassword")

	expectOrg(mock, "Momofin", true)
	mock.ExpectQuery("SELECT.*FROM users").
		WithArgs(sampleOrgID, "Hobo Steve Invalid").
		WillReturnRows(sqlmock.NewRows(userCols))
	_, unknownUser := svc.Authenticate(context.Background(), "Momofin", "Hobo Steve Invalid", "testPassword")

	require.Error(t, wrongPassword)
	require.Error(t, unknownUser)
	assert.ErrorIs(t, wrongPassword, ErrInvalidCredentials)
	assert.ErrorIs(t, unknownUser, ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownUser.Error())
	assert.Equal(t, "Your email or password is incorrect", wrongPassword.Error())
}

func TestAuthenticate_OrganizationNotFound(t *testing.T) {
	svc, mock := newAuthService(t)
	expectOrg(mock, "Not Organization", false)

	_, err := svc.Authenticate(context.Background(), "Not Organization", "test User", "testPassword")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOrganizationNotFound)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)

	var notFound *OrganizationNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "Not Organization", notFound.Name)
	assert.Equal(t, "The organization Not Organization is not registered to our database", err.Error())
}

func TestAuthenticate_StoreError(t *testing.T) {
	svc, mock := newAuthService(t)
	mock.ExpectQuery("SELECT.*FROM organizations").WillReturnError(errors.New("connection refused"))

	_, err := svc.Authenticate(context.Background(), "Momofin", "testUser", "testPassword")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
	assert.NotErrorIs(t, err, ErrOrganizationNotFound)
}

// ---- RegisterMember ---------------------------------------------------------

func sampleOrg() *models.Organization {
	return &models.Organization{ID: sampleOrgID, Name: "Momofin"}
}

func TestRegisterMember_Success(t *testing.T) {
	svc, mock := newAuthService(t)
	mock.ExpectQuery("SELECT.*FROM users.*WHERE u.email").
		WithArgs("new@gmail.com").
		WillReturnRows(sqlmock.NewRows(userCols))
	mock.ExpectQuery("SELECT.*FROM users.*WHERE u.organization_id").
		WithArgs(sampleOrgID, "newbie").
		WillReturnRows(sqlmock.NewRows(userCols))
	mock.ExpectExec("INSERT INTO users").
		WithArgs(sqlmock.AnyArg(), sampleOrgID, "newbie", "new@gmail.com", sqlmock.AnyArg(),
			"New Member", "Analyst", "member", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	user, err := svc.RegisterMember(context.Background(), sampleOrg(), "newbie", "s3cret", "new@gmail.com", "New Member", "Analyst")
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "member", user.Role)
	assert.NotEqual(t, "s3cret", user.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("s3cret")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterMember_EmailCheckedBeforeUsername(t *testing.T) {
	svc, mock := newAuthService(t)
	// Only the email lookup is expected; a username query would fail the mock.
	mock.ExpectQuery("SELECT.*FROM users.*WHERE u.email").
		WithArgs("duplicated.address@gmail.com").
		WillReturnRows(userRow("Doppelganger", "duplicated.address@gmail.com", "x", "member"))

	_, err := svc.RegisterMember(context.Background(), sampleOrg(), "Doppelganger", "pw", "duplicated.address@gmail.com", "n", "p")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUserAlreadyExists)

	var exists *UserAlreadyExistsError
	require.True(t, errors.As(err, &exists))
	assert.Equal(t, "email", exists.Field)
	assert.Equal(t, "The email duplicated.address@gmail.com is already in use", err.Error())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterMember_UsernameInUse(t *testing.T) {
	svc, mock := newAuthService(t)
	mock.ExpectQuery("SELECT.*FROM users.*WHERE u.email").
		WithArgs("test.user@gmail.com").
		WillReturnRows(sqlmock.NewRows(userCols))
	mock.ExpectQuery("SELECT.*FROM users.*WHERE u.organization_id").
		WithArgs(sampleOrgID, "Doppelganger").
		WillReturnRows(userRow("Doppelganger", "other@gmail.com", "x", "member"))

	_, err := svc.RegisterMember(context.Background(), sampleOrg(), "Doppelganger", "pw", "test.user@gmail.com", "n", "p")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUserAlreadyExists)
	assert.Equal(t, "The username Doppelganger is already in use", err.Error())
}

func TestRegisterMember_ConstraintViolationMapsToConflict(t *testing.T) {
	tests := []struct {
		constraint string
		wantField  string
	}{
		{"users_email_key", "email"},
		{"users_organization_username_key", "username"},
	}

	for _, tt := range tests {
		t.Run(tt.constraint, func(t *testing.T) {
			svc, mock := newAuthService(t)
			mock.ExpectQuery("SELECT.*FROM users.*WHERE u.email").WillReturnRows(sqlmock.NewRows(userCols))
			mock.ExpectQuery("SELECT.*FROM users.*WHERE u.organization_id").WillReturnRows(sqlmock.NewRows(userCols))
			mock.ExpectExec("INSERT INTO users").
				WillReturnError(&pq.Error{Code: "23505", Constraint: tt.constraint})

			_, err := svc.RegisterMember(context.Background(), sampleOrg(), "racer", "pw", "racer@gmail.com", "n", "p")
			var exists *UserAlreadyExistsError
			require.True(t, errors.As(err, &exists), "err = %v", err)
			assert.Equal(t, tt.wantField, exists.Field)
		})
	}
}

func TestRegisterMember_NilOrganization(t *testing.T) {
	svc, _ := newAuthService(t)
	_, err := svc.RegisterMember(context.Background(), nil, "u", "p", "e@x.com", "n", "p")
	assert.Error(t, err)
}

// ---- FetchUserByUsername / FetchMember --------------------------------------

func TestFetchUserByUsername(t *testing.T) {
	t.Run("single match", func(t *testing.T) {
		svc, mock := newAuthService(t)
		mock.ExpectQuery("SELECT.*FROM users.*WHERE u.username").
			WithArgs("testUser").
			WillReturnRows(userRow("testUser", "t@gmail.com", "x", "admin"))

		user, err := svc.FetchUserByUsername(context.Background(), "testUser")
		require.NoError(t, err)
		assert.True(t, user.IsAdmin())
	})

	t.Run("no match", func(t *testing.T) {
		svc, mock := newAuthService(t)
		mock.ExpectQuery("SELECT.*FROM users.*WHERE u.username").
			WithArgs("ghost").
			WillReturnRows(sqlmock.NewRows(userCols))

		_, err := svc.FetchUserByUsername(context.Background(), "ghost")
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("ambiguous across organizations", func(t *testing.T) {
		svc, mock := newAuthService(t)
		now := time.Now()
		rows := userRow("testUser", "a@gmail.com", "x", "admin").
			AddRow("other-id", "other-org", "testUser", "b@gmail.com", "x", "", "", "member", now, now, "Other", now, now)
		mock.ExpectQuery("SELECT.*FROM users.*WHERE u.username").WithArgs("testUser").WillReturnRows(rows)

		_, err := svc.FetchUserByUsername(context.Background(), "testUser")
		assert.ErrorIs(t, err, ErrUserNotFound)
	})
}

func TestFetchMember(t *testing.T) {
	svc, mock := newAuthService(t)
	expectOrg(mock, "Momofin", true)
	mock.ExpectQuery("SELECT.*FROM users.*WHERE u.organization_id").
		WithArgs(sampleOrgID, "testUser").
		WillReturnRows(userRow("testUser", "t@gmail.com", "x", "admin"))

	user, err := svc.FetchMember(context.Background(), "Momofin", "testUser")
	require.NoError(t, err)
	assert.Equal(t, sampleUserID, user.ID)

	expectOrg(mock, "Gone", false)
	_, err = svc.FetchMember(context.Background(), "Gone", "testUser")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
