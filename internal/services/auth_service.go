// Package services implements the business logic that sits between the HTTP
// handlers and the repositories: member authentication and registration, and
// the document integrity flow.
package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/momofin/momofin-backend/internal/auth"
	"github.com/momofin/momofin-backend/internal/db/models"
	"github.com/momofin/momofin-backend/internal/db/repositories"
	"github.com/momofin/momofin-backend/internal/telemetry"
)

// OrganizationStore resolves organizations by name.
type OrganizationStore interface {
	GetByName(ctx context.Context, name string) (*models.Organization, error)
}

// UserStore is the credential store consulted during login and registration.
type UserStore interface {
	GetByOrganizationAndUsername(ctx context.Context, organizationID, username string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	ListByUsername(ctx context.Context, username string) ([]*models.User, error)
	Create(ctx context.Context, user *models.User) error
}

// AuthenticationService verifies member credentials and registers new members.
type AuthenticationService struct {
	orgs       OrganizationStore
	users      UserStore
	bcryptCost int
}

// NewAuthenticationService creates an AuthenticationService. A bcryptCost of
// zero uses auth.BcryptCost.
func NewAuthenticationService(orgs OrganizationStore, users UserStore, bcryptCost int) *AuthenticationService {
	return &AuthenticationService{
		orgs:       orgs,
		users:      users,
		bcryptCost: bcryptCost,
	}
}

// Authenticate checks username and password against the member record in the
// named organization.
func (s *AuthenticationService) Authenticate(ctx context.Context, organizationName, username, password string) (*models.User, error) {
	org, err := s.orgs.GetByName(ctx, organizationName)
	if err != nil {
		return nil, fmt.Errorf("failed to look up organization: %w", err)
	}
	if org == nil {
		telemetry.AuthAttemptsTotal.WithLabelValues("login", "organization_not_found").Inc()
		return nil, &OrganizationNotFoundError{Name: organizationName}
	}

	user, err := s.users.GetByOrganizationAndUsername(ctx, org.ID, username)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	storedHash := ""
	if user != nil {
		storedHash = user.PasswordHash
	}
	if !auth.CheckPassword(password, storedHash) {
		telemetry.AuthAttemptsTotal.WithLabelValues("login", "invalid_credentials").Inc()
		return nil, ErrInvalidCredentials
	}

	if user.Organization == nil {
		user.Organization = org
	}
	telemetry.AuthAttemptsTotal.WithLabelValues("login", "success").Inc()
	return user, nil
}

// RegisterMember creates a member in org. Email uniqueness is checked before
// username uniqueness; a race that slips past both checks is caught by the
// schema and reported the same way.
func (s *AuthenticationService) RegisterMember(ctx context.Context, org *models.Organization, username, password, email, name, position string) (*models.User, error) {
	if org == nil {
		return nil, fmt.Errorf("organization is required")
	}

	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if existing != nil {
		telemetry.AuthAttemptsTotal.WithLabelValues("register", "conflict").Inc()
		return nil, &UserAlreadyExistsError{Field: "email", Value: email}
	}

	existing, err = s.users.GetByOrganizationAndUsername(ctx, org.ID, username)
	if err != nil {
		return nil, fmt.Errorf("failed to check username: %w", err)
	}
	if existing != nil {
		telemetry.AuthAttemptsTotal.WithLabelValues("register", "conflict").Inc()
		return nil, &UserAlreadyExistsError{Field: "username", Value: username}
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		OrganizationID: org.ID,
		Organization:   org,
		Username:       username,
		Email:          email,
		PasswordHash:   hash,
		Name:           name,
		Position:       position,
		Role:           string(auth.RoleMember),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if constraint, ok := repositories.UniqueViolation(err); ok {
			telemetry.AuthAttemptsTotal.WithLabelValues("register", "conflict").Inc()
			if strings.Contains(constraint, "email") {
				return nil, &UserAlreadyExistsError{Field: "email", Value: email}
			}
			return nil, &UserAlreadyExistsError{Field: "username", Value: username}
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	telemetry.AuthAttemptsTotal.WithLabelValues("register", "success").Inc()
	return user, nil
}

// FetchUserByUsername resolves a token subject to a user. Usernames are only
// unique within an organization, so an ambiguous subject resolves to nobody.
func (s *AuthenticationService) FetchUserByUsername(ctx context.Context, username string) (*models.User, error) {
	users, err := s.users.ListByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if len(users) != 1 {
		return nil, ErrUserNotFound
	}
	return users[0], nil
}

// FetchMember resolves a username within a named organization.
func (s *AuthenticationService) FetchMember(ctx context.Context, organizationName, username string) (*models.User, error) {
	org, err := s.orgs.GetByName(ctx, organizationName)
	if err != nil {
		return nil, fmt.Errorf("failed to look up organization: %w", err)
	}
	if org == nil {
		return nil, ErrUserNotFound
	}

	user, err := s.users.GetByOrganizationAndUsername(ctx, org.ID, username)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if user.Organization == nil {
		user.Organization = org
	}
	return user, nil
}
