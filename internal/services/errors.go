package services

import (
	"errors"
	"fmt"

	"github.com/momofin/momofin-backend/internal/auth"
)

// ErrInvalidCredentials is returned for both an unknown username and a wrong
// password. The two cases must stay indistinguishable to callers.
var ErrInvalidCredentials = errors.New("Your email or password is incorrect")

var (
	// ErrOrganizationNotFound matches any *OrganizationNotFoundError via errors.Is.
	ErrOrganizationNotFound = errors.New("organization not found")
	// ErrUserAlreadyExists matches any *UserAlreadyExistsError via errors.Is.
	ErrUserAlreadyExists = errors.New("user already exists")
	// ErrUserNotFound is returned when a token subject no longer resolves to a user.
	ErrUserNotFound = errors.New("user not found")
	// ErrTokenInvalid is returned for expired, tampered or malformed tokens.
	ErrTokenInvalid = auth.ErrTokenInvalid
)

// OrganizationNotFoundError reports a login against an unregistered organization.
type OrganizationNotFoundError struct {
	Name string
}

func (e *OrganizationNotFoundError) Error() string {
	return fmt.Sprintf("The organization %s is not registered to our database", e.Name)
}

// Is lets errors.Is(err, ErrOrganizationNotFound) match.
func (e *OrganizationNotFoundError) Is(target error) bool {
	return target == ErrOrganizationNotFound
}

// UserAlreadyExistsError reports a registration whose email or username is taken.
type UserAlreadyExistsError struct {
	Field string // "email" or "username"
	Value string
}

func (e *UserAlreadyExistsError) Error() string {
	return fmt.Sprintf("The %s %s is already in use", e.Field, e.Value)
}

// Is lets errors.Is(err, ErrUserAlreadyExists) match.
func (e *UserAlreadyExistsError) Is(target error) bool {
	return target == ErrUserAlreadyExists
}

var (
	// ErrDocumentExists is returned when an organization already holds a
	// document with the same keyed digest.
	ErrDocumentExists = errors.New("document already exists")
	// ErrDocumentNotFound is returned for ids outside the requester's organization.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrDocumentContentMissing is returned when a registered document has no
	// object left in storage.
	ErrDocumentContentMissing = errors.New("document content missing from storage")
)
