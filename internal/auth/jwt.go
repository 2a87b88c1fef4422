// Package auth - jwt.go issues and verifies the signed, time-bounded tokens that
// identify an authenticated user. Tokens are stateless: validity depends only on
// the HS256 signature and the expiry claim.
package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultTokenTTL is the lifetime of issued tokens when none is configured.
	DefaultTokenTTL = 24 * time.Hour

	// TokenIssuer is written to the iss claim of every token.
	TokenIssuer = "momofin"

	// minSecretLength is the recommended minimum signing secret length.
	minSecretLength = 32
)

var (
	// ErrMissingSigningSecret is returned when the token service is built without a secret.
	ErrMissingSigningSecret = errors.New("jwt signing secret is required")

	// ErrTokenInvalid covers signature mismatch, malformed tokens and expiry alike.
	ErrTokenInvalid = errors.New("token is invalid or expired")
)

// Claims represents the JWT claims structure. The subject carries the username;
// Organization is set on tokens issued at login so the member can be resolved
// without ambiguity, since usernames are only unique within an organization.
type Claims struct {
	Username     string `json:"username"`
	Organization string `json:"org,omitempty"`
	jwt.RegisteredClaims
}

// TokenService signs and verifies tokens with a single secret fixed at construction.
// It holds no mutable state and is safe for concurrent use.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// TokenOption customises a TokenService.
type TokenOption func(*TokenService)

// WithClock overrides the time source used for issued-at and expiry.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) {
		s.now = now
	}
}

// NewTokenService creates a TokenService. A ttl of zero or less uses DefaultTokenTTL.
func NewTokenService(secret string, ttl time.Duration, opts ...TokenOption) (*TokenService, error) {
	if secret == "" {
		return nil, ErrMissingSigningSecret
	}
	if len(secret) < minSecretLength {
		slog.Warn("jwt signing secret is shorter than recommended", "min_length", minSecretLength)
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	s := &TokenService{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// IssueToken creates a signed token whose subject is username.
func (s *TokenService) IssueToken(username string) (string, error) {
	return s.issue(username, "")
}

// IssueMemberToken creates a signed token for username that also names the
// member's organization.
func (s *TokenService) IssueMemberToken(username, organization string) (string, error) {
	return s.issue(username, organization)
}

func (s *TokenService) issue(username, organization string) (string, error) {
	if username == "" {
		return "", errors.New("username is required")
	}

	now := s.now()
	claims := &Claims{
		Username:     username,
		Organization: organization,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			Issuer:    TokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ParseClaims verifies tokenString and returns its claims. Every failure is
// reported as ErrTokenInvalid.
func (s *TokenService) ParseClaims(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	},
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(TokenIssuer),
	)
	if err != nil || !token.Valid {
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// ValidateToken reports whether tokenString carries a valid signature and has
// not expired.
func (s *TokenService) ValidateToken(tokenString string) bool {
	_, err := s.ParseClaims(tokenString)
	return err == nil
}

// ExtractUsername returns the subject of a valid token.
func (s *TokenService) ExtractUsername(tokenString string) (string, error) {
	claims, err := s.ParseClaims(tokenString)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}
