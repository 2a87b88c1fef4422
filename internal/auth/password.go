// Package auth - password.go hashes and checks member passwords with bcrypt and
// provides the random secret generator and bearer header parsing used by the
// HTTP layer.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// BcryptCost is the default cost factor for bcrypt hashing
	BcryptCost = 12

	// SecretLength is the number of random bytes in a generated secret
	SecretLength = 32
)

// dummyHash is compared against when no stored hash exists so that a missing
// user costs the same as a wrong password.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("momofin-dummy-password"), bcrypt.MinCost)

// HashPassword returns the bcrypt hash of password. A cost of zero uses BcryptCost.
func HashPassword(password string, cost int) (string, error) {
	if password == "" {
		return "", errors.New("password is empty")
	}
	if cost == 0 {
		cost = BcryptCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches storedHash. An empty
// storedHash never matches but still performs a comparison.
func CheckPassword(password, storedHash string) bool {
	if storedHash == "" {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(password)) == nil
}

// GenerateSecret returns a hex encoded random secret of SecretLength bytes.
func GenerateSecret() (string, error) {
	b := make([]byte, SecretLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// ExtractBearerToken extracts the token from an Authorization header.
// Expected format: "Bearer <token>"
func ExtractBearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("authorization header is empty")
	}

	if !strings.HasPrefix(header, "Bearer ") {
		return "", errors.New("authorization header must start with 'Bearer '")
	}

	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return "", errors.New("token is empty after Bearer prefix")
	}

	return token, nil
}
