// Package repositories implements the data access layer for organizations, members,
// activity log entries and documents. Each repository type encapsulates all queries
// for one table; lookups that find nothing return (nil, nil).
package repositories

import (
	"errors"

	"github.com/lib/pq"
)

// uniqueViolation is the PostgreSQL error code for unique_violation.
const uniqueViolation = "23505"

// UniqueViolation reports whether err is a PostgreSQL unique constraint
// violation and, if so, the name of the violated constraint.
func UniqueViolation(err error) (constraint string, ok bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		return pqErr.Constraint, true
	}
	return "", false
}
