// Package repository holds the SQL access layer. Interfaces are defined
// next to their Postgres implementations so callers can swap fakes in tests.
package repository

import (
	"errors"

	"github.com/lib/pq"
)

// ErrNotFound reports a missing row.
var ErrNotFound = errors.New("not found")

// ErrDuplicateCheckIn reports a lost race on uq_team_checkpoint: another
// insert for the same (competition, team, checkpoint) got there first.
// Callers treat it as duplicate-equivalent success, never as a failure.
var ErrDuplicateCheckIn = errors.New("duplicate check-in")

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
