package store

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/takemehome/accounts/internal/apperr"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrUniqueViolation marks a write rejected by a unique constraint.
var ErrUniqueViolation = errors.New("unique violation")

const pqUniqueViolation = "23505"

// writeError wraps a failed write into a database error. Unique constraint
// violations stay detectable through errors.Is(err, ErrUniqueViolation).
func writeError(op string, err error, c apperr.Context) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		err = errors.Join(ErrUniqueViolation, err)
	}
	return apperr.Database(fmt.Errorf("%s: %w", op, err), c)
}
