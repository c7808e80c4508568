package store

import (
	"errors"

	"github.com/lib/pq"
)

// Sentinel errors shared by every store. Callers match with errors.Is.
var (
	// ErrNotFound is returned when a record does not exist or is soft-deleted.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned on a uniqueness violation.
	ErrConflict = errors.New("already exists")

	// ErrValidation is returned when a required field is missing or malformed.
	ErrValidation = errors.New("invalid input")
)

// uniqueViolation is the Postgres error code for unique constraint failures.
const uniqueViolation = "23505"

// translate maps driver-level failures into the store taxonomy. The database's
// unique indexes are the authoritative uniqueness check; any pre-check in a
// service is a best-effort optimization that may lose the race to a concurrent
// insert, which then surfaces here.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		return ErrConflict
	}
	return err
}
