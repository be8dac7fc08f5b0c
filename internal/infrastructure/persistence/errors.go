package persistence

import (
	"errors"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres SQLSTATE codes that mean "another transaction got there first".
const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateLockNotAvailable     = "55P03"
	sqlStateCheckViolation       = "23514"
)

// IsConflict reports whether err is a serialization failure, deadlock or
// lock timeout raised by Postgres.
func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case sqlStateSerializationFailure, sqlStateDeadlockDetected, sqlStateLockNotAvailable:
		return true
	}
	return false
}

// translateError turns concurrency failures into ALLOCATION_CONFLICT so the
// application layer can retry them, and amount check violations into
// INVALID_AMOUNT. Other errors pass through unchanged.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, finance.ErrAllocationConflict) {
		return err
	}
	if IsConflict(err) {
		return finance.NewAllocationConflictError(err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == sqlStateCheckViolation {
		return finance.ErrInvalidAmount.WithCause(err).WithDetails(map[string]any{"constraint": pgErr.ConstraintName})
	}
	return err
}
