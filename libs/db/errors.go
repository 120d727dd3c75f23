package db

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeExclusionViolation   = "23P01"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

func pgCode(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func IsUniqueViolation(err error) bool {
	e, ok := pgCode(err)
	return ok && e.Code == codeUniqueViolation
}

func IsForeignKeyViolation(err error) bool {
	e, ok := pgCode(err)
	return ok && e.Code == codeForeignKeyViolation
}

// ExclusionConstraint returns the violated constraint name for 23P01 errors.
func ExclusionConstraint(err error) (string, bool) {
	e, ok := pgCode(err)
	if !ok || e.Code != codeExclusionViolation {
		return "", false
	}
	return e.ConstraintName, true
}

func IsRetryable(err error) bool {
	e, ok := pgCode(err)
	return ok && (e.Code == codeSerializationFailure || e.Code == codeDeadlockDetected)
}
