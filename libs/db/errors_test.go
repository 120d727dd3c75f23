package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestErrorClassification(t *testing.T) {
	excl := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23P01", ConstraintName: "appointments_professional_no_overlap"})
	name, ok := ExclusionConstraint(excl)
	if !ok || name != "appointments_professional_no_overlap" {
		t.Fatalf("expected exclusion constraint, got %q %v", name, ok)
	}
	if IsRetryable(excl) {
		t.Fatalf("exclusion violation must not be retried")
	}

	if !IsRetryable(&pgconn.PgError{Code: "40001"}) || !IsRetryable(&pgconn.PgError{Code: "40P01"}) {
		t.Fatalf("serialization failure and deadlock should be retryable")
	}
	if !IsUniqueViolation(&pgconn.PgError{Code: "23505"}) {
		t.Fatalf("expected unique violation")
	}
	if !IsForeignKeyViolation(&pgconn.PgError{Code: "23503"}) {
		t.Fatalf("expected fk violation")
	}
	if !IsNotFound(fmt.Errorf("load: %w", pgx.ErrNoRows)) {
		t.Fatalf("expected not found")
	}
	if IsRetryable(errors.New("boom")) {
		t.Fatalf("plain errors are not retryable")
	}
}
