package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Clark-Hu/rate-the-washroom/internal/apperr"
)

// Postgres SQLSTATE codes the service layer reacts to.
const (
	CodeSerializationFailure = "40001"
	CodeDeadlockDetected     = "40P01"
	CodeUniqueViolation      = "23505"
	CodeForeignKeyViolation  = "23503"
	CodeQueryCanceled        = "57014"
	CodeLockNotAvailable     = "55P03"
	CodeInvalidText          = "22P02"
)

// PgCode returns the SQLSTATE carried by err, or "".
func PgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// Retryable reports whether a failed transaction may succeed when replayed.
func Retryable(err error) bool {
	switch PgCode(err) {
	case CodeSerializationFailure, CodeDeadlockDetected, CodeUniqueViolation:
		return true
	}
	return false
}

// Classify maps driver and context failures onto apperr kinds. Errors that
// already carry a kind pass through untouched.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperr.Unavailable("storage operation timed out", err)
	}

	switch PgCode(err) {
	case CodeSerializationFailure, CodeDeadlockDetected, CodeQueryCanceled, CodeLockNotAvailable:
		return apperr.Unavailable("storage contention, retry later", err)
	case CodeUniqueViolation:
		return apperr.Conflict("concurrent write to the same review", err)
	case CodeForeignKeyViolation:
		return apperr.NotFound("facility not found")
	case CodeInvalidText:
		return apperr.InvalidInput("malformed identifier")
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return apperr.Unavailable("storage unavailable", err)
	}
	return apperr.Internal("storage failure", err)
}
