package store

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"lendingdesk/internal/apperr"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
)

// Failure wraps err as a storage failure for operation op.
func Failure(op string, err error) error {
	return apperr.Storage(op, err)
}

// IsNoRows reports whether err means the query matched nothing.
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// IsUniqueViolation reports whether err is a unique violation on constraint.
// An empty constraint matches any unique violation.
func IsUniqueViolation(err error, constraint string) bool {
	return isCode(err, codeUniqueViolation, constraint)
}

// IsForeignKeyViolation reports whether err is a foreign key violation on constraint.
func IsForeignKeyViolation(err error, constraint string) bool {
	return isCode(err, codeForeignKeyViolation, constraint)
}

// IsCheckViolation reports whether err is a check constraint violation on constraint.
func IsCheckViolation(err error, constraint string) bool {
	return isCode(err, codeCheckViolation, constraint)
}

func isCode(err error, code pq.ErrorCode, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != code {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}
