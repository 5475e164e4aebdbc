package postgres

import (
	"errors"
	"regexp"

	"github.com/jackc/pgx/v5/pgconn"

	"docnum/internal/core/apperror"
)

// SQLSTATE codes the storage layer maps to application errors.
const (
	codeUniqueViolation  = "23505"
	codeLockNotAvailable = "55P03"
)

// IsUniqueViolation reports whether err is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	return hasSQLState(err, codeUniqueViolation)
}

// IsLockNotAvailable reports whether err was raised by lock_timeout.
func IsLockNotAvailable(err error) bool {
	return hasSQLState(err, codeLockNotAvailable)
}

func hasSQLState(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}(\.[a-z_][a-z0-9_]{0,62})?$`)

// ValidateTableName accepts lower-case, optionally schema-qualified
// identifiers. Table names are spliced into SQL text.
func ValidateTableName(name string) error {
	if !identPattern.MatchString(name) {
		return apperror.NewValidation("invalid table name").WithDetail("table", name)
	}
	return nil
}
