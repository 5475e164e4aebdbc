package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestSQLStateMapping(t *testing.T) {
	unique := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})
	lock := &pgconn.PgError{Code: "55P03"}

	assert.True(t, IsUniqueViolation(unique))
	assert.False(t, IsLockNotAvailable(unique))
	assert.True(t, IsLockNotAvailable(lock))
	assert.False(t, IsUniqueViolation(errors.New("23505")))
}

func TestValidateTableName(t *testing.T) {
	for _, ok := range []string{"submissions", "legacy.pengajuan", "_tmp1"} {
		assert.NoError(t, ValidateTableName(ok), ok)
	}
	for _, bad := range []string{"", "Submissions", "a b", "x;drop", "a.b.c", "1abc"} {
		assert.Error(t, ValidateTableName(bad), bad)
	}
}
