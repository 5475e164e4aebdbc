package submission_repo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docnum/internal/core/apperror"
	"docnum/internal/core/entity"
	corenumbering "docnum/internal/core/numbering"
)

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	repo, err := New(nil, "")
	require.NoError(t, err)
	return repo
}

func TestNew_TableName(t *testing.T) {
	repo := newTestRepo(t)
	assert.Equal(t, "submissions", repo.Table())

	repo, err := New(nil, "legacy.pengajuan")
	require.NoError(t, err)
	assert.Equal(t, "legacy.pengajuan", repo.Table())

	_, err = New(nil, "submissions; DROP TABLE x")
	assert.True(t, apperror.IsValidation(err))
}

func TestRepo_PeriodNumbers_SQL(t *testing.T) {
	repo := newTestRepo(t)

	sql, args, err := repo.periodNumbersQuery("KTA", corenumbering.Period{Year: 2025, Month: 7}).ToSql()
	require.NoError(t, err)

	wantSQL := "SELECT no_pengajuan FROM submissions WHERE no_pengajuan LIKE $1 AND no_pengajuan ~ $2 ORDER BY no_pengajuan"
	assert.Equal(t, wantSQL, sql)
	assert.Equal(t, []any{"KTA-2025-07-%", "^KTA-2025-07-[0-9]{4}$"}, args)
}

func TestRepo_NumberExists_SQL(t *testing.T) {
	repo := newTestRepo(t)

	sql, args, err := repo.numberExistsSQL("KTA-2025-07-0001")
	require.NoError(t, err)

	assert.Equal(t, "SELECT EXISTS (SELECT 1 FROM submissions WHERE no_pengajuan = $1 LIMIT 1)", sql)
	assert.Equal(t, []any{"KTA-2025-07-0001"}, args)
}

func TestRepo_Insert_SQL(t *testing.T) {
	repo := newTestRepo(t)
	created := time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC)

	sql, args, err := repo.insertQuery(&entity.Submission{Number: "KTA-2025-07-0001", CreatedAt: created}).ToSql()
	require.NoError(t, err)

	assert.Equal(t, "INSERT INTO submissions (no_pengajuan,created_at) VALUES ($1,$2) RETURNING id", sql)
	assert.Equal(t, []any{"KTA-2025-07-0001", created}, args)
}

func TestRepo_UpdateNumber_SQL(t *testing.T) {
	repo := newTestRepo(t)

	sql, args, err := repo.updateNumberQuery(42, "kta/7/42", "KTA-2025-07-0042").ToSql()
	require.NoError(t, err)

	// the old number guards against concurrent rewrites
	assert.Equal(t, "UPDATE submissions SET no_pengajuan = $1 WHERE id = $2 AND no_pengajuan = $3", sql)
	assert.Equal(t, []any{"KTA-2025-07-0042", int64(42), "kta/7/42"}, args)
}
