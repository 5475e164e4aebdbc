package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"docnum/internal/core/entity"
)

func TestExtractDBColumns_Submission(t *testing.T) {
	assert.Equal(t, entity.SubmissionColumns, ExtractDBColumns[entity.Submission]())
}

func TestExtractDBColumns_SkipsUntagged(t *testing.T) {
	cols := ExtractDBColumns[entity.RepairEntry]()
	assert.NotContains(t, cols, "details")
	assert.Contains(t, cols, "run_id")
}

type auditedSubmission struct {
	entity.Submission
	Note string `db:"note"`
}

func TestStructToMap_Embedded(t *testing.T) {
	now := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	m := StructToMap(&auditedSubmission{
		Submission: entity.Submission{ID: 7, Number: "KTA-2025-07-0007", CreatedAt: now},
		Note:       "legacy",
	})

	assert.Equal(t, int64(7), m["id"])
	assert.Equal(t, "KTA-2025-07-0007", m["no_pengajuan"])
	assert.Equal(t, now, m["created_at"])
	assert.Equal(t, "legacy", m["note"])
	assert.Len(t, m, 4)
}

func TestStructToMap_NotAStruct(t *testing.T) {
	assert.Nil(t, StructToMap(42))
}
