package entity

import (
	"time"
)

// Submission is the business record carrying a document number.
// The record is owned by the submission service; numbering code reads it and
// the repairer rewrites its number, nothing else.
type Submission struct {
	// ID is the immutable primary key.
	ID int64 `db:"id" json:"id"`

	// Number is the document number (no_pengajuan), PREFIX-YYYY-MM-NNNN.
	Number string `db:"no_pengajuan" json:"noPengajuan"`

	// CreatedAt is the submission time.
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Column names of the submission table.
const (
	ColumnID        = "id"
	ColumnNumber    = "no_pengajuan"
	ColumnCreatedAt = "created_at"
)

// SubmissionColumns lists the columns read by numbering code, in scan order.
var SubmissionColumns = []string{ColumnID, ColumnNumber, ColumnCreatedAt}
