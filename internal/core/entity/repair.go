package entity

import (
	"time"
)

// RepairReason explains why the repairer rewrote a number.
type RepairReason string

const (
	RepairInvalidFormat RepairReason = "invalid_format"
	RepairDuplicate     RepairReason = "duplicate"
)

// RepairEntry is one applied number rewrite, kept for operators.
type RepairEntry struct {
	ID           string         `db:"id" json:"id"`
	RunID        string         `db:"run_id" json:"runId"`
	SubmissionID int64          `db:"submission_id" json:"submissionId"`
	OldNumber    string         `db:"old_number" json:"oldNumber"`
	NewNumber    string         `db:"new_number" json:"newNumber"`
	Reason       RepairReason   `db:"reason" json:"reason"`
	Operator     string         `db:"operator" json:"operator,omitempty"`
	Details      map[string]any `db:"-" json:"details,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"createdAt"`
}
