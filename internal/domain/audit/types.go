// Package audit checks the persisted number corpus for malformed and
// duplicated document numbers and, in apply mode, rewrites them.
package audit

import (
	"context"
	"fmt"
	"time"

	"docnum/internal/core/entity"
)

// Repository gives the auditor access to every submission record.
type Repository interface {
	// ListAll returns every record.
	ListAll(ctx context.Context) ([]entity.Submission, error)

	// UpdateNumber rewrites the number of record id, provided it still
	// equals oldNumber.
	UpdateNumber(ctx context.Context, id int64, oldNumber, newNumber string) error
}

// Journal records applied repairs. Optional.
type Journal interface {
	Record(ctx context.Context, entry entity.RepairEntry) error
}

// Mode selects whether the auditor writes.
type Mode string

const (
	ModeDryRun Mode = "dry-run"
	ModeApply  Mode = "apply"
)

// ParseMode parses "dry-run" or "apply".
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeDryRun, ModeApply:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown audit mode %q (want %q or %q)", s, ModeDryRun, ModeApply)
}

// State is where a record ended up in a run.
type State string

const (
	StateUnique          State = "unique"
	StateDuplicateKept   State = "duplicate_kept"
	StateInvalid         State = "invalid"
	StateDuplicateMember State = "duplicate_member"
	StateRepaired        State = "repaired"
	StateFlaggedOnly     State = "flagged_only"
	StateFailed          State = "failed"
)

// Change is one planned or applied number rewrite.
type Change struct {
	ID        int64               `json:"id"`
	CreatedAt time.Time           `json:"createdAt"`
	OldNumber string              `json:"oldNumber"`
	NewNumber string              `json:"newNumber,omitempty"`
	Reason    entity.RepairReason `json:"reason"`
	State     State               `json:"state"`
	Error     string              `json:"error,omitempty"`
}

// DuplicateGroup is a number carried by more than one record.
// Members are ordered by creation time; the first one keeps the number.
type DuplicateGroup struct {
	Number  string  `json:"number"`
	Members []int64 `json:"members"`
}

// Kept returns the record that keeps the number.
func (g DuplicateGroup) Kept() int64 {
	return g.Members[0]
}

// PeriodUsage summarizes valid numbers grouped by the creation period of
// their records. Reporting only.
type PeriodUsage struct {
	Period        string `json:"period"`
	Records       int    `json:"records"`
	UsedSequences []int  `json:"usedSequences"`
	Gaps          []int  `json:"gaps"`
	// Mismatched counts numbers whose own period differs from the creation
	// period of their record.
	Mismatched int `json:"mismatched"`
}

// Report is the outcome of one run.
type Report struct {
	RunID            string           `json:"runId"`
	Mode             Mode             `json:"mode"`
	Prefix           string           `json:"prefix"`
	Total            int              `json:"total"`
	ValidCount       int              `json:"validCount"`
	InvalidCount     int              `json:"invalidCount"`
	// OtherPrefixCount counts well-formed numbers of other prefixes. They
	// are left untouched and excluded from every other figure.
	OtherPrefixCount int              `json:"otherPrefixCount"`
	DuplicateGroups  []DuplicateGroup `json:"duplicateGroups"`
	RepairedCount    int              `json:"repairedCount"`
	FailedCount      int              `json:"failedCount"`
	Periods          []PeriodUsage    `json:"periods"`
	Changes          []Change         `json:"changes"`
}
