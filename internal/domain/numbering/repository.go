// Package numbering implements period statistics and the sequence allocator
// on top of persisted document numbers.
package numbering

import (
	"context"
	"time"

	corenumbering "docnum/internal/core/numbering"
)

// Repository reads the persisted number corpus.
type Repository interface {
	// PeriodNumbers returns every persisted number that starts with the
	// literal PREFIX-YYYY-MM- of period p and fully matches the strict format.
	// Duplicated rows are returned once per row.
	PeriodNumbers(ctx context.Context, prefix string, p corenumbering.Period) ([]string, error)

	// NumberExists reports whether any persisted record carries number.
	NumberExists(ctx context.Context, number string) (bool, error)
}

// Locker provides the named, process-external mutual exclusion the allocator
// serializes on.
type Locker interface {
	// WithLock runs fn while holding the lock called name.
	// Waiting longer than timeout fails with an apperror.CodeLockTimeout error
	// and fn is not called. The lock is released when fn returns, whatever
	// the outcome.
	WithLock(ctx context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) error
}
