package numbering

import (
	"context"
	"time"
)

// Allocator issues document numbers.
// This is the domain contract consumed by submission code; the implementation
// lives in internal/domain/numbering.
type Allocator interface {
	// AllocateUnique returns the smallest unused number for prefix in the
	// period containing at, after re-checking that nobody committed it.
	// Pattern: PREFIX-YYYY-MM-NNNN (e.g., KTA-2025-07-0001)
	//
	// The number is not reserved: a caller that never commits it leaves it
	// free for the next allocation.
	AllocateUnique(ctx context.Context, prefix string, at time.Time) (string, error)

	// AllocateAndCommit allocates a number and calls commit with it while the
	// allocation lock is still held. A commit failing with a duplicate-number
	// error is retried with a fresh number.
	AllocateAndCommit(ctx context.Context, prefix string, at time.Time, commit CommitFunc) (string, error)
}

// CommitFunc persists the business record carrying number.
// ctx carries the lock-holding transaction when the backend supports it.
type CommitFunc func(ctx context.Context, number string) error
