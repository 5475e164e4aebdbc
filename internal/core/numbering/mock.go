package numbering

import (
	"context"
	"time"
)

// MockAllocator is a test implementation of Allocator.
// Use in unit tests to avoid database dependencies.
type MockAllocator struct {
	AllocateUniqueFunc    func(ctx context.Context, prefix string, at time.Time) (string, error)
	AllocateAndCommitFunc func(ctx context.Context, prefix string, at time.Time, commit CommitFunc) (string, error)
}

// AllocateUnique implements Allocator.
func (m *MockAllocator) AllocateUnique(ctx context.Context, prefix string, at time.Time) (string, error) {
	if m.AllocateUniqueFunc != nil {
		return m.AllocateUniqueFunc(ctx, prefix, at)
	}
	// Default: first number of the period
	return Format(prefix, at.Year(), int(at.Month()), 1), nil
}

// AllocateAndCommit implements Allocator.
func (m *MockAllocator) AllocateAndCommit(ctx context.Context, prefix string, at time.Time, commit CommitFunc) (string, error) {
	if m.AllocateAndCommitFunc != nil {
		return m.AllocateAndCommitFunc(ctx, prefix, at, commit)
	}
	number, err := m.AllocateUnique(ctx, prefix, at)
	if err != nil {
		return "", err
	}
	if err := commit(ctx, number); err != nil {
		return "", err
	}
	return number, nil
}

// Ensure compile-time interface compliance.
var _ Allocator = (*MockAllocator)(nil)
