// Package submission is the reference caller of the allocator: it obtains a
// number and inserts the business record carrying it.
package submission

import (
	"context"
	"fmt"
	"time"

	"docnum/internal/core/entity"
	"docnum/internal/core/numbering"
	"docnum/pkg/logger"
)

// Repository persists submission records.
type Repository interface {
	// Insert stores rec and assigns rec.ID. A number already held by another
	// record fails with an apperror.CodeDuplicateNumber error.
	Insert(ctx context.Context, rec *entity.Submission) error
}

// NewSubmission is the input of Submit.
type NewSubmission struct {
	Prefix string
	// CreatedAt defaults to now. Its period scopes the number.
	CreatedAt time.Time
}

// Service creates submission records with allocated numbers.
type Service struct {
	allocator numbering.Allocator
	repo      Repository
	now       func() time.Time
}

// NewService creates a new submission service.
func NewService(allocator numbering.Allocator, repo Repository) *Service {
	return &Service{
		allocator: allocator,
		repo:      repo,
		now:       time.Now,
	}
}

// WithClock replaces the clock used for CreatedAt defaults.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Submit allocates a number and inserts the record inside the allocation
// lock, so two submissions never commit the same number.
func (s *Service) Submit(ctx context.Context, in NewSubmission) (*entity.Submission, error) {
	createdAt := in.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	rec := &entity.Submission{CreatedAt: createdAt}

	_, err := s.allocator.AllocateAndCommit(ctx, in.Prefix, createdAt, func(ctx context.Context, number string) error {
		rec.Number = number
		return s.repo.Insert(ctx, rec)
	})
	if err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}

	logger.Info(ctx, "submission created", "id", rec.ID, "number", rec.Number)
	return rec, nil
}
