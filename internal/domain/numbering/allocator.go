package numbering

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"docnum/internal/core/apperror"
	corenumbering "docnum/internal/core/numbering"
	"docnum/pkg/logger"
)

var tracer = otel.Tracer("docnum/numbering")

// Allocator issues gap-filling, period-scoped document numbers.
//
// Every call recomputes the smallest unused sequence from persisted state
// under an advisory lock. There is no in-process counter, so several
// service instances can share one database and orphaned numbers are
// reclaimed by the next allocation.
type Allocator struct {
	repo   Repository
	locker Locker
	stats  *StatsService
	opts   corenumbering.Options
	now    func() time.Time
}

// Ensure compile-time interface compliance.
var _ corenumbering.Allocator = (*Allocator)(nil)

// NewAllocator creates a new allocator. Zero option fields take defaults.
func NewAllocator(repo Repository, locker Locker, opts corenumbering.Options) *Allocator {
	return &Allocator{
		repo:   repo,
		locker: locker,
		stats:  NewStatsService(repo),
		opts:   opts.WithDefaults(),
		now:    time.Now,
	}
}

// WithClock replaces the clock used when no period is given.
func (a *Allocator) WithClock(now func() time.Time) *Allocator {
	a.now = now
	return a
}

// Options returns the effective options.
func (a *Allocator) Options() corenumbering.Options {
	return a.opts
}

// Allocate computes the next candidate number for prefix in the period
// containing at (now when at is zero).
//
// The lock covers only the read-and-compute step and is released before
// Allocate returns: the candidate is not reserved. Callers wanting a
// verified number use AllocateUnique, callers inserting a record use
// AllocateAndCommit.
func (a *Allocator) Allocate(ctx context.Context, prefix string, at time.Time) (string, error) {
	return a.allocate(ctx, prefix, at, nil)
}

// AllocateUnique allocates a number and re-checks that no record carries it.
// If another caller committed the same number in the meantime, it backs off
// and retries the whole cycle, up to MaxAttempts.
//
// A lock timeout is returned immediately, without retry.
func (a *Allocator) AllocateUnique(ctx context.Context, prefix string, at time.Time) (string, error) {
	at = a.resolve(at)
	p := corenumbering.PeriodOf(at)

	ctx, span := tracer.Start(ctx, "numbering.allocate_unique",
		trace.WithAttributes(
			attribute.String("numbering.prefix", prefix),
			attribute.String("numbering.period", p.String()),
		))
	defer span.End()

	for attempt := 1; attempt <= a.opts.MaxAttempts; attempt++ {
		number, err := a.allocate(ctx, prefix, at, nil)
		if err != nil {
			return "", a.fail(span, err)
		}

		exists, err := a.repo.NumberExists(ctx, number)
		if err != nil {
			return "", a.fail(span, err)
		}
		if !exists {
			span.SetAttributes(attribute.Int("numbering.attempts", attempt))
			return number, nil
		}

		logger.Warn(ctx, "allocated number already committed, retrying",
			"number", number, "attempt", attempt)

		if attempt < a.opts.MaxAttempts {
			if err := a.backoff(ctx, attempt); err != nil {
				return "", a.fail(span, err)
			}
		}
	}

	return "", a.fail(span, apperror.NewAllocationFailed(prefix, p.String(), a.opts.MaxAttempts))
}

// AllocateAndCommit allocates a number and runs commit with it before the
// lock is released. On PostgreSQL the lock is transaction scoped, so commit
// runs in the same transaction and the record becomes visible together with
// the lock release.
//
// A commit failing with a duplicate-number error (unique index conflict with
// a writer that bypassed the allocator) is retried with backoff, up to
// MaxAttempts. Any other commit error is returned unchanged.
func (a *Allocator) AllocateAndCommit(ctx context.Context, prefix string, at time.Time, commit corenumbering.CommitFunc) (string, error) {
	at = a.resolve(at)
	p := corenumbering.PeriodOf(at)

	ctx, span := tracer.Start(ctx, "numbering.allocate_and_commit",
		trace.WithAttributes(
			attribute.String("numbering.prefix", prefix),
			attribute.String("numbering.period", p.String()),
		))
	defer span.End()

	var lastErr error
	for attempt := 1; attempt <= a.opts.MaxAttempts; attempt++ {
		number, err := a.allocate(ctx, prefix, at, commit)
		if err == nil {
			span.SetAttributes(attribute.Int("numbering.attempts", attempt))
			return number, nil
		}
		if !apperror.IsDuplicateNumber(err) {
			return "", a.fail(span, err)
		}

		lastErr = err
		logger.Warn(ctx, "commit hit a duplicate number, retrying",
			"attempt", attempt, "error", err)

		if attempt < a.opts.MaxAttempts {
			if err := a.backoff(ctx, attempt); err != nil {
				return "", a.fail(span, err)
			}
		}
	}

	return "", a.fail(span,
		apperror.NewAllocationFailed(prefix, p.String(), a.opts.MaxAttempts).WithCause(lastErr))
}

func (a *Allocator) allocate(ctx context.Context, prefix string, at time.Time, commit corenumbering.CommitFunc) (string, error) {
	if !corenumbering.ValidPrefix(prefix) {
		return "", apperror.NewValidation("invalid document number prefix").
			WithDetail("prefix", prefix)
	}

	p := corenumbering.PeriodOf(a.resolve(at))
	if !p.Valid() {
		return "", apperror.NewValidation("period cannot be encoded").
			WithDetail("period", p.String())
	}

	lockName := a.opts.LockName(prefix, p)
	var number string

	err := a.locker.WithLock(ctx, lockName, a.opts.LockTimeout, func(ctx context.Context) error {
		st, err := a.stats.ComputeStats(ctx, prefix, p.Year, p.Month)
		if err != nil {
			return err
		}
		if st.NextSequence > corenumbering.MaxSequence {
			return apperror.NewPeriodExhausted(prefix, p.String(), corenumbering.MaxSequence)
		}

		number = corenumbering.Format(prefix, p.Year, p.Month, st.NextSequence)
		logger.Debug(ctx, "computed candidate number",
			"number", number, "lock", lockName, "gaps", len(st.Gaps))

		if commit != nil {
			return commit(ctx, number)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	return number, nil
}

func (a *Allocator) resolve(at time.Time) time.Time {
	if at.IsZero() {
		return a.now()
	}
	return at
}

// backoff waits Backoff*attempt or until ctx is done.
func (a *Allocator) backoff(ctx context.Context, attempt int) error {
	d := a.opts.Backoff * time.Duration(attempt)
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (a *Allocator) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
