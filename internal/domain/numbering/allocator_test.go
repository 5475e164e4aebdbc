package numbering

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"docnum/internal/core/apperror"
	"docnum/internal/core/entity"
	corenumbering "docnum/internal/core/numbering"
	"docnum/internal/infrastructure/storage/memory"
)

var july = time.Date(2025, 7, 15, 10, 0, 0, 0, time.UTC)

// stubRepo is a scripted Repository.
type stubRepo struct {
	numbers     []string
	periodErr   error
	exists      func(number string) (bool, error)
	periodCalls atomic.Int32
}

func (r *stubRepo) PeriodNumbers(_ context.Context, _ string, _ corenumbering.Period) ([]string, error) {
	r.periodCalls.Add(1)
	return r.numbers, r.periodErr
}

func (r *stubRepo) NumberExists(_ context.Context, number string) (bool, error) {
	if r.exists != nil {
		return r.exists(number)
	}
	return false, nil
}

func fastOptions() corenumbering.Options {
	return corenumbering.Options{
		LockTimeout: time.Second,
		MaxAttempts: 3,
		Backoff:     time.Millisecond,
	}
}

func insertCommit(store *memory.Store, at time.Time) corenumbering.CommitFunc {
	return func(ctx context.Context, number string) error {
		return store.Insert(ctx, &entity.Submission{Number: number, CreatedAt: at})
	}
}

func TestAllocate_GapFilling(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seed(store, "KTA-2025-07-0001", "KTA-2025-07-0002", "KTA-2025-07-0004")
	alloc := NewAllocator(store, memory.NewLocker(), fastOptions())

	st, err := alloc.stats.ComputeStats(ctx, "KTA", 2025, 7)
	require.NoError(t, err)
	assert.Equal(t, 3, st.NextSequence)

	n, err := alloc.AllocateAndCommit(ctx, "KTA", july, insertCommit(store, july))
	require.NoError(t, err)
	assert.Equal(t, "KTA-2025-07-0003", n)

	n, err = alloc.AllocateAndCommit(ctx, "KTA", july, insertCommit(store, july))
	require.NoError(t, err)
	assert.Equal(t, "KTA-2025-07-0005", n)
}

func TestAllocate_DoesNotReserve(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	alloc := NewAllocator(store, memory.NewLocker(), fastOptions())

	a, err := alloc.Allocate(ctx, "KTA", july)
	require.NoError(t, err)
	b, err := alloc.AllocateUnique(ctx, "KTA", july)
	require.NoError(t, err)

	// nothing was committed, so the orphaned number is handed out again
	assert.Equal(t, "KTA-2025-07-0001", a)
	assert.Equal(t, a, b)
}

func TestAllocate_DefaultsToNow(t *testing.T) {
	store := memory.NewStore()
	alloc := NewAllocator(store, memory.NewLocker(), fastOptions()).
		WithClock(func() time.Time { return time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC) })

	n, err := alloc.AllocateUnique(context.Background(), "KTA", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "KTA-2026-02-0001", n)
}

// AllocateUnique alone leaves a window between allocation and insert in
// which a second caller can receive the same number. Callers that serialize
// the pair themselves get distinct numbers; AllocateAndCommit closes the
// window without that.
func TestAllocateUnique_ConcurrentCallersSerializedByCaller(t *testing.T) {
	for _, n := range []int{1, 5, 50} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			ctx := context.Background()
			store := memory.NewStore()
			alloc := NewAllocator(store, memory.NewLocker(), fastOptions())

			var (
				insertMu sync.Mutex
				issued   = make(map[string]int)
			)

			var g errgroup.Group
			for i := 0; i < n; i++ {
				g.Go(func() error {
					insertMu.Lock()
					defer insertMu.Unlock()

					num, err := alloc.AllocateUnique(ctx, "KTA", july)
					if err != nil {
						return err
					}
					if err := store.Insert(ctx, &entity.Submission{Number: num, CreatedAt: july}); err != nil {
						return err
					}
					issued[num]++
					return nil
				})
			}
			require.NoError(t, g.Wait())

			require.Len(t, issued, n)
			for num, count := range issued {
				assert.Equal(t, 1, count, num)
			}

			st, err := NewStatsService(store).ComputeStats(ctx, "KTA", 2025, 7)
			require.NoError(t, err)
			assert.Equal(t, n, st.Total)
			assert.Empty(t, st.Gaps)
		})
	}
}

func TestAllocateAndCommit_ConcurrentCallersGetDistinctNumbers(t *testing.T) {
	for _, n := range []int{1, 5, 50} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			store := memory.NewStore()
			alloc := NewAllocator(store, memory.NewLocker(), fastOptions())

			var (
				mu     sync.Mutex
				issued = make(map[string]int)
			)

			var g errgroup.Group
			for i := 0; i < n; i++ {
				g.Go(func() error {
					num, err := alloc.AllocateAndCommit(context.Background(), "KTA", july, insertCommit(store, july))
					if err != nil {
						return err
					}
					mu.Lock()
					issued[num]++
					mu.Unlock()
					return nil
				})
			}
			require.NoError(t, g.Wait())

			require.Len(t, issued, n)
			for num, count := range issued {
				assert.Equal(t, 1, count, num)
			}

			st, err := NewStatsService(store).ComputeStats(context.Background(), "KTA", 2025, 7)
			require.NoError(t, err)
			assert.Equal(t, n, st.Total)
			assert.Empty(t, st.Gaps)
			assert.Equal(t, n+1, st.NextSequence)
		})
	}
}

func TestAllocateUnique_RetriesWhenCandidateGetsCommitted(t *testing.T) {
	store := memory.NewStore()

	// Another caller commits the candidate between compute and re-check.
	var raced atomic.Bool
	repo := &racingRepo{Store: store, onExists: func(number string) {
		if raced.CompareAndSwap(false, true) {
			seed(store, number)
		}
	}}

	alloc := NewAllocator(repo, memory.NewLocker(), fastOptions())
	n, err := alloc.AllocateUnique(context.Background(), "KTA", july)
	require.NoError(t, err)
	assert.Equal(t, "KTA-2025-07-0002", n)
}

type racingRepo struct {
	*memory.Store
	onExists func(number string)
}

func (r *racingRepo) NumberExists(ctx context.Context, number string) (bool, error) {
	r.onExists(number)
	return r.Store.NumberExists(ctx, number)
}

func TestAllocateUnique_FailsAfterMaxAttempts(t *testing.T) {
	var checks atomic.Int32
	repo := &stubRepo{exists: func(string) (bool, error) {
		checks.Add(1)
		return true, nil
	}}

	alloc := NewAllocator(repo, memory.NewLocker(), fastOptions())
	_, err := alloc.AllocateUnique(context.Background(), "KTA", july)

	require.True(t, apperror.IsAllocationFailed(err), "got %v", err)
	appErr, _ := apperror.AsAppError(err)
	assert.Equal(t, 3, appErr.Details["attempts"])
	assert.Equal(t, int32(3), checks.Load())
}

func TestAllocate_LockTimeoutIsNotRetried(t *testing.T) {
	repo := &stubRepo{}
	locker := memory.NewLocker()
	opts := fastOptions()
	opts.LockTimeout = 20 * time.Millisecond
	alloc := NewAllocator(repo, locker, opts)

	release := holdLock(t, locker, opts.LockName("KTA", corenumbering.PeriodOf(july)))
	defer release()

	_, err := alloc.AllocateUnique(context.Background(), "KTA", july)
	require.True(t, apperror.IsLockTimeout(err), "got %v", err)
	assert.False(t, apperror.IsAllocationFailed(err))
	assert.Equal(t, int32(0), repo.periodCalls.Load())
}

func TestAllocate_PeriodLockScopeDoesNotBlockOtherPeriods(t *testing.T) {
	locker := memory.NewLocker()
	opts := fastOptions()
	opts.LockTimeout = 20 * time.Millisecond
	alloc := NewAllocator(memory.NewStore(), locker, opts)

	release := holdLock(t, locker, opts.LockName("KTA", corenumbering.PeriodOf(july)))
	defer release()

	august := july.AddDate(0, 1, 0)
	n, err := alloc.AllocateUnique(context.Background(), "KTA", august)
	require.NoError(t, err)
	assert.Equal(t, "KTA-2025-08-0001", n)
}

func TestAllocate_GlobalLockScopeSerializesEverything(t *testing.T) {
	locker := memory.NewLocker()
	opts := fastOptions()
	opts.LockTimeout = 20 * time.Millisecond
	opts.LockScope = corenumbering.LockScopeGlobal
	alloc := NewAllocator(memory.NewStore(), locker, opts)

	release := holdLock(t, locker, corenumbering.GlobalLockName)
	defer release()

	_, err := alloc.AllocateUnique(context.Background(), "INV", july.AddDate(1, 0, 0))
	assert.True(t, apperror.IsLockTimeout(err), "got %v", err)
}

// holdLock takes name on locker until the returned func is called.
func holdLock(t *testing.T, locker *memory.Locker, name string) func() {
	t.Helper()

	acquired := make(chan struct{})
	done := make(chan struct{})
	finished := make(chan struct{})

	go func() {
		defer close(finished)
		_ = locker.WithLock(context.Background(), name, time.Second, func(context.Context) error {
			close(acquired)
			<-done
			return nil
		})
	}()

	<-acquired
	return func() {
		close(done)
		<-finished
	}
}

func TestAllocate_PeriodExhausted(t *testing.T) {
	numbers := make([]string, 0, corenumbering.MaxSequence)
	for seq := 1; seq <= corenumbering.MaxSequence; seq++ {
		numbers = append(numbers, corenumbering.Format("KTA", 2025, 7, seq))
	}

	alloc := NewAllocator(&stubRepo{numbers: numbers}, memory.NewLocker(), fastOptions())
	_, err := alloc.AllocateUnique(context.Background(), "KTA", july)
	assert.True(t, apperror.IsPeriodExhausted(err), "got %v", err)
}

func TestAllocate_PersistenceErrorsBubble(t *testing.T) {
	boom := errors.New("relation does not exist")

	alloc := NewAllocator(&stubRepo{periodErr: boom}, memory.NewLocker(), fastOptions())
	_, err := alloc.AllocateUnique(context.Background(), "KTA", july)
	assert.ErrorIs(t, err, boom)

	alloc = NewAllocator(&stubRepo{exists: func(string) (bool, error) { return false, boom }}, memory.NewLocker(), fastOptions())
	_, err = alloc.AllocateUnique(context.Background(), "KTA", july)
	assert.ErrorIs(t, err, boom)
}

func TestAllocate_RejectsInvalidPrefix(t *testing.T) {
	alloc := NewAllocator(memory.NewStore(), memory.NewLocker(), fastOptions())
	_, err := alloc.AllocateUnique(context.Background(), "kta-", july)
	assert.True(t, apperror.IsValidation(err))
}

func TestAllocateAndCommit_RetriesDuplicateConflicts(t *testing.T) {
	store := memory.NewStore()
	alloc := NewAllocator(store, memory.NewLocker(), fastOptions())

	var calls int
	commit := func(ctx context.Context, number string) error {
		calls++
		if calls == 1 {
			// a writer outside the allocator took the number first
			seed(store, number)
			return apperror.NewDuplicateNumber(number)
		}
		return store.Insert(ctx, &entity.Submission{Number: number, CreatedAt: july})
	}

	n, err := alloc.AllocateAndCommit(context.Background(), "KTA", july, commit)
	require.NoError(t, err)
	assert.Equal(t, "KTA-2025-07-0002", n)
	assert.Equal(t, 2, calls)
}

func TestAllocateAndCommit_GivesUpOnPersistentDuplicates(t *testing.T) {
	alloc := NewAllocator(memory.NewStore(), memory.NewLocker(), fastOptions())

	commit := func(_ context.Context, number string) error {
		return apperror.NewDuplicateNumber(number)
	}

	_, err := alloc.AllocateAndCommit(context.Background(), "KTA", july, commit)
	require.True(t, apperror.IsAllocationFailed(err), "got %v", err)
	assert.True(t, apperror.IsDuplicateNumber(errors.Unwrap(err)))
}

func TestAllocateAndCommit_OtherCommitErrorsAreNotRetried(t *testing.T) {
	alloc := NewAllocator(memory.NewStore(), memory.NewLocker(), fastOptions())

	boom := errors.New("insert failed")
	var calls int
	_, err := alloc.AllocateAndCommit(context.Background(), "KTA", july, func(context.Context, string) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestAllocateUnique_HonorsCancellationDuringBackoff(t *testing.T) {
	repo := &stubRepo{exists: func(string) (bool, error) { return true, nil }}
	opts := fastOptions()
	opts.Backoff = time.Hour
	alloc := NewAllocator(repo, memory.NewLocker(), opts)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := alloc.AllocateUnique(ctx, "KTA", july)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
