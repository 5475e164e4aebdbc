package postgres

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/blake2b"

	"docnum/internal/core/apperror"
	"docnum/pkg/logger"
)

// LockKey maps a lock name to the bigint key of pg_advisory_xact_lock.
// Equal names give equal keys in every process.
func LockKey(name string) int64 {
	sum := blake2b.Sum256([]byte(name))
	return int64(binary.BigEndian.Uint64(sum[:8]))
}

// AdvisoryLocker implements numbering.Locker with transaction-scoped
// advisory locks.
//
// WithLock opens a transaction, takes the lock inside it and runs fn with
// the transaction in the context. Repositories using the same TxManager
// therefore read and write under the lock, and the lock is released by the
// commit or rollback that ends the transaction.
type AdvisoryLocker struct {
	txm *TxManager
}

// NewAdvisoryLocker creates a new AdvisoryLocker.
func NewAdvisoryLocker(txm *TxManager) *AdvisoryLocker {
	return &AdvisoryLocker{txm: txm}
}

// WithLock implements numbering.Locker.
func (l *AdvisoryLocker) WithLock(ctx context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) error {
	key := LockKey(name)

	ctx, span := tracer.Start(ctx, "advisory_lock",
		trace.WithAttributes(
			attribute.String("lock.name", name),
			attribute.Int64("lock.key", key),
		))
	defer span.End()

	return l.txm.RunInTransactionWithOptions(ctx, lockTxOptions(timeout), func(ctx context.Context) error {
		q := l.txm.GetQuerier(ctx)

		if timeout > 0 {
			if _, err := q.Exec(ctx, lockTimeoutSQL(timeout)); err != nil {
				return fmt.Errorf("set lock_timeout: %w", err)
			}
		}

		started := time.Now()
		if _, err := q.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", key); err != nil {
			if IsLockNotAvailable(err) {
				return apperror.NewLockTimeout(name, timeout.String()).WithCause(err)
			}
			return fmt.Errorf("acquire advisory lock %s: %w", name, err)
		}
		logger.Debug(ctx, "advisory lock acquired", "lock", name, "waited", time.Since(started))

		// the timeout was for the lock wait only
		if timeout > 0 {
			if _, err := q.Exec(ctx, "SET LOCAL lock_timeout TO DEFAULT"); err != nil {
				return fmt.Errorf("reset lock_timeout: %w", err)
			}
		}

		return fn(ctx)
	})
}

// lockTxOptions extends the statement timeout by the lock wait, so a long
// wait ends with lock_timeout (LOCK_TIMEOUT) and not statement_timeout.
func lockTxOptions(timeout time.Duration) TxOptions {
	opts := DefaultTxOptions()
	if timeout > 0 {
		opts.StatementTimeout += timeout
	}
	return opts
}

// lockTimeoutSQL renders SET LOCAL lock_timeout. Sub-millisecond values are
// raised to 1ms because 0 disables the timeout.
func lockTimeoutSQL(timeout time.Duration) string {
	ms := timeout.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", ms)
}
