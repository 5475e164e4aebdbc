package numbering

import (
	"fmt"
	"time"
)

// LockScope defines which allocations serialize against each other.
type LockScope string

const (
	// LockScopePeriod keys the lock on (prefix, year, month).
	// Unrelated periods allocate in parallel.
	LockScopePeriod LockScope = "period"

	// LockScopeGlobal uses one lock name for every prefix and period.
	// Simple, but all allocations queue behind each other.
	LockScopeGlobal LockScope = "global"
)

// GlobalLockName is the lock name used by LockScopeGlobal.
const GlobalLockName = "sequence_allocator_lock"

// Options configures allocation behavior.
type Options struct {
	// LockScope selects the lock key granularity. Default is LockScopePeriod.
	LockScope LockScope

	// LockTimeout bounds the wait for the advisory lock. Default 10s.
	LockTimeout time.Duration

	// MaxAttempts bounds the allocate/verify cycle. Default 3.
	MaxAttempts int

	// Backoff is the pause between attempts. Default 100ms; a negative
	// value retries without waiting.
	Backoff time.Duration
}

// DefaultOptions returns standard options.
func DefaultOptions() Options {
	return Options{
		LockScope:   LockScopePeriod,
		LockTimeout: 10 * time.Second,
		MaxAttempts: 3,
		Backoff:     100 * time.Millisecond,
	}
}

// WithDefaults fills zero fields from DefaultOptions.
func (o Options) WithDefaults() Options {
	d := DefaultOptions()
	if o.LockScope == "" {
		o.LockScope = d.LockScope
	}
	if o.LockTimeout <= 0 {
		o.LockTimeout = d.LockTimeout
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = d.MaxAttempts
	}
	if o.Backoff == 0 {
		o.Backoff = d.Backoff
	}
	return o
}

// Validate checks option values.
func (o Options) Validate() error {
	switch o.LockScope {
	case LockScopePeriod, LockScopeGlobal, "":
	default:
		return fmt.Errorf("unknown lock scope %q", o.LockScope)
	}
	return nil
}

// LockName returns the advisory lock name guarding allocations for
// prefix in period p.
func (o Options) LockName(prefix string, p Period) string {
	if o.LockScope == LockScopeGlobal {
		return GlobalLockName
	}
	return fmt.Sprintf("numbering:%s:%s", prefix, p)
}
