// Package memory provides process-local implementations of the numbering
// storage contracts. It backs unit tests and local dry runs; production
// deployments use the postgres package.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"docnum/internal/core/apperror"
	"docnum/internal/core/entity"
	corenumbering "docnum/internal/core/numbering"
)

// Store keeps submission records in memory.
//
// Insert and UpdateNumber enforce uniqueness of the number like the unique
// index of the PostgreSQL schema. Seed bypasses it, to model legacy data
// written before the index existed.
type Store struct {
	mu      sync.RWMutex
	records map[int64]entity.Submission
	nextID  int64
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		records: make(map[int64]entity.Submission),
		nextID:  1,
	}
}

// Seed inserts records as-is, keeping their IDs and allowing duplicates or
// malformed numbers. Records with a zero ID get the next free one.
func (s *Store) Seed(records ...entity.Submission) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		if r.ID == 0 {
			r.ID = s.nextID
		}
		s.records[r.ID] = r
		if r.ID >= s.nextID {
			s.nextID = r.ID + 1
		}
	}
}

// Get returns the record with id.
func (s *Store) Get(_ context.Context, id int64) (entity.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[id]
	if !ok {
		return entity.Submission{}, apperror.NewNotFound("submission", id)
	}
	return r, nil
}

// Insert stores a new record and assigns its ID.
func (s *Store) Insert(ctx context.Context, rec *entity.Submission) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.holderLocked(rec.Number, 0) {
		return apperror.NewDuplicateNumber(rec.Number)
	}

	rec.ID = s.nextID
	s.nextID++
	s.records[rec.ID] = *rec
	return nil
}

// PeriodNumbers implements numbering.Repository.
func (s *Store) PeriodNumbers(ctx context.Context, prefix string, p corenumbering.Period) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lit := corenumbering.PeriodPrefix(prefix, p)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for _, r := range s.records {
		if strings.HasPrefix(r.Number, lit) && corenumbering.Validate(r.Number) {
			out = append(out, r.Number)
		}
	}
	sort.Strings(out)
	return out, nil
}

// NumberExists implements numbering.Repository.
func (s *Store) NumberExists(ctx context.Context, number string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.holderLocked(number, 0), nil
}

// ListAll returns every record ordered by ID.
func (s *Store) ListAll(ctx context.Context) ([]entity.Submission, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]entity.Submission, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdateNumber rewrites the number of record id if it still equals oldNumber.
func (s *Store) UpdateNumber(ctx context.Context, id int64, oldNumber, newNumber string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok || r.Number != oldNumber {
		return apperror.NewConcurrentModification("submission", id)
	}
	if s.holderLocked(newNumber, id) {
		return apperror.NewDuplicateNumber(newNumber)
	}

	r.Number = newNumber
	s.records[id] = r
	return nil
}

// holderLocked reports whether a record other than except carries number.
func (s *Store) holderLocked(number string, except int64) bool {
	for id, r := range s.records {
		if id != except && r.Number == number {
			return true
		}
	}
	return false
}

// Locker is a keyed mutex with bounded waits, the in-process counterpart
// of PostgreSQL advisory locks.
type Locker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewLocker creates a new Locker.
func NewLocker() *Locker {
	return &Locker{slots: make(map[string]chan struct{})}
}

func (l *Locker) slot(name string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch, ok := l.slots[name]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[name] = ch
	}
	return ch
}

// WithLock implements numbering.Locker.
func (l *Locker) WithLock(ctx context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) error {
	ch := l.slot(name)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
	case <-timer.C:
		return apperror.NewLockTimeout(name, timeout.String())
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-ch }()

	return fn(ctx)
}
