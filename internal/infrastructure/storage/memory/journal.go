package memory

import (
	"context"
	"sync"

	"docnum/internal/core/entity"
)

// Journal keeps repair entries in memory.
type Journal struct {
	mu      sync.Mutex
	entries []entity.RepairEntry
}

// NewJournal creates an empty journal.
func NewJournal() *Journal {
	return &Journal{}
}

// Record implements audit.Journal.
func (j *Journal) Record(ctx context.Context, entry entity.RepairEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
	return nil
}

// Entries returns a copy of the recorded entries in insertion order.
func (j *Journal) Entries() []entity.RepairEntry {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]entity.RepairEntry(nil), j.entries...)
}

// RunEntries returns the entries of one audit run.
func (j *Journal) RunEntries(_ context.Context, runID string) ([]entity.RepairEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := []entity.RepairEntry{}
	for _, e := range j.entries {
		if e.RunID == runID {
			out = append(out, e)
		}
	}
	return out, nil
}
