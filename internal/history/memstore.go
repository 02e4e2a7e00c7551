package history

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// Compile-time assertion: *MemStore satisfies Store.
var _ Store = (*MemStore)(nil)

// MemStore implements Store using Go maps. Thread-safe via sync.RWMutex.
type MemStore struct {
	mu    sync.RWMutex
	runs  map[string]RunRecord
	order []string // insertion order
}

// NewMemStore returns an initialized MemStore ready for use.
func NewMemStore() *MemStore {
	return &MemStore{runs: make(map[string]RunRecord)}
}

// InitSchema is a no-op for the in-memory store.
func (m *MemStore) InitSchema(_ context.Context) error {
	return nil
}

// RecordRun stores a copy of run keyed by its ID.
func (m *MemStore) RecordRun(_ context.Context, run RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateRun, run.ID)
	}
	run.Deliverables = slices.Clone(run.Deliverables)
	m.runs[run.ID] = run
	m.order = append(m.order, run.ID)
	return nil
}

// ListRuns returns runs by start time, newest first. Runs that started at
// the same instant are returned newest-recorded first.
func (m *MemStore) ListRuns(_ context.Context, limit int) ([]RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]RunRecord, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		out = append(out, m.runs[m.order[i]])
	}
	slices.SortStableFunc(out, func(a, b RunRecord) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetRun returns the run with the given ID.
func (m *MemStore) GetRun(_ context.Context, id string) (*RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	r.Deliverables = slices.Clone(r.Deliverables)
	return &r, nil
}

// Close is a no-op for the in-memory store.
func (m *MemStore) Close() error {
	return nil
}
