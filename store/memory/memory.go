// Package memory provides an in-memory RecordStore for tests and demos.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/recordset"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Store struct {
	mu   sync.Mutex
	sets map[string]entry
}

type entry struct {
	data []byte
	rev  billing.Revision
}

func New() *Store {
	return &Store{sets: make(map[string]entry)}
}

// ReadSet returns the stored set; a missing name yields an empty set.
func (s *Store) ReadSet(_ context.Context, name string) (recordset.Set, billing.Revision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sets[name]
	if !ok {
		return recordset.Set{}, "", nil
	}
	set, err := recordset.Unmarshal(e.data)
	if err != nil {
		return recordset.Set{}, "", fmt.Errorf("%w: %v", billing.ErrPersistenceFailure, err)
	}
	return set, e.rev, nil
}

// WriteSet stores the set under a fresh revision. A stale revision token
// is rejected the same way the remote store rejects one.
func (s *Store) WriteSet(_ context.Context, name string, set recordset.Set, rev billing.Revision) (billing.Revision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.sets[name]; ok && cur.rev != rev {
		return "", &billing.RevisionConflictError{Set: name, Revision: string(rev)}
	}
	data, err := recordset.Marshal(set)
	if err != nil {
		return "", fmt.Errorf("%w: %v", billing.ErrPersistenceFailure, err)
	}
	next := billing.Revision(uuid.NewString())
	s.sets[name] = entry{data: data, rev: next}
	return next, nil
}

// Seed installs a set without concurrency checks. Test fixture helper.
func (s *Store) Seed(name string, set recordset.Set) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, _ := recordset.Marshal(set)
	s.sets[name] = entry{data: data, rev: billing.Revision(uuid.NewString())}
}
