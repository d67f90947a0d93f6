package index

import (
	"sync"
	"sync/atomic"
)

// Store publishes repository snapshots. Readers never block and always see a
// complete snapshot; writers are serialized.
type Store struct {
	mu      sync.Mutex
	current atomic.Pointer[Repository]
}

// NewStore returns a store holding repo
func NewStore(repo *Repository) *Store {
	s := &Store{}
	s.current.Store(repo)
	return s
}

// Snapshot returns the current repository
func (s *Store) Snapshot() *Repository {
	return s.current.Load()
}

// Update replaces the current snapshot with the result of fn. When fn fails
// the snapshot is left alone.
func (s *Store) Update(fn func(*Repository) (*Repository, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := fn(s.current.Load())
	if err != nil {
		return err
	}
	s.current.Store(next)
	return nil
}

// AddOrReplace applies Repository.AddOrReplace to the current snapshot
func (s *Store) AddOrReplace(rec Record) (bool, error) {
	var changed bool
	err := s.Update(func(r *Repository) (*Repository, error) {
		next, ok, err := r.AddOrReplace(rec)
		changed = ok
		return next, err
	})
	return changed, err
}

// Remove applies Repository.Remove to the current snapshot
func (s *Store) Remove(name, arch string) bool {
	var changed bool
	s.Update(func(r *Repository) (*Repository, error) {
		next, ok := r.Remove(name, arch)
		changed = ok
		return next, nil
	})
	return changed
}

// Merge merges incoming into the current snapshot
func (s *Store) Merge(incoming *Repository) error {
	return s.Update(func(r *Repository) (*Repository, error) {
		return Merge(r, incoming)
	})
}

// MergeRecords merges records into the current snapshot
func (s *Store) MergeRecords(records []Record) error {
	return s.Update(func(r *Repository) (*Repository, error) {
		return MergeRecords(r, records)
	})
}
