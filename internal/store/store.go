// Package store is the in-memory job store. It is the single shared
// mutable resource of the service; all state lives for the process
// lifetime only.
package store

import (
	"sync"

	"manimd/internal/model"
	"manimd/internal/pkg/errors"
)

// Store maps job IDs to canonical job records. All methods are safe for
// concurrent use; Update applies its mutator under the store lock so two
// read-modify-write cycles on the same ID can never interleave.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*model.Job
}

func New() *Store {
	return &Store{jobs: make(map[string]*model.Job)}
}

// Create inserts a new job record. It fails with ALREADY_EXISTS when the
// ID is taken.
func (s *Store) Create(job model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return errors.AlreadyExists("job", job.ID)
	}
	j := job
	s.jobs[job.ID] = &j
	return nil
}

// Get returns a copy of the job record.
func (s *Store) Get(id string) (model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return model.Job{}, errors.NotFound("job", id)
	}
	return *j, nil
}

// Update applies mutate to the record atomically. The mutator runs on a
// copy; it is committed only when the mutator returns nil, so an aborted
// transition never leaves a half-written record. A mutator error is
// returned to the caller unchanged, which lets callers reject illegal
// state transitions without a separate read.
func (s *Store) Update(id string, mutate func(*model.Job) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return errors.NotFound("job", id)
	}
	next := *j
	if err := mutate(&next); err != nil {
		return err
	}
	*j = next
	return nil
}

// Delete removes the record. Deleting an absent key is a no-op.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
}

// Len returns the number of tracked jobs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}
