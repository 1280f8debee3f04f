package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stemforge/api/internal/model"
)

// MemoryStore is an in-process JobStore for tests and single-node
// development. Records are copied on every read and write so callers
// never share mutable state through the store.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]model.Job
}

// NewMemoryStore creates an empty in-memory job store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]model.Job),
	}
}

// Create persists a new job record.
func (s *MemoryStore) Create(ctx context.Context, job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

// Update overwrites the record for an existing job.
func (s *MemoryStore) Update(ctx context.Context, job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; !ok {
		return ErrNotFound
	}
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

// SetCancelRequested flips only the cancellation flag on the stored
// record. Every other field keeps whatever the last Update wrote.
func (s *MemoryStore) SetCancelRequested(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	job.CancelRequested = true
	job.UpdatedAt = time.Now().UTC()
	s.jobs[id] = job
	return nil
}

// Get loads a job by id.
func (s *MemoryStore) Get(ctx context.Context, id string) (*model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := cloneJob(&job)
	return &copied, nil
}

func cloneJob(job *model.Job) model.Job {
	copied := *job
	if job.Error != nil {
		errCopy := *job.Error
		copied.Error = &errCopy
	}
	if job.Result != nil {
		copied.Result = append([]byte(nil), job.Result...)
	}
	return copied
}
