package reminders

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Store persists reminder jobs. Every method is atomic for a single job.
// The scheduler is the only writer of job status; stores never change status
// on their own.
type Store interface {
	Put(ctx context.Context, job *Job) error
	Get(ctx context.Context, id uuid.UUID) (*Job, error)
	ListByStatus(ctx context.Context, status Status) ([]Job, error)
	ListByOrder(ctx context.Context, orderID string) ([]Job, error)
	ListAll(ctx context.Context) ([]Job, error)
	// UpdateStatus applies update only if the job is currently in status from.
	// It returns ErrStatusConflict otherwise and ErrJobNotFound if missing.
	UpdateStatus(ctx context.Context, id uuid.UUID, from Status, update StatusUpdate) error
}

// MemoryStore keeps jobs in process memory. Jobs do not survive a restart; use
// it for tests and demo mode.
type MemoryStore struct {
	mu      sync.RWMutex
	jobs    map[uuid.UUID]Job
	byOrder map[string][]uuid.UUID
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:    make(map[uuid.UUID]Job),
		byOrder: make(map[string][]uuid.UUID),
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Put(ctx context.Context, job *Job) error {
	if job == nil {
		return invalid("nil job")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; !exists {
		s.byOrder[job.OrderID] = append(s.byOrder[job.OrderID], job.ID)
	}
	s.jobs[job.ID] = *job
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return &job, nil
}

func (s *MemoryStore) ListByStatus(ctx context.Context, status Status) ([]Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Job
	for _, job := range s.jobs {
		if job.Status == status {
			out = append(out, job)
		}
	}
	sortJobs(out)
	return out, nil
}

func (s *MemoryStore) ListByOrder(ctx context.Context, orderID string) ([]Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byOrder[orderID]
	out := make([]Job, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.jobs[id])
	}
	sortJobs(out)
	return out, nil
}

func (s *MemoryStore) ListAll(ctx context.Context) ([]Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job)
	}
	sortJobs(out)
	return out, nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id uuid.UUID, from Status, update StatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if job.Status != from {
		return ErrStatusConflict
	}
	update.apply(&job)
	s.jobs[id] = job
	return nil
}

// sortJobs orders by fire time, then id, so listings are stable across backends.
func sortJobs(jobs []Job) {
	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].FireTime.Equal(jobs[j].FireTime) {
			return jobs[i].FireTime.Before(jobs[j].FireTime)
		}
		return jobs[i].ID.String() < jobs[j].ID.String()
	})
}
