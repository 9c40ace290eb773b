package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/JonasDEMA/agentify-os/pkg/domain"
	"github.com/JonasDEMA/agentify-os/pkg/ports"
)

// JobStore implements ports.JobStore using an in-memory map.
// Used by tests and single-process deployments.
type JobStore struct {
	jobs map[string]*domain.Job
	mu   sync.RWMutex
}

// NewJobStore creates a new in-memory job store.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]*domain.Job)}
}

// Save persists a deep copy of the job so later caller mutations do not leak
// into the store.
func (s *JobStore) Save(ctx context.Context, job *domain.Job) error {
	clone, err := cloneJob(job)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = clone
	return nil
}

// Get returns a copy of the job or domain.ErrJobNotFound.
func (s *JobStore) Get(ctx context.Context, id string) (*domain.Job, error) {
	s.mu.RLock()
	job, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return cloneJob(job)
}

// List returns jobs matching the filter ordered by creation time, plus the
// total match count before pagination.
func (s *JobStore) List(ctx context.Context, filter ports.JobFilter) ([]*domain.Job, int, error) {
	s.mu.RLock()
	matched := make([]*domain.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		matched = append(matched, job)
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	matched = paginate(matched, filter.Offset, filter.Limit)

	out := make([]*domain.Job, 0, len(matched))
	for _, job := range matched {
		clone, err := cloneJob(job)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, clone)
	}
	return out, total, nil
}

// Claim atomically transitions a pending job to running. The store lock makes
// the conditional update exclusive: two concurrent claims on the same id can
// never both succeed.
func (s *JobStore) Claim(ctx context.Context, id string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	if job.Status != domain.JobPending {
		return nil, domain.ErrJobConflict
	}
	now := time.Now().UTC()
	job.Status = domain.JobRunning
	job.StartedAt = &now
	return cloneJob(job)
}

// Delete removes a job record.
func (s *JobStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
	return nil
}

func paginate(jobs []*domain.Job, offset, limit int) []*domain.Job {
	if offset >= len(jobs) {
		return nil
	}
	jobs = jobs[offset:]
	if limit > 0 && limit < len(jobs) {
		jobs = jobs[:limit]
	}
	return jobs
}

// cloneJob deep-copies a job through its JSON form, which is cheap at job
// sizes and keeps the copy rules in one place (the struct tags).
func cloneJob(job *domain.Job) (*domain.Job, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return nil, err
	}
	var clone domain.Job
	if err := json.Unmarshal(data, &clone); err != nil {
		return nil, err
	}
	return &clone, nil
}
