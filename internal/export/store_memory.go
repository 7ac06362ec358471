package export

import (
	"context"
	"sort"
	"sync"
	"time"

	id "sentra/pkg/domain"
	"sentra/pkg/platform/sentinel"
)

// InMemoryJobStore backs tests and single-instance deployments.
type InMemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[id.ExportID]Job
}

func NewInMemoryJobStore() *InMemoryJobStore {
	return &InMemoryJobStore{jobs: make(map[id.ExportID]Job)}
}

func (s *InMemoryJobStore) Create(_ context.Context, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return sentinel.ErrConflict
	}
	s.jobs[job.ID] = job
	return nil
}

func (s *InMemoryJobStore) Get(_ context.Context, jobID id.ExportID) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return Job{}, sentinel.ErrNotFound
	}
	return job, nil
}

func (s *InMemoryJobStore) Update(_ context.Context, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.jobs[job.ID] = job
	return nil
}

func (s *InMemoryJobStore) FindByToken(_ context.Context, token string) (Job, error) {
	if token == "" {
		return Job{}, sentinel.ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, job := range s.jobs {
		if job.DownloadToken == token {
			return job, nil
		}
	}
	return Job{}, sentinel.ErrNotFound
}

func (s *InMemoryJobStore) ListByUser(_ context.Context, userID id.UserID, limit int) ([]Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []Job
	for _, job := range s.jobs {
		if job.RequestedBy == userID {
			result = append(result, job)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *InMemoryJobStore) CountActive(_ context.Context, userID id.UserID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, job := range s.jobs {
		if job.RequestedBy == userID && job.IsActive() {
			count++
		}
	}
	return count, nil
}

func (s *InMemoryJobStore) CountCreatedSince(_ context.Context, userID id.UserID, cutoff time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, job := range s.jobs {
		if job.RequestedBy == userID && !job.CreatedAt.Before(cutoff) {
			count++
		}
	}
	return count, nil
}
