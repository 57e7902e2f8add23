package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dvloznov/ledgersync/internal/jobs"
	"github.com/google/uuid"
)

// Store is an in-memory implementation of jobs.Store.
// It is safe for concurrent use. Data is lost on service restart.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*jobs.SyncJob
	now  func() time.Time
}

// NewStore creates a new in-memory job store.
func NewStore() *Store {
	return &Store{
		jobs: make(map[string]*jobs.SyncJob),
		now:  time.Now,
	}
}

// Create implements jobs.Store.
func (s *Store) Create(ctx context.Context, companyID int64) (*jobs.SyncJob, error) {
	job := &jobs.SyncJob{
		ID:        uuid.New().String(),
		CompanyID: companyID,
		Status:    jobs.JobStatusRunning,
		StartedAt: s.now().UTC(),
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	jobCopy := *job
	return &jobCopy, nil
}

// SetCurrentSource implements jobs.Store.
func (s *Store) SetCurrentSource(ctx context.Context, jobID string, sourceID int64, sourceName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.running(jobID)
	if err != nil {
		return err
	}
	job.SourceID = sourceID
	job.SourceName = sourceName
	return nil
}

// Finish implements jobs.Store.
func (s *Store) Finish(ctx context.Context, jobID string, status jobs.JobStatus, message string) error {
	if !status.Terminal() {
		return fmt.Errorf("finish job %s: status %q is not terminal", jobID, status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.running(jobID)
	if err != nil {
		return err
	}
	completedAt := s.now().UTC()
	job.Status = status
	job.CompletedAt = &completedAt
	job.Error = message
	return nil
}

// running returns the stored job if it can still change. Callers hold mu.
func (s *Store) running(jobID string) (*jobs.SyncJob, error) {
	job, exists := s.jobs[jobID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", jobs.ErrJobNotFound, jobID)
	}
	if job.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s is %s", jobs.ErrJobFinished, jobID, job.Status)
	}
	return job, nil
}

// Get implements jobs.Store.
func (s *Store) Get(ctx context.Context, jobID string) (*jobs.SyncJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", jobs.ErrJobNotFound, jobID)
	}

	// Return a copy to avoid external modifications
	jobCopy := *job
	return &jobCopy, nil
}

// List implements jobs.Store.
func (s *Store) List(ctx context.Context, filter jobs.JobFilter) ([]*jobs.SyncJob, error) {
	s.mu.RLock()
	result := make([]*jobs.SyncJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		if !filter.Matches(job) {
			continue
		}
		jobCopy := *job
		result = append(result, &jobCopy)
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].StartedAt.Equal(result[j].StartedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].StartedAt.After(result[j].StartedAt)
	})

	// Apply limit and offset
	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []*jobs.SyncJob{}, nil
		}
		result = result[filter.Offset:]
	}

	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}

	return result, nil
}

// Ensure Store implements jobs.Store interface.
var _ jobs.Store = (*Store)(nil)
