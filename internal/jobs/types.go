package jobs

import (
	"context"
	"errors"
	"time"
)

// JobStatus represents the current status of a sync job.
type JobStatus string

const (
	// JobStatusRunning indicates the job was accepted and its sources are being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates every source was attempted.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the run could not start processing sources.
	JobStatusFailed JobStatus = "failed"
)

// Terminal reports whether no further transition is allowed from s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	return s == JobStatusRunning || s.Terminal()
}

var (
	// ErrJobNotFound is returned when no job has the requested ID.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobFinished is returned when mutating a job that already reached a terminal status.
	ErrJobFinished = errors.New("job already finished")
	// ErrQueueFull is returned by a Publisher that cannot accept more requests.
	ErrQueueFull = errors.New("sync queue is full")
)

// SyncJob tracks one sync run of a company's sources.
type SyncJob struct {
	// ID is the unique identifier for this job.
	ID string `json:"id"`

	// CompanyID is the company whose sources are synced.
	CompanyID int64 `json:"companyId"`

	// SourceID and SourceName name the source currently (or last) processed.
	// They are zero until the first source starts.
	SourceID   int64  `json:"sourceId,omitempty"`
	SourceName string `json:"sourceName,omitempty"`

	Status JobStatus `json:"status"`

	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	// Error holds the success summary of a completed job or the failure reason
	// of a failed one.
	Error string `json:"error,omitempty"`
}

// Store persists sync job state. The status machine is running → completed or
// running → failed; implementations reject updates to finished jobs with
// ErrJobFinished.
type Store interface {
	// Create records a new running job for companyID.
	Create(ctx context.Context, companyID int64) (*SyncJob, error)

	// SetCurrentSource records the source a running job is processing.
	SetCurrentSource(ctx context.Context, jobID string, sourceID int64, sourceName string) error

	// Finish moves a running job to a terminal status with a message.
	Finish(ctx context.Context, jobID string, status JobStatus, message string) error

	// Get retrieves a job by ID, or ErrJobNotFound.
	Get(ctx context.Context, jobID string) (*SyncJob, error)

	// List retrieves jobs matching filter, most recently started first.
	List(ctx context.Context, filter JobFilter) ([]*SyncJob, error)
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// CompanyID filters jobs by company. Zero means any.
	CompanyID int64

	// SourceID filters jobs by the current source. Zero means any.
	SourceID int64

	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}

// Matches reports whether job satisfies the filter's criteria, ignoring paging.
func (f JobFilter) Matches(job *SyncJob) bool {
	if f.CompanyID != 0 && job.CompanyID != f.CompanyID {
		return false
	}
	if f.SourceID != 0 && job.SourceID != f.SourceID {
		return false
	}
	if f.Status != "" && job.Status != f.Status {
		return false
	}
	return true
}

// SyncRequest is the queue message that asks a worker to run a job.
type SyncRequest struct {
	JobID     string `json:"jobId"`
	CompanyID int64  `json:"companyId"`
}

// Publisher defines the interface for publishing sync requests to a queue.
type Publisher interface {
	// PublishSync enqueues a sync request.
	PublishSync(ctx context.Context, req SyncRequest) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming sync requests from a queue.
type Consumer interface {
	// Start begins consuming requests from the queue.
	// The handler function is called for each request received.
	Start(ctx context.Context, handler Handler) error

	// Stop stops consuming and waits for in-flight runs to complete.
	Stop(ctx context.Context) error
}

// Handler runs one sync request. Requests are never retried; a returned error
// is only logged.
type Handler func(ctx context.Context, req SyncRequest) error
