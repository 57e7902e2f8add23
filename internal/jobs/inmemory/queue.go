package inmemory

import (
	"context"
	"fmt"
	"sync"

	"github.com/dvloznov/ledgersync/internal/jobs"
	"github.com/dvloznov/ledgersync/internal/logger"
)

// DefaultWorkers is the number of concurrent sync runs a queue executes.
const DefaultWorkers = 5

// ShutdownMessage is recorded on jobs that were still queued when the queue
// stopped.
const ShutdownMessage = "Sync cancelled: server shutting down before the job started"

// Queue is an in-memory implementation of jobs.Publisher and jobs.Consumer.
// It uses a buffered channel for request distribution and is safe for
// concurrent use. Suitable for single-instance deployments and testing.
type Queue struct {
	reqChan   chan jobs.SyncRequest
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	store     jobs.Store
	workers   int
	closed    bool
}

// NewQueue creates a new in-memory queue.
// bufferSize determines how many requests can wait before PublishSync fails
// with jobs.ErrQueueFull; workers bounds concurrent runs (DefaultWorkers when
// not positive). Requests still buffered when the queue stops are finished as
// failed in store, which may be nil.
func NewQueue(bufferSize, workers int, store jobs.Store) *Queue {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Queue{
		reqChan:   make(chan jobs.SyncRequest, bufferSize),
		closeChan: make(chan struct{}),
		store:     store,
		workers:   workers,
	}
}

// PublishSync implements jobs.Publisher. It never blocks: a full buffer fails
// with jobs.ErrQueueFull.
func (q *Queue) PublishSync(ctx context.Context, req jobs.SyncRequest) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return fmt.Errorf("queue is closed")
	}
	if req.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	select {
	case q.reqChan <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return jobs.ErrQueueFull
	}
}

// Start implements jobs.Consumer.
// The handler is called concurrently for each request, up to the worker count.
func (q *Queue) Start(ctx context.Context, handler jobs.Handler) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return fmt.Errorf("queue is closed")
	}
	q.mu.RUnlock()

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}

	return nil
}

func (q *Queue) worker(ctx context.Context, handler jobs.Handler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case req := <-q.reqChan:
			q.process(ctx, req, handler)
		}
	}
}

// process runs a single request once. Job state is owned by the handler.
func (q *Queue) process(ctx context.Context, req jobs.SyncRequest, handler jobs.Handler) {
	log := logger.FromContext(ctx).With().
		Str("job_id", req.JobID).
		Int64("company_id", req.CompanyID).
		Logger()

	if err := handler(logger.WithContext(ctx, log), req); err != nil {
		log.Error().Err(err).Msg("Sync run failed")
	}
}

// Stop implements jobs.Consumer.
// It stops the queue, fails the requests that never reached a worker and
// waits for all in-flight runs to complete.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	q.drain(ctx)

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// drain empties the buffer after close. No publisher can send once closed is
// set, so every request left behind is finished here or by a worker that
// picked it up first.
func (q *Queue) drain(ctx context.Context) {
	log := logger.FromContext(ctx)
	for {
		select {
		case req := <-q.reqChan:
			log.Warn().Str("job_id", req.JobID).Msg("Dropping queued sync on shutdown")
			if q.store == nil {
				continue
			}
			if err := q.store.Finish(ctx, req.JobID, jobs.JobStatusFailed, ShutdownMessage); err != nil {
				log.Error().Err(err).Str("job_id", req.JobID).Msg("Failed to mark dropped job as failed")
			}
		default:
			return
		}
	}
}

// Close implements jobs.Publisher.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

// Ensure Queue implements both Publisher and Consumer interfaces.
var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
