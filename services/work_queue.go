package services

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// ErrQueueUnavailable is returned by Submit when the queue is full or closed.
var ErrQueueUnavailable = errors.New("work queue unavailable")

// Job is a unit of background work.
type Job func(ctx context.Context)

// WorkQueue runs jobs on a fixed pool of workers fed from a bounded buffer.
type WorkQueue struct {
	jobs    chan Job
	workers int
	log     zerolog.Logger

	mu     sync.RWMutex
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorkQueue creates a queue; call Start before submitting.
func NewWorkQueue(workers, size int, log zerolog.Logger) *WorkQueue {
	if workers <= 0 {
		workers = 1
	}
	if size <= 0 {
		size = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkQueue{
		jobs:    make(chan Job, size),
		workers: workers,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the workers.
func (q *WorkQueue) Start() {
	q.log.Info().Int("workers", q.workers).Int("buffer", cap(q.jobs)).Msg("work queue starting")
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.run(i)
	}
}

func (q *WorkQueue) run(id int) {
	defer q.wg.Done()
	for job := range q.jobs {
		q.execute(id, job)
	}
}

func (q *WorkQueue) execute(id int, job Job) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error().Int("worker", id).Interface("panic", r).Msg("job panicked")
		}
	}()
	job(q.ctx)
}

// Submit enqueues job without blocking.
func (q *WorkQueue) Submit(job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueUnavailable
	}
	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrQueueUnavailable
	}
}

// Close stops accepting jobs and waits for queued ones to drain, or for ctx
// to end, in which case running jobs see their context cancelled.
func (q *WorkQueue) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		q.log.Info().Msg("work queue drained")
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		return ctx.Err()
	}
}
