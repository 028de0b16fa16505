package notify

import (
	"errors"

	"github.com/google/uuid"

	"github.com/orderpulse/orderpulse/internal/metrics"
)

// ErrQueueFull is returned when the dispatch queue is at capacity. The
// record stays pending in the database and the reclaimer picks it up later,
// so a full queue slows delivery down instead of losing work.
var ErrQueueFull = errors.New("notification queue is full")

// Job points a worker at one notification record. The record itself stays in
// the database; the queue only carries identity.
type Job struct {
	TenantID uuid.UUID
	RecordID uuid.UUID
}

// Queue is a bounded in-memory dispatch queue between the dispatcher and the
// worker pool.
type Queue struct {
	jobs chan Job
}

// NewQueue creates a queue with the given capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 256
	}
	return &Queue{jobs: make(chan Job, capacity)}
}

// Enqueue adds a job without blocking. Returns ErrQueueFull at capacity.
func (q *Queue) Enqueue(job Job) error {
	select {
	case q.jobs <- job:
		metrics.SetQueueDepth(len(q.jobs))
		return nil
	default:
		metrics.RecordQueueRejection()
		return ErrQueueFull
	}
}

// Jobs exposes the receive side for workers. Workers must call Done after
// taking a job so the depth gauge stays honest.
func (q *Queue) Jobs() <-chan Job {
	return q.jobs
}

// Done records that a worker took a job off the queue.
func (q *Queue) Done() {
	metrics.SetQueueDepth(len(q.jobs))
}

// Len returns the number of queued jobs.
func (q *Queue) Len() int {
	return len(q.jobs)
}

// Close closes the queue. Enqueue must not be called afterwards.
func (q *Queue) Close() {
	close(q.jobs)
}
