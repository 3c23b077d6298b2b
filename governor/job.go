package governor

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Operation is the opaque asynchronous unit of work the pipeline governs.
// It must accept, and should honor, cancellation through its context. An
// operation that ignores its context is a caller bug, not a pipeline bug.
type Operation func(ctx context.Context) (any, error)

// JobStatus is the lifecycle state of a scheduled job.
type JobStatus int

const (
	// StatusQueued means the job is waiting for a dispatch slot.
	StatusQueued JobStatus = iota
	// StatusRunning means the job's operation is in flight.
	StatusRunning
	// StatusCompleted means the operation settled successfully.
	StatusCompleted
	// StatusFailed means the operation settled with an error.
	StatusFailed
	// StatusCancelled means the job was cancelled before it started.
	StatusCancelled
)

// String returns the string representation of the status.
func (s JobStatus) String() string {
	switch s {
	case StatusQueued:
		return "queued"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// job is one admitted unit of work inside the scheduler. A job is in exactly
// one status at a time; a terminal job is no longer in the live queue.
type job struct {
	id       uuid.UUID
	priority int
	seq      uint64
	arrived  time.Time
	started  time.Time
	finished time.Time
	status   JobStatus
	ctx      context.Context
	op       Operation
	index    int // position in the queue heap, -1 once dequeued

	done   chan struct{}
	result any
	err    error
}

// settle records the outcome and releases every waiter. Called exactly once.
func (j *job) settle(result any, err error) {
	j.result = result
	j.err = err
	close(j.done)
}

// Ticket is the caller's handle on an enqueued job.
type Ticket struct {
	job *job
}

// ID identifies the job for Cancel and correlates its lifecycle events.
func (t *Ticket) ID() uuid.UUID { return t.job.id }

// Wait blocks until the job settles or ctx is done. A job whose operation
// outlives a cancelled ctx keeps running; its late settlement is a no-op to
// this caller.
func (t *Ticket) Wait(ctx context.Context) (any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.job.done:
		return t.job.result, t.job.err
	}
}

// Done returns a channel closed when the job settles.
func (t *Ticket) Done() <-chan struct{} { return t.job.done }
