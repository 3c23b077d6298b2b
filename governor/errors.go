package governor

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for pipeline operations.
var (
	// ErrCancelled is returned when a queued job is cancelled before it
	// starts running.
	ErrCancelled = errors.New("governor: job cancelled before dispatch")

	// ErrAborted is returned when an in-flight attempt is aborted for a
	// reason other than its own deadline.
	ErrAborted = errors.New("governor: attempt aborted")

	// ErrQueueCleared is returned to requests discarded by a bulk clear of
	// the rate-window wait list.
	ErrQueueCleared = errors.New("governor: waiting request discarded")

	// ErrRateLimitExceeded is returned when a request opts out of waiting
	// for window capacity.
	ErrRateLimitExceeded = errors.New("governor: rate limit exceeded")

	// ErrCircuitOpen is returned when the circuit breaker is open.
	ErrCircuitOpen = errors.New("governor: circuit breaker is open")

	// ErrSchedulerClosed is returned for jobs enqueued after Close.
	ErrSchedulerClosed = errors.New("governor: scheduler is closed")
)

// TimeoutError reports that a single attempt exceeded its deadline. It
// carries the deadline that was in force for that attempt.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("governor: attempt timed out after %s", e.Timeout)
}

// UpstreamError carries the status code an Operation reported on failure.
// The pipeline never interprets the status beyond retryability
// classification.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("governor: upstream failure (status %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("governor: upstream failure (status %d)", e.Status)
}
