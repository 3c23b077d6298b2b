package governor

import (
	"time"

	"github.com/google/uuid"
)

// Event is the tagged union of pipeline lifecycle notifications. Delivery is
// fire-and-forget: events for one request arrive in emission order, and a
// misbehaving listener never affects pipeline correctness.
type Event interface {
	// Kind names the event, e.g. "request-start".
	Kind() string
}

// RequestStart fires when a request enters the scheduler queue.
type RequestStart struct {
	ID       uuid.UUID
	Priority int
}

// RequestAttempt fires before each individual attempt, retries included.
type RequestAttempt struct {
	ID      uuid.UUID
	Attempt int
}

// RequestSuccess fires when a request settles successfully. Latency is
// measured from submission, queueing and backoff included.
type RequestSuccess struct {
	ID      uuid.UUID
	Latency time.Duration
}

// RequestError fires when a request settles with its final failure.
// Intermediate per-attempt failures surface through RetryConfig.OnRetry,
// not here.
type RequestError struct {
	ID  uuid.UUID
	Err error
}

// BatchStart fires when a batch combinator begins. Type names the
// combinator: "all", "settle-all", "race", or "any".
type BatchStart struct {
	Count int
	Type  string
}

// BatchComplete fires when a batch combinator returns, with the settlements
// it observed.
type BatchComplete struct {
	Successful int
	Failed     int
}

// MetricsUpdate fires after every terminal settlement with the fresh
// aggregate snapshot.
type MetricsUpdate struct {
	Snapshot Snapshot
}

func (RequestStart) Kind() string   { return "request-start" }
func (RequestAttempt) Kind() string { return "request-attempt" }
func (RequestSuccess) Kind() string { return "request-success" }
func (RequestError) Kind() string   { return "request-error" }
func (BatchStart) Kind() string     { return "batch-start" }
func (BatchComplete) Kind() string  { return "batch-complete" }
func (MetricsUpdate) Kind() string  { return "metrics-update" }

// Listener receives lifecycle events. Requests settle concurrently, so
// implementations must be safe for concurrent use.
type Listener interface {
	OnEvent(Event)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(Event)

// OnEvent calls f(e).
func (f ListenerFunc) OnEvent(e Event) { f(e) }
