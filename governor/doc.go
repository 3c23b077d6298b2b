// Package governor turns an arbitrary asynchronous operation into a governed
// execution: bounded concurrency, fair priority ordering, rate-limited
// admission, automatic retry with backoff, and per-attempt deadlines,
// composed so callers see a single request-in/result-out contract.
//
// # Pipeline
//
// Each request flows through four cooperating policies, outermost first:
//
//   - Scheduler: bounds global concurrency and orders waiting jobs by
//     priority, breaking ties by arrival order.
//
//   - RateWindow: admits at most N operations within any rolling time
//     window; requests beyond capacity wait for a slot.
//
//   - Retry: reruns failed attempts with exponential backoff and jitter
//     until the retry budget is spent or the failure is non-retryable.
//
//   - GuardSet: races each individual attempt against its own deadline and
//     propagates cancellation into the operation.
//
// # Usage
//
// Build a Governor and submit operations to it:
//
//	g := governor.New(governor.Config{
//	    MaxConcurrent: 5,
//	    MaxRequests:   10,
//	    TimeWindow:    time.Second,
//	    MaxRetries:    3,
//	    Timeout:       2 * time.Second,
//	})
//	defer g.Close()
//
//	result, err := g.Do(ctx, func(ctx context.Context) (any, error) {
//	    return fetchResource(ctx)
//	}, governor.WithPriority(5))
//
// Each policy can also be used on its own; the Governor is only the
// composition of the four.
//
// Lifecycle events (request start, attempts, settlement, batch progress,
// metrics updates) are delivered to listeners registered at construction.
// The observe package provides ready-made zap and OpenTelemetry listeners.
package governor
