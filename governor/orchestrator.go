package governor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Config holds the tuning options recognized by New. Zero values take the
// documented defaults of each policy.
type Config struct {
	// MaxConcurrent caps simultaneously in-flight requests. Default: 5
	MaxConcurrent int

	// MaxRequests and TimeWindow bound admission: at most MaxRequests
	// requests may start within any rolling TimeWindow.
	// Defaults: 10 per 1s.
	MaxRequests int
	TimeWindow  time.Duration

	// Retry tuning. See RetryConfig for defaults.
	MaxRetries        int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	RetryableStatuses []int

	// Timeout is the default per-attempt deadline. Each attempt, retries
	// included, gets its own fresh budget. Default: 30s
	Timeout time.Duration
}

// Governor composes the scheduler, rate window, retry policy, and deadline
// guards around each caller request. A request either resolves with its
// operation's result or rejects with exactly one error from the package
// taxonomy; intermediate attempt failures are observable only through
// lifecycle events and retry callbacks.
type Governor struct {
	cfg       Config
	sched     *Scheduler
	window    *RateWindow
	retry     *Retry
	guards    *GuardSet
	breaker   *Breaker
	listeners []Listener
	metrics   *metrics
}

// Option configures optional collaborators on a Governor.
type Option func(*Governor)

// WithListener registers a lifecycle event listener. Listeners are called
// synchronously in registration order.
func WithListener(l Listener) Option {
	return func(g *Governor) {
		g.listeners = append(g.listeners, l)
	}
}

// WithBreaker guards every request behind a shared circuit breaker, applied
// around the whole retry sequence.
func WithBreaker(b *Breaker) Option {
	return func(g *Governor) {
		g.breaker = b
	}
}

// New creates a Governor and starts its scheduler. Callers must Close it.
func New(cfg Config, opts ...Option) *Governor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	g := &Governor{
		cfg:    cfg,
		sched:  NewScheduler(SchedulerConfig{MaxConcurrent: cfg.MaxConcurrent}),
		window: NewRateWindow(RateWindowConfig{MaxRequests: cfg.MaxRequests, Window: cfg.TimeWindow}),
		retry: NewRetry(RetryConfig{
			MaxRetries:        cfg.MaxRetries,
			InitialDelay:      cfg.InitialDelay,
			MaxDelay:          cfg.MaxDelay,
			Multiplier:        cfg.BackoffMultiplier,
			RetryableStatuses: cfg.RetryableStatuses,
		}),
		guards:  NewGuardSet(),
		metrics: &metrics{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Close cancels queued work and stops the scheduler. In-flight requests
// settle normally.
func (g *Governor) Close() {
	g.sched.Close()
	g.window.ClearQueue()
}

// RequestOption tunes a single request.
type RequestOption func(*requestOptions)

type requestOptions struct {
	priority int
	timeout  time.Duration
	retry    bool
	wait     bool
}

// WithPriority sets the request's priority at both admission points: the
// scheduler queue and the rate-window wait list. Higher is served first;
// the default is 0.
func WithPriority(p int) RequestOption {
	return func(ro *requestOptions) { ro.priority = p }
}

// WithTimeout overrides the default per-attempt deadline for this request.
func WithTimeout(d time.Duration) RequestOption {
	return func(ro *requestOptions) { ro.timeout = d }
}

// WithoutRetry disables retries for this request: one attempt, its outcome
// final.
func WithoutRetry() RequestOption {
	return func(ro *requestOptions) { ro.retry = false }
}

// WithoutWait makes the request fail with ErrRateLimitExceeded when the rate
// window is at capacity instead of waiting for a slot.
func WithoutWait() RequestOption {
	return func(ro *requestOptions) { ro.wait = false }
}

// Do runs op through the full pipeline and blocks until it settles.
func (g *Governor) Do(ctx context.Context, op Operation, opts ...RequestOption) (any, error) {
	return g.Submit(ctx, op, opts...).Wait(ctx)
}

// Submit enqueues op and returns its ticket without waiting. Scheduling
// admission is outermost: the request is queued before it is rate-checked,
// rate admission precedes any retry spend, and every individual attempt gets
// its own deadline guard.
func (g *Governor) Submit(ctx context.Context, op Operation, opts ...RequestOption) *Ticket {
	ro := requestOptions{timeout: g.cfg.Timeout, retry: true, wait: true}
	for _, o := range opts {
		o(&ro)
	}

	id := uuid.New()
	start := time.Now()
	g.emit(RequestStart{ID: id, Priority: ro.priority})

	return g.sched.enqueue(ctx, id, func(ctx context.Context) (any, error) {
		inner := func(ctx context.Context) (any, error) {
			return g.runGoverned(ctx, id, op, ro)
		}
		var result any
		var err error
		if ro.wait {
			result, err = g.window.Throttle(ctx, ro.priority, inner)
		} else {
			result, err = g.window.TryThrottle(ctx, inner)
		}

		g.settle(id, start, result, err)
		return result, err
	}, ro.priority)
}

// runGoverned is the rate-admitted portion of one request: breaker, retry
// sequence, and one fresh deadline guard per attempt.
func (g *Governor) runGoverned(ctx context.Context, id uuid.UUID, op Operation, ro requestOptions) (any, error) {
	attempt := func(ctx context.Context, n int) (any, error) {
		g.emit(RequestAttempt{ID: id, Attempt: n})
		return g.guards.New(ro.timeout).Run(ctx, op)
	}

	run := func(ctx context.Context) (any, error) {
		if !ro.retry {
			return attempt(ctx, 0)
		}
		return g.retry.Run(ctx, attempt)
	}

	if g.breaker != nil {
		return g.breaker.Execute(ctx, run)
	}
	return run(ctx)
}

func (g *Governor) settle(id uuid.UUID, start time.Time, _ any, err error) {
	latency := time.Since(start)
	snap := g.metrics.record(latency, err)
	if err != nil {
		g.emit(RequestError{ID: id, Err: err})
	} else {
		g.emit(RequestSuccess{ID: id, Latency: latency})
	}
	g.emit(MetricsUpdate{Snapshot: snap})
}

// emit delivers e to every listener in order, isolating panics so a failing
// observer cannot affect the pipeline.
func (g *Governor) emit(e Event) {
	for _, l := range g.listeners {
		func() {
			defer func() { _ = recover() }()
			l.OnEvent(e)
		}()
	}
}

// Cancel cancels a queued request by ticket ID. Running requests are not
// preemptible here; use Abort to cut an in-flight attempt short.
func (g *Governor) Cancel(id uuid.UUID) bool { return g.sched.Cancel(id) }

// CancelAll cancels every queued request and reports the count.
func (g *Governor) CancelAll() int { return g.sched.CancelAll() }

// Abort aborts one active deadline guard by ID.
func (g *Governor) Abort(id uuid.UUID) bool { return g.guards.Abort(id) }

// AbortAll aborts every in-flight attempt and reports the count.
func (g *Governor) AbortAll() int { return g.guards.AbortAll() }

// ClearWaiting discards every request waiting for rate-window capacity.
func (g *Governor) ClearWaiting() int { return g.window.ClearQueue() }

// Metrics returns the aggregate request snapshot.
func (g *Governor) Metrics() Snapshot { return g.metrics.snapshot() }

// Status reports the composite pipeline state.
type Status struct {
	Scheduler  SchedulerStatus
	RateWindow RateWindowStatus
}

// Status returns a snapshot of the scheduler and rate window.
func (g *Governor) Status() Status {
	return Status{
		Scheduler:  g.sched.Status(),
		RateWindow: g.window.Status(),
	}
}

// BatchRequest pairs one operation with its per-request options.
type BatchRequest struct {
	Op   Operation
	Opts []RequestOption
}

// Result tags one settled request from DoSettleAll.
type Result struct {
	Value any
	Err   error
}

// DoAll runs every request through the pipeline and fails fast: the first
// error cancels the batch context and is returned. On success the results
// are in request order.
func (g *Governor) DoAll(ctx context.Context, reqs []BatchRequest) ([]any, error) {
	g.emit(BatchStart{Count: len(reqs), Type: "all"})

	var succeeded, failed atomic.Int64
	results := make([]any, len(reqs))

	eg, ctx := errgroup.WithContext(ctx)
	for i, r := range reqs {
		i, r := i, r
		eg.Go(func() error {
			v, err := g.Do(ctx, r.Op, r.Opts...)
			if err != nil {
				failed.Add(1)
				return err
			}
			succeeded.Add(1)
			results[i] = v
			return nil
		})
	}
	err := eg.Wait()

	g.emit(BatchComplete{Successful: int(succeeded.Load()), Failed: int(failed.Load())})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// DoSettleAll waits for every request regardless of outcome and returns each
// as a tagged Result in request order. It never fails itself.
func (g *Governor) DoSettleAll(ctx context.Context, reqs []BatchRequest) []Result {
	g.emit(BatchStart{Count: len(reqs), Type: "settle-all"})

	results := make([]Result, len(reqs))
	var wg sync.WaitGroup
	for i, r := range reqs {
		i, r := i, r
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := g.Do(ctx, r.Op, r.Opts...)
			results[i] = Result{Value: v, Err: err}
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, r := range results {
		if r.Err == nil {
			succeeded++
		}
	}
	g.emit(BatchComplete{Successful: succeeded, Failed: len(reqs) - succeeded})
	return results
}

// DoRace returns the first request to settle, success or failure. The rest
// keep running through the pipeline in the background.
func (g *Governor) DoRace(ctx context.Context, reqs []BatchRequest) (any, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	g.emit(BatchStart{Count: len(reqs), Type: "race"})

	type settled struct {
		value any
		err   error
	}
	ch := make(chan settled, len(reqs))
	for _, r := range reqs {
		r := r
		go func() {
			v, err := g.Do(ctx, r.Op, r.Opts...)
			ch <- settled{v, err}
		}()
	}

	select {
	case s := <-ch:
		if s.err != nil {
			g.emit(BatchComplete{Failed: 1})
		} else {
			g.emit(BatchComplete{Successful: 1})
		}
		return s.value, s.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// DoAny returns the first successful request; it fails only if every request
// fails, with the individual errors joined.
func (g *Governor) DoAny(ctx context.Context, reqs []BatchRequest) (any, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	g.emit(BatchStart{Count: len(reqs), Type: "any"})

	type settled struct {
		value any
		err   error
	}
	ch := make(chan settled, len(reqs))
	for _, r := range reqs {
		r := r
		go func() {
			v, err := g.Do(ctx, r.Op, r.Opts...)
			ch <- settled{v, err}
		}()
	}

	errs := make([]error, 0, len(reqs))
	for range reqs {
		select {
		case s := <-ch:
			if s.err == nil {
				g.emit(BatchComplete{Successful: 1, Failed: len(errs)})
				return s.value, nil
			}
			errs = append(errs, s.err)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	g.emit(BatchComplete{Failed: len(errs)})
	return nil, errors.Join(errs...)
}
