package governor

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// DefaultRetryableStatuses are the upstream status codes retried unless the
// caller configures otherwise.
var DefaultRetryableStatuses = []int{408, 429, 500, 502, 503, 504}

// RetryConfig configures the retry policy.
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial attempt, so at
	// most MaxRetries+1 attempts run in total.
	// Default: 3
	MaxRetries int

	// InitialDelay is the base backoff delay before the first retry.
	// Default: 1s
	InitialDelay time.Duration

	// MaxDelay caps the computed backoff.
	// Default: 10s
	MaxDelay time.Duration

	// Multiplier is the exponential backoff multiplier.
	// Default: 2.0
	Multiplier float64

	// RetryableStatuses are the upstream status codes worth retrying.
	// Default: DefaultRetryableStatuses
	RetryableStatuses []int

	// RetryIf overrides the default retryability classifier.
	RetryIf func(err error) bool

	// OnRetry is called with the failed attempt index, its error, and the
	// computed delay before each backoff sleep. Intermediate failures are
	// observable only here; they are never surfaced to the caller.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// AttemptFunc performs one try. The attempt index is 0-based.
type AttemptFunc func(ctx context.Context, attempt int) (any, error)

// Retry reruns an attempt until it succeeds, exhausts its budget, or fails
// with a non-retryable error. Exactly one of success or final failure is the
// terminal outcome.
type Retry struct {
	cfg      RetryConfig
	statuses map[int]bool
}

// NewRetry creates a retry policy.
func NewRetry(cfg RetryConfig) *Retry {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 10 * time.Second
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 2.0
	}
	if cfg.RetryableStatuses == nil {
		cfg.RetryableStatuses = DefaultRetryableStatuses
	}

	statuses := make(map[int]bool, len(cfg.RetryableStatuses))
	for _, s := range cfg.RetryableStatuses {
		statuses[s] = true
	}
	return &Retry{cfg: cfg, statuses: statuses}
}

// Run invokes attempt until it succeeds or the budget is spent. Non-retryable
// failures propagate unchanged on first occurrence without consuming budget.
// Cancellation during a backoff sleep aborts the sequence with ctx's error.
func (r *Retry) Run(ctx context.Context, attempt AttemptFunc) (any, error) {
	for n := 0; ; n++ {
		result, err := attempt(ctx, n)
		if err == nil {
			return result, nil
		}
		if !r.shouldRetry(err) || n >= r.cfg.MaxRetries {
			return nil, err
		}

		delay := r.delay(n)
		if r.cfg.OnRetry != nil {
			r.cfg.OnRetry(n, err, delay)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
}

// delay computes min(initial·multiplier^attempt + jitter, max), where jitter
// is uniform in [0, 0.3·exponential]. The jitter spreads synchronized retry
// storms without stretching any delay past 1.3x its exponential value.
func (r *Retry) delay(attempt int) time.Duration {
	exp := float64(r.cfg.InitialDelay) * math.Pow(r.cfg.Multiplier, float64(attempt))
	// #nosec G404 -- jitter is non-cryptographic timing variance.
	jitter := rand.Float64() * 0.3 * exp
	d := time.Duration(exp + jitter)
	if d > r.cfg.MaxDelay {
		d = r.cfg.MaxDelay
	}
	return d
}

// Retryable reports whether err is worth another attempt under the default
// classification: cancellation and aborts never retry; a timeout retries iff
// status 408 is in the configured set; an upstream failure retries iff its
// status is in the set. Everything else propagates on first occurrence.
func (r *Retry) Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrAborted) ||
		errors.Is(err, ErrCancelled) || errors.Is(err, ErrQueueCleared) {
		return false
	}

	var te *TimeoutError
	if errors.As(err, &te) {
		return r.statuses[408]
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return r.statuses[ue.Status]
	}
	return false
}

func (r *Retry) shouldRetry(err error) bool {
	if r.cfg.RetryIf != nil {
		return r.cfg.RetryIf(err)
	}
	return r.Retryable(err)
}

// Config returns the retry configuration with defaults applied.
func (r *Retry) Config() RetryConfig {
	return r.cfg
}
