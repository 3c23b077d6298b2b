package governor

import (
	"context"
	"errors"
	"sync"
	"time"
)

// BreakerState is the circuit breaker state.
type BreakerState int

const (
	// BreakerClosed means requests flow normally.
	BreakerClosed BreakerState = iota
	// BreakerOpen means requests are rejected without running.
	BreakerOpen
	// BreakerHalfOpen means a limited number of probe requests may run.
	BreakerHalfOpen
)

// String returns the string representation of the state.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures the circuit breaker.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures before opening.
	// Default: 5
	MaxFailures int

	// ResetTimeout is how long to stay open before probing recovery.
	// Default: 30s
	ResetTimeout time.Duration

	// HalfOpenMax is the number of probe requests allowed while half-open.
	// Default: 1
	HalfOpenMax int

	// IsFailure decides whether an error counts toward opening the circuit.
	// Default: timeouts and upstream 5xx count; cancellation and aborts do
	// not, since they say nothing about upstream health.
	IsFailure func(err error) bool

	// OnStateChange is called when the breaker changes state.
	OnStateChange func(from, to BreakerState)
}

// Breaker stops sending requests to an upstream that keeps failing, letting
// it recover before traffic resumes. Optional in the pipeline; see
// WithBreaker.
type Breaker struct {
	cfg BreakerConfig

	mu          sync.Mutex
	state       BreakerState
	failures    int
	probes      int
	lastFailure time.Time
}

// NewBreaker creates a circuit breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 1
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = upstreamUnhealthy
	}

	return &Breaker{cfg: cfg, state: BreakerClosed}
}

// upstreamUnhealthy is the default failure classifier: only outcomes that
// indicate a sick upstream trip the breaker.
func upstreamUnhealthy(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrAborted) ||
		errors.Is(err, ErrCancelled) || errors.Is(err, ErrQueueCleared) {
		return false
	}
	var te *TimeoutError
	if errors.As(err, &te) {
		return true
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Status >= 500
	}
	return true
}

// Execute runs op through the breaker, forwarding its outcome. While open it
// returns ErrCircuitOpen without running op.
func (b *Breaker) Execute(ctx context.Context, op Operation) (any, error) {
	if err := b.before(); err != nil {
		return nil, err
	}

	result, err := op(ctx)
	b.after(err)
	return result, err
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerOpen && time.Since(b.lastFailure) >= b.cfg.ResetTimeout {
		return BreakerHalfOpen
	}
	return b.state
}

// Reset closes the breaker and clears its failure count.
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.state
	b.state = BreakerClosed
	b.failures = 0
	b.probes = 0
	b.mu.Unlock()

	b.notify(from, BreakerClosed)
}

func (b *Breaker) before() error {
	b.mu.Lock()

	if b.state == BreakerOpen {
		if time.Since(b.lastFailure) < b.cfg.ResetTimeout {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		b.state = BreakerHalfOpen
		b.probes = 0
		b.mu.Unlock()
		b.notify(BreakerOpen, BreakerHalfOpen)
		b.mu.Lock()
	}

	if b.state == BreakerHalfOpen {
		if b.probes >= b.cfg.HalfOpenMax {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		b.probes++
	}

	b.mu.Unlock()
	return nil
}

func (b *Breaker) after(err error) {
	failed := b.cfg.IsFailure(err)

	b.mu.Lock()
	from := b.state
	to := from

	switch b.state {
	case BreakerHalfOpen:
		b.probes--
		if failed {
			b.state = BreakerOpen
			b.lastFailure = time.Now()
			to = BreakerOpen
		} else {
			b.state = BreakerClosed
			b.failures = 0
			to = BreakerClosed
		}
	case BreakerClosed:
		if failed {
			b.failures++
			b.lastFailure = time.Now()
			if b.failures >= b.cfg.MaxFailures {
				b.state = BreakerOpen
				to = BreakerOpen
			}
		} else {
			b.failures = 0
		}
	}
	b.mu.Unlock()

	if from != to {
		b.notify(from, to)
	}
}

func (b *Breaker) notify(from, to BreakerState) {
	if from != to && b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(from, to)
	}
}
