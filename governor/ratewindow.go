package governor

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// RateWindowConfig configures the sliding-window admission limiter.
type RateWindowConfig struct {
	// MaxRequests is the number of admissions allowed inside any rolling
	// window. Default: 10
	MaxRequests int

	// Window is the rolling window duration. Default: 1s
	Window time.Duration
}

// RateWindowStatus is a point-in-time view of the limiter.
type RateWindowStatus struct {
	Admitted    int // admissions still inside the current window
	Waiting     int
	MaxRequests int
	Window      time.Duration
}

// RateWindow admits at most MaxRequests operations within any rolling
// Window. Requests beyond capacity wait in a list ordered by priority, then
// arrival. Capacity frees as admissions age out of the window or, earlier,
// when an admitted operation completes. The limiter never converts errors;
// it forwards the operation's outcome and synthesizes ErrQueueCleared only
// for waiters it discards itself.
type RateWindow struct {
	cfg RateWindowConfig

	mu       sync.Mutex
	tickets  []admission
	nextID   uint64
	seq      uint64
	waiters  waiterHeap
	reclaims *time.Timer // armed to the oldest admission's expiry while waiters exist
}

// admission records one admitted attempt. Admissions are only appended or
// dropped, never mutated.
type admission struct {
	id uint64
	at time.Time
}

type admitResult struct {
	id  uint64
	err error
}

type waiter struct {
	priority int
	seq      uint64
	index    int
	result   chan admitResult
}

// NewRateWindow creates a sliding-window limiter.
func NewRateWindow(cfg RateWindowConfig) *RateWindow {
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = 10
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Second
	}
	return &RateWindow{cfg: cfg}
}

// Throttle admits op under the window, waiting for capacity if necessary,
// then runs it. The operation's outcome is forwarded unchanged.
func (rw *RateWindow) Throttle(ctx context.Context, priority int, op Operation) (any, error) {
	id, err := rw.admit(ctx, priority)
	if err != nil {
		return nil, err
	}

	result, err := op(ctx)
	rw.release(id)
	return result, err
}

// TryThrottle admits op only if window capacity is free right now. Instead
// of waiting it fails with ErrRateLimitExceeded, for callers that opt out of
// the default queue-and-wait behavior.
func (rw *RateWindow) TryThrottle(ctx context.Context, op Operation) (any, error) {
	rw.mu.Lock()
	now := time.Now()
	rw.pruneLocked(now)
	if len(rw.tickets) >= rw.cfg.MaxRequests || rw.waiters.Len() > 0 {
		rw.mu.Unlock()
		return nil, ErrRateLimitExceeded
	}
	id := rw.stampLocked(now)
	rw.mu.Unlock()

	result, err := op(ctx)
	rw.release(id)
	return result, err
}

// WaitTime returns the minimum time until at least one more admission is
// possible, computed from the oldest active admission's expiry. Zero means
// capacity is available now. Introspection only; Throttle does its own
// waiting.
func (rw *RateWindow) WaitTime() time.Duration {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	now := time.Now()
	rw.pruneLocked(now)
	if len(rw.tickets) < rw.cfg.MaxRequests {
		return 0
	}
	d := rw.tickets[0].at.Add(rw.cfg.Window).Sub(now)
	if d < 0 {
		d = 0
	}
	return d
}

// ClearQueue rejects every waiting (not yet admitted) request with
// ErrQueueCleared and returns the count cleared.
func (rw *RateWindow) ClearQueue() int {
	rw.mu.Lock()
	cleared := make([]*waiter, 0, rw.waiters.Len())
	for rw.waiters.Len() > 0 {
		cleared = append(cleared, heap.Pop(&rw.waiters).(*waiter))
	}
	rw.stopReclaimLocked()
	rw.mu.Unlock()

	for _, w := range cleared {
		w.result <- admitResult{err: ErrQueueCleared}
	}
	return len(cleared)
}

// Status returns a snapshot of the limiter. Safe to poll at any frequency.
func (rw *RateWindow) Status() RateWindowStatus {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	rw.pruneLocked(time.Now())
	return RateWindowStatus{
		Admitted:    len(rw.tickets),
		Waiting:     rw.waiters.Len(),
		MaxRequests: rw.cfg.MaxRequests,
		Window:      rw.cfg.Window,
	}
}

func (rw *RateWindow) admit(ctx context.Context, priority int) (uint64, error) {
	rw.mu.Lock()
	now := time.Now()
	rw.pruneLocked(now)
	if len(rw.tickets) < rw.cfg.MaxRequests && rw.waiters.Len() == 0 {
		id := rw.stampLocked(now)
		rw.mu.Unlock()
		return id, nil
	}

	w := &waiter{priority: priority, seq: rw.seq, result: make(chan admitResult, 1)}
	rw.seq++
	heap.Push(&rw.waiters, w)
	rw.drainLocked(now)
	rw.mu.Unlock()

	select {
	case res := <-w.result:
		return res.id, res.err
	case <-ctx.Done():
		rw.mu.Lock()
		if w.index >= 0 {
			heap.Remove(&rw.waiters, w.index)
			rw.mu.Unlock()
			return 0, ctx.Err()
		}
		rw.mu.Unlock()
		// Admission raced the cancellation; hand the slot back.
		if res := <-w.result; res.err == nil {
			rw.release(res.id)
		}
		return 0, ctx.Err()
	}
}

// release drops the admission recorded for id, freeing its slot before the
// window would have aged it out, and grants freed capacity to waiters.
func (rw *RateWindow) release(id uint64) {
	rw.mu.Lock()
	for i, t := range rw.tickets {
		if t.id == id {
			rw.tickets = append(rw.tickets[:i], rw.tickets[i+1:]...)
			break
		}
	}
	rw.drainLocked(time.Now())
	rw.mu.Unlock()
}

// stampLocked records an admission at now and returns its identity.
func (rw *RateWindow) stampLocked(now time.Time) uint64 {
	rw.nextID++
	rw.tickets = append(rw.tickets, admission{id: rw.nextID, at: now})
	return rw.nextID
}

// pruneLocked drops admissions that have aged out of the window. Admissions
// are kept in stamp order, so expired entries form a prefix.
func (rw *RateWindow) pruneLocked(now time.Time) {
	cut := 0
	for cut < len(rw.tickets) && !rw.tickets[cut].at.Add(rw.cfg.Window).After(now) {
		cut++
	}
	if cut > 0 {
		rw.tickets = append(rw.tickets[:0], rw.tickets[cut:]...)
	}
}

// drainLocked grants capacity to the highest-priority waiters. Called on
// every release and on every reclaim tick, so the wait list drains reactively
// rather than by polling.
func (rw *RateWindow) drainLocked(now time.Time) {
	rw.pruneLocked(now)
	for rw.waiters.Len() > 0 && len(rw.tickets) < rw.cfg.MaxRequests {
		w := heap.Pop(&rw.waiters).(*waiter)
		w.result <- admitResult{id: rw.stampLocked(now)}
	}
	if rw.waiters.Len() == 0 {
		rw.stopReclaimLocked()
	} else {
		rw.armReclaimLocked()
	}
}

// armReclaimLocked schedules a drain for the moment the oldest admission
// ages out. One timer at a time; it re-arms itself while waiters remain.
func (rw *RateWindow) armReclaimLocked() {
	if rw.reclaims != nil || rw.waiters.Len() == 0 || len(rw.tickets) == 0 {
		return
	}
	d := time.Until(rw.tickets[0].at.Add(rw.cfg.Window))
	if d < 0 {
		d = 0
	}
	rw.reclaims = time.AfterFunc(d, rw.reclaim)
}

func (rw *RateWindow) stopReclaimLocked() {
	if rw.reclaims != nil {
		rw.reclaims.Stop()
		rw.reclaims = nil
	}
}

func (rw *RateWindow) reclaim() {
	rw.mu.Lock()
	rw.reclaims = nil
	rw.drainLocked(time.Now())
	rw.mu.Unlock()
}

// waiterHeap orders waiters by priority descending, then arrival sequence
// ascending, the same contract as the scheduler's queue.
type waiterHeap []*waiter

func (h waiterHeap) Len() int { return len(h) }

func (h waiterHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h waiterHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *waiterHeap) Push(x any) {
	w := x.(*waiter)
	w.index = len(*h)
	*h = append(*h, w)
}

func (h *waiterHeap) Pop() any {
	old := *h
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	w.index = -1
	*h = old[:n-1]
	return w
}
