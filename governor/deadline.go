package governor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// GuardSet tracks the deadline guards owned by one pipeline instance. Guards
// are never process-wide; construct one set per Governor and pass it
// explicitly.
type GuardSet struct {
	mu     sync.Mutex
	active map[uuid.UUID]*Guard
}

// Guard pairs one attempt's cancellation signal with one timer. It is owned
// exclusively by that attempt and released the moment the attempt settles by
// any path, so no timer ever outlives its call.
type Guard struct {
	id      uuid.UUID
	timeout time.Duration
	set     *GuardSet
	abort   chan struct{}
	once    sync.Once
}

// NewGuardSet creates an empty guard registry.
func NewGuardSet() *GuardSet {
	return &GuardSet{active: make(map[uuid.UUID]*Guard)}
}

// New registers a guard with the given per-attempt deadline. The guard stays
// active until its Run settles or it is aborted.
func (gs *GuardSet) New(timeout time.Duration) *Guard {
	g := &Guard{
		id:      uuid.New(),
		timeout: timeout,
		set:     gs,
		abort:   make(chan struct{}),
	}
	gs.mu.Lock()
	gs.active[g.id] = g
	gs.mu.Unlock()
	return g
}

// Abort cancels the identified guard's attempt independently of its timer
// and removes it from the active set. Its Run settles with ErrAborted.
func (gs *GuardSet) Abort(id uuid.UUID) bool {
	gs.mu.Lock()
	g, ok := gs.active[id]
	delete(gs.active, id)
	gs.mu.Unlock()

	if ok {
		g.trigger()
	}
	return ok
}

// AbortAll aborts every active guard and reports how many.
func (gs *GuardSet) AbortAll() int {
	gs.mu.Lock()
	aborted := make([]*Guard, 0, len(gs.active))
	for _, g := range gs.active {
		aborted = append(aborted, g)
	}
	gs.active = make(map[uuid.UUID]*Guard)
	gs.mu.Unlock()

	for _, g := range aborted {
		g.trigger()
	}
	return len(aborted)
}

// Active returns the number of registered guards. Every guard deregisters
// when its attempt settles, so a drained pipeline reports zero.
func (gs *GuardSet) Active() int {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	return len(gs.active)
}

func (gs *GuardSet) remove(id uuid.UUID) {
	gs.mu.Lock()
	delete(gs.active, id)
	gs.mu.Unlock()
}

// ID identifies the guard for GuardSet.Abort.
func (g *Guard) ID() uuid.UUID { return g.id }

// Run races op against the guard's deadline. Cancellation is advisory: if
// the timer fires first the operation's context is cancelled, its eventual
// outcome is discarded, and a TimeoutError carrying the deadline is
// returned. An operation that ignores its context keeps running in the
// background; its late settlement is a no-op. The timer is stopped on every
// exit path.
func (g *Guard) Run(ctx context.Context, op Operation) (any, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer g.set.remove(g.id)

	timer := time.NewTimer(g.timeout)
	defer timer.Stop()

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := op(ctx)
		done <- outcome{result, err}
	}()

	select {
	case o := <-done:
		return o.result, o.err
	case <-timer.C:
		cancel()
		return nil, &TimeoutError{Timeout: g.timeout}
	case <-g.abort:
		cancel()
		return nil, ErrAborted
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *Guard) trigger() {
	g.once.Do(func() { close(g.abort) })
}
