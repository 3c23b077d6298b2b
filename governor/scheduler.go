package governor

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SchedulerConfig configures the priority scheduler.
type SchedulerConfig struct {
	// MaxConcurrent caps the number of simultaneously running jobs.
	// Default: 5
	MaxConcurrent int
}

// Scheduler bounds global concurrency to MaxConcurrent in-flight jobs and
// orders waiting jobs by priority, then arrival order. The scheduler itself
// never fails; it only forwards each operation's outcome. Running jobs are
// not preemptible here; cancelling in-flight work is the deadline guard's
// responsibility.
type Scheduler struct {
	cfg SchedulerConfig

	mu        sync.Mutex
	queue     jobHeap
	byID      map[uuid.UUID]*job
	running   int
	seq       uint64
	enqueued  int64
	completed int64
	failed    int64
	cancelled int64
	closed    bool

	wake chan struct{}
	stop chan struct{}
}

// QueuedJob is a point-in-time view of one waiting job.
type QueuedJob struct {
	ID         uuid.UUID
	Priority   int
	EnqueuedAt time.Time
}

// SchedulerStatus is a point-in-time view of the scheduler.
type SchedulerStatus struct {
	Queued        int
	Running       int
	MaxConcurrent int
	Enqueued      int64
	Completed     int64
	Failed        int64
	Cancelled     int64
	QueuedJobs    []QueuedJob
}

// NewScheduler creates a scheduler and starts its dispatcher. Callers must
// Close it to release the dispatcher goroutine.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 5
	}

	s := &Scheduler{
		cfg:  cfg,
		byID: make(map[uuid.UUID]*job),
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
	}
	go s.dispatchLoop()
	return s
}

// Enqueue adds op to the queue and returns its ticket. The job dispatches
// once its priority band reaches the front and a concurrency slot is free.
// Higher priority dispatches first; equal priorities dispatch in arrival
// order. The default priority is 0 and no bound is enforced.
func (s *Scheduler) Enqueue(ctx context.Context, op Operation, priority int) *Ticket {
	return s.enqueue(ctx, uuid.New(), op, priority)
}

func (s *Scheduler) enqueue(ctx context.Context, id uuid.UUID, op Operation, priority int) *Ticket {
	if ctx == nil {
		ctx = context.Background()
	}

	j := &job{
		id:       id,
		priority: priority,
		arrived:  time.Now(),
		status:   StatusQueued,
		ctx:      ctx,
		op:       op,
		done:     make(chan struct{}),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		j.status = StatusCancelled
		j.settle(nil, ErrSchedulerClosed)
		return &Ticket{job: j}
	}
	j.seq = s.seq
	s.seq++
	s.enqueued++
	heap.Push(&s.queue, j)
	s.byID[j.id] = j
	s.mu.Unlock()

	s.signal()
	return &Ticket{job: j}
}

// Cancel removes a queued job and settles its ticket with ErrCancelled.
// It reports false if the job is unknown or already running; running jobs
// always settle with their operation's own outcome.
func (s *Scheduler) Cancel(id uuid.UUID) bool {
	s.mu.Lock()
	j, ok := s.byID[id]
	if !ok || j.status != StatusQueued {
		s.mu.Unlock()
		return false
	}
	heap.Remove(&s.queue, j.index)
	delete(s.byID, j.id)
	j.status = StatusCancelled
	s.cancelled++
	s.mu.Unlock()

	j.settle(nil, ErrCancelled)
	return true
}

// CancelAll cancels every queued job and reports how many were cancelled.
func (s *Scheduler) CancelAll() int {
	s.mu.Lock()
	dropped := make([]*job, 0, s.queue.Len())
	for s.queue.Len() > 0 {
		j := heap.Pop(&s.queue).(*job)
		delete(s.byID, j.id)
		j.status = StatusCancelled
		s.cancelled++
		dropped = append(dropped, j)
	}
	s.mu.Unlock()

	for _, j := range dropped {
		j.settle(nil, ErrCancelled)
	}
	return len(dropped)
}

// Status returns a snapshot of the scheduler, including the queued jobs with
// their priority and enqueue time. Safe to poll at any frequency.
func (s *Scheduler) Status() SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	queued := make([]QueuedJob, 0, s.queue.Len())
	for _, j := range s.queue {
		queued = append(queued, QueuedJob{ID: j.id, Priority: j.priority, EnqueuedAt: j.arrived})
	}

	return SchedulerStatus{
		Queued:        s.queue.Len(),
		Running:       s.running,
		MaxConcurrent: s.cfg.MaxConcurrent,
		Enqueued:      s.enqueued,
		Completed:     s.completed,
		Failed:        s.failed,
		Cancelled:     s.cancelled,
		QueuedJobs:    queued,
	}
}

// ResetTotals zeroes the per-status counters reported by Status.
func (s *Scheduler) ResetTotals() {
	s.mu.Lock()
	s.enqueued = 0
	s.completed = 0
	s.failed = 0
	s.cancelled = 0
	s.mu.Unlock()
}

// Close cancels every queued job, stops the dispatcher, and marks the
// scheduler closed. Running jobs settle normally.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	dropped := make([]*job, 0, s.queue.Len())
	for s.queue.Len() > 0 {
		j := heap.Pop(&s.queue).(*job)
		delete(s.byID, j.id)
		j.status = StatusCancelled
		s.cancelled++
		dropped = append(dropped, j)
	}
	s.mu.Unlock()

	for _, j := range dropped {
		j.settle(nil, ErrSchedulerClosed)
	}
	close(s.stop)
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// dispatchLoop runs on its own goroutine. Settlement posts a wake signal
// instead of re-entering dispatch from the completion path, so the stack
// stays flat under sustained throughput.
func (s *Scheduler) dispatchLoop() {
	for {
		select {
		case <-s.stop:
			return
		case <-s.wake:
			s.dispatch()
		}
	}
}

// dispatch promotes queued jobs to running while slots are free. Priority is
// re-evaluated at each decision, so a newly-arrived high-priority job
// overtakes lower-priority jobs that have not yet dispatched.
func (s *Scheduler) dispatch() {
	s.mu.Lock()
	for s.running < s.cfg.MaxConcurrent && s.queue.Len() > 0 {
		j := heap.Pop(&s.queue).(*job)
		j.status = StatusRunning
		j.started = time.Now()
		s.running++
		go s.run(j)
	}
	s.mu.Unlock()
}

func (s *Scheduler) run(j *job) {
	result, err := j.op(withRequestID(j.ctx, j.id))

	s.mu.Lock()
	s.running--
	j.finished = time.Now()
	if err != nil {
		j.status = StatusFailed
		s.failed++
	} else {
		j.status = StatusCompleted
		s.completed++
	}
	delete(s.byID, j.id)
	s.mu.Unlock()

	j.settle(result, err)
	s.signal()
}

// jobHeap orders jobs by priority descending, then arrival sequence
// ascending, so equal priorities dispatch FIFO.
type jobHeap []*job

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *jobHeap) Push(x any) {
	j := x.(*job)
	j.index = len(*h)
	*h = append(*h, j)
}

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	j := old[n-1]
	old[n-1] = nil
	j.index = -1
	*h = old[:n-1]
	return j
}
