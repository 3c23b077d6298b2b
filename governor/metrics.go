package governor

import (
	"sync"
	"time"
)

// latencyWindow is the number of most recent settlements the rolling average
// latency covers.
const latencyWindow = 100

// Snapshot is a point-in-time view of aggregate request metrics. Counters
// move only when a request fully settles; snapshots are read-only and safe
// to poll at any frequency.
type Snapshot struct {
	Total      int64
	Succeeded  int64
	Failed     int64
	AvgLatency time.Duration
}

// metrics owns the aggregate counters for one Governor. Never a process-wide
// singleton.
type metrics struct {
	mu        sync.Mutex
	total     int64
	succeeded int64
	failed    int64
	ring      [latencyWindow]time.Duration
	next      int
	filled    int
	avg       time.Duration
}

// record folds one terminal settlement into the counters and returns the
// resulting snapshot.
func (m *metrics) record(latency time.Duration, err error) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total++
	if err != nil {
		m.failed++
	} else {
		m.succeeded++
	}

	m.ring[m.next] = latency
	m.next = (m.next + 1) % latencyWindow
	if m.filled < latencyWindow {
		m.filled++
	}

	var sum time.Duration
	for i := 0; i < m.filled; i++ {
		sum += m.ring[i]
	}
	m.avg = sum / time.Duration(m.filled)

	return m.snapshotLocked()
}

func (m *metrics) snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *metrics) snapshotLocked() Snapshot {
	return Snapshot{
		Total:      m.total,
		Succeeded:  m.succeeded,
		Failed:     m.failed,
		AvgLatency: m.avg,
	}
}
