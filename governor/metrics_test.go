package governor

import (
	"errors"
	"testing"
	"time"
)

func TestMetrics_CountsSettlements(t *testing.T) {
	m := &metrics{}

	m.record(10*time.Millisecond, nil)
	m.record(20*time.Millisecond, nil)
	snap := m.record(30*time.Millisecond, errors.New("failed"))

	if snap.Total != 3 {
		t.Errorf("Total = %d, want 3", snap.Total)
	}
	if snap.Succeeded != 2 {
		t.Errorf("Succeeded = %d, want 2", snap.Succeeded)
	}
	if snap.Failed != 1 {
		t.Errorf("Failed = %d, want 1", snap.Failed)
	}
	if snap.AvgLatency != 20*time.Millisecond {
		t.Errorf("AvgLatency = %v, want 20ms", snap.AvgLatency)
	}
}

// TestMetrics_RollingWindow: the average covers only the last 100
// settlements, so old samples age out.
func TestMetrics_RollingWindow(t *testing.T) {
	m := &metrics{}

	for i := 0; i < 50; i++ {
		m.record(time.Hour, nil)
	}
	var snap Snapshot
	for i := 0; i < latencyWindow; i++ {
		snap = m.record(10*time.Millisecond, nil)
	}

	if snap.Total != 150 {
		t.Errorf("Total = %d, want 150", snap.Total)
	}
	if snap.AvgLatency != 10*time.Millisecond {
		t.Errorf("AvgLatency = %v, want 10ms once the hour-long samples aged out", snap.AvgLatency)
	}
}

func TestMetrics_SnapshotIsReadOnlyCopy(t *testing.T) {
	m := &metrics{}
	m.record(time.Millisecond, nil)

	snap := m.snapshot()
	snap.Total = 999

	if got := m.snapshot().Total; got != 1 {
		t.Errorf("Total = %d after mutating a snapshot copy, want 1", got)
	}
}
