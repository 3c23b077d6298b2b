package governor

import (
	"context"
	"testing"
	"time"
)

// BenchmarkGovernor_Do measures the full pipeline overhead on a no-op
// operation with capacity to spare.
func BenchmarkGovernor_Do(b *testing.B) {
	g := New(Config{
		MaxConcurrent: 64,
		MaxRequests:   1 << 20,
		TimeWindow:    time.Second,
	})
	defer g.Close()
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = g.Do(ctx, func(ctx context.Context) (any, error) {
			return nil, nil
		})
	}
}

// BenchmarkScheduler_EnqueueDispatch measures scheduler throughput alone.
func BenchmarkScheduler_EnqueueDispatch(b *testing.B) {
	s := NewScheduler(SchedulerConfig{MaxConcurrent: 64})
	defer s.Close()
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		t := s.Enqueue(ctx, func(ctx context.Context) (any, error) {
			return nil, nil
		}, i%8)
		_, _ = t.Wait(ctx)
	}
}

// BenchmarkRateWindow_Throttle measures admission cost with free capacity.
func BenchmarkRateWindow_Throttle(b *testing.B) {
	rw := NewRateWindow(RateWindowConfig{MaxRequests: 1 << 20, Window: time.Second})
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = rw.Throttle(ctx, 0, func(ctx context.Context) (any, error) {
			return nil, nil
		})
	}
}

// BenchmarkGuard_Run measures per-attempt guard overhead.
func BenchmarkGuard_Run(b *testing.B) {
	gs := NewGuardSet()
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = gs.New(time.Minute).Run(ctx, func(ctx context.Context) (any, error) {
			return nil, nil
		})
	}
}
