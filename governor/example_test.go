package governor_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/femcodersclub/governor/governor"
)

func ExampleGovernor_Do() {
	g := governor.New(governor.Config{
		MaxConcurrent: 2,
		MaxRequests:   10,
		TimeWindow:    time.Second,
	})
	defer g.Close()

	result, err := g.Do(context.Background(), func(ctx context.Context) (any, error) {
		// Simulated network call
		return "payload", nil
	}, governor.WithPriority(5))

	fmt.Println(result, err)
	// Output:
	// payload <nil>
}

func ExampleGovernor_DoSettleAll() {
	g := governor.New(governor.Config{MaxConcurrent: 3})
	defer g.Close()

	results := g.DoSettleAll(context.Background(), []governor.BatchRequest{
		{Op: func(ctx context.Context) (any, error) { return "first", nil }},
		{Op: func(ctx context.Context) (any, error) {
			return nil, &governor.UpstreamError{Status: 404}
		}},
	})

	for _, r := range results {
		if r.Err != nil {
			fmt.Println("failed:", r.Err)
			continue
		}
		fmt.Println("ok:", r.Value)
	}
	// Output:
	// ok: first
	// failed: governor: upstream failure (status 404)
}

func ExampleNewRetry() {
	r := governor.NewRetry(governor.RetryConfig{
		MaxRetries:   2,
		InitialDelay: time.Millisecond,
	})

	calls := 0
	result, err := r.Run(context.Background(), func(ctx context.Context, attempt int) (any, error) {
		calls++
		if calls < 2 {
			return nil, &governor.UpstreamError{Status: 503}
		}
		return "recovered", nil
	})

	fmt.Println(result, err)
	// Output:
	// recovered <nil>
}

func ExampleGuardSet() {
	guards := governor.NewGuardSet()

	_, err := guards.New(10*time.Millisecond).Run(context.Background(), func(ctx context.Context) (any, error) {
		<-ctx.Done() // an attempt that never settles on its own
		return nil, ctx.Err()
	})

	var timeout *governor.TimeoutError
	fmt.Println(errors.As(err, &timeout), timeout.Timeout)
	// Output:
	// true 10ms
}
