package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/femcodersclub/governor/governor"
)

// MeterListener exports lifecycle events as OpenTelemetry metrics: request
// and attempt counters, an error counter, a settlement latency histogram,
// and a batch counter tagged with the combinator type.
type MeterListener struct {
	requests metric.Int64Counter
	attempts metric.Int64Counter
	errors   metric.Int64Counter
	latency  metric.Float64Histogram
	batches  metric.Int64Counter
}

// NewMeterListener creates a listener recording on meter.
func NewMeterListener(meter metric.Meter) (*MeterListener, error) {
	requests, err := meter.Int64Counter(
		"governor.requests.total",
		metric.WithDescription("Total number of requests submitted to the pipeline"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	attempts, err := meter.Int64Counter(
		"governor.attempts.total",
		metric.WithDescription("Total number of individual attempts, retries included"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	errCount, err := meter.Int64Counter(
		"governor.requests.errors",
		metric.WithDescription("Total number of requests that settled with a failure"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	latency, err := meter.Float64Histogram(
		"governor.request.duration_ms",
		metric.WithDescription("Request latency from submission to settlement in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	batches, err := meter.Int64Counter(
		"governor.batches.total",
		metric.WithDescription("Total number of batch combinator invocations"),
		metric.WithUnit("{batch}"),
	)
	if err != nil {
		return nil, err
	}

	return &MeterListener{
		requests: requests,
		attempts: attempts,
		errors:   errCount,
		latency:  latency,
		batches:  batches,
	}, nil
}

// OnEvent records the instruments touched by e.
func (m *MeterListener) OnEvent(e governor.Event) {
	ctx := context.Background()

	switch ev := e.(type) {
	case governor.RequestStart:
		m.requests.Add(ctx, 1)
	case governor.RequestAttempt:
		m.attempts.Add(ctx, 1)
	case governor.RequestSuccess:
		m.latency.Record(ctx, float64(ev.Latency.Milliseconds()))
	case governor.RequestError:
		m.errors.Add(ctx, 1)
	case governor.BatchStart:
		m.batches.Add(ctx, 1, metric.WithAttributes(attribute.String("batch.type", ev.Type)))
	}
}
