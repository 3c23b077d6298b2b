// Package observe provides ready-made listeners for governor lifecycle
// events.
//
// The core pipeline emits typed events (request start, per-attempt,
// settlement, batch progress, metrics updates) but does not log or export
// anything itself. This package supplies the two consumers most deployments
// want:
//
//   - ZapListener: structured logging of every event via go.uber.org/zap.
//
//   - MeterListener: OpenTelemetry counters and a latency histogram derived
//     from the event stream.
//
// Register them at construction:
//
//	logger, _ := zap.NewProduction()
//	meters, _ := observe.NewMeterListener(otel.Meter("governor"))
//
//	g := governor.New(cfg,
//	    governor.WithListener(observe.NewZapListener(logger)),
//	    governor.WithListener(meters),
//	)
//
// Both listeners are safe for concurrent use.
package observe
