package observe

import (
	"go.uber.org/zap"

	"github.com/femcodersclub/governor/governor"
)

// ZapListener logs every lifecycle event with structured fields. Per-request
// events log the request ID so they can be correlated across the request's
// lifetime.
type ZapListener struct {
	log *zap.Logger
}

// NewZapListener creates a listener that logs to log.
func NewZapListener(log *zap.Logger) *ZapListener {
	return &ZapListener{log: log}
}

// OnEvent logs e. Routine progress (attempts, metrics updates) logs at debug
// level; settlements and batch boundaries at info, failures at warn.
func (z *ZapListener) OnEvent(e governor.Event) {
	kind := zap.String("event", e.Kind())

	switch ev := e.(type) {
	case governor.RequestStart:
		z.log.Info("request queued", kind,
			zap.Stringer("request_id", ev.ID),
			zap.Int("priority", ev.Priority))
	case governor.RequestAttempt:
		z.log.Debug("attempt started", kind,
			zap.Stringer("request_id", ev.ID),
			zap.Int("attempt", ev.Attempt))
	case governor.RequestSuccess:
		z.log.Info("request succeeded", kind,
			zap.Stringer("request_id", ev.ID),
			zap.Duration("latency", ev.Latency))
	case governor.RequestError:
		z.log.Warn("request failed", kind,
			zap.Stringer("request_id", ev.ID),
			zap.Error(ev.Err))
	case governor.BatchStart:
		z.log.Info("batch started", kind,
			zap.String("type", ev.Type),
			zap.Int("count", ev.Count))
	case governor.BatchComplete:
		z.log.Info("batch complete", kind,
			zap.Int("successful", ev.Successful),
			zap.Int("failed", ev.Failed))
	case governor.MetricsUpdate:
		z.log.Debug("metrics updated", kind,
			zap.Int64("total", ev.Snapshot.Total),
			zap.Int64("succeeded", ev.Snapshot.Succeeded),
			zap.Int64("failed", ev.Snapshot.Failed),
			zap.Duration("avg_latency", ev.Snapshot.AvgLatency))
	default:
		z.log.Debug("pipeline event", kind)
	}
}
