package observe

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/femcodersclub/governor/governor"
)

func newObservedListener(level zapcore.Level) (*ZapListener, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return NewZapListener(zap.New(core)), logs
}

func TestZapListener_RequestLifecycle(t *testing.T) {
	l, logs := newObservedListener(zap.DebugLevel)
	id := uuid.New()

	l.OnEvent(governor.RequestStart{ID: id, Priority: 5})
	l.OnEvent(governor.RequestAttempt{ID: id, Attempt: 0})
	l.OnEvent(governor.RequestSuccess{ID: id, Latency: 12 * time.Millisecond})

	entries := logs.All()
	if len(entries) != 3 {
		t.Fatalf("logged %d entries, want 3", len(entries))
	}

	wantMsgs := []string{"request queued", "attempt started", "request succeeded"}
	wantKinds := []string{"request-start", "request-attempt", "request-success"}
	for i, e := range entries {
		if e.Message != wantMsgs[i] {
			t.Errorf("entries[%d].Message = %q, want %q", i, e.Message, wantMsgs[i])
		}
		fields := e.ContextMap()
		if fields["event"] != wantKinds[i] {
			t.Errorf("entries[%d] event = %v, want %q", i, fields["event"], wantKinds[i])
		}
		if fields["request_id"] != id.String() {
			t.Errorf("entries[%d] request_id = %v, want %v", i, fields["request_id"], id)
		}
	}
}

func TestZapListener_FailureLogsAtWarn(t *testing.T) {
	l, logs := newObservedListener(zap.DebugLevel)

	l.OnEvent(governor.RequestError{ID: uuid.New(), Err: errors.New("upstream exploded")})

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("logged %d entries, want 1", len(entries))
	}
	if entries[0].Level != zap.WarnLevel {
		t.Errorf("level = %v, want warn", entries[0].Level)
	}
	if entries[0].ContextMap()["error"] != "upstream exploded" {
		t.Errorf("error field = %v, want the failure message", entries[0].ContextMap()["error"])
	}
}

func TestZapListener_BatchEvents(t *testing.T) {
	l, logs := newObservedListener(zap.InfoLevel)

	l.OnEvent(governor.BatchStart{Count: 3, Type: "settle-all"})
	l.OnEvent(governor.BatchComplete{Successful: 2, Failed: 1})

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("logged %d entries, want 2", len(entries))
	}
	if got := entries[0].ContextMap()["type"]; got != "settle-all" {
		t.Errorf("type = %v, want settle-all", got)
	}
	if got := entries[1].ContextMap()["successful"]; got != int64(2) {
		t.Errorf("successful = %v, want 2", got)
	}
}

// TestZapListener_RoutineEventsStayAtDebug: attempts and metrics updates must
// not flood an info-level logger.
func TestZapListener_RoutineEventsStayAtDebug(t *testing.T) {
	l, logs := newObservedListener(zap.InfoLevel)

	l.OnEvent(governor.RequestAttempt{ID: uuid.New(), Attempt: 1})
	l.OnEvent(governor.MetricsUpdate{Snapshot: governor.Snapshot{Total: 7}})

	if n := len(logs.All()); n != 0 {
		t.Errorf("logged %d entries at info level, want 0", n)
	}
}
