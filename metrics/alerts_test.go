package metrics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/AlfredDev/ftppool/ftpclient"
	"github.com/AlfredDev/ftppool/health"
)

var errProbeFailure = errors.New("probe failed")

type fakeRepairer struct{ err error }

func (f *fakeRepairer) Rebind(ctx context.Context, conn *ftpclient.Connection) error {
	return f.err
}

func testHealthManager(t *testing.T) *health.Manager {
	t.Helper()
	return health.NewManager(&fakeRepairer{}, health.RepairConfig{MaxRepairAttempts: 3, ProbeTimeout: time.Second}, zerolog.Nop())
}

func registerDegraded(t *testing.T, m *health.Manager, id string, consecutiveFailures int) {
	t.Helper()
	client := &ftpclient.FakeClient{}
	conn := ftpclient.NewFakeConnection(id, client)
	m.Register(conn)
	if err := m.Validate(context.Background(), id); err != nil {
		t.Fatalf("initial validate for %s: %v", id, err)
	}
	client.NoOpErr = errProbeFailure
	for i := 0; i < consecutiveFailures; i++ {
		_ = m.Validate(context.Background(), id)
	}
}

func TestCheckEmitsWarningOnConsecutiveFailures(t *testing.T) {
	m := testHealthManager(t)
	registerDegraded(t, m, "c1", 3)

	mon := NewMonitor(m, DefaultThresholds(), zerolog.Nop())

	var mu sync.Mutex
	var got []Alert
	mon.AddSink(func(a Alert) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, a)
	})

	mon.Check()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("expected exactly one alert, got %d", len(got))
	}
	if got[0].Level != LevelWarning {
		t.Fatalf("expected warning level, got %v", got[0].Level)
	}
}

func TestCheckIsNoOpWhenLevelUnchanged(t *testing.T) {
	m := testHealthManager(t)
	registerDegraded(t, m, "c1", 3)

	mon := NewMonitor(m, DefaultThresholds(), zerolog.Nop())

	var mu sync.Mutex
	calls := 0
	mon.AddSink(func(a Alert) {
		mu.Lock()
		defer mu.Unlock()
		calls++
	})

	mon.Check()
	mon.Check()
	mon.Check()

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected alert fired once on level change only, got %d calls", calls)
	}
}

func TestSetThresholdsChangesClassification(t *testing.T) {
	m := testHealthManager(t)
	registerDegraded(t, m, "c1", 1)

	// Fraction thresholds above 1.0 can never be reached, so only the
	// consecutive-failure thresholds decide the level in this test.
	mon := NewMonitor(m, Thresholds{WarnConsecutiveFailures: 10, CritConsecutiveFailures: 20, WarnDegradedFraction: 2, CritFailedFraction: 2}, zerolog.Nop())

	var mu sync.Mutex
	calls := 0
	mon.AddSink(func(a Alert) {
		mu.Lock()
		defer mu.Unlock()
		calls++
	})

	mon.Check()
	mu.Lock()
	if calls != 0 {
		mu.Unlock()
		t.Fatalf("expected no alert under lenient thresholds, got %d", calls)
	}
	mu.Unlock()

	mon.SetThresholds(Thresholds{WarnConsecutiveFailures: 1, CritConsecutiveFailures: 2, WarnDegradedFraction: 2, CritFailedFraction: 2})
	mon.Check()

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected one alert after tightening thresholds, got %d", calls)
	}
}

func TestStartStopRunsCheckOnTicks(t *testing.T) {
	m := testHealthManager(t)
	registerDegraded(t, m, "c1", 3)

	mon := NewMonitor(m, DefaultThresholds(), zerolog.Nop())

	var mu sync.Mutex
	calls := 0
	mon.AddSink(func(a Alert) {
		mu.Lock()
		defer mu.Unlock()
		calls++
	})

	mon.Start(5 * time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	mon.Stop()

	mu.Lock()
	defer mu.Unlock()
	if calls == 0 {
		t.Fatalf("expected at least one alert emitted by ticking Check")
	}
}

func TestLogSinkDoesNotPanic(t *testing.T) {
	sink := LogSink(zerolog.Nop())
	sink(Alert{Level: LevelCritical, Message: "test", At: time.Now()})
	sink(Alert{Level: LevelWarning, Message: "test", At: time.Now()})
	sink(Alert{Level: LevelInfo, Message: "test", At: time.Now()})
}
