package metrics

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/AlfredDev/ftppool/health"
)

// Level is the severity of an Alert (spec §6 Alert interface).
type Level string

const (
	LevelInfo     Level = "info"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// Alert is the payload handed to every registered Sink.
type Alert struct {
	Level   Level                  `json:"level"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	At      time.Time              `json:"at"`
}

// Sink receives every Alert the Monitor raises. A sink must not block —
// slow delivery (e.g. a stalled Redis connection) belongs behind its own
// bounded timeout, not inside Check's call path.
type Sink func(Alert)

// Thresholds configures when the Monitor escalates (spec §6: "Thresholds
// configurable; defaults: Warning at 3 consecutive failures or ≥25%
// degraded; Critical at 5 consecutive failures or ≥50% failed").
type Thresholds struct {
	WarnConsecutiveFailures int
	CritConsecutiveFailures int
	WarnDegradedFraction    float64
	CritFailedFraction      float64
}

// DefaultThresholds returns the defaults spec §6 names.
func DefaultThresholds() Thresholds {
	return Thresholds{
		WarnConsecutiveFailures: 3,
		CritConsecutiveFailures: 5,
		WarnDegradedFraction:    0.25,
		CritFailedFraction:      0.50,
	}
}

// Monitor is the Metrics & Alerts threshold monitor: one of the four
// fixed-rate background workers spec §5 names. It reads the Health
// Manager's live counts each tick and fans a classified Alert out to
// every registered sink when a threshold is crossed, emitting a
// recovery Info alert when the pool returns to a healthy baseline.
//
// Threshold changes go through SetThresholds, which takes the monitor
// lock rather than mutating the struct directly from another goroutine
// (spec §9 "Global mutable state... runtime changes go through an
// explicit setter that takes the monitor lock").
type Monitor struct {
	mu         sync.Mutex
	thresholds Thresholds
	sinks      []Sink

	health *health.Manager
	logger zerolog.Logger

	lastLevel Level
	checking  int32

	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor builds a Monitor bound to the Health Manager's live state.
func NewMonitor(h *health.Manager, thresholds Thresholds, logger zerolog.Logger) *Monitor {
	return &Monitor{
		thresholds: thresholds,
		health:     h,
		logger:     logger.With().Str("component", "alert_monitor").Logger(),
		lastLevel:  LevelInfo,
	}
}

// AddSink registers an additional delivery target. Safe to call before
// or after Start.
func (m *Monitor) AddSink(s Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks = append(m.sinks, s)
}

// SetThresholds replaces the active thresholds under the monitor lock.
func (m *Monitor) SetThresholds(th Thresholds) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.thresholds = th
}

// Check runs one evaluation pass: it derives the degraded/failed
// fraction and the system-wide consecutive-failures high-water mark
// from the Health Manager, classifies against the current thresholds,
// and fires an Alert through every sink on a level change (including
// the Info alert that marks recovery). It is single-flight, matching
// the other periodic workers in this module — an overlapping call is a
// no-op.
func (m *Monitor) Check() {
	if !atomic.CompareAndSwapInt32(&m.checking, 0, 1) {
		return
	}
	defer atomic.StoreInt32(&m.checking, 0)

	counts := m.health.Counts()
	total := 0
	for _, n := range counts {
		total += n
	}
	maxConsecutive := m.health.MaxConsecutiveFailures()

	m.mu.Lock()
	th := m.thresholds
	m.mu.Unlock()

	level := LevelInfo
	var reason string
	var degradedFrac, failedFrac float64
	if total > 0 {
		degradedFrac = float64(counts[health.StatusDegraded]) / float64(total)
		failedFrac = float64(counts[health.StatusFailed]) / float64(total)
	}

	switch {
	case maxConsecutive >= th.CritConsecutiveFailures || failedFrac >= th.CritFailedFraction:
		level = LevelCritical
		reason = "consecutive failures or failed-connection fraction at critical threshold"
	case maxConsecutive >= th.WarnConsecutiveFailures || degradedFrac >= th.WarnDegradedFraction:
		level = LevelWarning
		reason = "consecutive failures or degraded-connection fraction at warning threshold"
	default:
		reason = "within normal thresholds"
	}

	m.mu.Lock()
	changed := level != m.lastLevel
	m.lastLevel = level
	m.mu.Unlock()

	if !changed {
		return
	}

	msg := reason
	if level == LevelInfo {
		msg = "pool health recovered"
	}
	m.emit(Alert{
		Level:   level,
		Message: msg,
		Details: map[string]interface{}{
			"maxConsecutiveFailures": maxConsecutive,
			"degradedFraction":       degradedFrac,
			"failedFraction":         failedFrac,
			"healthy":                counts[health.StatusHealthy],
			"degraded":               counts[health.StatusDegraded],
			"failed":                 counts[health.StatusFailed],
			"repairing":              counts[health.StatusRepairing],
			"unknown":                counts[health.StatusUnknown],
		},
		At: time.Now(),
	})
}

func (m *Monitor) emit(a Alert) {
	m.mu.Lock()
	sinks := append([]Sink(nil), m.sinks...)
	m.mu.Unlock()
	for _, s := range sinks {
		s(a)
	}
}

// Start launches the fixed-rate alert-monitor worker (spec §5). A
// missed tick is skipped, not queued, via Check's single-flight guard.
func (m *Monitor) Start(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Check()
			}
		}
	}()
}

// Stop cancels the alert-monitor loop and waits for it to exit.
func (m *Monitor) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
}

// LogSink is the always-on delivery target: every alert is logged at
// the level matching its severity, grounded in the reference gateway's
// pattern of an always-on structured-logging sink alongside an
// optional gated external one.
func LogSink(logger zerolog.Logger) Sink {
	logger = logger.With().Str("component", "alert_log_sink").Logger()
	return func(a Alert) {
		ev := logger.Info()
		switch a.Level {
		case LevelWarning:
			ev = logger.Warn()
		case LevelCritical:
			ev = logger.Error()
		}
		ev.Interface("details", a.Details).Time("at", a.At).Msg(a.Message)
	}
}
