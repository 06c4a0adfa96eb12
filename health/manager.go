package health

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/AlfredDev/ftppool/errs"
	"github.com/AlfredDev/ftppool/ftpclient"
)

// hardFailKinds are the error kinds a validate/keep-alive probe treats as a
// hard fail (transport reset/closed/refused, or lost authentication). Every
// other classified failure is a soft fail (spec §4.2).
var hardFailKinds = map[errs.Kind]bool{
	errs.KindConnectionClosed:    true,
	errs.KindConnectionRefused:   true,
	errs.KindAuthenticationError: true,
	errs.KindInvalidCredentials:  true,
}

// RepairConfig bounds the repair loop (spec §3 Configuration,
// §4.2 maintenance cycle).
type RepairConfig struct {
	MaxRepairAttempts int
	RepairBackoff     time.Duration
	ProbeTimeout      time.Duration
}

// repairer is the narrow capability the Health Manager needs from the
// Connection Factory: drop the transport and rebind a fresh one in place.
// Defining it here (rather than depending on *ftpclient.Factory's full
// surface) keeps this package unit-testable without a real factory.
type repairer interface {
	Rebind(ctx context.Context, conn *ftpclient.Connection) error
}

// Manager is the Health Manager (spec §4.2, component C2): it owns the
// connectionId → Health Record map, probes connections for liveness, and
// repairs the ones that fail. It does not evict: a record whose repair
// attempts are exhausted stays registered and is reported by IsTerminal.
type Manager struct {
	mu      sync.RWMutex
	records map[string]*Record
	conns   map[string]*ftpclient.Connection

	locks   *keyedMutex
	factory repairer
	cfg     RepairConfig
	logger  zerolog.Logger

	maintenanceRunning int32

	onTransition func(id string, from, to Status)

	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager builds a Health Manager bound to the given connection
// factory (used for repair) and repair configuration.
func NewManager(factory repairer, cfg RepairConfig, logger zerolog.Logger) *Manager {
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	return &Manager{
		records: make(map[string]*Record),
		conns:   make(map[string]*ftpclient.Connection),
		locks:   newKeyedMutex(),
		factory: factory,
		cfg:     cfg,
		logger:  logger.With().Str("component", "health_manager").Logger(),
	}
}

// OnTransition registers a callback fired whenever a Health Record changes
// status. The pool uses it to count Repairing → Healthy transitions. Only
// one callback is held; a later call replaces an earlier one.
func (m *Manager) OnTransition(cb func(id string, from, to Status)) {
	m.onTransition = cb
}

// Register creates a fresh Unknown Health Record for conn. The record
// exists for exactly as long as the connection does (spec §3 invariant).
func (m *Manager) Register(conn *ftpclient.Connection) {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[conn.ID()] = newRecord(conn.ID(), now)
	m.conns[conn.ID()] = conn
}

// Unregister drops the Health Record and connection reference for id. It
// is a no-op for unknown ids.
func (m *Manager) Unregister(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	delete(m.conns, id)
}

// Status is the status oracle: a synchronous, lock-protected read of the
// cached verdict for id.
func (m *Manager) Status(id string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[id]
	if !ok {
		return StatusUnknown, false
	}
	return r.Status, true
}

// Snapshot returns a value copy of the Health Record for id, if any.
func (m *Manager) Snapshot(id string) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[id]
	if !ok {
		return Record{}, false
	}
	return r.snapshot(), true
}

// Counts returns the number of records in each status, for the metrics
// surface's `health` group (spec §6/§8.1).
func (m *Manager) Counts() map[Status]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := map[Status]int{
		StatusUnknown:   0,
		StatusHealthy:   0,
		StatusDegraded:  0,
		StatusFailed:    0,
		StatusRepairing: 0,
	}
	for _, r := range m.records {
		counts[r.Status]++
	}
	return counts
}

// MaxConsecutiveFailures returns the highest ConsecutiveFailures streak
// across all registered records, the system-wide signal the alert
// manager thresholds against (spec §6 Alert interface).
func (m *Manager) MaxConsecutiveFailures() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	max := 0
	for _, r := range m.records {
		if r.ConsecutiveFailures > max {
			max = r.ConsecutiveFailures
		}
	}
	return max
}

// Validate runs a liveness probe against id and applies the resulting
// state transition (spec §4.2). It serializes against any other
// probe/repair on the same connection.
func (m *Manager) Validate(ctx context.Context, id string) error {
	unlock := m.locks.Lock(id)
	defer unlock()

	conn, ok := m.connection(id)
	if !ok {
		return errs.New(errs.KindPoolError, "validate called for unregistered connection").WithConnectionID(id)
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- conn.Probe() }()

	var probeErr error
	select {
	case probeErr = <-errCh:
	case <-probeCtx.Done():
		probeErr = probeCtx.Err()
	}

	conn.MarkProbed(time.Now())
	m.applyOutcome(id, probeErr)
	return probeErr
}

// KeepAliveProbe performs the same probe mechanics as Validate, invoked
// by the Keep-Alive Driver's sweep rather than the maintenance cycle
// (spec §4.3: "same mechanics as validate but counted separately" — the
// driver keeps its own probe counters distinct from the maintenance
// cycle's statistics).
func (m *Manager) KeepAliveProbe(ctx context.Context, id string) error {
	return m.Validate(ctx, id)
}

// connection looks up the tracked *ftpclient.Connection for id.
func (m *Manager) connection(id string) (*ftpclient.Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conns[id]
	return c, ok
}

// applyOutcome records a probe result and advances the Health Record's
// state machine (spec §4.2 diagram).
func (m *Manager) applyOutcome(id string, probeErr error) {
	now := time.Now()

	m.mu.Lock()
	r, ok := m.records[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	from := r.Status
	r.LastCheckedAt = now

	if probeErr == nil {
		r.ConsecutiveFailures = 0
		r.recordOutcome("")
		switch r.Status {
		case StatusUnknown, StatusDegraded, StatusHealthy:
			r.transition(StatusHealthy, now)
		}
	} else {
		r.ConsecutiveFailures++
		classified := errs.Classify(errs.Signal{Err: probeErr, Operation: "validate"})
		r.recordOutcome(classified.Error())
		hard := hardFailKinds[classified.Kind]

		switch r.Status {
		case StatusUnknown:
			if hard {
				r.transition(StatusFailed, now)
			}
		case StatusHealthy:
			r.transition(StatusDegraded, now)
		case StatusDegraded:
			if hard {
				r.transition(StatusFailed, now)
			}
		}
	}
	to := r.Status
	m.mu.Unlock()

	if from != to && m.onTransition != nil {
		m.onTransition(id, from, to)
	}
}

// Repair attempts to rebind id's underlying transport via the factory's
// create path (spec §4.2: drop transport, create, rebind preserving id).
func (m *Manager) Repair(ctx context.Context, id string) error {
	unlock := m.locks.Lock(id)
	defer unlock()

	conn, ok := m.connection(id)
	if !ok {
		return errs.New(errs.KindPoolError, "repair called for unregistered connection").WithConnectionID(id)
	}

	now := time.Now()
	m.mu.Lock()
	r, ok := m.records[id]
	if !ok {
		m.mu.Unlock()
		return errs.New(errs.KindPoolError, "repair called for unregistered connection").WithConnectionID(id)
	}
	from := r.Status
	r.transition(StatusRepairing, now)
	r.LastRepairAttemptAt = now
	m.mu.Unlock()
	if from != StatusRepairing && m.onTransition != nil {
		m.onTransition(id, from, StatusRepairing)
	}

	err := m.factory.Rebind(ctx, conn)

	now = time.Now()
	m.mu.Lock()
	r = m.records[id]
	from = r.Status
	if err == nil {
		r.RepairAttempts = 0
		r.ConsecutiveFailures = 0
		r.recordOutcome("")
		r.transition(StatusHealthy, now)
	} else {
		r.RepairAttempts++
		r.recordOutcome(err.Error())
		r.transition(StatusFailed, now)
	}
	to := r.Status
	attempts := r.RepairAttempts
	terminal := err != nil && attempts >= m.cfg.MaxRepairAttempts
	m.mu.Unlock()

	if from != to && m.onTransition != nil {
		m.onTransition(id, from, to)
	}

	if terminal {
		m.logger.Warn().Str("connection_id", id).Int("attempts", attempts).
			Msg("connection exhausted repair attempts, eligible for eviction")
	}
	return err
}

// IsTerminal reports whether id's record is Failed with repair attempts
// exhausted. The maintenance cycle no longer attempts repair on such a
// record; nothing in this package removes it.
func (m *Manager) IsTerminal(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[id]
	if !ok {
		return false
	}
	return r.Status == StatusFailed && r.RepairAttempts >= m.cfg.MaxRepairAttempts
}

// RunMaintenanceCycle runs one pass of the maintenance cycle (spec §4.2):
// validate every stale connection, then attempt repair on every eligible
// Failed record. It returns the number of connections successfully
// repaired this cycle. A single-flight guard makes concurrent calls to
// RunMaintenanceCycle safe; an overlapping call is a no-op that returns
// immediately.
func (m *Manager) RunMaintenanceCycle(ctx context.Context, staleAfter time.Duration) (repaired int, ran bool) {
	if !atomic.CompareAndSwapInt32(&m.maintenanceRunning, 0, 1) {
		return 0, false
	}
	defer atomic.StoreInt32(&m.maintenanceRunning, 0)

	now := time.Now()
	m.mu.RLock()
	staleIDs := make([]string, 0)
	repairIDs := make([]string, 0)
	for id, r := range m.records {
		switch r.Status {
		case StatusRepairing:
			continue
		case StatusFailed:
			if r.RepairAttempts < m.cfg.MaxRepairAttempts && now.Sub(r.LastRepairAttemptAt) >= m.cfg.RepairBackoff {
				repairIDs = append(repairIDs, id)
			}
		default:
			if now.Sub(r.LastCheckedAt) >= staleAfter {
				staleIDs = append(staleIDs, id)
			}
		}
	}
	m.mu.RUnlock()

	for _, id := range staleIDs {
		_ = m.Validate(ctx, id)
	}
	for _, id := range repairIDs {
		if err := m.Repair(ctx, id); err == nil {
			repaired++
		}
	}
	return repaired, true
}

// Start launches the background maintenance loop at the given interval
// (spec §4.2 derives this as healthCheckIntervalMs). A missed tick is
// skipped, not queued, via RunMaintenanceCycle's single-flight guard.
func (m *Manager) Start(interval time.Duration) {
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
				repaired, ran := m.RunMaintenanceCycle(ctx, interval)
				if ran && repaired > 0 {
					m.logger.Info().Int("repaired", repaired).Msg("maintenance cycle repaired connections")
				}
			}
		}
	}()
}

// Stop cancels the maintenance loop and waits for it to exit.
func (m *Manager) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
}
