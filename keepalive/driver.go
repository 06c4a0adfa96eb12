/*
Package keepalive implements the Keep-Alive Driver (spec §4.3, component
C3): an idle-activity tracker independent of pool membership, and a
periodic sweep that probes connections nearing the server's idle timeout.
*/
package keepalive

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/AlfredDev/ftppool/health"
)

// Record is the per-connection keep-alive bookkeeping (spec §3 Data
// Model): last-activity timestamp, last-probe timestamp, and probe
// counters. Idle time is derived, never stored.
type Record struct {
	ConnectionID   string
	LastActivity   time.Time
	LastProbe      time.Time
	ProbesSent     int
	ProbesSucceeded int
	ProbesFailed   int
}

// IdleTime reports how long it has been since this connection last saw
// activity, as of now.
func (r Record) IdleTime(now time.Time) time.Duration {
	return now.Sub(r.LastActivity)
}

// prober is the narrow capability the driver needs from the Health
// Manager: a status check and a keep-alive probe. Defined here rather
// than depending on *health.Manager's full surface, so this package
// stays testable with a fake and the two components stay decoupled
// from each other's internals (spec §9's narrow-capability reshaping).
type prober interface {
	Status(id string) (status health.Status, ok bool)
	KeepAliveProbe(ctx context.Context, id string) error
}

// Driver is the Keep-Alive Driver (C3). It holds a
// connectionId → Record map distinct from the pool's idle/active
// bookkeeping.
type Driver struct {
	mu      sync.RWMutex
	records map[string]*Record

	prober prober
	logger zerolog.Logger

	interval time.Duration
	sweeping int32

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Driver that sweeps at the given interval (spec §4.3:
// a record is eligible once idle time ≥ keepAliveInterval/2).
func New(p prober, interval time.Duration, logger zerolog.Logger) *Driver {
	return &Driver{
		records:  make(map[string]*Record),
		prober:   p,
		interval: interval,
		logger:   logger.With().Str("component", "keepalive_driver").Logger(),
	}
}

// Register starts tracking id, with activity stamped to now.
func (d *Driver) Register(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.records[id] = &Record{ConnectionID: id, LastActivity: time.Now()}
}

// Unregister stops tracking id. No-op for unknown ids.
func (d *Driver) Unregister(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.records, id)
}

// RecordActivity stamps id's last-activity time to now. Called by the
// Pool Manager on every borrow and return (spec §4.3).
func (d *Driver) RecordActivity(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r, ok := d.records[id]; ok {
		r.LastActivity = time.Now()
	}
}

// Snapshot returns a value copy of id's Record, if tracked.
func (d *Driver) Snapshot(id string) (Record, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.records[id]
	if !ok {
		return Record{}, false
	}
	return *r, true
}

// Count returns the number of connections currently tracked.
func (d *Driver) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.records)
}

// Sweep scans every registered record and probes the ones eligible:
// idle time ≥ interval/2, and whose connection is in a usable,
// non-transitional health state (spec §4.3). It is single-flight; an
// overlapping call is a no-op. It returns how many probes were sent.
func (d *Driver) Sweep(ctx context.Context) (sent int, ran bool) {
	if !atomic.CompareAndSwapInt32(&d.sweeping, 0, 1) {
		return 0, false
	}
	defer atomic.StoreInt32(&d.sweeping, 0)

	threshold := d.interval / 2
	now := time.Now()

	d.mu.RLock()
	eligible := make([]string, 0)
	for id, r := range d.records {
		if r.IdleTime(now) >= threshold {
			eligible = append(eligible, id)
		}
	}
	d.mu.RUnlock()

	for _, id := range eligible {
		status, ok := d.prober.Status(id)
		if !ok || (status != health.StatusHealthy && status != health.StatusDegraded) {
			continue
		}
		err := d.prober.KeepAliveProbe(ctx, id)

		d.mu.Lock()
		if r, ok := d.records[id]; ok {
			r.LastProbe = time.Now()
			r.ProbesSent++
			if err == nil {
				r.ProbesSucceeded++
				r.LastActivity = r.LastProbe
			} else {
				r.ProbesFailed++
			}
		}
		d.mu.Unlock()
		sent++
	}
	return sent, true
}

// Start launches the background sweep loop at the configured interval.
// A missed tick is skipped, not queued (Sweep's single-flight guard).
func (d *Driver) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.done = make(chan struct{})

	go func() {
		defer close(d.done)
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if sent, ran := d.Sweep(ctx); ran && sent > 0 {
					d.logger.Debug().Int("probes_sent", sent).Msg("keep-alive sweep")
				}
			}
		}
	}()
}

// Stop cancels the sweep loop and waits for it to exit.
func (d *Driver) Stop() {
	if d.cancel == nil {
		return
	}
	d.cancel()
	<-d.done
}
