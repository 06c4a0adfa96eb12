package metrics

import (
	"sync"
	"time"

	"github.com/AlfredDev/ftppool/health"
	"github.com/AlfredDev/ftppool/pool"
	"github.com/AlfredDev/ftppool/recovery"
)

// sample is the previous reading a Collector diffs against to derive
// the throughput group's per-minute rates (spec §8.1: "borrowsPerMinute
// ... computed over a trailing window, not a single cumulative total").
type sample struct {
	at      time.Time
	borrows int64
	returns int64
}

// Collector assembles a Snapshot from the pool, health manager and
// circuit breakers' live state. It is the single place that reconciles
// three independently-owned subsystems into the metrics schema (spec
// §6/§8.1), mirroring the way the teacher's Metrics registry is the one
// place that reads provider/pool state in observability/metrics.go.
type Collector struct {
	pool     *pool.Pool
	health   *health.Manager
	breakers *recovery.Breakers

	mu   sync.Mutex
	prev sample

	custom map[string]float64
}

// NewCollector builds a Collector bound to the pool's live subsystems.
func NewCollector(p *pool.Pool, h *health.Manager, b *recovery.Breakers) *Collector {
	return &Collector{
		pool:     p,
		health:   h,
		breakers: b,
		custom:   make(map[string]float64),
	}
}

// SetCustom records a free-form gauge under the snapshot's custom group
// (spec §8.1: "empty by default, a home for anything the fixed groups
// above don't cover").
func (c *Collector) SetCustom(name string, value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.custom[name] = value
}

// Snapshot assembles the current Metrics Snapshot.
func (c *Collector) Snapshot() Snapshot {
	ps := c.pool.Metrics()
	hc := c.health.Counts()
	now := time.Now()

	return Snapshot{
		ConnectionPool: ConnectionPoolGroup{
			IdleConnections:      ps.Idle,
			ActiveConnections:    ps.Active,
			TotalConnections:     ps.Total,
			ConnectionsCreated:   ps.Created,
			ConnectionsDestroyed: ps.Destroyed,
			ConnectionsRepaired:  ps.Repaired,
		},
		Performance: PerformanceGroup{
			AvgBorrowLatencyMs: ps.AvgBorrowWaitMs,
			P95BorrowLatencyMs: ps.P95BorrowWaitMs,
		},
		Throughput: c.throughput(ps.Borrows, ps.Returns, now),
		Queue: QueueGroup{
			WaitingBorrowers: ps.QueueDepth,
		},
		WaitTime: WaitTimeGroup{
			MaxWaitTimeMs:   ps.MaxBorrowWaitMs,
			TotalWaitTimeMs: ps.TotalWaitMs,
			WaitCount:       ps.WaitCount,
		},
		Resources: ResourcesGroup{
			MaxTotal: ps.MaxTotal,
			MinIdle:  ps.MinIdle,
		},
		Health: HealthGroup{
			HealthyCount:   hc[health.StatusHealthy],
			DegradedCount:  hc[health.StatusDegraded],
			FailedCount:    hc[health.StatusFailed],
			RepairingCount: hc[health.StatusRepairing],
			UnknownCount:   hc[health.StatusUnknown],
		},
		OperationTypes: c.operationTypes(),
		Custom:         c.customCopy(),
	}
}

// throughput derives borrows/returns per minute from the delta against
// the previous sample (spec §8.1: "a trailing rate, not a single
// cumulative total"). The first call after construction has nothing to
// diff against and reports zero.
func (c *Collector) throughput(borrows, returns int64, now time.Time) ThroughputGroup {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.prev
	c.prev = sample{at: now, borrows: borrows, returns: returns}

	if prev.at.IsZero() {
		return ThroughputGroup{}
	}
	elapsedMin := now.Sub(prev.at).Minutes()
	if elapsedMin <= 0 {
		return ThroughputGroup{}
	}
	return ThroughputGroup{
		BorrowsPerMinute: float64(borrows-prev.borrows) / elapsedMin,
		ReturnsPerMinute: float64(returns-prev.returns) / elapsedMin,
	}
}

func (c *Collector) operationTypes() map[string]OperationTypeStats {
	stats := c.breakers.Stats()
	out := make(map[string]OperationTypeStats, len(stats))
	for kind, s := range stats {
		out[string(kind)] = OperationTypeStats{
			Attempts: s.Attempts,
			Failures: s.Failures,
			State:    s.State,
		}
	}
	return out
}

func (c *Collector) customCopy() map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]float64, len(c.custom))
	for k, v := range c.custom {
		out[k] = v
	}
	return out
}
