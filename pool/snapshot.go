package pool

import (
	"sync/atomic"
	"time"
)

// Snapshot is the pool's live view of its own state, intended to feed
// the metrics surface's connectionPool/performance/queue groups
// (spec §6/§8.1). Every field is computed from a running counter or
// stat at call time; nothing here is a value set once and left stale.
type Snapshot struct {
	Active int
	Idle   int
	Total  int

	Created             int64
	Destroyed           int64
	Repaired            int64
	BorrowTimeouts      int64
	AuthenticationErrors int64
	Invalidations       int64
	Borrows             int64
	Returns             int64

	AvgBorrowWaitMs float64
	MaxBorrowWaitMs float64
	P95BorrowWaitMs float64
	WaitCount       int64
	TotalWaitMs     float64

	QueueDepth int
	MaxTotal   int
	MinIdle    int

	CapturedAt time.Time
}

// Metrics returns a Snapshot of the pool's current state. Safe to call
// concurrently with Borrow/Return/Invalidate.
func (p *Pool) Metrics() Snapshot {
	p.mu.Lock()
	active, idle, total := len(p.active), len(p.idle), p.total
	queueDepth := len(p.waiters)
	p.mu.Unlock()

	return Snapshot{
		Active: active,
		Idle:   idle,
		Total:  total,

		Created:              atomic.LoadInt64(&p.counters.created),
		Destroyed:            atomic.LoadInt64(&p.counters.destroyed),
		Repaired:             atomic.LoadInt64(&p.counters.repaired),
		BorrowTimeouts:       atomic.LoadInt64(&p.counters.borrowTimeouts),
		AuthenticationErrors: atomic.LoadInt64(&p.counters.authenticationErrors),
		Invalidations:        atomic.LoadInt64(&p.counters.invalidations),
		Borrows:              atomic.LoadInt64(&p.counters.borrows),
		Returns:              atomic.LoadInt64(&p.counters.returns),

		AvgBorrowWaitMs: p.borrowWait.avgMs(),
		MaxBorrowWaitMs: p.borrowWait.maxMs(),
		P95BorrowWaitMs: p.borrowWait.p95Ms(),
		WaitCount:       atomic.LoadInt64(&p.borrowWait.count),
		TotalWaitMs:     float64(atomic.LoadInt64(&p.borrowWait.sumNs)) / float64(time.Millisecond),

		QueueDepth: queueDepth,
		MaxTotal:   p.cfg.MaxTotal,
		MinIdle:    p.cfg.MinIdle,

		CapturedAt: time.Now(),
	}
}
