/*
Package pool implements the Pool Manager (spec §4.4, component C4): a
bounded container of FTP control connections exposing borrow, return,
invalidate, clear, refresh-idle, shutdown, and a metrics snapshot.
*/
package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/AlfredDev/ftppool/errs"
	"github.com/AlfredDev/ftppool/ftpclient"
	"github.com/AlfredDev/ftppool/health"
	"github.com/AlfredDev/ftppool/recovery"
)

// Config bounds pool capacity and blocking behavior (spec §3/§6).
type Config struct {
	MinIdle int
	MaxTotal int
	MaxWait  time.Duration
}

// factory is the narrow capability the pool needs to create and close
// connections (spec §9 narrow-capability reshaping, applied to C1).
type factory interface {
	Create(ctx context.Context) (*ftpclient.Connection, error)
	Close(conn *ftpclient.Connection)
}

// healthOracle is the narrow capability the pool needs from the Health
// Manager: register/unregister, the status oracle, a transition hook so
// the pool's repaired counter reflects real repair outcomes instead of
// guessing at them independently, and Repair itself — the capability
// recovery.ApplyStrategy needs to carry out the reconnect-with-backoff
// strategy against a connection Borrow finds unhealthy (spec §4.5: "...
// invokes the Health Manager's repair").
type healthOracle interface {
	Register(conn *ftpclient.Connection)
	Unregister(id string)
	Status(id string) (health.Status, bool)
	OnTransition(cb func(id string, from, to health.Status))
	Repair(ctx context.Context, id string) error
}

// activityRecorder is the narrow capability the pool needs from the
// Keep-Alive Driver.
type activityRecorder interface {
	Register(id string)
	Unregister(id string)
	RecordActivity(id string)
}

// waiter is a single FIFO-queued borrower waiting for capacity.
type waiter chan *ftpclient.Connection

// Pool is the Pool Manager (C4).
type Pool struct {
	mu sync.Mutex

	cfg       Config
	factory   factory
	health    healthOracle
	keepAlive activityRecorder
	executor  *recovery.Executor
	logger    zerolog.Logger

	idle    []*ftpclient.Connection
	active  map[string]*ftpclient.Connection
	total   int
	waiters []waiter

	closed int32

	counters   counters
	borrowWait latencyStats

	replenishBaseDelay  time.Duration
	replenishMaxRetries int
}

// New builds a Pool Manager. minIdle ≤ maxTotal must already be
// validated by the caller's configuration layer (spec §4.4 Capacities).
// ex is C5's execute-with-recovery wrapper: every dial Borrow/acquire
// makes runs through ex under the "connection" circuit breaker (spec
// §2 "hands it to C5's retry wrapper for validation... then returns
// it"), so a saturated run of dial failures trips the breaker and
// fails fast instead of hammering a server that is already down.
// replenishBaseDelay/replenishMaxRetries size the backoff policy the
// minIdle replenishment worker uses; callers pass the same
// RetryBaseDelay/MaxRetries values config.Config already exposes for
// recovery.Executor.
func New(cfg Config, f factory, h healthOracle, ka activityRecorder, ex *recovery.Executor, replenishBaseDelay time.Duration, replenishMaxRetries int, logger zerolog.Logger) *Pool {
	p := &Pool{
		cfg:                 cfg,
		factory:             f,
		health:              h,
		keepAlive:           ka,
		executor:            ex,
		logger:              logger.With().Str("component", "pool_manager").Logger(),
		active:              make(map[string]*ftpclient.Connection),
		replenishBaseDelay:  replenishBaseDelay,
		replenishMaxRetries: replenishMaxRetries,
	}
	h.OnTransition(func(id string, from, to health.Status) {
		if from == health.StatusRepairing && to == health.StatusHealthy {
			p.counters.incr(&p.counters.repaired)
		}
	})
	return p
}

// WarmUp creates minIdle connections up front (spec §8 scenario 1:
// "warm-up"). Call once, before serving borrows.
func (p *Pool) WarmUp(ctx context.Context) error {
	for i := 0; i < p.cfg.MinIdle; i++ {
		conn, err := p.factory.Create(ctx)
		if err != nil {
			return err
		}
		p.registerNew(conn)
		p.mu.Lock()
		p.idle = append(p.idle, conn)
		p.total++
		p.mu.Unlock()
	}
	return nil
}

// registerNew wires a freshly created connection into health and
// keep-alive tracking and bumps the created counter. It does not touch
// idle/active/total — callers decide where the connection lands.
func (p *Pool) registerNew(conn *ftpclient.Connection) {
	p.health.Register(conn)
	p.keepAlive.Register(conn.ID())
	p.counters.incr(&p.counters.created)
}

// Borrow hands out a Healthy connection, creating or waiting for one as
// needed (spec §4.4 Borrow semantics).
func (p *Pool) Borrow(ctx context.Context) (*ftpclient.Connection, error) {
	if atomic.LoadInt32(&p.closed) == 1 {
		return nil, errs.New(errs.KindPoolClosed, "pool is shut down")
	}

	start := time.Now()
	conn, err := p.acquire(ctx)
	p.borrowWait.observe(time.Since(start))
	if err != nil {
		return nil, err
	}

	conn, err = p.ensureHealthy(ctx, conn, false)
	if err != nil {
		return nil, err
	}

	conn.MarkBorrowed()
	p.keepAlive.RecordActivity(conn.ID())
	p.counters.incr(&p.counters.borrows)

	p.mu.Lock()
	p.active[conn.ID()] = conn
	p.mu.Unlock()

	return conn, nil
}

// ensureHealthy implements spec §4.4 Borrow step 3: ask the Health
// Manager for the cached status for conn; if it is not Healthy, run
// C5's fixed recovery-strategy table (recovery.ApplyStrategy) against
// it before giving up on it, since an unhealthy-but-not-yet-repaired
// connection is exactly the "Failed → Repairing → Healthy" case spec
// §4.2 describes, not necessarily a dead one. If the connection is
// still not Healthy after that attempt, it is invalidated and retried
// once (retried=false → true); a second unhealthy selection fails with
// NoHealthyConnection, per spec §4.4's bounded-retry replacement for
// the source's unbounded recursion.
func (p *Pool) ensureHealthy(ctx context.Context, conn *ftpclient.Connection, retried bool) (*ftpclient.Connection, error) {
	status, ok := p.health.Status(conn.ID())
	if ok && status == health.StatusHealthy {
		return conn, nil
	}

	_ = recovery.ApplyStrategy(ctx, p.health, conn.ID(), errs.KindConnectionError)

	status, ok = p.health.Status(conn.ID())
	if ok && status == health.StatusHealthy {
		return conn, nil
	}

	p.invalidate(conn)
	if retried {
		return nil, errs.New(errs.KindNoHealthyConnection, "no healthy connection available after bounded retry")
	}

	next, err := p.acquire(ctx)
	if err != nil {
		return nil, err
	}
	return p.ensureHealthy(ctx, next, true)
}

// acquire obtains a connection from the idle set, creates a fresh one
// if under capacity, or blocks up to MaxWait for a returned entry
// (spec §4.4 Borrow steps 1-2).
func (p *Pool) acquire(ctx context.Context) (*ftpclient.Connection, error) {
	p.mu.Lock()
	if atomic.LoadInt32(&p.closed) == 1 {
		p.mu.Unlock()
		return nil, errs.New(errs.KindPoolClosed, "pool is shut down")
	}
	if n := len(p.idle); n > 0 {
		conn := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return conn, nil
	}
	if p.total < p.cfg.MaxTotal {
		p.total++
		p.mu.Unlock()

		conn, err := p.createThroughRecovery(ctx)
		if err != nil {
			p.mu.Lock()
			p.total--
			p.mu.Unlock()
			if kind, ok := errs.Of(err); ok && kind == errs.KindInvalidCredentials {
				p.counters.incr(&p.counters.authenticationErrors)
			}
			return nil, err
		}
		p.registerNew(conn)
		return conn, nil
	}

	w := make(waiter, 1)
	p.waiters = append(p.waiters, w)
	p.mu.Unlock()

	select {
	case conn, ok := <-w:
		if !ok {
			return nil, errs.New(errs.KindPoolClosed, "pool is shut down")
		}
		return conn, nil
	case <-ctx.Done():
		p.removeWaiter(w)
		if conn := drainWaiter(w); conn != nil {
			p.handBack(conn)
		}
		return nil, ctx.Err()
	case <-time.After(p.cfg.MaxWait):
		p.removeWaiter(w)
		p.counters.incr(&p.counters.borrowTimeouts)
		if conn := drainWaiter(w); conn != nil {
			p.handBack(conn)
		}
		return nil, errs.New(errs.KindPoolExhausted, "timed out waiting for an available connection")
	}
}

// createThroughRecovery dials a fresh connection under C5's "connection"
// circuit breaker with classify-then-retry semantics (spec §4.5,
// §2 "hands it to C5's retry wrapper"). A non-recoverable failure (e.g.
// InvalidCredentials) propagates after exactly one attempt; a
// recoverable one (connection refused/timeout/closed) is retried with
// backoff up to the executor's configured ceiling before propagating.
func (p *Pool) createThroughRecovery(ctx context.Context) (*ftpclient.Connection, error) {
	var conn *ftpclient.Connection
	err := p.executor.Run(ctx, recovery.OpConnection, func(ctx context.Context, attempt int) error {
		c, err := p.factory.Create(ctx)
		if err != nil {
			return err
		}
		conn = c
		return nil
	})
	return conn, err
}

// drainWaiter reclaims a connection that landed in w in the narrow
// window between the timeout/cancellation firing and removeWaiter
// taking it out of the queue, so a handBack racing the timeout never
// strands a connection in an abandoned channel.
func drainWaiter(w waiter) *ftpclient.Connection {
	select {
	case conn := <-w:
		return conn
	default:
		return nil
	}
}

func (p *Pool) removeWaiter(w waiter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, cand := range p.waiters {
		if cand == w {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			return
		}
	}
}

// handBack delivers conn to the first FIFO waiter if one is queued,
// otherwise returns it to the idle set.
func (p *Pool) handBack(conn *ftpclient.Connection) {
	p.mu.Lock()
	if len(p.waiters) > 0 {
		w := p.waiters[0]
		p.waiters = p.waiters[1:]
		p.mu.Unlock()
		w <- conn
		return
	}
	p.idle = append(p.idle, conn)
	p.mu.Unlock()
}

// Return hands a borrowed connection back (spec §4.4 Return semantics).
// Returns from an unknown handle are logged and ignored.
func (p *Pool) Return(conn *ftpclient.Connection) {
	if conn == nil {
		return
	}
	p.mu.Lock()
	if _, ok := p.active[conn.ID()]; !ok {
		p.mu.Unlock()
		p.logger.Warn().Str("connection_id", conn.ID()).Msg("return of unknown connection ignored")
		return
	}
	delete(p.active, conn.ID())
	p.mu.Unlock()
	p.counters.incr(&p.counters.returns)

	if atomic.LoadInt32(&p.closed) == 1 {
		p.destroy(conn)
		return
	}

	status, ok := p.health.Status(conn.ID())
	if !ok || status != health.StatusHealthy {
		p.invalidate(conn)
		return
	}
	p.handBack(conn)
}

// Invalidate removes conn from the pool and closes it (spec §4.4
// Invalidate). Exported for callers (e.g. recovery) that determine a
// borrowed connection is unusable mid-operation.
func (p *Pool) Invalidate(conn *ftpclient.Connection) {
	if conn == nil {
		return
	}
	p.mu.Lock()
	delete(p.active, conn.ID())
	p.mu.Unlock()
	p.invalidate(conn)
}

// invalidate is the internal destroy-and-replenish path shared by
// Return (unhealthy) and Invalidate.
func (p *Pool) invalidate(conn *ftpclient.Connection) {
	p.counters.incr(&p.counters.invalidations)
	p.destroy(conn)
	p.wakeWaiterIfRoom()
	p.maybeReplenish()
}

// destroy closes conn and unwinds its bookkeeping. It never re-enters
// the idle set or waiter queue.
func (p *Pool) destroy(conn *ftpclient.Connection) {
	p.factory.Close(conn)
	p.health.Unregister(conn.ID())
	p.keepAlive.Unregister(conn.ID())

	p.mu.Lock()
	p.total--
	p.mu.Unlock()

	p.counters.incr(&p.counters.destroyed)
}

// wakeWaiterIfRoom tries to satisfy the next FIFO waiter by creating a
// fresh connection, now that destroying an entry freed total capacity.
func (p *Pool) wakeWaiterIfRoom() {
	p.mu.Lock()
	if len(p.waiters) == 0 || p.total >= p.cfg.MaxTotal {
		p.mu.Unlock()
		return
	}
	w := p.waiters[0]
	p.waiters = p.waiters[1:]
	p.total++
	p.mu.Unlock()

	go func() {
		conn, err := p.createThroughRecovery(context.Background())
		if err != nil {
			p.mu.Lock()
			p.total--
			p.mu.Unlock()
			return
		}
		p.registerNew(conn)
		select {
		case w <- conn:
		default:
			p.handBack(conn)
		}
	}()
}

// RefreshIdle validates every idle entry in place, destroying and
// replacing any that fail (spec §4.4 Refresh-idle).
func (p *Pool) RefreshIdle(ctx context.Context, validate func(ctx context.Context, id string) error) {
	p.mu.Lock()
	idleCopy := append([]*ftpclient.Connection(nil), p.idle...)
	p.mu.Unlock()

	for _, conn := range idleCopy {
		if err := validate(ctx, conn.ID()); err != nil {
			p.mu.Lock()
			for i, c := range p.idle {
				if c == conn {
					p.idle = append(p.idle[:i], p.idle[i+1:]...)
					break
				}
			}
			p.mu.Unlock()
			p.destroy(conn)
		}
	}
	p.maybeReplenish()
}

// Clear destroys all idle entries; active entries are destroyed on
// their next return (spec §4.4 Clear).
func (p *Pool) Clear() {
	p.mu.Lock()
	toDestroy := p.idle
	p.idle = nil
	p.mu.Unlock()

	for _, conn := range toDestroy {
		p.destroy(conn)
	}
}

// Shutdown is one-shot and idempotent (spec §4.4 Shutdown). It stops
// accepting new borrows, cancels pending waiters with PoolClosed, and
// destroys every idle entry. Active entries are closed as they are
// returned.
func (p *Pool) Shutdown(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&p.closed, 0, 1) {
		return nil
	}

	p.mu.Lock()
	pending := p.waiters
	p.waiters = nil
	idleCopy := p.idle
	p.idle = nil
	p.mu.Unlock()

	for _, w := range pending {
		close(w)
	}
	for _, conn := range idleCopy {
		p.destroy(conn)
	}
	return nil
}

// Closed reports whether Shutdown has been called, for the admin HTTP
// surface's /healthz endpoint (spec §4.6).
func (p *Pool) Closed() bool {
	return atomic.LoadInt32(&p.closed) == 1
}

// Counts returns (active, idle, total) for the metrics surface.
func (p *Pool) Counts() (active, idle, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active), len(p.idle), p.total
}
