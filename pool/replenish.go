package pool

import (
	"context"
	"sync/atomic"

	"github.com/cenkalti/backoff/v4"

	"github.com/AlfredDev/ftppool/ftpclient"
)

// maybeReplenish tops the idle set back up to MinIdle after a
// destroy/invalidate shrank it, retrying creation failures with
// exponential backoff up to MaxRetries (spec §4.4 "Creation failures
// are retried with exponential backoff up to a ceiling"). Each
// replacement is created on its own goroutine, so Return/Invalidate
// never block on a dial.
func (p *Pool) maybeReplenish() {
	p.mu.Lock()
	deficit := p.cfg.MinIdle - (len(p.idle) + len(p.active))
	room := p.cfg.MaxTotal - p.total
	closed := atomic.LoadInt32(&p.closed) == 1
	p.mu.Unlock()

	if closed || deficit <= 0 || room <= 0 {
		return
	}
	if deficit > room {
		deficit = room
	}

	for i := 0; i < deficit; i++ {
		p.mu.Lock()
		if p.total >= p.cfg.MaxTotal {
			p.mu.Unlock()
			return
		}
		p.total++
		p.mu.Unlock()
		go p.replenishOne()
	}
}

// replenishOne creates a single replacement connection with bounded
// exponential backoff, releasing the total-capacity slot it reserved
// if every attempt fails.
func (p *Pool) replenishOne() {
	conn, err := p.createWithBackoff(context.Background())
	if err != nil {
		p.mu.Lock()
		p.total--
		p.mu.Unlock()
		p.logger.Warn().Err(err).Msg("replenishment exhausted retries, giving up on this slot")
		return
	}

	if atomic.LoadInt32(&p.closed) == 1 {
		p.registerNew(conn)
		p.destroy(conn)
		return
	}
	p.registerNew(conn)
	p.handBack(conn)
}

// createWithBackoff wraps Factory.Create in cenkalti/backoff/v4's
// exponential policy, bounded to cfg.MaxRetries additional attempts
// beyond the first (spec §4.4). Unlike recovery.Executor, this call
// site has no circuit breaker or error classification to interleave —
// it is exactly the single escalating wait sequence the library
// models, so it is used directly instead of hand-rolled.
func (p *Pool) createWithBackoff(ctx context.Context) (*ftpclient.Connection, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = p.replenishBaseDelay
	bounded := backoff.WithMaxRetries(policy, uint64(p.replenishMaxRetries))

	var conn *ftpclient.Connection
	operation := func() error {
		c, err := p.factory.Create(ctx)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(bounded, ctx)); err != nil {
		return nil, err
	}
	return conn, nil
}
