/*
Package recovery implements the Error Classifier & Recovery layer (spec
§4.5, component C5): a generic execute-with-recovery wrapper combining
three named circuit breakers with backoff retry, plus the fixed
recovery-strategy lookup table per error kind.
*/
package recovery

import (
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/AlfredDev/ftppool/config"
)

// OperationKind names one of the three circuit breakers spec §4.5
// requires (connection, transfers, file-operations).
type OperationKind string

const (
	OpConnection     OperationKind = "connection"
	OpTransfers      OperationKind = "transfers"
	OpFileOperations OperationKind = "file-operations"
)

// opCounters tracks per-kind attempt/failure totals for the metrics
// surface's operationTypes group (spec §8.1); the breaker itself only
// knows its current state, not a lifetime tally.
type opCounters struct {
	attempts int64
	failures int64
}

// Breakers owns the three independently tripping circuit breakers.
type Breakers struct {
	byKind   map[OperationKind]*gobreaker.CircuitBreaker
	counters map[OperationKind]*opCounters
	logger   zerolog.Logger
}

// NewBreakers builds the three named breakers from pool configuration
// (spec §4.5 step 5: opens on a failure-window threshold, half-opens
// after a cool-down, closes on first success or re-opens on first
// failure — exactly gobreaker's state machine).
func NewBreakers(cfg *config.Config, logger zerolog.Logger) *Breakers {
	logger = logger.With().Str("component", "circuit_breakers").Logger()

	b := &Breakers{
		byKind:   make(map[OperationKind]*gobreaker.CircuitBreaker),
		counters: make(map[OperationKind]*opCounters),
		logger:   logger,
	}
	for _, kind := range []OperationKind{OpConnection, OpTransfers, OpFileOperations} {
		k := kind
		b.counters[k] = &opCounters{}
		b.byKind[k] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        string(k),
			MaxRequests: 1,
			Interval:    0,
			Timeout:     cfg.CircuitCooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.CircuitFailureThreshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
					Msg("circuit breaker state change")
			},
		})
	}
	return b
}

// breaker returns the named circuit breaker, defaulting to the
// connection breaker for any unrecognized kind.
func (b *Breakers) breaker(kind OperationKind) *gobreaker.CircuitBreaker {
	if cb, ok := b.byKind[kind]; ok {
		return cb
	}
	return b.byKind[OpConnection]
}

// State reports the current state name of the named breaker, for the
// metrics surface.
func (b *Breakers) State(kind OperationKind) string {
	return b.breaker(kind).State().String()
}

// recordAttempt and recordFailure are called by Executor.Run around
// each op invocation to maintain the lifetime tallies Stats reports.
func (b *Breakers) recordAttempt(kind OperationKind) {
	atomic.AddInt64(&b.opCounters(kind).attempts, 1)
}

func (b *Breakers) recordFailure(kind OperationKind) {
	atomic.AddInt64(&b.opCounters(kind).failures, 1)
}

func (b *Breakers) opCounters(kind OperationKind) *opCounters {
	if c, ok := b.counters[kind]; ok {
		return c
	}
	return b.counters[OpConnection]
}

// OpStats is the attempt/failure tally and current breaker state for
// one operation kind, the unit the metrics surface's operationTypes
// group is built from.
type OpStats struct {
	Attempts int64
	Failures int64
	State    string
}

// Stats reports the lifetime attempt/failure counts and current state
// for every named breaker, keyed by kind (spec §8.1 operationTypes).
func (b *Breakers) Stats() map[OperationKind]OpStats {
	out := make(map[OperationKind]OpStats, len(b.byKind))
	for kind := range b.byKind {
		c := b.counters[kind]
		out[kind] = OpStats{
			Attempts: atomic.LoadInt64(&c.attempts),
			Failures: atomic.LoadInt64(&c.failures),
			State:    b.State(kind),
		}
	}
	return out
}
