package recovery

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/AlfredDev/ftppool/config"
	"github.com/AlfredDev/ftppool/errs"
)

// Operation is the generic retryable unit of work the recovery wrapper
// executes (spec §4.5). It receives the current attempt number
// (1-indexed) so callers can annotate logs/metrics per attempt.
type Operation func(ctx context.Context, attempt int) error

// Executor runs operations through the named circuit breakers with
// classify-then-retry semantics (spec §4.5 "Execute-with-recovery").
type Executor struct {
	breakers   *Breakers
	maxRetries int
	baseDelay  time.Duration
	jitterFrac float64
	logger     zerolog.Logger
}

// NewExecutor builds an Executor bound to cfg's retry/backoff settings.
func NewExecutor(breakers *Breakers, cfg *config.Config, logger zerolog.Logger) *Executor {
	return &Executor{
		breakers:   breakers,
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.RetryBaseDelay,
		jitterFrac: cfg.RetryJitterFraction,
		logger:     logger.With().Str("component", "recovery_executor").Logger(),
	}
}

// Run executes op under the named breaker with retry (spec §4.5 steps
// 1-5). attempts = maxRetries+1 total tries; maxRetries=0 performs
// exactly one attempt (spec §8 boundary behavior).
func (e *Executor) Run(ctx context.Context, kind OperationKind, op Operation) error {
	cb := e.breakers.breaker(kind)

	var lastErr error
	for attempt := 1; attempt <= e.maxRetries+1; attempt++ {
		e.breakers.recordAttempt(kind)
		_, err := cb.Execute(func() (interface{}, error) {
			return nil, op(ctx, attempt)
		})

		if err == nil {
			return nil
		}
		e.breakers.recordFailure(kind)

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return errs.New(errs.KindCircuitOpen, "circuit breaker open, failing fast")
		}

		classified := errs.Classify(errs.Signal{Err: err, Operation: string(kind)})
		lastErr = classified

		if !classified.Recoverable() {
			return classified
		}
		if attempt > e.maxRetries {
			break
		}

		delay := e.backoffDelay(attempt)
		e.logger.Debug().Str("kind", string(kind)).Int("attempt", attempt).Dur("delay", delay).
			Err(classified).Msg("retrying recoverable operation")
		select {
		case <-ctx.Done():
			return classified
		case <-time.After(delay):
		}
	}
	return lastErr
}

// backoffDelay implements retryDelay × 2^(attempt-1) with ±jitterFrac
// jitter (spec §4.5 step 4; default ±20%).
func (e *Executor) backoffDelay(attempt int) time.Duration {
	base := float64(e.baseDelay) * float64(uint(1)<<uint(attempt-1))
	if e.jitterFrac <= 0 {
		return time.Duration(base)
	}
	jitter := base * e.jitterFrac
	delta := (rand.Float64()*2 - 1) * jitter
	d := base + delta
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}
