package recovery

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/AlfredDev/ftppool/config"
	"github.com/AlfredDev/ftppool/errs"
)

func testConfig() *config.Config {
	return &config.Config{
		MaxRetries:              2,
		RetryBaseDelay:          time.Millisecond,
		RetryJitterFraction:     0,
		CircuitFailureThreshold: 3,
		CircuitCooldown:         20 * time.Millisecond,
	}
}

func TestRunSucceedsOnFirstAttempt(t *testing.T) {
	cfg := testConfig()
	ex := NewExecutor(NewBreakers(cfg, zerolog.Nop()), cfg, zerolog.Nop())

	calls := 0
	err := ex.Run(context.Background(), OpConnection, func(ctx context.Context, attempt int) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected exactly one call, got %d", calls)
	}
}

func TestRunRetriesRecoverableErrorsUpToMaxRetries(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 2
	ex := NewExecutor(NewBreakers(cfg, zerolog.Nop()), cfg, zerolog.Nop())

	calls := 0
	err := ex.Run(context.Background(), OpConnection, func(ctx context.Context, attempt int) error {
		calls++
		return errs.New(errs.KindConnectionTimeout, "timed out")
	})
	if err == nil {
		t.Fatalf("expected final error after exhausting retries")
	}
	if calls != 3 {
		t.Fatalf("expected maxRetries+1=3 attempts, got %d", calls)
	}
}

func TestRunZeroMaxRetriesPerformsExactlyOneAttempt(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 0
	ex := NewExecutor(NewBreakers(cfg, zerolog.Nop()), cfg, zerolog.Nop())

	calls := 0
	_ = ex.Run(context.Background(), OpConnection, func(ctx context.Context, attempt int) error {
		calls++
		return errs.New(errs.KindConnectionTimeout, "timed out")
	})
	if calls != 1 {
		t.Fatalf("expected exactly one attempt with maxRetries=0, got %d", calls)
	}
}

func TestRunPropagatesNonRecoverableErrorWithoutRetry(t *testing.T) {
	cfg := testConfig()
	ex := NewExecutor(NewBreakers(cfg, zerolog.Nop()), cfg, zerolog.Nop())

	calls := 0
	err := ex.Run(context.Background(), OpConnection, func(ctx context.Context, attempt int) error {
		calls++
		return errs.New(errs.KindInvalidCredentials, "bad password")
	})
	if calls != 1 {
		t.Fatalf("expected no retry for non-recoverable error, got %d calls", calls)
	}
	kind, ok := errs.Of(err)
	if !ok || kind != errs.KindInvalidCredentials {
		t.Fatalf("expected InvalidCredentials to propagate unchanged, got %v", err)
	}
}

func TestCircuitOpensAfterConsecutiveFailuresAndFailsFast(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 0
	cfg.CircuitFailureThreshold = 3
	ex := NewExecutor(NewBreakers(cfg, zerolog.Nop()), cfg, zerolog.Nop())

	failing := func(ctx context.Context, attempt int) error {
		return errs.New(errs.KindTransferError, "broken pipe")
	}
	for i := 0; i < 3; i++ {
		_ = ex.Run(context.Background(), OpTransfers, failing)
	}

	calls := 0
	err := ex.Run(context.Background(), OpTransfers, func(ctx context.Context, attempt int) error {
		calls++
		return nil
	})
	kind, ok := errs.Of(err)
	if !ok || kind != errs.KindCircuitOpen {
		t.Fatalf("expected CircuitOpen once threshold exceeded, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("expected the network-touching op not to run while breaker is open")
	}
}

func TestCircuitClosesAfterCooldownAndSuccess(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 0
	cfg.CircuitFailureThreshold = 2
	cfg.CircuitCooldown = 10 * time.Millisecond
	ex := NewExecutor(NewBreakers(cfg, zerolog.Nop()), cfg, zerolog.Nop())

	for i := 0; i < 2; i++ {
		_ = ex.Run(context.Background(), OpFileOperations, func(ctx context.Context, attempt int) error {
			return errs.New(errs.KindTransferError, "broken pipe")
		})
	}

	time.Sleep(15 * time.Millisecond)

	err := ex.Run(context.Background(), OpFileOperations, func(ctx context.Context, attempt int) error {
		return nil
	})
	if err != nil {
		t.Fatalf("expected probe call after cooldown to succeed and close breaker, got %v", err)
	}
}

func TestStrategyForLookupTable(t *testing.T) {
	cases := map[errs.Kind]StrategyKind{
		errs.KindConnectionError:     StrategyReconnect,
		errs.KindConnectionTimeout:   StrategyReconnect,
		errs.KindConnectionClosed:    StrategyReconnect,
		errs.KindConnectionRefused:   StrategyReconnect,
		errs.KindTransferError:       StrategyAbortThenReconnect,
		errs.KindDataConnectionError: StrategyValidateAndFix,
		errs.KindFileNotFound:        StrategyNoOp,
		errs.KindInvalidCredentials:  StrategyNoOp,
	}
	for kind, want := range cases {
		if got := StrategyFor(kind); got != want {
			t.Errorf("StrategyFor(%s) = %s, want %s", kind, got, want)
		}
	}
}

type fakeRepairTrigger struct {
	called bool
	id     string
}

func (f *fakeRepairTrigger) Repair(ctx context.Context, id string) error {
	f.called = true
	f.id = id
	return nil
}

func TestApplyStrategyInvokesRepairForReconnectKinds(t *testing.T) {
	rt := &fakeRepairTrigger{}
	if err := ApplyStrategy(context.Background(), rt, "conn-1", errs.KindConnectionClosed); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rt.called || rt.id != "conn-1" {
		t.Fatalf("expected repair to be invoked for conn-1, got called=%v id=%q", rt.called, rt.id)
	}
}

func TestApplyStrategyNoOpDoesNotInvokeRepair(t *testing.T) {
	rt := &fakeRepairTrigger{}
	if err := ApplyStrategy(context.Background(), rt, "conn-1", errs.KindFileNotFound); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rt.called {
		t.Fatalf("expected no repair for a no-op strategy kind")
	}
}
