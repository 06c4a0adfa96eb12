package main_test

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/AlfredDev/ftppool/config"
	"github.com/AlfredDev/ftppool/ftpclient"
	"github.com/AlfredDev/ftppool/health"
	"github.com/AlfredDev/ftppool/keepalive"
	"github.com/AlfredDev/ftppool/metrics"
	"github.com/AlfredDev/ftppool/pool"
	"github.com/AlfredDev/ftppool/recovery"
)

// fakeFactory hands out connections backed by a fake rawClient so the
// whole stack (C1-C5) can be exercised without a real FTP server,
// matching the fake-factory pattern used throughout pool/, health/ and
// keepalive/'s own unit tests.
type fakeFactory struct {
	n int
}

func (f *fakeFactory) Create(ctx context.Context) (*ftpclient.Connection, error) {
	f.n++
	return ftpclient.NewFakeConnection("conn-"+strconv.Itoa(f.n), &ftpclient.FakeClient{}), nil
}

func (f *fakeFactory) Close(conn *ftpclient.Connection) {}

func (f *fakeFactory) Rebind(ctx context.Context, conn *ftpclient.Connection) error {
	return nil
}

// TestPoolWiresAllFiveComponents exercises a full borrow/return cycle
// through the real Pool, Health Manager, Keep-Alive Driver, and
// circuit-breaker-backed metrics Collector wired together exactly as
// main.go wires them, just with a fake factory standing in for C1's
// network dial (spec §2 "Data flow").
func TestPoolWiresAllFiveComponents(t *testing.T) {
	logger := zerolog.Nop()
	factory := &fakeFactory{}

	healthMgr := health.NewManager(factory, health.RepairConfig{
		MaxRepairAttempts: 3,
		RepairBackoff:     time.Millisecond,
		ProbeTimeout:      time.Second,
	}, logger)

	kaDriver := keepalive.New(healthMgr, 100*time.Millisecond, logger)

	breakers := recovery.NewBreakers(&config.Config{CircuitFailureThreshold: 10, CircuitCooldown: time.Second}, logger)
	executor := recovery.NewExecutor(breakers, &config.Config{MaxRetries: 1, RetryBaseDelay: time.Millisecond, RetryJitterFraction: 0}, logger)

	p := pool.New(pool.Config{MinIdle: 2, MaxTotal: 5, MaxWait: time.Second}, factory, healthMgr, kaDriver, executor, time.Millisecond, 1, logger)

	ctx := context.Background()
	if err := p.WarmUp(ctx); err != nil {
		t.Fatalf("warm-up failed: %v", err)
	}

	active, idle, total := p.Counts()
	if idle != 2 || active != 0 || total != 2 {
		t.Fatalf("expected warm-up state idle=2 active=0 total=2, got idle=%d active=%d total=%d", idle, active, total)
	}

	conn, err := p.Borrow(ctx)
	if err != nil {
		t.Fatalf("borrow failed: %v", err)
	}
	if conn == nil {
		t.Fatal("borrow returned nil connection")
	}

	active, idle, _ = p.Counts()
	if active != 1 || idle != 1 {
		t.Fatalf("expected active=1 idle=1 after borrow, got active=%d idle=%d", active, idle)
	}

	p.Return(conn)
	active, idle, _ = p.Counts()
	if active != 0 || idle != 2 {
		t.Fatalf("expected active=0 idle=2 after return, got active=%d idle=%d", active, idle)
	}

	collector := metrics.NewCollector(p, healthMgr, breakers)
	snap := collector.Snapshot()
	if snap.ConnectionPool.ConnectionsCreated != 2 {
		t.Fatalf("expected 2 connections created, got %d", snap.ConnectionPool.ConnectionsCreated)
	}
	// Warm-up registers connections as Unknown. Borrow found the popped
	// one not Healthy and repaired it; the one left idle was never probed.
	if snap.Health.HealthyCount != 1 || snap.Health.UnknownCount != 1 {
		t.Fatalf("expected 1 healthy and 1 unknown connection in snapshot, got healthy=%d unknown=%d", snap.Health.HealthyCount, snap.Health.UnknownCount)
	}

	healthMgr.Stop()
	kaDriver.Stop()
	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
}

// TestLiveFTPServer requires a reachable FTP server and is skipped by
// default. Set RUN_FTPPOOL_INTEGRATION=1 plus the FTPPOOL_* connection
// env vars (see config.Load) to exercise the real dial path against a
// live or containerized server.
func TestLiveFTPServer(t *testing.T) {
	if os.Getenv("RUN_FTPPOOL_INTEGRATION") != "1" {
		t.Skip("live FTP integration skipped; set RUN_FTPPOOL_INTEGRATION=1 and FTPPOOL_* env vars to run")
	}

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	factory := ftpclient.NewFactory(cfg, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	conn, err := factory.Create(ctx)
	if err != nil {
		t.Fatalf("factory.Create against live server: %v", err)
	}
	defer factory.Close(conn)

	if err := conn.Probe(); err != nil {
		t.Fatalf("probe against freshly dialed connection failed: %v", err)
	}
}
