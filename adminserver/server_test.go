package adminserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/AlfredDev/ftppool/config"
	"github.com/AlfredDev/ftppool/ftpclient"
	"github.com/AlfredDev/ftppool/health"
	"github.com/AlfredDev/ftppool/metrics"
	"github.com/AlfredDev/ftppool/pool"
	"github.com/AlfredDev/ftppool/recovery"
)

type fakePoolOracle struct{ closed bool }

func (f *fakePoolOracle) Closed() bool { return f.closed }

type fakeRepairer struct{}

func (fakeRepairer) Rebind(ctx context.Context, conn *ftpclient.Connection) error { return nil }

func newTestHealthManager(t *testing.T, withHealthy bool) *health.Manager {
	t.Helper()
	m := health.NewManager(fakeRepairer{}, health.RepairConfig{MaxRepairAttempts: 3, ProbeTimeout: time.Second}, zerolog.Nop())
	if withHealthy {
		conn := ftpclient.NewFakeConnection("c1", &ftpclient.FakeClient{})
		m.Register(conn)
		_ = m.Validate(context.Background(), "c1")
	}
	return m
}

func TestHealthzReportsOKWhenHealthy(t *testing.T) {
	h := newTestHealthManager(t, true)
	p := &fakePoolOracle{}
	cfg, _ := testCollectorDeps(t)
	srv := New(p, h, cfg, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHealthzReportsUnavailableWhenNoHealthyConnections(t *testing.T) {
	h := newTestHealthManager(t, false)
	p := &fakePoolOracle{}
	cfg, _ := testCollectorDeps(t)
	srv := New(p, h, cfg, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestHealthzReportsUnavailableWhenClosed(t *testing.T) {
	h := newTestHealthManager(t, true)
	p := &fakePoolOracle{closed: true}
	cfg, _ := testCollectorDeps(t)
	srv := New(p, h, cfg, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestDebugConnectionsNeverLeaksCredentials(t *testing.T) {
	h := newTestHealthManager(t, true)
	p := &fakePoolOracle{}
	cfg, _ := testCollectorDeps(t)
	srv := New(p, h, cfg, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/debug/connections", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var infos []health.ConnectionInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &infos); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if len(infos) != 1 || infos[0].ID != "c1" {
		t.Fatalf("expected one connection info for c1, got %+v", infos)
	}
}

func TestMetricsEndpointServesPrometheusText(t *testing.T) {
	h := newTestHealthManager(t, true)
	p := &fakePoolOracle{}
	cfg, _ := testCollectorDeps(t)
	srv := New(p, h, cfg, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Fatalf("expected non-empty metrics body")
	}
}

// testCollectorDeps builds a *metrics.Collector wired to a throwaway
// pool and breaker set, since the admin server always serves /metrics
// from the same Collector it serves /healthz and /debug/connections
// from for the health side.
func testCollectorDeps(t *testing.T) (*metrics.Collector, *pool.Pool) {
	t.Helper()
	h := newTestHealthManager(t, true)
	cfg := &config.Config{CircuitFailureThreshold: 10, CircuitCooldown: time.Second, MaxRetries: 0, RetryBaseDelay: time.Millisecond}
	breakers := recovery.NewBreakers(cfg, zerolog.Nop())
	executor := recovery.NewExecutor(breakers, cfg, zerolog.Nop())
	p := pool.New(pool.Config{MinIdle: 0, MaxTotal: 1, MaxWait: time.Second}, nopFactory{}, h, nopActivity{}, executor, time.Millisecond, 0, zerolog.Nop())
	return metrics.NewCollector(p, h, breakers), p
}

type nopFactory struct{}

func (nopFactory) Create(ctx context.Context) (*ftpclient.Connection, error) {
	return ftpclient.NewFakeConnection("nop", &ftpclient.FakeClient{}), nil
}
func (nopFactory) Close(conn *ftpclient.Connection) {}

type nopActivity struct{}

func (nopActivity) Register(id string)       {}
func (nopActivity) Unregister(id string)     {}
func (nopActivity) RecordActivity(id string) {}
