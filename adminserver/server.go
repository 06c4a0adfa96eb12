/*
Package adminserver is the Admin HTTP Surface (SPEC_FULL.md §4.6): a
small chi-routed operator surface, off by default, exposing a liveness
probe, a Prometheus metrics endpoint, and a connection debug dump. It
mirrors the reference gateway's router.go health-endpoint wiring —
chi's RequestID and Recoverer middleware, a no-auth health route — but
carries none of the gateway's API-facing routes or auth chain, since
this surface is operator-only.
*/
package adminserver

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/AlfredDev/ftppool/health"
	"github.com/AlfredDev/ftppool/metrics"
)

// poolOracle is the narrow capability this surface needs from the Pool
// Manager: whether it has been shut down.
type poolOracle interface {
	Closed() bool
}

// connLister is the narrow capability this surface needs from the
// Health Manager: the debug connection dump and live status counts.
type connLister interface {
	ListConnections() []health.ConnectionInfo
	Counts() map[health.Status]int
}

// New builds the admin HTTP handler (spec §4.6):
//
//   - GET /healthz          — 200 if the pool is open and at least one
//     connection is Healthy or Degraded, 503 otherwise
//   - GET /metrics           — Prometheus text exposition of the metrics
//     snapshot
//   - GET /debug/connections — JSON dump of every tracked connection's
//     id, status, age and last error; never credentials
func New(p poolOracle, h connLister, collector *metrics.Collector, logger zerolog.Logger) http.Handler {
	logger = logger.With().Str("component", "admin_server").Logger()

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(requestLogger(logger))

	r.Get("/healthz", healthzHandler(p, h))
	r.Get("/metrics", collector.Handler())
	r.Get("/debug/connections", debugConnectionsHandler(h))

	return r
}

func healthzHandler(p poolOracle, h connLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if p.Closed() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "closed"})
			return
		}
		counts := h.Counts()
		if counts[health.StatusHealthy]+counts[health.StatusDegraded] == 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
			return
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

func debugConnectionsHandler(h connLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(h.ListConnections())
	}
}

// requestLogger mirrors the reference gateway's per-request structured
// log line (method, path, status), scoped down to this
// surface's own logger instead of the gateway's shared one.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Msg("admin request")
		})
	}
}
