package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

// metricPrefix names every exposed series, mirroring the teacher's
// alfred_gateway_ prefix convention in observability/metrics.go.
const metricPrefix = "ftppool_"

// Handler returns an http.HandlerFunc serving the snapshot in
// Prometheus text exposition format (spec §4.6 GET /metrics), built by
// hand the same way the teacher's Metrics.Handler is: no external
// Prometheus client library, just a text/plain writer walking the
// current snapshot.
func (c *Collector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := c.Snapshot()
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("# ftppool metrics - %s\n\n", time.Now().UTC().Format(time.RFC3339)))

		gauge(&sb, "connection_pool_idle", nil, float64(snap.ConnectionPool.IdleConnections))
		gauge(&sb, "connection_pool_active", nil, float64(snap.ConnectionPool.ActiveConnections))
		gauge(&sb, "connection_pool_total", nil, float64(snap.ConnectionPool.TotalConnections))
		counter(&sb, "connections_created_total", nil, snap.ConnectionPool.ConnectionsCreated)
		counter(&sb, "connections_destroyed_total", nil, snap.ConnectionPool.ConnectionsDestroyed)
		counter(&sb, "connections_repaired_total", nil, snap.ConnectionPool.ConnectionsRepaired)

		gauge(&sb, "borrow_latency_avg_ms", nil, snap.Performance.AvgBorrowLatencyMs)
		gauge(&sb, "borrow_latency_p95_ms", nil, snap.Performance.P95BorrowLatencyMs)

		gauge(&sb, "borrows_per_minute", nil, snap.Throughput.BorrowsPerMinute)
		gauge(&sb, "returns_per_minute", nil, snap.Throughput.ReturnsPerMinute)

		gauge(&sb, "queue_waiting_borrowers", nil, float64(snap.Queue.WaitingBorrowers))

		gauge(&sb, "wait_time_max_ms", nil, snap.WaitTime.MaxWaitTimeMs)
		gauge(&sb, "wait_time_total_ms", nil, snap.WaitTime.TotalWaitTimeMs)
		counter(&sb, "wait_count_total", nil, snap.WaitTime.WaitCount)

		gauge(&sb, "resources_max_total", nil, float64(snap.Resources.MaxTotal))
		gauge(&sb, "resources_min_idle", nil, float64(snap.Resources.MinIdle))

		gauge(&sb, "health_connections", map[string]string{"status": "healthy"}, float64(snap.Health.HealthyCount))
		gauge(&sb, "health_connections", map[string]string{"status": "degraded"}, float64(snap.Health.DegradedCount))
		gauge(&sb, "health_connections", map[string]string{"status": "failed"}, float64(snap.Health.FailedCount))
		gauge(&sb, "health_connections", map[string]string{"status": "repairing"}, float64(snap.Health.RepairingCount))
		gauge(&sb, "health_connections", map[string]string{"status": "unknown"}, float64(snap.Health.UnknownCount))

		kinds := make([]string, 0, len(snap.OperationTypes))
		for k := range snap.OperationTypes {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			stats := snap.OperationTypes[k]
			labels := map[string]string{"kind": k}
			counter(&sb, "operation_attempts_total", labels, stats.Attempts)
			counter(&sb, "operation_failures_total", labels, stats.Failures)
			sb.WriteString(fmt.Sprintf("# breaker state %s=%s\n", k, stats.State))
		}

		customKeys := make([]string, 0, len(snap.Custom))
		for k := range snap.Custom {
			customKeys = append(customKeys, k)
		}
		sort.Strings(customKeys)
		for _, k := range customKeys {
			gauge(&sb, "custom_"+k, nil, snap.Custom[k])
		}

		_, _ = w.Write([]byte(sb.String()))
	}
}

func labelSuffix(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%q", k, labels[k])
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func gauge(sb *strings.Builder, name string, labels map[string]string, v float64) {
	full := metricPrefix + name
	sb.WriteString(fmt.Sprintf("# TYPE %s gauge\n", full))
	sb.WriteString(fmt.Sprintf("%s%s %f\n", full, labelSuffix(labels), v))
}

func counter(sb *strings.Builder, name string, labels map[string]string, v int64) {
	full := metricPrefix + name
	sb.WriteString(fmt.Sprintf("# TYPE %s counter\n", full))
	sb.WriteString(fmt.Sprintf("%s%s %d\n", full, labelSuffix(labels), v))
}
