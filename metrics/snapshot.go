/*
Package metrics assembles the pool's Metrics Snapshot (spec §6/§8.1) and
exposes it as both a programmatic call and a Prometheus text endpoint,
plus the threshold-based Alert surface (spec §6 Alert interface).
*/
package metrics

// Snapshot is the hierarchical Metrics Snapshot named in spec §6: each
// top-level group is a fixed struct of fields backed by a live counter
// or gauge, never a value set once and left stale (spec §9 Open
// Question, resolved in SPEC_FULL.md §8.1 — "omit, never emit stale
// zeros").
type Snapshot struct {
	ConnectionPool ConnectionPoolGroup          `json:"connectionPool"`
	Performance    PerformanceGroup             `json:"performance"`
	Throughput     ThroughputGroup              `json:"throughput"`
	Queue          QueueGroup                   `json:"queue"`
	WaitTime       WaitTimeGroup                `json:"waitTime"`
	Resources      ResourcesGroup                `json:"resources"`
	Health         HealthGroup                  `json:"health"`
	OperationTypes map[string]OperationTypeStats `json:"operationTypes"`
	Custom         map[string]float64            `json:"custom"`
}

type ConnectionPoolGroup struct {
	IdleConnections      int   `json:"idleConnections"`
	ActiveConnections    int   `json:"activeConnections"`
	TotalConnections     int   `json:"totalConnections"`
	ConnectionsCreated   int64 `json:"connectionsCreated"`
	ConnectionsDestroyed int64 `json:"connectionsDestroyed"`
	ConnectionsRepaired  int64 `json:"connectionsRepaired"`
}

type PerformanceGroup struct {
	AvgBorrowLatencyMs float64 `json:"avgBorrowLatencyMs"`
	P95BorrowLatencyMs float64 `json:"p95BorrowLatencyMs"`
}

type ThroughputGroup struct {
	BorrowsPerMinute float64 `json:"borrowsPerMinute"`
	ReturnsPerMinute float64 `json:"returnsPerMinute"`
}

type QueueGroup struct {
	WaitingBorrowers int `json:"waitingBorrowers"`
}

type WaitTimeGroup struct {
	MaxWaitTimeMs   float64 `json:"maxWaitTimeMs"`
	TotalWaitTimeMs float64 `json:"totalWaitTimeMs"`
	WaitCount       int64   `json:"waitCount"`
}

type ResourcesGroup struct {
	MaxTotal int `json:"maxTotal"`
	MinIdle  int `json:"minIdle"`
}

type HealthGroup struct {
	HealthyCount   int `json:"healthyCount"`
	DegradedCount  int `json:"degradedCount"`
	FailedCount    int `json:"failedCount"`
	RepairingCount int `json:"repairingCount"`
	UnknownCount   int `json:"unknownCount"`
}

type OperationTypeStats struct {
	Attempts  int64  `json:"attempts"`
	Failures  int64  `json:"failures"`
	State     string `json:"state"`
}
