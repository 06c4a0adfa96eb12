package health

import (
	"time"
)

// ConnectionInfo is the operator-facing view of one tracked connection,
// deliberately narrower than Record: no trust-store or credential
// material ever reaches this type (spec §4.6 "/debug/connections ...
// Never includes credentials").
type ConnectionInfo struct {
	ID        string    `json:"id"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	AgeMs     int64     `json:"ageMs"`
	LastError string    `json:"lastError,omitempty"`
}

// ListConnections returns an ConnectionInfo for every currently
// registered connection, for the admin HTTP surface's
// GET /debug/connections (spec §4.6).
func (m *Manager) ListConnections() []ConnectionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	out := make([]ConnectionInfo, 0, len(m.records))
	for id, r := range m.records {
		var created time.Time
		var lastErr string
		if conn, ok := m.conns[id]; ok {
			created = conn.CreatedAt()
			lastErr = conn.LastError()
		}
		out = append(out, ConnectionInfo{
			ID:        id,
			Status:    r.Status,
			CreatedAt: created,
			AgeMs:     now.Sub(created).Milliseconds(),
			LastError: lastErr,
		})
	}
	return out
}
