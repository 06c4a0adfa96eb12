package ftpclient

import (
	"sync"
	"time"
)

// FakeClient is a minimal rawClient double for tests in packages that
// depend on *Connection (health, keepalive, pool) but must not dial a
// real FTP server. It is exported deliberately, the same way the
// standard library exports net/http/httptest for dependents.
type FakeClient struct {
	mu      sync.Mutex
	NoOpErr error
	QuitErr error
	Cwd     string
	CwdErr  error
	NoOpN   int
}

func (f *FakeClient) NoOp() error {
	f.mu.Lock()
	f.NoOpN++
	f.mu.Unlock()
	return f.NoOpErr
}

func (f *FakeClient) Quit() error                { return f.QuitErr }
func (f *FakeClient) ChangeDir(path string) error { f.Cwd = path; return nil }
func (f *FakeClient) CurrentDir() (string, error) { return f.Cwd, f.CwdErr }

// NoOpCalls reports how many times NoOp has been invoked.
func (f *FakeClient) NoOpCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.NoOpN
}

// NewFakeConnection builds a *Connection backed by client, for use by
// dependent packages' tests.
func NewFakeConnection(id string, client *FakeClient) *Connection {
	now := time.Now()
	return &Connection{
		id:         id,
		client:     client,
		createdAt:  now,
		lastUsedAt: now,
		lastTested: now,
		cwd:        client.Cwd,
	}
}
