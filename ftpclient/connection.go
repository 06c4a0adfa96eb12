/*
Package ftpclient is the Connection Factory (spec §4.1, component C1).
It is the only package that imports github.com/jlaffaye/ftp directly —
every other component talks to a *Connection, never to the wire protocol.
*/
package ftpclient

import (
	"sync"
	"time"
)

// Connection is a handle to one authenticated FTP control channel.
// Exactly one owner holds it at any instant: the pool's idle set, a
// borrower, the health manager during a test, or the factory during
// (re)dial (spec §3 invariant). Callers outside this package never
// reach into the fields below concurrently with another owner — the
// transfer of ownership (borrow/return/repair) is itself the
// synchronization point, per spec §5.
type Connection struct {
	mu sync.Mutex

	id     string
	client rawClient

	createdAt  time.Time
	lastUsedAt time.Time
	lastTested time.Time

	cwd               string
	reconnectAttempts int
	lastError         string
	transferMode      string

	// Generation increments on every successful repair-rebind so a
	// caller holding a stale reference can detect that the connection
	// behind this id was replaced out from under it (spec §3.1).
	generation int
}

// ID returns the connection's stable identifier. Ids are never reused.
func (c *Connection) ID() string { return c.id }

// CreatedAt returns when the connection was first established.
func (c *Connection) CreatedAt() time.Time { return c.createdAt }

// LastUsedAt returns the last time this connection was handed to a
// borrower.
func (c *Connection) LastUsedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUsedAt
}

// LastTestedAt returns the last time a validate/keep-alive probe ran
// against this connection.
func (c *Connection) LastTestedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastTested
}

// Generation returns the repair generation, incremented on each
// successful rebind.
func (c *Connection) Generation() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// ReconnectAttempts returns the current repair-attempt counter. It
// resets to zero on every successful authentication (spec §3 invariant).
func (c *Connection) ReconnectAttempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnectAttempts
}

// LastError returns the last recorded error string, if any.
func (c *Connection) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

// Probe issues a cheap liveness command against the control channel. It is
// the mechanics shared by both validate and keep-alive (spec §4.2/§4.3);
// callers are responsible for serializing probes against the same
// connection.
func (c *Connection) Probe() error {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()
	return client.NoOp()
}

// MarkProbed records that a validate/keep-alive probe just completed
// against this connection, regardless of outcome.
func (c *Connection) MarkProbed(when time.Time) {
	c.markTested(when)
}

// touch records that this connection was just handed to a borrower.
func (c *Connection) touch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastUsedAt = time.Now()
}

// MarkBorrowed records that this connection was just handed to a
// borrower. It is the exported entry point the pool uses from outside
// this package; touch is the unexported helper it wraps.
func (c *Connection) MarkBorrowed() {
	c.touch()
}

// markTested records that a validate/keep-alive probe just ran.
func (c *Connection) markTested(when time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastTested = when
}

// recordError stores the last error string without leaking secrets —
// callers must already have scrubbed any credential material.
func (c *Connection) recordError(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastError = msg
}

// TransferMode returns the representation type configured for this
// connection at dial time ("ASCII" or "Binary", spec §3 Configuration).
func (c *Connection) TransferMode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transferMode
}

// rawClient is the subset of *ftp.ServerConn this package depends on,
// narrowed to keep the rest of the module decoupled from the wire
// client's full surface and to make the factory unit-testable with a
// fake.
type rawClient interface {
	NoOp() error
	Quit() error
	ChangeDir(path string) error
	CurrentDir() (string, error)
}
