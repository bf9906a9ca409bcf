package worker

import (
	"sync"

	"github.com/neematajs/neemata-go/transport"
)

// Connection is the runtime's view of one transport-level connection: its
// transport handle, per-connection container scope, and the bookkeeping the
// runtime needs to tear it down.
type Connection struct {
	id     transport.ConnectionID
	raw    transport.Connection
	scope  *Container
	mu     sync.Mutex
	closed bool
}

// NewConnection wraps a transport.Connection with a freshly created
// Connection-scope container, child of global.
func NewConnection(raw transport.Connection, global *Container) *Connection {
	return &Connection{
		id:    raw.ID(),
		raw:   raw,
		scope: global.CreateScope(ScopeConnection),
	}
}

// ID returns the connection's opaque transport identifier.
func (c *Connection) ID() transport.ConnectionID { return c.id }

// ContentType reports the content-type the transport negotiated for this
// connection, used by the Format Selector.
func (c *Connection) ContentType() string { return c.raw.ContentType() }

// Container returns the connection-scope DI container.
func (c *Connection) Container() *Container { return c.scope }

// Send writes a frame back over the transport.
func (c *Connection) Send(f transport.Frame) error { return c.raw.Send(f) }

// Closed reports whether the connection has already been torn down.
func (c *Connection) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// MarkClosed flags the connection as closed, returning false if it already
// was (so callers can make teardown idempotent).
func (c *Connection) MarkClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	return true
}
