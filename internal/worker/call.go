package worker

import (
	"context"
	"time"

	metadatapkg "github.com/neematajs/neemata-go/internal/metadata"
)

// Call is the per-invocation record the dispatcher threads through guards,
// middlewares, and the procedure handler: connection, decoded input, an
// elapsed timer, a cancellation signal, and a Call-scope container.
type Call struct {
	ctx        context.Context
	cancel     context.CancelFunc
	Connection *Connection
	Procedure  string
	Input      any
	Headers    metadatapkg.Metadata
	startedAt  time.Time
	scope      *Container
}

// NewCall creates a Call-scope container as a child of the connection's
// scope and arms a cancellation signal bounded by timeout (zero means no
// deadline beyond the parent context). headers carries the client-supplied
// correlation/trace metadata from the rpc envelope, if any.
func NewCall(parent context.Context, conn *Connection, procedure string, input any, timeout time.Duration, headers metadatapkg.Metadata) *Call {
	call := newCallOnContainer(parent, conn.Container(), procedure, input, timeout, headers)
	call.Connection = conn
	return call
}

// NewTaskCall creates a Call-scope container directly off root (a Task
// worker has no connection to scope through), for use by the Task Engine's
// local execution path.
func NewTaskCall(parent context.Context, root *Container, taskName string, args any, timeout time.Duration, headers metadatapkg.Metadata) *Call {
	return newCallOnContainer(parent, root, taskName, args, timeout, headers)
}

func newCallOnContainer(parent context.Context, scope *Container, name string, input any, timeout time.Duration, headers metadatapkg.Metadata) *Call {
	ctx := parent
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, timeout)
	} else {
		ctx, cancel = context.WithCancel(parent)
	}
	return &Call{
		ctx:       ctx,
		cancel:    cancel,
		Procedure: name,
		Input:     input,
		Headers:   headers,
		startedAt: timeNow(),
		scope:     scope.CreateScope(ScopeCall),
	}
}

// Context returns the call's cancellation-bearing context. Handlers are
// expected to observe it cooperatively at suspension points.
func (c *Call) Context() context.Context { return c.ctx }

// Container returns the Call-scope DI container.
func (c *Call) Container() *Container { return c.scope }

// Elapsed reports how long the call has been running.
func (c *Call) Elapsed() time.Duration { return timeNow().Sub(c.startedAt) }

// Cancel signals the call's context, used on timeout or connection loss so
// a cooperative handler observes cancellation at its next suspension
// point.
func (c *Call) Cancel() { c.cancel() }

// Dispose tears down the Call-scope container. Safe to call once per Call,
// in every dispatch exit path (success, error, or timeout).
func (c *Call) Dispose(ctx context.Context) error {
	c.cancel()
	return c.scope.Dispose(ctx)
}

// timeNow is indirected so tests can reason about elapsed time without
// depending on wall-clock behavior in CI.
var timeNow = time.Now
