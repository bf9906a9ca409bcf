package worker

import (
	"context"
	"time"

	errspkg "github.com/neematajs/neemata-go/internal/errors"
)

// Schema validates a decoded value, returning per-field errors (or nil if
// valid).
type Schema interface {
	Validate(v any) []errspkg.FieldError
}

// Guard is a predicate over the Call context. A false result (with no
// error) fails the call with Forbidden; a returned error surfaces as-is.
type Guard func(ctx *Call) (bool, error)

// Handler is a procedure's request/response body once input has been
// decoded and validated.
type Handler func(ctx context.Context, call *Call, input any) (any, error)

// Middleware wraps a Handler with additional behavior. Middlewares are
// applied outermost-first; the innermost middleware invokes the procedure
// handler directly.
type Middleware func(next Handler) Handler

// Procedure is a named request/response entry with its home module, input
// and output schemas, guards, middlewares, and handler body. Immutable
// after registration.
//
// InputFactory, when set, constructs the concrete value the Dispatcher
// decodes the request payload into, instead of the default
// map[string]any. A procedure whose Format is backed by protobuf needs
// this: Decode requires a *concrete* proto.Message to unmarshal into, not
// a generic map, so its InputFactory should return one (format.NewMessage
// or format.MustNewMessage build one from a generated message type).
type Procedure struct {
	Name         string
	Module       string
	Input        Schema
	Output       Schema
	InputFactory func() any
	Guards       []Guard
	Middlewares  []Middleware
	Handler      Handler
	Timeout      time.Duration
}

// TaskFunc is a task's function body.
type TaskFunc func(ctx context.Context, call *Call, args any) (any, error)

// Task is a named background unit of work. LocalOnly forces execution in
// the current worker even if task runners are available; Timeout overrides
// the engine's default task deadline when non-zero.
type Task struct {
	Name      string
	Module    string
	Fn        TaskFunc
	LocalOnly bool
	Timeout   time.Duration
}

// CommandFunc is a namespace/name addressed entrypoint distinct from
// procedures and tasks (e.g. the built-in task and registry-print
// commands installed during Application.Initialize).
type CommandFunc func(ctx context.Context, args []string) error

// Module is a namespaced container of procedures, tasks, and commands.
// Registration order within a module is preserved for hierarchical
// listing.
type Module struct {
	Name       string
	procedures []*Procedure
	tasks      []*Task
	commands   map[string]CommandFunc
}

// NewModule constructs an empty, named Module.
func NewModule(name string) *Module {
	return &Module{Name: name, commands: make(map[string]CommandFunc)}
}

// Procedure appends a procedure to the module, stamping its home module
// name.
func (m *Module) Procedure(p *Procedure) *Module {
	p.Module = m.Name
	m.procedures = append(m.procedures, p)
	return m
}

// Task appends a task to the module, stamping its home module name.
func (m *Module) Task(t *Task) *Module {
	t.Module = m.Name
	m.tasks = append(m.tasks, t)
	return m
}

// Command registers a namespace-scoped command function.
func (m *Module) Command(name string, fn CommandFunc) *Module {
	m.commands[name] = fn
	return m
}
