package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/neematajs/neemata-go/internal/config"
	errspkg "github.com/neematajs/neemata-go/internal/errors"
	"github.com/neematajs/neemata-go/internal/jsoncodec"
	loggingpkg "github.com/neematajs/neemata-go/internal/logging"
	metadatapkg "github.com/neematajs/neemata-go/internal/metadata"
	"github.com/neematajs/neemata-go/internal/worker/format"
	"github.com/neematajs/neemata-go/transport"
)

// rpcEnvelope carries the control metadata a FrameRPC's Payload wraps
// around the procedure's own wire payload. A Frame is just {kind, payload:
// bytes}, so the procedure name, call id, any per-call timeout override,
// and client-supplied headers (correlation id, trace context) travel
// inside that payload, JSON-encoded regardless of the connection's
// negotiated content-type. Only the inner Payload is decoded with the
// connection's own Format.
type rpcEnvelope struct {
	CallID    string               `json:"callId"`
	Procedure string               `json:"procedure"`
	TimeoutMs int64                `json:"timeoutMs,omitempty"`
	Headers   metadatapkg.Metadata `json:"headers,omitempty"`
	Payload   []byte               `json:"payload"`
}

type rpcResponseEnvelope struct {
	CallID  string `json:"callId"`
	Payload []byte `json:"payload"`
}

// State is the Application's lifecycle state machine.
type State int

const (
	StateCreated State = iota
	StateInitializing
	StateInitialized
	StateStarting
	StateRunning
	StateStopping
	StateTerminating
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "Created"
	case StateInitializing:
		return "Initializing"
	case StateInitialized:
		return "Initialized"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateTerminating:
		return "Terminating"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// Application wires the Container, Registry, HookEngine, Format Selector,
// Dispatcher, TaskEngine, SubscriptionManager, and configured Transports
// together and drives the initialize/start/stop/terminate lifecycle. One
// Application owns exactly one Container; a second instance needs its own.
type Application struct {
	mu    sync.Mutex
	state State

	cfg    config.Config
	kind   config.WorkerType
	logger loggingpkg.ServiceLogger

	root       *Container
	registry   *Registry
	hooks      *HookEngine
	metrics    *Metrics
	selector   *format.Selector
	dispatcher *Dispatcher
	tasks      *TaskEngine
	subs       *SubscriptionManager

	transportNames []string
	transports     []transport.Transport

	connMu      sync.Mutex
	connections map[transport.ConnectionID]*Connection
	streams     map[transport.ConnectionID]*streamRegistry
}

// New constructs an Application in the Created state. Register modules
// before calling Start; SetOffloader before Start if this is an API
// worker with task runners available.
func New(cfg config.Config, kind config.WorkerType, logger loggingpkg.ServiceLogger) *Application {
	var registerer prometheus.Registerer
	if cfg.MetricsEnabled {
		registerer = prometheus.DefaultRegisterer
	}
	metrics := NewMetrics(registerer)

	app := &Application{
		state:          StateCreated,
		cfg:            cfg,
		kind:           kind,
		logger:         logger,
		root:           NewRootContainer(logger),
		registry:       NewRegistry(logger),
		hooks:          NewHookEngine(logger),
		metrics:        metrics,
		selector:       format.NewSelector(format.NewJSON(), format.NewProto()),
		subs:           NewSubscriptionManager(metrics),
		transportNames: append([]string(nil), cfg.Transports...),
		connections:    make(map[transport.ConnectionID]*Connection),
		streams:        make(map[transport.ConnectionID]*streamRegistry),
	}
	app.dispatcher = NewDispatcher(app.registry, app.selector, app.hooks, metrics, cfg.ApiTimeout, logger)
	app.tasks = NewTaskEngine(app.registry, app.root, kind, nil, cfg.TasksTimeout, metrics, logger)
	return app
}

// Registry exposes the Registry for module registration before Start.
func (a *Application) Registry() *Registry { return a.registry }

// Container exposes the Global-scope container for pre-seeding well-known
// providers (logger, dispatcher, task engine) before Start.
func (a *Application) Container() *Container { return a.root }

// Hooks exposes the HookEngine for binding lifecycle callbacks before
// Start.
func (a *Application) Hooks() *HookEngine { return a.hooks }

// SetOffloader wires the supervisor's task-offload surface. Only
// meaningful for API workers; must be called before Start.
func (a *Application) SetOffloader(offloader Offloader) {
	a.tasks = NewTaskEngine(a.registry, a.root, a.kind, offloader, a.cfg.TasksTimeout, a.metrics, a.logger)
}

// Dispatcher exposes the API Dispatcher so a Transport adapter can drive
// RPC frames into it.
func (a *Application) Dispatcher() *Dispatcher { return a.dispatcher }

// Tasks exposes the Task Engine so procedure handlers can call execute().
func (a *Application) Tasks() *TaskEngine { return a.tasks }

// Subscriptions exposes the Subscription Manager.
func (a *Application) Subscriptions() *SubscriptionManager { return a.subs }

// Transport returns the running transport instance started under name, or
// false if no configured transport by that name successfully started.
// Useful for same-process callers (tests, the in-memory channel transport)
// that need to Dial the exact instance the Application is serving.
func (a *Application) Transport(name string) (transport.Transport, bool) {
	for _, tr := range a.transports {
		if tr.Name() == name {
			return tr, true
		}
	}
	return nil, false
}

func (a *Application) transition(from []State, to State) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	ok := false
	for _, s := range from {
		if a.state == s {
			ok = true
			break
		}
	}
	if !ok {
		return errspkg.New(errspkg.InvalidState, fmt.Sprintf("cannot move to %s from %s", to, a.state))
	}
	a.state = to
	return nil
}

func (a *Application) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

// State reports the current lifecycle state.
func (a *Application) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Initialize runs BeforeInitialize, installs essential commands, loads
// the registry, loads the container's eager roots, and runs
// AfterInitialize.
func (a *Application) Initialize(ctx context.Context) error {
	if err := a.transition([]State{StateCreated}, StateInitializing); err != nil {
		return err
	}

	if err := a.hooks.Call(ctx, BeforeInitialize, CallOptions{}); err != nil {
		return err
	}

	a.installEssentialCommands()

	if err := a.registry.Load(); err != nil {
		return err
	}

	if err := a.root.Load(ctx); err != nil {
		return err
	}

	if err := a.hooks.Call(ctx, AfterInitialize, CallOptions{}); err != nil {
		return err
	}

	a.setState(StateInitialized)
	return nil
}

func (a *Application) installEssentialCommands() {
	sys := NewModule("")
	sys.Command("task", func(ctx context.Context, args []string) error {
		if len(args) == 0 {
			return errspkg.New(errspkg.ValidationErr, "task command requires a task name")
		}
		_, err := a.tasks.Execute(ctx, args[0], args[1:])
		return err
	})
	sys.Command("registry-print", func(ctx context.Context, args []string) error {
		a.registry.Print()
		return nil
	})
	a.registry.Register(sys)
}

// Start runs Initialize if needed, then BeforeStart, starts every
// configured transport for API workers (individual failures are logged,
// not fatal unless all of them fail), then AfterStart. Enters Running.
func (a *Application) Start(ctx context.Context) error {
	if a.State() == StateCreated {
		if err := a.Initialize(ctx); err != nil {
			return err
		}
	}
	if err := a.transition([]State{StateInitialized}, StateStarting); err != nil {
		return err
	}

	if err := a.hooks.Call(ctx, BeforeStart, CallOptions{}); err != nil {
		return err
	}

	if a.kind == config.WorkerAPI {
		if err := a.startTransports(ctx); err != nil {
			return err
		}
	}

	if err := a.hooks.Call(ctx, AfterStart, CallOptions{}); err != nil {
		return err
	}

	a.setState(StateRunning)
	return nil
}

func (a *Application) startTransports(ctx context.Context) error {
	succeeded := 0
	for _, name := range a.transportNames {
		tr, err := transport.Build(name)
		if err != nil {
			a.logger.Error("failed to build transport", err, loggingpkg.LogFields{"transport": name})
			continue
		}
		if err := tr.Start(ctx, a); err != nil {
			a.logger.Error("failed to start transport", err, loggingpkg.LogFields{"transport": name})
			continue
		}
		a.transports = append(a.transports, tr)
		succeeded++
	}
	if len(a.transportNames) > 0 && succeeded == 0 {
		return errspkg.New(errspkg.Internal, "all configured transports failed to start")
	}
	return nil
}

// Stop runs BeforeStop, stops transports (failures logged), AfterStop,
// then Terminate. Calling Stop on an already-terminated Application is a
// no-op.
func (a *Application) Stop(ctx context.Context) error {
	if a.State() == StateTerminated {
		return nil
	}
	if err := a.transition([]State{StateRunning}, StateStopping); err != nil {
		return err
	}

	if err := a.hooks.Call(ctx, BeforeStop, CallOptions{}); err != nil {
		a.logger.Error("BeforeStop hook failed", err, nil)
	}

	for _, tr := range a.transports {
		if err := tr.Stop(ctx); err != nil {
			a.logger.Error("failed to stop transport", err, loggingpkg.LogFields{"transport": tr.Name()})
		}
	}

	if err := a.hooks.Call(ctx, AfterStop, CallOptions{}); err != nil {
		a.logger.Error("AfterStop hook failed", err, nil)
	}

	return a.Terminate(ctx)
}

// Terminate runs BeforeTerminate (reverse, sequential), disposes the
// container, clears the registry, then runs AfterTerminate (reverse,
// sequential). Idempotent: a second call is a no-op.
func (a *Application) Terminate(ctx context.Context) error {
	a.mu.Lock()
	if a.state == StateTerminated {
		a.mu.Unlock()
		return nil
	}
	a.state = StateTerminating
	a.mu.Unlock()

	if err := a.hooks.Call(ctx, BeforeTerminate, CallOptions{Reverse: true}); err != nil {
		a.logger.Error("BeforeTerminate hook failed", err, nil)
	}

	if err := a.root.Dispose(ctx); err != nil {
		a.logger.Error("container disposal failed", err, nil)
	}
	a.registry.Clear()

	if err := a.hooks.Call(ctx, AfterTerminate, CallOptions{Reverse: true}); err != nil {
		a.logger.Error("AfterTerminate hook failed", err, nil)
	}

	a.setState(StateTerminated)
	return nil
}

// Logger implements transport.Host.
func (a *Application) Logger() loggingpkg.ServiceLogger { return a.logger }

// OnConnect implements transport.Host: registers the connection and calls
// OnConnection hooks.
func (a *Application) OnConnect(raw transport.Connection) {
	conn := NewConnection(raw, a.root)
	a.connMu.Lock()
	a.connections[conn.ID()] = conn
	a.streams[conn.ID()] = NewStreamRegistry(a.cfg.StreamWindow, a.cfg.StreamChunkSize, a.metrics)
	a.connMu.Unlock()
	_ = a.hooks.Call(context.Background(), OnConnection, CallOptions{}, conn)
}

// OnFrame implements transport.Host: routes an inbound Frame to the
// dispatcher, stream registry, or subscription manager depending on its
// kind.
func (a *Application) OnFrame(id transport.ConnectionID, f transport.Frame) {
	conn := a.connectionByID(id)
	if conn == nil {
		return
	}

	switch f.Kind {
	case transport.FrameRPC:
		var env rpcEnvelope
		if err := jsoncodec.Unmarshal(f.Payload, &env); err != nil {
			a.logger.Error("malformed rpc envelope", err, loggingpkg.LogFields{"connection": string(id)})
			return
		}
		var timeout time.Duration
		if env.TimeoutMs > 0 {
			timeout = time.Duration(env.TimeoutMs) * time.Millisecond
		}
		resp := a.dispatcher.Dispatch(context.Background(), conn, env.Procedure, env.Payload, timeout, env.Headers)
		respEnv, err := jsoncodec.Marshal(rpcResponseEnvelope{CallID: env.CallID, Payload: resp})
		if err != nil {
			a.logger.Error("failed to encode rpc response envelope", err, loggingpkg.LogFields{"procedure": env.Procedure})
			return
		}
		_ = conn.Send(transport.Frame{Kind: transport.FrameRPC, Payload: respEnv})
	case transport.FrameStreamEnd:
		reg := a.streamRegistryByID(id)
		if reg != nil {
			reg.End(streamIDFromPayload(f.Payload))
		}
	case transport.FrameStreamAbort:
		reg := a.streamRegistryByID(id)
		if reg != nil {
			reg.Abort(streamIDFromPayload(f.Payload), true)
		}
	}
}

// OnDisconnect implements transport.Host: tears down a connection's
// subscriptions, streams, and connection-scope container.
func (a *Application) OnDisconnect(id transport.ConnectionID) {
	conn := a.connectionByID(id)
	if conn == nil || !conn.MarkClosed() {
		return
	}

	a.subs.OnDisconnection(id)

	if reg := a.streamRegistryByID(id); reg != nil {
		reg.AbortAll()
	}

	_ = a.hooks.Call(context.Background(), OnDisconnection, CallOptions{}, conn)
	_ = conn.Container().Dispose(context.Background())

	a.connMu.Lock()
	delete(a.connections, id)
	delete(a.streams, id)
	a.connMu.Unlock()
}

func (a *Application) connectionByID(id transport.ConnectionID) *Connection {
	a.connMu.Lock()
	defer a.connMu.Unlock()
	return a.connections[id]
}

func (a *Application) streamRegistryByID(id transport.ConnectionID) *streamRegistry {
	a.connMu.Lock()
	defer a.connMu.Unlock()
	return a.streams[id]
}

// streamIDFromPayload decodes a 4-byte big-endian stream id from a
// control frame's payload; malformed payloads decode to 0, a harmless
// lookup miss.
func streamIDFromPayload(payload []byte) uint32 {
	if len(payload) < 4 {
		return 0
	}
	return uint32(payload[0])<<24 | uint32(payload[1])<<16 | uint32(payload[2])<<8 | uint32(payload[3])
}

var _ transport.Host = (*Application)(nil)
