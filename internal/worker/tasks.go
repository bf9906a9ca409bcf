package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/neematajs/neemata-go/internal/config"
	errspkg "github.com/neematajs/neemata-go/internal/errors"
	"github.com/neematajs/neemata-go/internal/ids"
	loggingpkg "github.com/neematajs/neemata-go/internal/logging"
)

// ErrOffloadTimeout is returned by an Offloader when its own
// supervisor-side deadline (Config.TaskOffloadTimeout) elapses before the
// routed task worker replies, as distinct from the worker dying mid-call.
var ErrOffloadTimeout = errors.New("neemata: task offload timed out")

// Offloader is the narrow surface the Task Engine needs from the
// supervisor to cross process boundaries: serialize a task invocation,
// post it, and await the matching reply. A real Offloader is backed by
// the supervisor's worker message protocol; tests can substitute a fake.
type Offloader interface {
	Offload(ctx context.Context, correlationID, taskName string, args any) (any, error)
}

// TaskEngine runs tasks: locally for Task workers or local-only tasks,
// supervisor offload otherwise, with in-flight correlation tracking so a
// task worker crash fails every call routed to it with TaskWorkerLost.
type TaskEngine struct {
	registry     *Registry
	root         *Container
	kind         config.WorkerType
	offloader    Offloader
	tasksTimeout time.Duration
	metrics      *Metrics
	logger       loggingpkg.ServiceLogger

	mu       sync.Mutex
	inflight map[string]context.CancelFunc
}

// NewTaskEngine constructs a TaskEngine. offloader may be nil, in which
// case every task executes locally regardless of LocalOnly.
func NewTaskEngine(registry *Registry, root *Container, kind config.WorkerType, offloader Offloader, tasksTimeout time.Duration, metrics *Metrics, logger loggingpkg.ServiceLogger) *TaskEngine {
	return &TaskEngine{
		registry:     registry,
		root:         root,
		kind:         kind,
		offloader:    offloader,
		tasksTimeout: tasksTimeout,
		metrics:      metrics,
		logger:       logger,
		inflight:     make(map[string]context.CancelFunc),
	}
}

// Execute runs taskName with args, locally if this is a Task worker, the
// task is LocalOnly, or no Offloader is configured; offloaded otherwise.
func (e *TaskEngine) Execute(ctx context.Context, taskName string, args any) (any, error) {
	task, err := e.registry.Task(taskName)
	if err != nil {
		return nil, err
	}

	if e.shouldRunLocally(task) {
		return e.executeLocal(ctx, task, args)
	}
	return e.executeOffloaded(ctx, task, args)
}

func (e *TaskEngine) shouldRunLocally(task *Task) bool {
	return e.kind == config.WorkerTask || task.LocalOnly || e.offloader == nil
}

func (e *TaskEngine) executeLocal(ctx context.Context, task *Task, args any) (any, error) {
	ctx, span := startTaskSpan(ctx, task.Name, false)
	defer span.End()

	timeout := effectiveTimeout(task.Timeout, e.tasksTimeout)
	call := NewTaskCall(ctx, e.root, task.Name, args, timeout, nil)
	defer func() { _ = call.Dispose(context.Background()) }()

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := task.Fn(call.Context(), call, args)
		done <- outcome{result, err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return nil, errspkg.Classify(o.err)
		}
		return o.result, nil
	case <-call.Context().Done():
		if e.metrics != nil {
			e.metrics.TasksTimedOut.Inc()
		}
		return nil, errspkg.New(errspkg.TaskTimeout, fmt.Sprintf("task %q exceeded its deadline", task.Name))
	}
}

func (e *TaskEngine) executeOffloaded(ctx context.Context, task *Task, args any) (any, error) {
	ctx, span := startTaskSpan(ctx, task.Name, true)
	defer span.End()

	correlationID := ids.CreateULID()
	timeout := effectiveTimeout(task.Timeout, e.tasksTimeout)
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ctx = e.trackInflight(correlationID, ctx)
	defer e.untrackInflight(correlationID)

	if e.metrics != nil {
		e.metrics.TasksOffloaded.Inc()
	}

	result, err := e.offloader.Offload(ctx, correlationID, task.Name, args)
	if err != nil {
		if errors.Is(err, ErrOffloadTimeout) {
			if e.metrics != nil {
				e.metrics.TasksTimedOut.Inc()
			}
			return nil, errspkg.New(errspkg.TaskTimeout, fmt.Sprintf("task %q exceeded its offload deadline", task.Name))
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			if e.metrics != nil {
				e.metrics.TasksTimedOut.Inc()
			}
			return nil, errspkg.New(errspkg.TaskTimeout, fmt.Sprintf("task %q exceeded its deadline", task.Name))
		}
		if ctx.Err() != nil {
			return nil, errspkg.New(errspkg.TaskWorkerLost, fmt.Sprintf("task worker lost mid-call for %q", task.Name))
		}
		return nil, errspkg.Classify(err)
	}
	return result, nil
}

// trackInflight derives a cancelable context for correlationID and
// registers its cancel func so FailInflightForWorker can unblock a
// pending offload when the routed-to worker crashes.
func (e *TaskEngine) trackInflight(correlationID string, parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)
	e.mu.Lock()
	e.inflight[correlationID] = cancel
	e.mu.Unlock()
	return ctx
}

func (e *TaskEngine) untrackInflight(correlationID string) {
	e.mu.Lock()
	cancel, ok := e.inflight[correlationID]
	delete(e.inflight, correlationID)
	e.mu.Unlock()
	if ok {
		cancel()
	}
}

// FailInflightForWorker fails every in-flight correlation with
// TaskWorkerLost. The supervisor calls this when a task worker crashes;
// correlationIDs is the set the supervisor had routed to that worker.
func (e *TaskEngine) FailInflightForWorker(correlationIDs []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, id := range correlationIDs {
		if cancel, ok := e.inflight[id]; ok {
			cancel()
			delete(e.inflight, id)
		}
	}
}

// WorkerCrashed records a supervised worker process crash, regardless of
// whether it had any in-flight correlations routed to it.
func (e *TaskEngine) WorkerCrashed() {
	if e.metrics != nil {
		e.metrics.WorkerCrashes.Inc()
	}
}

// InflightCount reports how many task offloads are currently awaiting a
// reply, for tests and diagnostics.
func (e *TaskEngine) InflightCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.inflight)
}
