package worker

import (
	"context"
	stderrors "errors"
	"sync"

	"golang.org/x/sync/errgroup"

	loggingpkg "github.com/neematajs/neemata-go/internal/logging"
)

// HookKind is the closed set of lifecycle and connection events a HookEngine
// dispatches to registered bindings.
type HookKind string

const (
	BeforeInitialize HookKind = "BeforeInitialize"
	AfterInitialize  HookKind = "AfterInitialize"
	BeforeStart      HookKind = "BeforeStart"
	AfterStart       HookKind = "AfterStart"
	BeforeStop       HookKind = "BeforeStop"
	AfterStop        HookKind = "AfterStop"
	BeforeTerminate  HookKind = "BeforeTerminate"
	AfterTerminate   HookKind = "AfterTerminate"
	OnConnection     HookKind = "OnConnection"
	OnDisconnection  HookKind = "OnDisconnection"
)

// startSensitive reports whether a failure of this kind's bindings should
// abort the remaining bindings and propagate to the caller (Initialize/Start
// kinds), as opposed to being logged while the rest run to completion
// (Stop/Terminate/connection kinds).
func startSensitive(kind HookKind) bool {
	switch kind {
	case BeforeInitialize, AfterInitialize, BeforeStart, AfterStart:
		return true
	default:
		return false
	}
}

// HookFunc is a lifecycle binding body. args mirrors whatever the caller
// passed to Call; bindings are expected to know their own kind's argument
// shape.
type HookFunc func(ctx context.Context, args ...any) error

type hookBinding struct {
	fn   HookFunc
	name string
}

// CallOptions controls how a HookEngine invokes one kind's bindings.
type CallOptions struct {
	Concurrent bool
	Reverse    bool
}

// HookEngine holds ordered bindings per HookKind and dispatches them
// sequentially or concurrently, honoring the start-fatal / stop-logged
// policy of the lifecycle.
type HookEngine struct {
	mu       sync.RWMutex
	bindings map[HookKind][]hookBinding
	logger   loggingpkg.ServiceLogger
}

// NewHookEngine constructs an empty HookEngine.
func NewHookEngine(logger loggingpkg.ServiceLogger) *HookEngine {
	return &HookEngine{
		bindings: make(map[HookKind][]hookBinding),
		logger:   logger,
	}
}

// Bind registers fn under kind, appended after any existing bindings of
// that kind (registration order).
func (e *HookEngine) Bind(kind HookKind, name string, fn HookFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bindings[kind] = append(e.bindings[kind], hookBinding{fn: fn, name: name})
}

// Call invokes every binding of kind per opts. For start-sensitive kinds the
// first failure (sequential) or the aggregated failures (concurrent) are
// returned to the caller. For all other kinds, failures are logged and
// Call always returns nil.
func (e *HookEngine) Call(ctx context.Context, kind HookKind, opts CallOptions, args ...any) error {
	e.mu.RLock()
	bound := append([]hookBinding(nil), e.bindings[kind]...)
	e.mu.RUnlock()

	if opts.Reverse {
		for i, j := 0, len(bound)-1; i < j; i, j = i+1, j-1 {
			bound[i], bound[j] = bound[j], bound[i]
		}
	}

	fatal := startSensitive(kind)

	if opts.Concurrent {
		return e.callConcurrent(ctx, kind, bound, fatal, args...)
	}
	return e.callSequential(ctx, kind, bound, fatal, args...)
}

func (e *HookEngine) callSequential(ctx context.Context, kind HookKind, bound []hookBinding, fatal bool, args ...any) error {
	for _, b := range bound {
		if err := b.fn(ctx, args...); err != nil {
			if fatal {
				return err
			}
			e.logFailure(kind, b.name, err)
		}
	}
	return nil
}

func (e *HookEngine) callConcurrent(ctx context.Context, kind HookKind, bound []hookBinding, fatal bool, args ...any) error {
	if !fatal {
		var wg sync.WaitGroup
		wg.Add(len(bound))
		for _, b := range bound {
			b := b
			go func() {
				defer wg.Done()
				if err := b.fn(ctx, args...); err != nil {
					e.logFailure(kind, b.name, err)
				}
			}()
		}
		wg.Wait()
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	var errs []error
	for _, b := range bound {
		b := b
		g.Go(func() error {
			if err := b.fn(gctx, args...); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return err
			}
			return nil
		})
	}
	_ = g.Wait()
	if len(errs) == 0 {
		return nil
	}
	return stderrors.Join(errs...)
}

func (e *HookEngine) logFailure(kind HookKind, name string, err error) {
	if e.logger == nil {
		return
	}
	e.logger.Error("hook binding failed", err, loggingpkg.LogFields{"kind": string(kind), "binding": name})
}
