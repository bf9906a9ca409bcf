package worker

import (
	"context"
	"fmt"
	"time"

	loggingpkg "github.com/neematajs/neemata-go/internal/logging"
	metadatapkg "github.com/neematajs/neemata-go/internal/metadata"

	errspkg "github.com/neematajs/neemata-go/internal/errors"
	"github.com/neematajs/neemata-go/internal/worker/format"
)

// wireError is the client-facing error envelope: code is the taxonomy kind,
// message is the code concatenated with human text, data is format-defined.
type wireError struct {
	Code    string               `json:"code"`
	Message string               `json:"message"`
	Data    any                  `json:"data,omitempty"`
	Fields  []errspkg.FieldError `json:"fields,omitempty"`
}

// Dispatcher implements the API dispatch pipeline: resolve, decode,
// validate, scope, guards, timeout, middlewares, handler, encode, mapping
// every failure through the error taxonomy.
type Dispatcher struct {
	registry   *Registry
	selector   *format.Selector
	hooks      *HookEngine
	metrics    *Metrics
	apiTimeout time.Duration
	logger     loggingpkg.ServiceLogger
}

// NewDispatcher constructs a Dispatcher bound to the given collaborators.
func NewDispatcher(registry *Registry, selector *format.Selector, hooks *HookEngine, metrics *Metrics, apiTimeout time.Duration, logger loggingpkg.ServiceLogger) *Dispatcher {
	return &Dispatcher{
		registry:   registry,
		selector:   selector,
		hooks:      hooks,
		metrics:    metrics,
		apiTimeout: apiTimeout,
		logger:     logger,
	}
}

// Dispatch runs one RPC end to end and always returns an encoded response
// (success or error), never a Go error. Failures are mapped to the wire
// error envelope and encoded with the same format used for decoding.
func (d *Dispatcher) Dispatch(ctx context.Context, conn *Connection, procedureName string, rawPayload []byte, timeoutOverride time.Duration, headers metadatapkg.Metadata) []byte {
	start := timeNow()
	fm, ok := d.selector.Select(conn.ContentType())
	if !ok {
		return d.encodeFallback(procedureName, errspkg.New(errspkg.InvalidPayload, fmt.Sprintf("unsupported content-type %q", conn.ContentType())))
	}

	ctx, span := startDispatchSpan(ctx, procedureName)
	defer span.End()

	proc, err := d.registry.Procedure(procedureName)
	if err != nil {
		return d.finish(fm, procedureName, nil, err, start)
	}

	input, err := d.decodeInput(fm, proc, rawPayload)
	if err != nil {
		return d.finish(fm, procedureName, nil, err, start)
	}

	if proc.Input != nil {
		if fields := proc.Input.Validate(input); len(fields) > 0 {
			verr := errspkg.New(errspkg.ValidationErr, "input validation failed").WithFields(fields)
			return d.finish(fm, procedureName, nil, verr, start)
		}
	}

	timeout := effectiveTimeout(proc.Timeout, d.apiTimeout, timeoutOverride)
	call := NewCall(ctx, conn, procedureName, input, timeout, headers)
	defer func() { _ = call.Dispose(context.Background()) }()

	for _, guard := range proc.Guards {
		allowed, gerr := guard(call)
		if gerr != nil {
			return d.finish(fm, procedureName, nil, gerr, start)
		}
		if !allowed {
			return d.finish(fm, procedureName, nil, errspkg.New(errspkg.Forbidden, "guard rejected call"), start)
		}
	}

	handler := proc.Handler
	for i := len(proc.Middlewares) - 1; i >= 0; i-- {
		handler = proc.Middlewares[i](handler)
	}

	result, herr := d.invoke(call, handler)
	if herr != nil {
		return d.finish(fm, procedureName, nil, herr, start)
	}

	if proc.Output != nil {
		if fields := proc.Output.Validate(result); len(fields) > 0 {
			verr := errspkg.New(errspkg.ValidationErr, "output validation failed").WithFields(fields)
			return d.finish(fm, procedureName, nil, verr, start)
		}
	}

	return d.finish(fm, procedureName, result, nil, start)
}

// invoke runs handler, translating a timed-out call context into Timeout
// and discarding late results: once the deadline elapses, the handler may
// still be running, but its response is never returned to the caller.
func (d *Dispatcher) invoke(call *Call, handler Handler) (any, error) {
	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := handler(call.Context(), call, call.Input)
		done <- outcome{result, err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return nil, errspkg.Classify(o.err)
		}
		return o.result, nil
	case <-call.Context().Done():
		return nil, errspkg.New(errspkg.Timeout, fmt.Sprintf("procedure %q exceeded its deadline", call.Procedure))
	}
}

func (d *Dispatcher) decodeInput(fm format.Format, proc *Procedure, rawPayload []byte) (any, error) {
	if proc.InputFactory != nil {
		target := proc.InputFactory()
		if len(rawPayload) == 0 {
			return target, nil
		}
		if err := fm.Decode(rawPayload, target); err != nil {
			return nil, errspkg.Wrap(errspkg.InvalidPayload, "failed to decode payload", err)
		}
		return target, nil
	}

	target := map[string]any{}
	if len(rawPayload) == 0 {
		return target, nil
	}
	if err := fm.Decode(rawPayload, &target); err != nil {
		return nil, errspkg.Wrap(errspkg.InvalidPayload, "failed to decode payload", err)
	}
	return target, nil
}

func (d *Dispatcher) finish(fm format.Format, procedure string, result any, err error, start time.Time) []byte {
	outcome := "ok"
	defer func() {
		if d.metrics == nil {
			return
		}
		d.metrics.CallsTotal.WithLabelValues(procedure, outcome).Inc()
		d.metrics.CallDuration.WithLabelValues(procedure).Observe(timeNow().Sub(start).Seconds())
	}()

	if err == nil {
		data, encErr := fm.Encode(result)
		if encErr != nil {
			outcome = "error"
			return d.encodeFallback(procedure, errspkg.Wrap(errspkg.Internal, "failed to encode response", encErr))
		}
		return data
	}

	outcome = "error"
	re := errspkg.Classify(err)
	if !errspkg.Surfaced(re.Kind) && d.logger != nil {
		d.logger.Error("dispatch failed with non-surfaced error", re, loggingpkg.LogFields{"procedure": procedure})
	}
	wire := wireError{Code: string(re.Kind), Message: re.Error(), Data: re.Data, Fields: re.Fields}
	data, encErr := fm.Encode(wire)
	if encErr != nil {
		return d.encodeFallback(procedure, re)
	}
	return data
}

// encodeFallback produces a minimal JSON error payload for failures that
// occur before a Format could even be selected (or when encoding the
// selected format's own error fails).
func (d *Dispatcher) encodeFallback(procedure string, err *errspkg.RuntimeError) []byte {
	if d.logger != nil {
		d.logger.Error("dispatch fallback encoding", err, loggingpkg.LogFields{"procedure": procedure})
	}
	return []byte(fmt.Sprintf(`{"code":%q,"message":%q}`, err.Kind, err.Error()))
}

// effectiveTimeout returns the smallest positive duration among the
// candidates, or zero if none are positive (no deadline).
func effectiveTimeout(candidates ...time.Duration) time.Duration {
	var min time.Duration
	for _, c := range candidates {
		if c <= 0 {
			continue
		}
		if min == 0 || c < min {
			min = c
		}
	}
	return min
}
