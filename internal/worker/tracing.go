package worker

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "neemata-go/worker"

// startDispatchSpan opens a span around one API Dispatcher invocation.
func startDispatchSpan(ctx context.Context, procedure string) (context.Context, trace.Span) {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "Dispatch")
	span.SetAttributes(attribute.String("neemata.procedure", procedure))
	return ctx, span
}

// startTaskSpan opens a span around one task execution, local or
// offloaded. The span lives in the calling worker only: the ExecuteInvoke
// envelope carries no span context, so the task worker's side of an
// offloaded task is not linked to this span.
func startTaskSpan(ctx context.Context, task string, offloaded bool) (context.Context, trace.Span) {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "Task")
	span.SetAttributes(
		attribute.String("neemata.task", task),
		attribute.Bool("neemata.offloaded", offloaded),
	)
	return ctx, span
}
