package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for engine tracing.
const tracerName = "github.com/petrijr/durable"

// TracingObserver reports activity executions as OpenTelemetry spans and
// orchestration lifecycle transitions as short spans carrying one event.
// If no TracerProvider is configured globally, the default noop tracer is
// used.
type TracingObserver struct {
	tracer trace.Tracer

	mu    sync.Mutex
	spans map[string]trace.Span
}

// NewTracingObserver uses the global TracerProvider.
func NewTracingObserver() *TracingObserver {
	return NewTracingObserverWithTracer(otel.Tracer(tracerName))
}

// NewTracingObserverWithTracer uses the provided tracer, which is useful in
// tests or when multiple providers are in use.
func NewTracingObserverWithTracer(tracer trace.Tracer) *TracingObserver {
	return &TracingObserver{tracer: tracer, spans: make(map[string]trace.Span)}
}

func activitySpanKey(info ActivityInfo) string {
	return fmt.Sprintf("%s/%d/%d/%d", info.InstanceID, info.Generation, info.TaskID, info.Attempt)
}

func (o *TracingObserver) lifecycle(ctx context.Context, event string, state *OrchestrationState, err error) {
	_, span := o.tracer.Start(ctx, "durable.orchestration",
		trace.WithAttributes(
			attribute.String("durable.instance_id", state.InstanceID),
			attribute.String("durable.orchestrator", state.Name),
			attribute.Int("durable.generation", state.Generation),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.AddEvent(event)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func (o *TracingObserver) OnOrchestrationStarted(ctx context.Context, state *OrchestrationState) {
	o.lifecycle(ctx, "started", state, nil)
}

func (o *TracingObserver) OnOrchestrationCompleted(ctx context.Context, state *OrchestrationState) {
	o.lifecycle(ctx, "completed", state, nil)
}

func (o *TracingObserver) OnOrchestrationFailed(ctx context.Context, state *OrchestrationState, err error) {
	o.lifecycle(ctx, "failed", state, err)
}

func (o *TracingObserver) OnOrchestrationContinuedAsNew(ctx context.Context, state *OrchestrationState) {
	o.lifecycle(ctx, "continued_as_new", state, nil)
}

func (o *TracingObserver) OnActivityStart(ctx context.Context, info ActivityInfo) {
	_, span := o.tracer.Start(ctx, "durable.activity.execute",
		trace.WithAttributes(
			attribute.String("durable.instance_id", info.InstanceID),
			attribute.String("durable.activity", info.Name),
			attribute.Int("durable.task_id", info.TaskID),
			attribute.Int("durable.attempt", info.Attempt),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)

	o.mu.Lock()
	o.spans[activitySpanKey(info)] = span
	o.mu.Unlock()
}

func (o *TracingObserver) OnActivityCompleted(ctx context.Context, info ActivityInfo, err error, d time.Duration) {
	key := activitySpanKey(info)
	o.mu.Lock()
	span, ok := o.spans[key]
	delete(o.spans, key)
	o.mu.Unlock()
	if !ok {
		return
	}

	span.SetAttributes(attribute.Int64("durable.duration_ms", d.Milliseconds()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
