package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from the engine for logging and metrics.
//
// Implementations should be fast and non-blocking; heavy work should be done
// asynchronously so as not to delay orchestration progress. Callbacks are
// only made for live execution, never while replaying history.
type Observer interface {
	// OnOrchestrationStarted is called once when a new instance is
	// recorded by StartOrchestration or a sub-orchestration call.
	OnOrchestrationStarted(ctx context.Context, state *OrchestrationState)

	// OnOrchestrationCompleted is called when an instance reaches
	// StatusCompleted.
	OnOrchestrationCompleted(ctx context.Context, state *OrchestrationState)

	// OnOrchestrationFailed is called when an instance reaches StatusFailed
	// or StatusFaulted.
	OnOrchestrationFailed(ctx context.Context, state *OrchestrationState, err error)

	// OnOrchestrationContinuedAsNew is called after the history of an
	// instance has been reset to a new generation.
	OnOrchestrationContinuedAsNew(ctx context.Context, state *OrchestrationState)

	// OnActivityStart is called before invoking an activity.
	OnActivityStart(ctx context.Context, info ActivityInfo)

	// OnActivityCompleted is called after an activity returns, for both
	// successes and failures (err != nil).
	OnActivityCompleted(ctx context.Context, info ActivityInfo, err error, duration time.Duration)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnOrchestrationStarted(ctx context.Context, state *OrchestrationState)   {}
func (NoopObserver) OnOrchestrationCompleted(ctx context.Context, state *OrchestrationState) {}
func (NoopObserver) OnOrchestrationFailed(ctx context.Context, state *OrchestrationState, err error) {
}
func (NoopObserver) OnOrchestrationContinuedAsNew(ctx context.Context, state *OrchestrationState) {
}
func (NoopObserver) OnActivityStart(ctx context.Context, info ActivityInfo) {}
func (NoopObserver) OnActivityCompleted(ctx context.Context, info ActivityInfo, err error, d time.Duration) {
}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnOrchestrationStarted(ctx context.Context, state *OrchestrationState) {
	for _, o := range c.observers {
		o.OnOrchestrationStarted(ctx, state)
	}
}

func (c *CompositeObserver) OnOrchestrationCompleted(ctx context.Context, state *OrchestrationState) {
	for _, o := range c.observers {
		o.OnOrchestrationCompleted(ctx, state)
	}
}

func (c *CompositeObserver) OnOrchestrationFailed(ctx context.Context, state *OrchestrationState, err error) {
	for _, o := range c.observers {
		o.OnOrchestrationFailed(ctx, state, err)
	}
}

func (c *CompositeObserver) OnOrchestrationContinuedAsNew(ctx context.Context, state *OrchestrationState) {
	for _, o := range c.observers {
		o.OnOrchestrationContinuedAsNew(ctx, state)
	}
}

func (c *CompositeObserver) OnActivityStart(ctx context.Context, info ActivityInfo) {
	for _, o := range c.observers {
		o.OnActivityStart(ctx, info)
	}
}

func (c *CompositeObserver) OnActivityCompleted(ctx context.Context, info ActivityInfo, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnActivityCompleted(ctx, info, err, d)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs orchestration and
// activity lifecycle events using the provided slog.Logger. If logger is
// nil, slog.Default() is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnOrchestrationStarted(ctx context.Context, state *OrchestrationState) {
	o.Logger.InfoContext(ctx, "orchestration_started",
		slog.String("orchestrator", state.Name),
		slog.String("instance_id", state.InstanceID),
	)
}

func (o *LoggingObserver) OnOrchestrationCompleted(ctx context.Context, state *OrchestrationState) {
	o.Logger.InfoContext(ctx, "orchestration_completed",
		slog.String("orchestrator", state.Name),
		slog.String("instance_id", state.InstanceID),
		slog.Int("generation", state.Generation),
	)
}

func (o *LoggingObserver) OnOrchestrationFailed(ctx context.Context, state *OrchestrationState, err error) {
	o.Logger.ErrorContext(ctx, "orchestration_failed",
		slog.String("orchestrator", state.Name),
		slog.String("instance_id", state.InstanceID),
		slog.String("status", string(state.Status)),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnOrchestrationContinuedAsNew(ctx context.Context, state *OrchestrationState) {
	o.Logger.InfoContext(ctx, "orchestration_continued_as_new",
		slog.String("orchestrator", state.Name),
		slog.String("instance_id", state.InstanceID),
		slog.Int("generation", state.Generation),
	)
}

func (o *LoggingObserver) OnActivityStart(ctx context.Context, info ActivityInfo) {
	o.Logger.DebugContext(ctx, "activity_start",
		slog.String("instance_id", info.InstanceID),
		slog.String("activity", info.Name),
		slog.Int("task_id", info.TaskID),
		slog.Int("attempt", info.Attempt),
	)
}

func (o *LoggingObserver) OnActivityCompleted(ctx context.Context, info ActivityInfo, err error, d time.Duration) {
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "activity_completed",
		slog.String("instance_id", info.InstanceID),
		slog.String("activity", info.Name),
		slog.Int("task_id", info.TaskID),
		slog.Int("attempt", info.Attempt),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

// BasicMetrics collects simple counters and aggregate activity durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	orchestrationsStarted   atomic.Int64
	orchestrationsCompleted atomic.Int64
	orchestrationsFailed    atomic.Int64
	continuedAsNew          atomic.Int64
	activitiesCompleted     atomic.Int64
	activitiesFailed        atomic.Int64
	totalActivityDuration   atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	OrchestrationsStarted   int64
	OrchestrationsCompleted int64
	OrchestrationsFailed    int64
	PendingOrchestrations   int64
	ContinuedAsNew          int64

	ActivitiesCompleted int64
	ActivitiesFailed    int64
	AvgActivityDuration time.Duration
}

func (m *BasicMetrics) OnOrchestrationStarted(ctx context.Context, state *OrchestrationState) {
	m.orchestrationsStarted.Add(1)
}

func (m *BasicMetrics) OnOrchestrationCompleted(ctx context.Context, state *OrchestrationState) {
	m.orchestrationsCompleted.Add(1)
}

func (m *BasicMetrics) OnOrchestrationFailed(ctx context.Context, state *OrchestrationState, err error) {
	m.orchestrationsFailed.Add(1)
}

func (m *BasicMetrics) OnOrchestrationContinuedAsNew(ctx context.Context, state *OrchestrationState) {
	m.continuedAsNew.Add(1)
}

func (m *BasicMetrics) OnActivityCompleted(ctx context.Context, info ActivityInfo, err error, d time.Duration) {
	if err != nil {
		m.activitiesFailed.Add(1)
		return
	}
	// Only successful activities count towards the average duration.
	m.activitiesCompleted.Add(1)
	m.totalActivityDuration.Add(d.Nanoseconds())
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	started := m.orchestrationsStarted.Load()
	completed := m.orchestrationsCompleted.Load()
	failed := m.orchestrationsFailed.Load()
	activities := m.activitiesCompleted.Load()
	totalNs := m.totalActivityDuration.Load()

	var avg time.Duration
	if activities > 0 {
		avg = time.Duration(totalNs / activities)
	}

	return BasicMetricsSnapshot{
		OrchestrationsStarted:   started,
		OrchestrationsCompleted: completed,
		OrchestrationsFailed:    failed,
		PendingOrchestrations:   started - completed - failed,
		ContinuedAsNew:          m.continuedAsNew.Load(),
		ActivitiesCompleted:     activities,
		ActivitiesFailed:        m.activitiesFailed.Load(),
		AvgActivityDuration:     avg,
	}
}
