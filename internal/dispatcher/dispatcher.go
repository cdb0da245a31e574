// Package dispatcher schedules activity invocations on the work-item queue
// and executes them on workers.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"golang.org/x/time/rate"

	"github.com/petrijr/durable/internal/taskqueue"
	"github.com/petrijr/durable/pkg/api"
)

// ActivityLookup resolves activity names to implementations.
type ActivityLookup interface {
	Activity(name string) (api.Activity, bool)
}

// Config describes how to construct a Dispatcher.
type Config struct {
	Queue      taskqueue.Queue
	Activities ActivityLookup
	Observer   api.Observer
	Logger     *slog.Logger

	// RatePerSecond limits how many activity invocations start per second
	// across the process. Zero means unlimited.
	RatePerSecond float64
	// Burst is the limiter bucket size; it defaults to 1 when a rate is set.
	Burst int
}

// Dispatcher turns TaskScheduled events into activity work items and runs
// them. Activities run concurrently and in no particular order.
type Dispatcher struct {
	queue      taskqueue.Queue
	activities ActivityLookup
	observer   api.Observer
	logger     *slog.Logger
	limiter    *rate.Limiter
}

// New creates a Dispatcher.
func New(cfg Config) *Dispatcher {
	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}

	return &Dispatcher{
		queue:      cfg.Queue,
		activities: cfg.Activities,
		observer:   obs,
		logger:     logger,
		limiter:    limiter,
	}
}

// Schedule enqueues the activity described by ev, a TaskScheduled event.
func (d *Dispatcher) Schedule(ctx context.Context, instanceID string, generation int, ev api.HistoryEvent) error {
	if ev.Type != api.EventTaskScheduled {
		return fmt.Errorf("dispatcher: cannot schedule %s", ev.Type)
	}
	return d.queue.Enqueue(ctx, taskqueue.Task{
		Type:       taskqueue.TaskTypeActivity,
		InstanceID: instanceID,
		Generation: generation,
		Event:      &ev,
	})
}

// Execute runs the activity of an activity task and returns the resulting
// TaskCompleted or TaskFailed event. The returned error is only non-nil if
// ctx ended before the activity could start; the task should then be
// retried later.
func (d *Dispatcher) Execute(ctx context.Context, task *taskqueue.Task) (api.HistoryEvent, error) {
	ev := task.Event
	if ev == nil {
		return api.HistoryEvent{}, fmt.Errorf("dispatcher: activity task %s has no event", task.ID)
	}

	if err := d.limiter.Wait(ctx); err != nil {
		return api.HistoryEvent{}, err
	}

	info := api.ActivityInfo{
		InstanceID: task.InstanceID,
		Generation: task.Generation,
		TaskID:     ev.TaskID,
		Name:       ev.Name,
		Attempt:    ev.Attempt,
	}

	fn, ok := d.activities.Activity(ev.Name)
	if !ok {
		err := fmt.Errorf("%w: %s", api.ErrActivityNotRegistered, ev.Name)
		d.logger.ErrorContext(ctx, "activity not registered",
			slog.String("instance_id", task.InstanceID),
			slog.String("activity", ev.Name),
		)
		return api.NewTaskFailed(task.Generation, ev.TaskID,
			&api.FailureDetails{Kind: api.ErrorKindTerminal, Message: err.Error()}), nil
	}

	actCtx := api.WithActivityInfo(ctx, info)
	start := time.Now()
	d.observer.OnActivityStart(actCtx, info)

	out, err := invoke(actCtx, fn, ev.Input)

	var result *api.Payload
	if err == nil {
		result, err = api.NewPayload(out)
		if err != nil {
			err = &api.ActivityError{Kind: api.ErrorKindTerminal, Message: err.Error(), Err: err}
		}
	}

	d.observer.OnActivityCompleted(actCtx, info, err, time.Since(start))

	if err != nil {
		return api.NewTaskFailed(task.Generation, ev.TaskID, api.FailureFromError(err)), nil
	}
	return api.NewTaskCompleted(task.Generation, ev.TaskID, result), nil
}

// invoke calls fn, converting a panic into an error of kind Panic.
func invoke(ctx context.Context, fn api.Activity, input *api.Payload) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &api.ActivityError{
				Kind:    api.ErrorKindPanic,
				Message: fmt.Sprintf("activity panicked: %v\n%s", r, debug.Stack()),
			}
		}
	}()
	return fn(ctx, input)
}
