package api

import (
	"context"
	"fmt"
	"time"
)

// OrchestrationContext is the only channel through which orchestrator code
// may interact with the outside world. Every method that schedules work
// creates a suspension point; suspension points are numbered in the order
// they are reached, so orchestrator code must make the same calls in the
// same order on every replay.
type OrchestrationContext interface {
	// InstanceID returns the stable identity of the orchestration instance.
	InstanceID() string

	// Name returns the registered orchestrator name.
	Name() string

	// Generation starts at 1 and increases on each ContinueAsNew.
	Generation() int

	// IsReplaying reports whether recorded history is still being consumed.
	// Side effects that must happen only once should be gated on it.
	IsReplaying() bool

	// CurrentTime is the deterministic time of the current activation.
	CurrentTime() time.Time

	// GetInput decodes the orchestration input into v.
	GetInput(v any) error

	CallActivity(name string, input any, opts ...CallOption) Task
	CallSubOrchestrator(name string, input any, opts ...CallOption) Task
	CreateTimer(d time.Duration) Task
	WaitForExternalEvent(name string) Task

	// WaitForExternalEventWithTimeout races an event wait against a durable
	// timer. If the timer wins, Await returns an error wrapping
	// ErrTimeoutExceeded.
	WaitForExternalEventWithTimeout(name string, timeout time.Duration) Task

	// WhenAll waits for every task to finish and returns the joined errors
	// of those that failed.
	WhenAll(tasks ...Task) error

	// WhenAny waits until at least one task has finished and returns the
	// first one (in argument order) that did.
	WhenAny(tasks ...Task) (Task, error)

	// ContinueAsNew ends the current generation once the orchestrator
	// returns and restarts it with input and a truncated history.
	ContinueAsNew(input any)
}

// Task is a handle to pending durable work.
type Task interface {
	// Await blocks the orchestrator until the task completes and decodes its
	// result into v (which may be nil).
	Await(v any) error

	// Done reports whether the task already has a result.
	Done() bool

	// Cancel abandons a pending timer or event wait. It is a no-op on
	// completed tasks and on activities.
	Cancel()
}

// Orchestrator is a deterministic function that coordinates durable work.
type Orchestrator func(ctx OrchestrationContext) (any, error)

// Activity is a unit of side-effecting work executed by a worker. The
// returned value becomes the task result.
type Activity func(ctx context.Context, input *Payload) (any, error)

// OrchestratorFunc adapts a typed orchestrator.
func OrchestratorFunc[I, O any](fn func(ctx OrchestrationContext, in I) (O, error)) Orchestrator {
	return func(ctx OrchestrationContext) (any, error) {
		var in I
		if err := ctx.GetInput(&in); err != nil {
			return nil, err
		}
		return fn(ctx, in)
	}
}

// ActivityFunc adapts a typed activity.
func ActivityFunc[I, O any](fn func(ctx context.Context, in I) (O, error)) Activity {
	return func(ctx context.Context, input *Payload) (any, error) {
		var in I
		if err := input.Decode(&in); err != nil {
			return nil, &ActivityError{Kind: ErrorKindTerminal, Message: fmt.Sprintf("invalid input: %v", err), Err: err}
		}
		return fn(ctx, in)
	}
}

// ActionFunc adapts a typed activity that produces no output.
func ActionFunc[I any](fn func(ctx context.Context, in I) error) Activity {
	return ActivityFunc(func(ctx context.Context, in I) (any, error) {
		return nil, fn(ctx, in)
	})
}

// CallOption customizes an activity or sub-orchestration call.
type CallOption func(*CallOptions)

// CallOptions is the resolved form of a list of CallOption.
type CallOptions struct {
	Retry *RetryOptions
}

// WithRetry attaches a retry policy to an activity call.
func WithRetry(opts RetryOptions) CallOption {
	return func(o *CallOptions) {
		o.Retry = &opts
	}
}

// ResolveCallOptions applies opts in order.
func ResolveCallOptions(opts ...CallOption) CallOptions {
	var o CallOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// ActivityInfo describes the invocation an activity is running for.
type ActivityInfo struct {
	InstanceID string
	Generation int
	TaskID     int
	Name       string
	Attempt    int
}

type activityInfoKey struct{}

// WithActivityInfo returns a context carrying info.
func WithActivityInfo(ctx context.Context, info ActivityInfo) context.Context {
	return context.WithValue(ctx, activityInfoKey{}, info)
}

// ActivityInfoFromContext returns the invocation details set by the
// dispatcher.
func ActivityInfoFromContext(ctx context.Context) (ActivityInfo, bool) {
	info, ok := ctx.Value(activityInfoKey{}).(ActivityInfo)
	return info, ok
}
