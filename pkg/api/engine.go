package api

import (
	"context"
	"time"
)

// Status represents the lifecycle state of an orchestration instance.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"

	// StatusFaulted means the engine halted the instance (determinism
	// violation, corrupted history, unknown orchestrator). It is distinct
	// from StatusFailed, which is the orchestrator's own failure result.
	StatusFaulted Status = "FAULTED"
)

// IsTerminal reports whether no further progress is possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusFaulted
}

// OrchestrationState is the client-facing view of an instance, derived from
// its history.
type OrchestrationState struct {
	InstanceID string
	Name       string
	Status     Status
	Generation int

	Input   *Payload
	Output  *Payload
	Failure *FailureDetails

	// WaitingFor lists the external events the instance is currently
	// blocked on.
	WaitingFor []string

	CreatedAt     time.Time
	LastUpdatedAt time.Time
	HistoryLength int
}

// InstanceListOptions controls how instances are listed.
// Zero values mean "no filter" for that field.
type InstanceListOptions struct {
	// Name, if non-empty, limits results to instances of the given orchestrator.
	Name string

	// Status, if non-empty, limits results to instances with the given status.
	Status Status
}

// StartOption customizes StartOrchestration.
type StartOption func(*StartOptions)

// StartOptions is the resolved form of a list of StartOption.
type StartOptions struct {
	InstanceID string
}

// WithInstanceID starts the orchestration under a caller-chosen ID instead
// of a generated UUID.
func WithInstanceID(id string) StartOption {
	return func(o *StartOptions) {
		o.InstanceID = id
	}
}

// ResolveStartOptions applies opts in order.
func ResolveStartOptions(opts ...StartOption) StartOptions {
	var o StartOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// Client starts orchestrations, delivers external events and reports status.
type Client interface {
	// StartOrchestration records ExecutionStarted for a new instance and
	// schedules its first activation. It returns the instance ID.
	StartOrchestration(ctx context.Context, name string, input any, opts ...StartOption) (string, error)

	// RaiseEvent delivers a named external event. Events raised before the
	// orchestrator waits for them are buffered.
	RaiseEvent(ctx context.Context, instanceID, eventName string, payload any) error

	// GetStatus returns the current state of an instance.
	GetStatus(ctx context.Context, instanceID string) (*OrchestrationState, error)

	// WaitForCompletion polls until the instance reaches a terminal status
	// or ctx is done.
	WaitForCompletion(ctx context.Context, instanceID string) (*OrchestrationState, error)

	// ListInstances returns instances matching the given options.
	ListInstances(ctx context.Context, opts InstanceListOptions) ([]*OrchestrationState, error)
}

// Engine is a Client that also hosts orchestrators and activities.
type Engine interface {
	Client

	RegisterOrchestrator(name string, fn Orchestrator) error
	RegisterActivity(name string, fn Activity) error

	// Run processes work items until ctx is cancelled.
	Run(ctx context.Context) error

	// RecoverInstances re-dispatches outstanding work recorded in history
	// for every running instance. It is intended to be called on process
	// startup, before Run. It returns the number of instances touched.
	RecoverInstances(ctx context.Context) (int, error)
}
