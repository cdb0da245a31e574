package api

import (
	"errors"
	"fmt"
)

// Error kinds carried by ActivityError and FailureDetails.
const (
	// ErrorKindTransient marks failures that retry policies usually handle.
	ErrorKindTransient = "Transient"
	// ErrorKindTerminal marks failures that should never be retried.
	ErrorKindTerminal = "Terminal"
	// ErrorKindGeneric is used for plain Go errors with no explicit kind.
	ErrorKindGeneric = "Error"
	// ErrorKindPanic is used when user code panicked.
	ErrorKindPanic = "Panic"
	// ErrorKindTimeout is used when a bounded wait resolved via its timer.
	ErrorKindTimeout = "TimeoutExceeded"
	// ErrorKindFault is recorded on ExecutionFaulted events.
	ErrorKindFault = "Fault"
)

var (
	// ErrInstanceNotFound is returned when no history exists for an instance.
	ErrInstanceNotFound = errors.New("orchestration instance not found")

	// ErrInstanceNotRunning is returned when an operation needs a running
	// instance but the instance already completed, failed or faulted.
	ErrInstanceNotRunning = errors.New("orchestration instance is not running")

	// ErrInstanceExists is returned when starting an instance with an ID that
	// already has history.
	ErrInstanceExists = errors.New("orchestration instance already exists")

	// ErrOrchestratorNotRegistered is returned for unknown orchestrator names.
	ErrOrchestratorNotRegistered = errors.New("orchestrator not registered")

	// ErrActivityNotRegistered is returned for unknown activity names.
	ErrActivityNotRegistered = errors.New("activity not registered")

	// ErrDeterminismViolation is the sentinel wrapped by DeterminismError.
	ErrDeterminismViolation = errors.New("determinism violation")

	// ErrHistoryCorrupted is returned when a stored history cannot be a
	// valid execution (for example events after ExecutionCompleted).
	ErrHistoryCorrupted = errors.New("history corrupted")

	// ErrTimeoutExceeded is returned by bounded waits that resolved via
	// their timer rather than the awaited event.
	ErrTimeoutExceeded = errors.New("timeout exceeded")

	// ErrPayloadTypeMismatch is returned when a payload is decoded into a
	// target of a different type.
	ErrPayloadTypeMismatch = errors.New("payload type mismatch")

	// ErrGenerationLimit is returned when continue-as-new would exceed the
	// configured generation cap.
	ErrGenerationLimit = errors.New("generation limit exceeded")

	// ErrTaskCanceled is returned when awaiting a task that was cancelled
	// before it completed.
	ErrTaskCanceled = errors.New("task canceled")
)

// ActivityError lets activity implementations classify their failures.
// The Kind is matched by RetryOptions.Handle.
type ActivityError struct {
	Kind    string
	Message string
	Err     error
}

func (e *ActivityError) Error() string {
	if e.Message == "" && e.Err != nil {
		return e.Kind + ": " + e.Err.Error()
	}
	return e.Kind + ": " + e.Message
}

func (e *ActivityError) Unwrap() error {
	return e.Err
}

// NewTransientError returns an ActivityError of kind Transient.
func NewTransientError(format string, args ...any) error {
	return &ActivityError{Kind: ErrorKindTransient, Message: fmt.Sprintf(format, args...)}
}

// NewTerminalError returns an ActivityError of kind Terminal.
func NewTerminalError(format string, args ...any) error {
	return &ActivityError{Kind: ErrorKindTerminal, Message: fmt.Sprintf(format, args...)}
}

// NewKindError returns an ActivityError with a caller-defined kind.
func NewKindError(kind string, err error) error {
	return &ActivityError{Kind: kind, Message: err.Error(), Err: err}
}

// FailureDetails is the serializable form of an error recorded in history.
type FailureDetails struct {
	Kind    string `json:"kind" bson:"kind"`
	Message string `json:"message" bson:"message"`
}

func (f *FailureDetails) Error() string {
	if f == nil {
		return ""
	}
	return f.Kind + ": " + f.Message
}

// FailureFromError converts err into FailureDetails, preserving the kind of
// ActivityError, TaskFailedError and FailureDetails values.
func FailureFromError(err error) *FailureDetails {
	if err == nil {
		return nil
	}

	var ae *ActivityError
	if errors.As(err, &ae) {
		msg := ae.Message
		if msg == "" && ae.Err != nil {
			msg = ae.Err.Error()
		}
		return &FailureDetails{Kind: ae.Kind, Message: msg}
	}

	var tf *TaskFailedError
	if errors.As(err, &tf) {
		return &FailureDetails{Kind: tf.Kind, Message: tf.Message}
	}

	var fd *FailureDetails
	if errors.As(err, &fd) {
		return &FailureDetails{Kind: fd.Kind, Message: fd.Message}
	}

	if errors.Is(err, ErrTimeoutExceeded) {
		return &FailureDetails{Kind: ErrorKindTimeout, Message: err.Error()}
	}

	return &FailureDetails{Kind: ErrorKindGeneric, Message: err.Error()}
}

// TaskFailedError is what Await returns when an activity or
// sub-orchestration failed terminally. Orchestrators may catch it (with
// errors.As) to run compensating work.
type TaskFailedError struct {
	TaskID   int
	Name     string
	Kind     string
	Message  string
	Attempts int
}

func (e *TaskFailedError) Error() string {
	return fmt.Sprintf("task %s (#%d) failed: %s: %s", e.Name, e.TaskID, e.Kind, e.Message)
}

// IsKind reports whether err is a TaskFailedError or ActivityError of the
// given kind.
func IsKind(err error, kind string) bool {
	var tf *TaskFailedError
	if errors.As(err, &tf) {
		return tf.Kind == kind
	}
	var ae *ActivityError
	if errors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}

// DeterminismError describes where a replay diverged from recorded history.
type DeterminismError struct {
	InstanceID string
	Position   int
	Expected   string
	Actual     string
}

func (e *DeterminismError) Error() string {
	return fmt.Sprintf("determinism violation in %s at history position %d: recorded %s, replay produced %s",
		e.InstanceID, e.Position, e.Expected, e.Actual)
}

func (e *DeterminismError) Unwrap() error {
	return ErrDeterminismViolation
}
