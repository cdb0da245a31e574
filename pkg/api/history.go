package api

import (
	"fmt"
	"time"
)

// EventType identifies a history event variant.
type EventType string

const (
	EventExecutionStarted    EventType = "ExecutionStarted"
	EventOrchestratorStarted EventType = "OrchestratorStarted"

	EventTaskScheduled EventType = "TaskScheduled"
	EventTaskCompleted EventType = "TaskCompleted"
	EventTaskFailed    EventType = "TaskFailed"

	EventSubOrchestrationScheduled EventType = "SubOrchestrationScheduled"
	EventSubOrchestrationCompleted EventType = "SubOrchestrationCompleted"
	EventSubOrchestrationFailed    EventType = "SubOrchestrationFailed"

	EventTimerCreated EventType = "TimerCreated"
	EventTimerFired   EventType = "TimerFired"

	EventBuffered EventType = "EventBuffered"
	EventRaised   EventType = "EventRaised"

	EventExecutionCompleted     EventType = "ExecutionCompleted"
	EventContinueAsNewRequested EventType = "ContinueAsNewRequested"
	EventExecutionFaulted       EventType = "ExecutionFaulted"
)

// IsScheduling reports whether events of this type are produced by
// orchestrator code (and therefore checked during replay).
func (t EventType) IsScheduling() bool {
	switch t {
	case EventTaskScheduled, EventSubOrchestrationScheduled, EventTimerCreated:
		return true
	}
	return false
}

// IsTerminal reports whether the event ends a generation.
func (t EventType) IsTerminal() bool {
	switch t {
	case EventExecutionCompleted, EventContinueAsNewRequested, EventExecutionFaulted:
		return true
	}
	return false
}

// HistoryEvent is one append-only record in an instance history. Only the
// fields relevant to Type are set.
type HistoryEvent struct {
	Type EventType `json:"type" bson:"type"`
	At   time.Time `json:"at" bson:"at"`

	// TaskID correlates scheduling events with their completions. It is the
	// source-order index of the suspension point that produced the command.
	TaskID int `json:"taskId,omitempty" bson:"taskId,omitempty"`

	// Name is the orchestrator, activity or external event name.
	Name string `json:"name,omitempty" bson:"name,omitempty"`

	Input   *Payload        `json:"input,omitempty" bson:"input,omitempty"`
	Result  *Payload        `json:"result,omitempty" bson:"result,omitempty"`
	Failure *FailureDetails `json:"failure,omitempty" bson:"failure,omitempty"`

	FireAt  time.Time `json:"fireAt,omitempty" bson:"fireAt,omitempty"`
	Attempt int       `json:"attempt,omitempty" bson:"attempt,omitempty"`

	// Generation is set on ExecutionStarted and on every event delivered
	// from outside the executor, so stale deliveries can be dropped.
	Generation int `json:"generation,omitempty" bson:"generation,omitempty"`

	// BufferID links an EventBuffered record to the EventRaised that
	// consumed it.
	BufferID string `json:"bufferId,omitempty" bson:"bufferId,omitempty"`

	ChildInstanceID  string `json:"childInstanceId,omitempty" bson:"childInstanceId,omitempty"`
	ParentInstanceID string `json:"parentInstanceId,omitempty" bson:"parentInstanceId,omitempty"`
	ParentTaskID     int    `json:"parentTaskId,omitempty" bson:"parentTaskId,omitempty"`
	ParentGeneration int    `json:"parentGeneration,omitempty" bson:"parentGeneration,omitempty"`
}

func (e HistoryEvent) String() string {
	switch {
	case e.Type.IsScheduling():
		return fmt.Sprintf("%s(#%d %s)", e.Type, e.TaskID, e.Name)
	case e.TaskID != 0:
		return fmt.Sprintf("%s(#%d)", e.Type, e.TaskID)
	case e.Name != "":
		return fmt.Sprintf("%s(%s)", e.Type, e.Name)
	}
	return string(e.Type)
}

// ParentRef links a sub-orchestration to the task that created it.
type ParentRef struct {
	InstanceID string
	TaskID     int
	Generation int
}

// NewExecutionStarted builds the first event of a generation.
func NewExecutionStarted(name string, input *Payload, generation int, parent *ParentRef) HistoryEvent {
	ev := HistoryEvent{
		Type:       EventExecutionStarted,
		Name:       name,
		Input:      input,
		Generation: generation,
	}
	if parent != nil {
		ev.ParentInstanceID = parent.InstanceID
		ev.ParentTaskID = parent.TaskID
		ev.ParentGeneration = parent.Generation
	}
	return ev
}

// Parent returns the parent reference recorded on an ExecutionStarted event.
func (e HistoryEvent) Parent() *ParentRef {
	if e.ParentInstanceID == "" {
		return nil
	}
	return &ParentRef{InstanceID: e.ParentInstanceID, TaskID: e.ParentTaskID, Generation: e.ParentGeneration}
}

func NewOrchestratorStarted(at time.Time) HistoryEvent {
	return HistoryEvent{Type: EventOrchestratorStarted, At: at}
}

func NewTaskScheduled(taskID int, name string, input *Payload, attempt int) HistoryEvent {
	return HistoryEvent{Type: EventTaskScheduled, TaskID: taskID, Name: name, Input: input, Attempt: attempt}
}

func NewTaskCompleted(generation, taskID int, result *Payload) HistoryEvent {
	return HistoryEvent{Type: EventTaskCompleted, Generation: generation, TaskID: taskID, Result: result}
}

func NewTaskFailed(generation, taskID int, failure *FailureDetails) HistoryEvent {
	return HistoryEvent{Type: EventTaskFailed, Generation: generation, TaskID: taskID, Failure: failure}
}

func NewSubOrchestrationScheduled(taskID int, name string, input *Payload, childID string) HistoryEvent {
	return HistoryEvent{Type: EventSubOrchestrationScheduled, TaskID: taskID, Name: name, Input: input, ChildInstanceID: childID}
}

func NewSubOrchestrationCompleted(generation, taskID int, result *Payload) HistoryEvent {
	return HistoryEvent{Type: EventSubOrchestrationCompleted, Generation: generation, TaskID: taskID, Result: result}
}

func NewSubOrchestrationFailed(generation, taskID int, failure *FailureDetails) HistoryEvent {
	return HistoryEvent{Type: EventSubOrchestrationFailed, Generation: generation, TaskID: taskID, Failure: failure}
}

func NewTimerCreated(taskID int, fireAt time.Time) HistoryEvent {
	return HistoryEvent{Type: EventTimerCreated, TaskID: taskID, FireAt: fireAt}
}

func NewTimerFired(generation, taskID int) HistoryEvent {
	return HistoryEvent{Type: EventTimerFired, Generation: generation, TaskID: taskID}
}

func NewEventRaised(generation, taskID int, name string, payload *Payload) HistoryEvent {
	return HistoryEvent{Type: EventRaised, Generation: generation, TaskID: taskID, Name: name, Input: payload}
}

// NewEventBuffered records an external event that arrived before any wait
// could take it. bufferID identifies the raise; the EventRaised that later
// hands it to a wait carries the same ID.
func NewEventBuffered(bufferID, name string, payload *Payload) HistoryEvent {
	return HistoryEvent{Type: EventBuffered, BufferID: bufferID, Name: name, Input: payload}
}

func NewExecutionCompleted(result *Payload, failure *FailureDetails) HistoryEvent {
	return HistoryEvent{Type: EventExecutionCompleted, Result: result, Failure: failure}
}

func NewContinueAsNewRequested(input *Payload) HistoryEvent {
	return HistoryEvent{Type: EventContinueAsNewRequested, Input: input}
}

func NewExecutionFaulted(failure *FailureDetails) HistoryEvent {
	return HistoryEvent{Type: EventExecutionFaulted, Failure: failure}
}
