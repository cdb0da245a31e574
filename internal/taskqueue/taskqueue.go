package taskqueue

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/petrijr/durable/pkg/api"
)

// TaskType identifies what the worker should do.
type TaskType string

const (
	// TaskTypeStartOrchestration creates the history of a sub-orchestration
	// from Event (an ExecutionStarted) and activates it.
	TaskTypeStartOrchestration TaskType = "start-orchestration"

	// TaskTypeWake activates an instance, first delivering Event when set.
	TaskTypeWake TaskType = "wake"

	// TaskTypeActivity runs the activity described by Event (a TaskScheduled).
	TaskTypeActivity TaskType = "activity"

	// TaskTypeTimer fires the timer described by Event (a TimerCreated).
	// NotBefore is the fire time.
	TaskTypeTimer TaskType = "timer"

	// TaskTypeRaiseEvent buffers an external event (Event.Name, Event.Input)
	// for the instance and activates it.
	TaskTypeRaiseEvent TaskType = "raise-event"
)

// Task represents a unit of work for the worker.
type Task struct {
	ID   string
	Type TaskType

	InstanceID string

	// Generation of the instance the task belongs to. Work for an older
	// generation is dropped when it reaches the engine.
	Generation int

	// Event is task-type specific, see the TaskType constants.
	Event *api.HistoryEvent

	EnqueuedAt time.Time

	// NotBefore is the earliest time this task should be eligible
	// for processing. Zero value means "immediately" (i.e., at enqueue time).
	NotBefore time.Time

	// Attempts counts how many times the task was handed to a worker.
	Attempts int
}

// Queue is a simple async task queue interface.
type Queue interface {
	// Enqueue adds a task to the queue. It should respect ctx for cancellation.
	Enqueue(ctx context.Context, t Task) error

	// Dequeue removes and returns the next task whose NotBefore has passed,
	// blocking until one is available or the context is cancelled.
	Dequeue(ctx context.Context) (*Task, error)

	// Len returns the approximate number of tasks queued.
	Len() int
}

// prepare fills in the ID and timestamps of a task about to be enqueued.
func prepare(t *Task) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now()
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = now
	}
	if t.NotBefore.IsZero() {
		t.NotBefore = t.EnqueuedAt
	}
}

// defaultPollInterval is how often polling backends look for due tasks.
const defaultPollInterval = 20 * time.Millisecond

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, tmr *time.Timer, d time.Duration) error {
	tmr.Reset(d)
	select {
	case <-ctx.Done():
		tmr.Stop()
		return ctx.Err()
	case <-tmr.C:
		return nil
	}
}

func newStoppedTimer() *time.Timer {
	tmr := time.NewTimer(time.Hour)
	tmr.Stop()
	return tmr
}
