// Package timer schedules durable timers on the work-item queue.
package timer

import (
	"context"
	"fmt"
	"sync"

	"github.com/petrijr/durable/internal/taskqueue"
	"github.com/petrijr/durable/pkg/api"
)

type key struct {
	instanceID string
	generation int
	taskID     int
}

// Service turns TimerCreated events into delayed queue tasks and the
// resulting deliveries into TimerFired events.
//
// A timer is never removed from the queue; cancelling it only records that
// its delivery must be ignored.
type Service struct {
	queue taskqueue.Queue

	mu       sync.Mutex
	canceled map[key]struct{}
}

// NewService creates a Service that schedules onto queue.
func NewService(queue taskqueue.Queue) *Service {
	return &Service{
		queue:    queue,
		canceled: make(map[key]struct{}),
	}
}

// Schedule enqueues a timer task that becomes due at ev.FireAt.
func (s *Service) Schedule(ctx context.Context, instanceID string, generation int, ev api.HistoryEvent) error {
	if ev.Type != api.EventTimerCreated {
		return fmt.Errorf("timer: cannot schedule %s", ev.Type)
	}
	return s.queue.Enqueue(ctx, taskqueue.Task{
		Type:       taskqueue.TaskTypeTimer,
		InstanceID: instanceID,
		Generation: generation,
		Event:      &ev,
		NotBefore:  ev.FireAt,
	})
}

// Cancel marks a pending timer so that its delivery is dropped.
func (s *Service) Cancel(instanceID string, generation, taskID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.canceled[key{instanceID, generation, taskID}] = struct{}{}
}

// Fire converts a due timer task into a TimerFired event. ok is false if
// the timer was cancelled.
func (s *Service) Fire(task *taskqueue.Task) (ev api.HistoryEvent, ok bool) {
	if task.Event == nil {
		return api.HistoryEvent{}, false
	}
	k := key{task.InstanceID, task.Generation, task.Event.TaskID}

	s.mu.Lock()
	_, canceled := s.canceled[k]
	delete(s.canceled, k)
	s.mu.Unlock()

	if canceled {
		return api.HistoryEvent{}, false
	}
	return api.NewTimerFired(task.Generation, task.Event.TaskID), true
}

// Forget drops cancellation records of an instance that ended.
func (s *Service) Forget(instanceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.canceled {
		if k.instanceID == instanceID {
			delete(s.canceled, k)
		}
	}
}
