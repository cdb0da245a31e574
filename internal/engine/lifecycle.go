package engine

import (
	"fmt"

	"github.com/qmuntal/stateless"

	"github.com/petrijr/durable/pkg/api"
)

const (
	triggerStart    = "start"
	triggerProgress = "progress"
	triggerComplete = "complete"
	triggerFail     = "fail"
	triggerFault    = "fault"
	triggerContinue = "continue"
)

// newLifecycle builds the state machine an instance history must follow.
// Terminal states accept no triggers, so any event recorded after
// ExecutionCompleted or ExecutionFaulted is rejected.
func newLifecycle() *stateless.StateMachine {
	sm := stateless.NewStateMachine(api.StatusPending)

	sm.Configure(api.StatusPending).
		Permit(triggerStart, api.StatusRunning)

	sm.Configure(api.StatusRunning).
		Ignore(triggerProgress).
		Permit(triggerComplete, api.StatusCompleted).
		Permit(triggerFail, api.StatusFailed).
		Permit(triggerFault, api.StatusFaulted).
		Permit(triggerContinue, api.StatusPending)

	sm.Configure(api.StatusCompleted)
	sm.Configure(api.StatusFailed)
	sm.Configure(api.StatusFaulted)

	return sm
}

func triggerFor(ev api.HistoryEvent) string {
	switch ev.Type {
	case api.EventExecutionStarted:
		return triggerStart
	case api.EventExecutionCompleted:
		if ev.Failure != nil {
			return triggerFail
		}
		return triggerComplete
	case api.EventExecutionFaulted:
		return triggerFault
	case api.EventContinueAsNewRequested:
		return triggerContinue
	}
	return triggerProgress
}

// deriveState replays the lifecycle of a history into the client-facing
// state. It fails with ErrHistoryCorrupted if the history breaks the
// lifecycle.
func deriveState(instanceID string, history []api.HistoryEvent) (*api.OrchestrationState, error) {
	sm := newLifecycle()
	st := &api.OrchestrationState{
		InstanceID:    instanceID,
		HistoryLength: len(history),
	}

	for i, ev := range history {
		if err := sm.Fire(triggerFor(ev)); err != nil {
			return nil, fmt.Errorf("%w: %s at position %d of %s: %v",
				api.ErrHistoryCorrupted, ev.Type, i, instanceID, err)
		}

		switch ev.Type {
		case api.EventExecutionStarted:
			st.Name = ev.Name
			st.Generation = ev.Generation
			st.Input = ev.Input
			st.CreatedAt = ev.At
		case api.EventExecutionCompleted:
			st.Output = ev.Result
			st.Failure = ev.Failure
		case api.EventExecutionFaulted:
			st.Failure = ev.Failure
		}
		if ev.At.After(st.LastUpdatedAt) {
			st.LastUpdatedAt = ev.At
		}
	}

	st.Status = sm.MustState().(api.Status)
	return st, nil
}
