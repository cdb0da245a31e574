package executor

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/durable/pkg/api"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type orchestrators map[string]api.Orchestrator

func (o orchestrators) Orchestrator(name string) (api.Orchestrator, bool) {
	fn, ok := o[name]
	return fn, ok
}

func newExecutor(name string, fn api.Orchestrator) *Executor {
	return New(orchestrators{name: fn}, nil)
}

func startedEvent(name string, input any) api.HistoryEvent {
	ev := api.NewExecutionStarted(name, api.MustPayload(input), 1, nil)
	ev.At = t0
	return ev
}

func activationAt(d time.Duration) api.HistoryEvent {
	return api.NewOrchestratorStarted(t0.Add(d))
}

// completer answers a scheduling event with its completion; ok=false leaves
// the command outstanding.
type completer func(ev api.HistoryEvent) (api.HistoryEvent, bool)

// simulate plays the engine's part synchronously: every activation
// delivers the completions of the previous activation's commands, timers
// fire immediately. It returns the final result and the full history.
func simulate(t *testing.T, x *Executor, started api.HistoryEvent, complete completer) (*Result, []api.HistoryEvent) {
	t.Helper()

	history := []api.HistoryEvent{started}
	delivered := []api.HistoryEvent{activationAt(0)}

	for i := 0; i < 50; i++ {
		res := x.Execute("inst", history, delivered)
		history = append(history, delivered...)
		history = append(history, res.NewEvents...)
		if _, done := res.Terminal(); done {
			return res, history
		}

		delivered = []api.HistoryEvent{activationAt(time.Duration(i+1) * time.Second)}
		for _, ev := range res.NewEvents {
			switch ev.Type {
			case api.EventTimerCreated:
				delivered = append(delivered, api.NewTimerFired(1, ev.TaskID))
			default:
				if out, ok := complete(ev); ok {
					delivered = append(delivered, out)
				}
			}
		}
		require.Greater(t, len(delivered), 1, "orchestration is stuck")
	}
	t.Fatal("orchestration did not finish")
	return nil, nil
}

func countScheduled(history []api.HistoryEvent, name string) int {
	n := 0
	for _, ev := range history {
		if ev.Type == api.EventTaskScheduled && ev.Name == name {
			n++
		}
	}
	return n
}

func TestExecute_SequentialActivities(t *testing.T) {
	x := newExecutor("O_Seq", api.OrchestratorFunc(func(ctx api.OrchestrationContext, in string) (string, error) {
		var a, b string
		if err := ctx.CallActivity("A_One", in).Await(&a); err != nil {
			return "", err
		}
		if err := ctx.CallActivity("A_Two", a).Await(&b); err != nil {
			return "", err
		}
		return b, nil
	}))

	past := []api.HistoryEvent{startedEvent("O_Seq", "x")}
	res := x.Execute("inst", past, []api.HistoryEvent{activationAt(0)})
	require.NoError(t, res.Fault)
	require.Len(t, res.NewEvents, 1)
	require.Equal(t, api.EventTaskScheduled, res.NewEvents[0].Type)
	require.Equal(t, "A_One", res.NewEvents[0].Name)
	require.Equal(t, 1, res.NewEvents[0].TaskID)
	require.Equal(t, 1, res.NewEvents[0].Attempt)

	past = append(past, activationAt(0), res.NewEvents[0])
	res = x.Execute("inst", past, []api.HistoryEvent{
		activationAt(time.Second),
		api.NewTaskCompleted(1, 1, api.MustPayload("x1")),
	})
	require.NoError(t, res.Fault)
	require.Len(t, res.NewEvents, 1)
	require.Equal(t, "A_Two", res.NewEvents[0].Name)
	require.Equal(t, 2, res.NewEvents[0].TaskID)

	in, err := api.DecodePayload[string](res.NewEvents[0].Input)
	require.NoError(t, err)
	require.Equal(t, "x1", in)

	past = append(past, activationAt(time.Second), api.NewTaskCompleted(1, 1, api.MustPayload("x1")), res.NewEvents[0])
	res = x.Execute("inst", past, []api.HistoryEvent{
		activationAt(2 * time.Second),
		api.NewTaskCompleted(1, 2, api.MustPayload("x12")),
	})
	require.True(t, res.Completed)
	require.Nil(t, res.Failure)

	out, err := api.DecodePayload[string](res.Output)
	require.NoError(t, err)
	require.Equal(t, "x12", out)

	term, ok := res.Terminal()
	require.True(t, ok)
	require.Equal(t, api.EventExecutionCompleted, term.Type)
}

func TestExecute_ReplayIsDeterministic(t *testing.T) {
	x := newExecutor("O_Det", func(ctx api.OrchestrationContext) (any, error) {
		first := ctx.CallActivity("A_One", 1)
		second := ctx.CallActivity("A_Two", 2)
		timer := ctx.CreateTimer(time.Minute)
		if err := ctx.WhenAll(first, second, timer); err != nil {
			return nil, err
		}
		return nil, ctx.CallActivity("A_Three", 3).Await(nil)
	})

	started := startedEvent("O_Det", nil)
	first := x.Execute("inst", []api.HistoryEvent{started}, []api.HistoryEvent{activationAt(0)})
	again := x.Execute("inst", []api.HistoryEvent{started}, []api.HistoryEvent{activationAt(0)})
	require.Equal(t, first, again)

	require.Len(t, first.NewEvents, 3)
	require.Equal(t, api.EventTimerCreated, first.NewEvents[2].Type)
	require.Equal(t, t0.Add(time.Minute), first.NewEvents[2].FireAt)

	history := append([]api.HistoryEvent{started, activationAt(0)}, first.NewEvents...)
	history = append(history, activationAt(time.Second), api.NewTaskCompleted(1, 1, nil), api.NewTaskCompleted(1, 2, nil))

	a := x.Execute("inst", history, nil)
	b := x.Execute("inst", history, nil)
	require.Equal(t, a, b)
	require.Empty(t, a.NewEvents, "timer has not fired yet")
	require.False(t, a.Completed)

	history = append(history, activationAt(time.Minute), api.NewTimerFired(1, 3))
	a = x.Execute("inst", history, nil)
	b = x.Execute("inst", history, nil)
	require.Equal(t, a, b)
	require.Len(t, a.NewEvents, 1)
	require.Equal(t, "A_Three", a.NewEvents[0].Name)
	require.Equal(t, 4, a.NewEvents[0].TaskID)
}

func TestExecute_DivergentReplayFaults(t *testing.T) {
	original := func(ctx api.OrchestrationContext) (any, error) {
		return nil, ctx.CallActivity("A_Original", nil).Await(nil)
	}
	changed := func(ctx api.OrchestrationContext) (any, error) {
		return nil, ctx.CallActivity("A_Renamed", nil).Await(nil)
	}

	started := startedEvent("O_Flow", nil)
	res := newExecutor("O_Flow", original).Execute("inst", []api.HistoryEvent{started}, []api.HistoryEvent{activationAt(0)})
	history := append([]api.HistoryEvent{started, activationAt(0)}, res.NewEvents...)

	faulted := newExecutor("O_Flow", changed).Execute("inst", history, []api.HistoryEvent{activationAt(time.Second)})
	require.ErrorIs(t, faulted.Fault, api.ErrDeterminismViolation)

	var de *api.DeterminismError
	require.True(t, errors.As(faulted.Fault, &de))
	require.Equal(t, 2, de.Position)
	require.Contains(t, de.Expected, "A_Original")
	require.Contains(t, de.Actual, "A_Renamed")

	require.Len(t, faulted.NewEvents, 1)
	require.Equal(t, api.EventExecutionFaulted, faulted.NewEvents[0].Type)
	require.Equal(t, api.ErrorKindFault, faulted.NewEvents[0].Failure.Kind)
	require.False(t, faulted.Completed)
}

func TestExecute_MissingCommandFaults(t *testing.T) {
	x := newExecutor("O_Flow", func(ctx api.OrchestrationContext) (any, error) {
		return "done", nil
	})
	history := []api.HistoryEvent{
		startedEvent("O_Flow", nil),
		activationAt(0),
		api.NewTaskScheduled(1, "A_Gone", nil, 1),
	}
	res := x.Execute("inst", history, []api.HistoryEvent{activationAt(time.Second)})
	require.ErrorIs(t, res.Fault, api.ErrDeterminismViolation)
}

func TestExecute_FanInSelectsHighestBitRate(t *testing.T) {
	type transcodeResult struct {
		BitRate  int
		Location string
	}

	x := newExecutor("O_FanIn", func(ctx api.OrchestrationContext) (any, error) {
		var tasks []api.Task
		for _, rate := range []int{1000, 2000, 3000, 4000} {
			tasks = append(tasks, ctx.CallActivity("A_Transcode", rate))
		}
		if err := ctx.WhenAll(tasks...); err != nil {
			return nil, err
		}
		var best transcodeResult
		for _, task := range tasks {
			var r transcodeResult
			if err := task.Await(&r); err != nil {
				return nil, err
			}
			if r.BitRate > best.BitRate {
				best = r
			}
		}
		return best.Location, nil
	})

	started := startedEvent("O_FanIn", nil)
	res := x.Execute("inst", []api.HistoryEvent{started}, []api.HistoryEvent{activationAt(0)})
	require.Len(t, res.NewEvents, 4)

	history := append([]api.HistoryEvent{started, activationAt(0)}, res.NewEvents...)

	// Complete in reverse order, one activation per completion.
	for i := len(res.NewEvents) - 1; i >= 0; i-- {
		ev := res.NewEvents[i]
		rate, err := api.DecodePayload[int](ev.Input)
		require.NoError(t, err)

		delivered := []api.HistoryEvent{
			activationAt(time.Duration(4-i) * time.Second),
			api.NewTaskCompleted(1, ev.TaskID, api.MustPayload(transcodeResult{
				BitRate:  rate,
				Location: fmt.Sprintf("L%d", rate/1000),
			})),
		}
		step := x.Execute("inst", history, delivered)
		require.NoError(t, step.Fault)
		history = append(history, delivered...)
		history = append(history, step.NewEvents...)

		if i > 0 {
			require.False(t, step.Completed)
			require.Empty(t, step.NewEvents)
			continue
		}
		require.True(t, step.Completed)
		out, err := api.DecodePayload[string](step.Output)
		require.NoError(t, err)
		require.Equal(t, "L4", out)
	}
}

func TestExecute_WhenAllJoinsFailures(t *testing.T) {
	var joined error
	x := newExecutor("O_All", func(ctx api.OrchestrationContext) (any, error) {
		joined = ctx.WhenAll(
			ctx.CallActivity("A_Ok", nil),
			ctx.CallActivity("A_Bad", nil),
			ctx.CallActivity("A_Worse", nil),
		)
		return nil, nil
	})

	_, _ = simulate(t, x, startedEvent("O_All", nil), func(ev api.HistoryEvent) (api.HistoryEvent, bool) {
		if ev.Name == "A_Ok" {
			return api.NewTaskCompleted(1, ev.TaskID, nil), true
		}
		return api.NewTaskFailed(1, ev.TaskID, &api.FailureDetails{Kind: api.ErrorKindTerminal, Message: ev.Name}), true
	})

	require.Error(t, joined)
	require.Contains(t, joined.Error(), "A_Bad")
	require.Contains(t, joined.Error(), "A_Worse")
	require.NotContains(t, joined.Error(), "A_Ok")
}

func retryOrchestrator(maxAttempts int) api.Orchestrator {
	return func(ctx api.OrchestrationContext) (any, error) {
		var thumb string
		err := ctx.CallActivity("A_ExtractThumbnail", "video.mp4", api.WithRetry(api.RetryOptions{
			FirstRetryInterval:  5 * time.Second,
			MaxNumberOfAttempts: maxAttempts,
			Handle:              api.HandleKinds(api.ErrorKindTransient),
		})).Await(&thumb)
		return thumb, err
	}
}

func TestExecute_RetrySucceedsOnThirdAttempt(t *testing.T) {
	x := newExecutor("O_Retry", retryOrchestrator(3))

	res, history := simulate(t, x, startedEvent("O_Retry", nil), func(ev api.HistoryEvent) (api.HistoryEvent, bool) {
		if ev.Attempt < 3 {
			return api.NewTaskFailed(1, ev.TaskID, &api.FailureDetails{Kind: api.ErrorKindTransient, Message: "busy"}), true
		}
		return api.NewTaskCompleted(1, ev.TaskID, api.MustPayload("thumb.png")), true
	})

	require.True(t, res.Completed)
	require.Nil(t, res.Failure)
	out, err := api.DecodePayload[string](res.Output)
	require.NoError(t, err)
	require.Equal(t, "thumb.png", out)
	require.Equal(t, 3, countScheduled(history, "A_ExtractThumbnail"))

	var attempts []int
	var timers int
	for _, ev := range history {
		switch ev.Type {
		case api.EventTaskScheduled:
			attempts = append(attempts, ev.Attempt)
		case api.EventTimerCreated:
			timers++
		}
	}
	require.Equal(t, []int{1, 2, 3}, attempts)
	require.Equal(t, 2, timers)
}

func TestExecute_RetryExhaustionIsTerminal(t *testing.T) {
	x := newExecutor("O_Retry", retryOrchestrator(3))

	res, history := simulate(t, x, startedEvent("O_Retry", nil), func(ev api.HistoryEvent) (api.HistoryEvent, bool) {
		return api.NewTaskFailed(1, ev.TaskID, &api.FailureDetails{Kind: api.ErrorKindTransient, Message: "busy"}), true
	})

	require.True(t, res.Completed)
	require.NotNil(t, res.Failure)
	require.Equal(t, api.ErrorKindTransient, res.Failure.Kind)
	require.Equal(t, 3, countScheduled(history, "A_ExtractThumbnail"))
}

func TestExecute_UnhandledKindIsNotRetried(t *testing.T) {
	x := newExecutor("O_Retry", retryOrchestrator(3))

	res, history := simulate(t, x, startedEvent("O_Retry", nil), func(ev api.HistoryEvent) (api.HistoryEvent, bool) {
		return api.NewTaskFailed(1, ev.TaskID, &api.FailureDetails{Kind: api.ErrorKindTerminal, Message: "corrupt file"}), true
	})

	require.True(t, res.Completed)
	require.Equal(t, api.ErrorKindTerminal, res.Failure.Kind)
	require.Equal(t, 1, countScheduled(history, "A_ExtractThumbnail"))
}

func approvalRace(ctx api.OrchestrationContext) (any, error) {
	approval := ctx.WaitForExternalEvent("ApprovalResult")
	deadline := ctx.CreateTimer(30 * time.Second)

	winner, err := ctx.WhenAny(approval, deadline)
	if err != nil {
		return nil, err
	}
	if winner == approval {
		deadline.Cancel()
		var result string
		if err := approval.Await(&result); err != nil {
			return nil, err
		}
		return result, nil
	}
	return "Timed out", nil
}

func TestExecute_WaitAnyEventBeforeTimer(t *testing.T) {
	x := newExecutor("O_Approval", approvalRace)
	started := startedEvent("O_Approval", nil)

	res := x.Execute("inst", []api.HistoryEvent{started}, []api.HistoryEvent{activationAt(0)})
	require.Equal(t, []Wait{{TaskID: 1, Name: "ApprovalResult"}}, res.Waiting)
	require.Len(t, res.NewEvents, 1)
	require.Equal(t, api.EventTimerCreated, res.NewEvents[0].Type)
	require.Equal(t, 2, res.NewEvents[0].TaskID)
	require.Equal(t, t0.Add(30*time.Second), res.NewEvents[0].FireAt)

	history := append([]api.HistoryEvent{started, activationAt(0)}, res.NewEvents...)
	res = x.Execute("inst", history, []api.HistoryEvent{
		activationAt(10 * time.Second),
		api.NewEventRaised(1, 1, "ApprovalResult", api.MustPayload("Approved")),
	})
	require.True(t, res.Completed)
	require.Equal(t, []int{2}, res.CanceledTimers)
	out, err := api.DecodePayload[string](res.Output)
	require.NoError(t, err)
	require.Equal(t, "Approved", out)

	// A late delivery of the cancelled timer changes nothing on replay.
	history = append(history, activationAt(10*time.Second),
		api.NewEventRaised(1, 1, "ApprovalResult", api.MustPayload("Approved")))
	again := x.Execute("inst", history, []api.HistoryEvent{activationAt(30 * time.Second), api.NewTimerFired(1, 2)})
	require.True(t, again.Completed)
	require.Equal(t, res.Output, again.Output)
}

func TestExecute_WaitAnyTimerBeforeEvent(t *testing.T) {
	x := newExecutor("O_Approval", approvalRace)
	started := startedEvent("O_Approval", nil)

	res := x.Execute("inst", []api.HistoryEvent{started}, []api.HistoryEvent{activationAt(0)})
	history := append([]api.HistoryEvent{started, activationAt(0)}, res.NewEvents...)

	res = x.Execute("inst", history, []api.HistoryEvent{activationAt(30 * time.Second), api.NewTimerFired(1, 2)})
	require.True(t, res.Completed)
	require.Empty(t, res.CanceledTimers)
	require.Empty(t, res.Waiting)
	out, err := api.DecodePayload[string](res.Output)
	require.NoError(t, err)
	require.Equal(t, "Timed out", out)
}

func TestExecute_BoundedWaitTimesOut(t *testing.T) {
	var waitErr error
	x := newExecutor("O_Bounded", func(ctx api.OrchestrationContext) (any, error) {
		waitErr = ctx.WaitForExternalEventWithTimeout("Ping", time.Minute).Await(nil)
		return nil, nil
	})
	started := startedEvent("O_Bounded", nil)

	res := x.Execute("inst", []api.HistoryEvent{started}, []api.HistoryEvent{activationAt(0)})
	require.Equal(t, []Wait{{TaskID: 1, Name: "Ping"}}, res.Waiting)
	history := append([]api.HistoryEvent{started, activationAt(0)}, res.NewEvents...)

	res = x.Execute("inst", history, []api.HistoryEvent{activationAt(time.Minute), api.NewTimerFired(1, 2)})
	require.True(t, res.Completed)
	require.ErrorIs(t, waitErr, api.ErrTimeoutExceeded)
	require.Equal(t, api.ErrorKindTimeout, api.FailureFromError(waitErr).Kind)
}

func TestExecute_BoundedWaitReceivesEvent(t *testing.T) {
	var got int
	x := newExecutor("O_Bounded", func(ctx api.OrchestrationContext) (any, error) {
		return nil, ctx.WaitForExternalEventWithTimeout("Ping", time.Minute).Await(&got)
	})
	started := startedEvent("O_Bounded", nil)

	res := x.Execute("inst", []api.HistoryEvent{started}, []api.HistoryEvent{activationAt(0)})
	history := append([]api.HistoryEvent{started, activationAt(0)}, res.NewEvents...)

	res = x.Execute("inst", history, []api.HistoryEvent{
		activationAt(time.Second),
		api.NewEventRaised(1, 1, "Ping", api.MustPayload(7)),
	})
	require.True(t, res.Completed)
	require.Nil(t, res.Failure)
	require.Equal(t, 7, got)
	require.Equal(t, []int{2}, res.CanceledTimers)
}

func TestExecute_CompensationRunsCleanupOnce(t *testing.T) {
	x := newExecutor("O_Compensate", func(ctx api.OrchestrationContext) (any, error) {
		err := ctx.CallActivity("A_Transcode", "in.mp4").Await(nil)
		if err != nil {
			if cerr := ctx.CallActivity("A_Cleanup", "in.mp4").Await(nil); cerr != nil {
				return nil, cerr
			}
			return nil, fmt.Errorf("processing failed: %w", err)
		}
		return "ok", nil
	})

	res, history := simulate(t, x, startedEvent("O_Compensate", nil), func(ev api.HistoryEvent) (api.HistoryEvent, bool) {
		if ev.Name == "A_Transcode" {
			return api.NewTaskFailed(1, ev.TaskID, &api.FailureDetails{Kind: api.ErrorKindTerminal, Message: "codec missing"}), true
		}
		return api.NewTaskCompleted(1, ev.TaskID, nil), true
	})

	require.True(t, res.Completed)
	require.Equal(t, 1, countScheduled(history, "A_Cleanup"))
	require.Contains(t, res.Failure.Message, "codec missing")
	require.Equal(t, api.ErrorKindTerminal, res.Failure.Kind)
}

func TestExecute_ContinueAsNewEndsGeneration(t *testing.T) {
	x := newExecutor("O_Periodic", api.OrchestratorFunc(func(ctx api.OrchestrationContext, n int) (any, error) {
		if err := ctx.CreateTimer(time.Hour).Await(nil); err != nil {
			return nil, err
		}
		ctx.ContinueAsNew(n + 1)
		return nil, nil
	}))

	res, _ := simulate(t, x, startedEvent("O_Periodic", 1), func(api.HistoryEvent) (api.HistoryEvent, bool) {
		return api.HistoryEvent{}, false
	})

	require.True(t, res.ContinuedAsNew)
	require.False(t, res.Completed)
	next, err := api.DecodePayload[int](res.ContinueInput)
	require.NoError(t, err)
	require.Equal(t, 2, next)

	term, ok := res.Terminal()
	require.True(t, ok)
	require.Equal(t, api.EventContinueAsNewRequested, term.Type)

	// The next generation starts from a single ExecutionStarted.
	gen2 := api.NewExecutionStarted("O_Periodic", res.ContinueInput, 2, nil)
	gen2.At = t0.Add(time.Hour)
	first := x.Execute("inst", []api.HistoryEvent{gen2}, []api.HistoryEvent{activationAt(time.Hour)})
	require.Len(t, first.NewEvents, 1)
	require.Equal(t, 1, first.NewEvents[0].TaskID)
	require.Equal(t, t0.Add(2*time.Hour), first.NewEvents[0].FireAt)
}

func TestExecute_ErrorAndPanicCompleteWithFailure(t *testing.T) {
	failing := newExecutor("O_Fail", func(ctx api.OrchestrationContext) (any, error) {
		return nil, api.NewTerminalError("bad input")
	})
	res := failing.Execute("inst", []api.HistoryEvent{startedEvent("O_Fail", nil)}, []api.HistoryEvent{activationAt(0)})
	require.True(t, res.Completed)
	require.Equal(t, &api.FailureDetails{Kind: api.ErrorKindTerminal, Message: "bad input"}, res.Failure)

	panicking := newExecutor("O_Panic", func(ctx api.OrchestrationContext) (any, error) {
		panic("kaboom")
	})
	res = panicking.Execute("inst", []api.HistoryEvent{startedEvent("O_Panic", nil)}, []api.HistoryEvent{activationAt(0)})
	require.True(t, res.Completed)
	require.NoError(t, res.Fault)
	require.Equal(t, api.ErrorKindPanic, res.Failure.Kind)
	require.Contains(t, res.Failure.Message, "kaboom")
}

func TestExecute_Faults(t *testing.T) {
	x := newExecutor("O_Known", func(ctx api.OrchestrationContext) (any, error) { return nil, nil })

	res := x.Execute("inst", []api.HistoryEvent{startedEvent("O_Unknown", nil)}, nil)
	require.ErrorIs(t, res.Fault, api.ErrOrchestratorNotRegistered)

	res = x.Execute("inst", []api.HistoryEvent{activationAt(0)}, nil)
	require.ErrorIs(t, res.Fault, api.ErrHistoryCorrupted)

	res = x.Execute("inst", []api.HistoryEvent{
		startedEvent("O_Known", nil),
		api.NewExecutionCompleted(nil, nil),
	}, nil)
	require.ErrorIs(t, res.Fault, api.ErrHistoryCorrupted)
}

func TestExecute_ReplayFlagAndClock(t *testing.T) {
	type observation struct {
		replaying bool
		now       time.Time
	}
	var seen []observation
	x := newExecutor("O_Clock", func(ctx api.OrchestrationContext) (any, error) {
		seen = append(seen, observation{ctx.IsReplaying(), ctx.CurrentTime()})
		if err := ctx.CallActivity("A_Step", nil).Await(nil); err != nil {
			return nil, err
		}
		seen = append(seen, observation{ctx.IsReplaying(), ctx.CurrentTime()})
		if err := ctx.CallActivity("A_Step", nil).Await(nil); err != nil {
			return nil, err
		}
		seen = append(seen, observation{ctx.IsReplaying(), ctx.CurrentTime()})
		return nil, nil
	})

	started := startedEvent("O_Clock", nil)
	history := []api.HistoryEvent{
		started,
		activationAt(0),
		api.NewTaskScheduled(1, "A_Step", nil, 1),
		activationAt(time.Second),
		api.NewTaskCompleted(1, 1, nil),
		api.NewTaskScheduled(2, "A_Step", nil, 1),
	}
	res := x.Execute("inst", history, []api.HistoryEvent{
		activationAt(2 * time.Second),
		api.NewTaskCompleted(1, 2, nil),
	})
	require.True(t, res.Completed)

	require.Equal(t, []observation{
		{true, t0},
		{true, t0.Add(time.Second)},
		{false, t0.Add(2 * time.Second)},
	}, seen)
}

func TestExecute_SubOrchestrationIDsAreDeterministic(t *testing.T) {
	x := newExecutor("O_Parent", func(ctx api.OrchestrationContext) (any, error) {
		var out string
		err := ctx.CallSubOrchestrator("O_Child", "in").Await(&out)
		return out, err
	})
	started := startedEvent("O_Parent", nil)

	res := x.Execute("parent", []api.HistoryEvent{started}, []api.HistoryEvent{activationAt(0)})
	require.Len(t, res.NewEvents, 1)
	require.Equal(t, api.EventSubOrchestrationScheduled, res.NewEvents[0].Type)
	require.Equal(t, "parent:1:1", res.NewEvents[0].ChildInstanceID)
	require.Equal(t, ChildInstanceID("parent", 1, 1), res.NewEvents[0].ChildInstanceID)

	history := append([]api.HistoryEvent{started, activationAt(0)}, res.NewEvents...)
	res = x.Execute("parent", history, []api.HistoryEvent{
		activationAt(time.Second),
		api.NewSubOrchestrationFailed(1, 1, &api.FailureDetails{Kind: api.ErrorKindGeneric, Message: "child broke"}),
	})
	require.True(t, res.Completed)
	require.Contains(t, res.Failure.Message, "child broke")
}

func TestExecute_IgnoresUnknownCompletions(t *testing.T) {
	x := newExecutor("O_Wait", func(ctx api.OrchestrationContext) (any, error) {
		return nil, ctx.CallActivity("A_Slow", nil).Await(nil)
	})
	started := startedEvent("O_Wait", nil)
	history := []api.HistoryEvent{started, activationAt(0), api.NewTaskScheduled(1, "A_Slow", nil, 1)}

	res := x.Execute("inst", history, []api.HistoryEvent{
		activationAt(time.Second),
		api.NewTaskCompleted(1, 99, nil),
		api.NewTimerFired(1, 42),
	})
	require.NoError(t, res.Fault)
	require.False(t, res.Completed)
	require.Empty(t, res.NewEvents)
}

func TestExecute_CompletionOfWrongKindFaults(t *testing.T) {
	x := newExecutor("O_Timer", func(ctx api.OrchestrationContext) (any, error) {
		return nil, ctx.CreateTimer(time.Second).Await(nil)
	})
	history := []api.HistoryEvent{startedEvent("O_Timer", nil), activationAt(0), api.NewTimerCreated(1, t0.Add(time.Second))}

	res := x.Execute("inst", history, []api.HistoryEvent{activationAt(time.Second), api.NewTaskCompleted(1, 1, nil)})
	require.ErrorIs(t, res.Fault, api.ErrDeterminismViolation)
}
