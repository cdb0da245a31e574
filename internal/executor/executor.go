// Package executor replays orchestrator code against a recorded history.
//
// Execute is a pure function of the orchestrator, the instance ID and the
// history: it runs the orchestrator on the calling goroutine until the
// orchestrator returns or awaits a task whose result is not in history,
// and reports the commands the orchestrator issued that history does not
// contain yet. Persisting those commands and carrying them out is the
// engine's job.
package executor

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/petrijr/durable/pkg/api"
)

// OrchestratorLookup resolves orchestrator names to implementations.
type OrchestratorLookup interface {
	Orchestrator(name string) (api.Orchestrator, bool)
}

// Wait is an external event wait that is still pending.
type Wait struct {
	TaskID int
	Name   string
}

// Result describes the outcome of one activation.
type Result struct {
	// NewEvents are the scheduling events issued in this activation, in
	// task ID order, followed by the terminal event if there is one.
	NewEvents []api.HistoryEvent

	// Waiting lists pending event waits, in task ID order.
	Waiting []Wait

	// CanceledTimers are timers cancelled in this activation.
	CanceledTimers []int

	// Completed is set when the orchestrator returned (successfully or
	// not) and the generation ended with ExecutionCompleted.
	Completed bool
	Output    *api.Payload
	Failure   *api.FailureDetails

	// ContinuedAsNew is set when the generation ended with
	// ContinueAsNewRequested; ContinueInput is the next generation's input.
	ContinuedAsNew bool
	ContinueInput  *api.Payload

	// Fault is set when the instance cannot make progress: determinism
	// violations, corrupted history, unknown orchestrators. NewEvents then
	// holds only the ExecutionFaulted event.
	Fault error
}

// Terminal returns the event that ended the generation, if any.
func (r *Result) Terminal() (api.HistoryEvent, bool) {
	if n := len(r.NewEvents); n > 0 && r.NewEvents[n-1].Type.IsTerminal() {
		return r.NewEvents[n-1], true
	}
	return api.HistoryEvent{}, false
}

// Executor runs orchestrators against their histories.
type Executor struct {
	orchestrators OrchestratorLookup
	logger        *slog.Logger
}

// New creates an Executor.
func New(orchestrators OrchestratorLookup, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{orchestrators: orchestrators, logger: logger}
}

// Execute replays past, then applies delivered (the events that arrived
// since the previous activation) and returns what the orchestrator did.
// The orchestrator is replaying while it runs code that follows an event
// from past.
func (x *Executor) Execute(instanceID string, past, delivered []api.HistoryEvent) *Result {
	history := make([]api.HistoryEvent, 0, len(past)+len(delivered))
	history = append(history, past...)
	history = append(history, delivered...)

	if len(history) == 0 || history[0].Type != api.EventExecutionStarted {
		return x.faulted(instanceID, fmt.Errorf("%w: history of %s does not begin with %s",
			api.ErrHistoryCorrupted, instanceID, api.EventExecutionStarted))
	}

	started := history[0]
	fn, ok := x.orchestrators.Orchestrator(started.Name)
	if !ok {
		return x.faulted(instanceID, fmt.Errorf("%w: %s", api.ErrOrchestratorNotRegistered, started.Name))
	}

	c := &orchestrationContext{
		instanceID: instanceID,
		name:       started.Name,
		generation: started.Generation,
		input:      started.Input,
		now:        started.At,
		history:    history,
		pastLen:    len(past),
		cursor:     1,
		replaying:  len(past) > 1,
		actions:    make(map[int]api.HistoryEvent),
		tasks:      make(map[int]*task),
	}

	res := c.run(fn)
	if res.Fault != nil {
		return x.faulted(instanceID, res.Fault)
	}
	return res
}

func (x *Executor) faulted(instanceID string, err error) *Result {
	x.logger.Warn("orchestration faulted",
		slog.String("instance_id", instanceID),
		slog.String("error", err.Error()),
	)
	return &Result{
		NewEvents: []api.HistoryEvent{
			api.NewExecutionFaulted(&api.FailureDetails{Kind: api.ErrorKindFault, Message: err.Error()}),
		},
		Fault: err,
	}
}

// blockedSignal unwinds the orchestrator when it awaits a task whose
// result is not in history.
type blockedSignal struct{}

// faultSignal unwinds the orchestrator when history cannot be applied.
type faultSignal struct {
	err error
}

func (c *orchestrationContext) run(fn api.Orchestrator) (res *Result) {
	res = &Result{}
	defer func() {
		switch r := recover().(type) {
		case nil:
		case blockedSignal:
			c.collect(res)
		case *faultSignal:
			res.Fault = r.err
		default:
			panic(r)
		}
	}()

	out, err, crash := c.invoke(fn)
	terminal := c.terminalEvent(res, out, err, crash)
	c.terminal = true

	// Whatever history remains must still agree with what was issued.
	for c.cursor < len(c.history) {
		c.step()
	}

	c.collect(res)
	res.NewEvents = append(res.NewEvents, terminal)
	res.Waiting = nil
	return res
}

// invoke calls the orchestrator, turning a panic in user code into a
// failure. Executor signals pass through.
func (c *orchestrationContext) invoke(fn api.Orchestrator) (out any, err error, crash *api.FailureDetails) {
	defer func() {
		if r := recover(); r != nil {
			switch r.(type) {
			case blockedSignal, *faultSignal:
				panic(r)
			}
			crash = &api.FailureDetails{
				Kind:    api.ErrorKindPanic,
				Message: fmt.Sprintf("orchestrator panicked: %v", r),
			}
		}
	}()
	out, err = fn(c)
	return out, err, nil
}

func (c *orchestrationContext) terminalEvent(res *Result, out any, err error, crash *api.FailureDetails) api.HistoryEvent {
	fail := func(f *api.FailureDetails) api.HistoryEvent {
		res.Completed = true
		res.Failure = f
		return api.NewExecutionCompleted(nil, f)
	}

	switch {
	case crash != nil:
		return fail(crash)
	case err != nil:
		return fail(api.FailureFromError(err))
	case c.continueAsNew:
		input, perr := api.NewPayload(c.continueInput)
		if perr != nil {
			return fail(api.FailureFromError(perr))
		}
		res.ContinuedAsNew = true
		res.ContinueInput = input
		return api.NewContinueAsNewRequested(input)
	}

	output, perr := api.NewPayload(out)
	if perr != nil {
		return fail(api.FailureFromError(perr))
	}
	res.Completed = true
	res.Output = output
	return api.NewExecutionCompleted(output, nil)
}

// collect moves the unmatched commands, pending waits and cancellations
// into res.
func (c *orchestrationContext) collect(res *Result) {
	ids := make([]int, 0, len(c.actions))
	for id := range c.actions {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		res.NewEvents = append(res.NewEvents, c.actions[id])
	}

	for id, t := range c.tasks {
		if t.kind == kindEvent && !t.done {
			res.Waiting = append(res.Waiting, Wait{TaskID: id, Name: t.name})
		}
	}
	sort.Slice(res.Waiting, func(i, j int) bool { return res.Waiting[i].TaskID < res.Waiting[j].TaskID })

	res.CanceledTimers = append(res.CanceledTimers, c.canceledTimers...)
}

// step applies the next history event. It unwinds with blockedSignal if
// history is exhausted.
func (c *orchestrationContext) step() {
	if c.cursor >= len(c.history) {
		panic(blockedSignal{})
	}
	pos := c.cursor
	c.cursor++
	c.replaying = pos < c.pastLen
	if err := c.apply(pos, c.history[pos]); err != nil {
		panic(&faultSignal{err: err})
	}
}

func (c *orchestrationContext) apply(pos int, ev api.HistoryEvent) error {
	switch ev.Type {
	case api.EventOrchestratorStarted:
		c.now = ev.At
		return nil

	case api.EventTaskScheduled, api.EventSubOrchestrationScheduled, api.EventTimerCreated:
		return c.match(pos, ev)

	case api.EventTaskCompleted:
		return c.resolve(pos, ev, kindActivity, ev.Result, nil)
	case api.EventTaskFailed:
		return c.resolve(pos, ev, kindActivity, nil, ev.Failure)
	case api.EventSubOrchestrationCompleted:
		return c.resolve(pos, ev, kindSubOrchestration, ev.Result, nil)
	case api.EventSubOrchestrationFailed:
		return c.resolve(pos, ev, kindSubOrchestration, nil, ev.Failure)
	case api.EventTimerFired:
		return c.resolve(pos, ev, kindTimer, nil, nil)
	case api.EventRaised:
		return c.resolve(pos, ev, kindEvent, ev.Input, nil)
	}

	return fmt.Errorf("%w: unexpected %s at position %d", api.ErrHistoryCorrupted, ev, pos)
}

// match checks a recorded scheduling event against the command the
// orchestrator issued under the same task ID.
func (c *orchestrationContext) match(pos int, ev api.HistoryEvent) error {
	issued, ok := c.actions[ev.TaskID]
	if !ok || issued.Type != ev.Type || issued.Name != ev.Name {
		actual := "no matching call"
		if ok {
			actual = issued.String()
		}
		return &api.DeterminismError{
			InstanceID: c.instanceID,
			Position:   pos,
			Expected:   ev.String(),
			Actual:     actual,
		}
	}
	delete(c.actions, ev.TaskID)
	return nil
}

// resolve completes the task a completion event refers to. Completions for
// unknown, finished or cancelled tasks are ignored.
func (c *orchestrationContext) resolve(pos int, ev api.HistoryEvent, kind taskKind, result *api.Payload, failure *api.FailureDetails) error {
	t, ok := c.tasks[ev.TaskID]
	if !ok {
		return nil
	}
	if t.kind != kind || (kind == kindEvent && t.name != ev.Name) {
		return &api.DeterminismError{
			InstanceID: c.instanceID,
			Position:   pos,
			Expected:   ev.String(),
			Actual:     fmt.Sprintf("%s #%d %s", t.kind, t.id, t.name),
		}
	}
	delete(c.tasks, ev.TaskID)

	if failure != nil {
		t.complete(nil, &api.TaskFailedError{
			TaskID:   t.id,
			Name:     t.name,
			Kind:     failure.Kind,
			Message:  failure.Message,
			Attempts: t.attempt,
		})
		return nil
	}
	t.complete(result, nil)
	return nil
}
