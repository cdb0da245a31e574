package executor

import (
	"errors"
	"fmt"
	"time"

	"github.com/petrijr/durable/internal/retry"
	"github.com/petrijr/durable/pkg/api"
)

// orchestrationContext is the api.OrchestrationContext handed to
// orchestrator code during one activation.
type orchestrationContext struct {
	instanceID string
	name       string
	generation int
	input      *api.Payload
	now        time.Time

	history []api.HistoryEvent
	pastLen int
	cursor  int

	// replaying is true while the most recently applied event was already
	// recorded before this activation.
	replaying bool

	seq            int
	actions        map[int]api.HistoryEvent
	tasks          map[int]*task
	canceledTimers []int

	// terminal is set once the orchestrator returned; commands issued
	// afterwards by task callbacks are dropped.
	terminal bool

	continueAsNew bool
	continueInput any
}

var _ api.OrchestrationContext = (*orchestrationContext)(nil)

func (c *orchestrationContext) InstanceID() string     { return c.instanceID }
func (c *orchestrationContext) Name() string           { return c.name }
func (c *orchestrationContext) Generation() int        { return c.generation }
func (c *orchestrationContext) CurrentTime() time.Time { return c.now }

func (c *orchestrationContext) IsReplaying() bool {
	return c.replaying
}

func (c *orchestrationContext) GetInput(v any) error {
	return c.input.Decode(v)
}

func (c *orchestrationContext) CallActivity(name string, input any, opts ...api.CallOption) api.Task {
	payload, err := api.NewPayload(input)
	if err != nil {
		return c.failedTask(err)
	}
	o := api.ResolveCallOptions(opts...)
	if o.Retry == nil {
		return c.scheduleActivity(name, payload, 1)
	}
	return c.withRetry(*o.Retry, func(attempt int) *task {
		return c.scheduleActivity(name, payload, attempt)
	})
}

func (c *orchestrationContext) CallSubOrchestrator(name string, input any, opts ...api.CallOption) api.Task {
	payload, err := api.NewPayload(input)
	if err != nil {
		return c.failedTask(err)
	}
	o := api.ResolveCallOptions(opts...)
	if o.Retry == nil {
		return c.scheduleSubOrchestration(name, payload, 1)
	}
	return c.withRetry(*o.Retry, func(attempt int) *task {
		return c.scheduleSubOrchestration(name, payload, attempt)
	})
}

func (c *orchestrationContext) CreateTimer(d time.Duration) api.Task {
	return c.createTimer(d)
}

func (c *orchestrationContext) WaitForExternalEvent(name string) api.Task {
	return c.waitForEvent(name)
}

func (c *orchestrationContext) WaitForExternalEventWithTimeout(name string, timeout time.Duration) api.Task {
	wait := c.waitForEvent(name)
	timer := c.createTimer(timeout)

	bounded := c.newComposite(name)
	bounded.cancel = func() {
		wait.Cancel()
		timer.Cancel()
		bounded.abandon()
	}
	wait.then(func() {
		timer.Cancel()
		bounded.complete(wait.result, wait.err)
	})
	timer.then(func() {
		wait.Cancel()
		bounded.complete(nil, fmt.Errorf("%w: event %q not received within %s", api.ErrTimeoutExceeded, name, timeout))
	})
	return bounded
}

func (c *orchestrationContext) WhenAll(tasks ...api.Task) error {
	var errs []error
	for _, t := range tasks {
		if err := t.Await(nil); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *orchestrationContext) WhenAny(tasks ...api.Task) (api.Task, error) {
	if len(tasks) == 0 {
		return nil, errors.New("WhenAny requires at least one task")
	}
	for {
		for _, t := range tasks {
			if t.Done() {
				return t, nil
			}
		}
		c.step()
	}
}

func (c *orchestrationContext) ContinueAsNew(input any) {
	c.continueAsNew = true
	c.continueInput = input
}

func (c *orchestrationContext) nextID() int {
	c.seq++
	return c.seq
}

// issue records a command and the task awaiting its outcome.
func (c *orchestrationContext) issue(ev api.HistoryEvent, t *task) *task {
	if !c.terminal {
		c.actions[ev.TaskID] = ev
	}
	c.tasks[t.id] = t
	return t
}

func (c *orchestrationContext) scheduleActivity(name string, input *api.Payload, attempt int) *task {
	id := c.nextID()
	t := &task{ctx: c, id: id, kind: kindActivity, name: name, attempt: attempt}
	return c.issue(api.NewTaskScheduled(id, name, input, attempt), t)
}

func (c *orchestrationContext) scheduleSubOrchestration(name string, input *api.Payload, attempt int) *task {
	id := c.nextID()
	t := &task{ctx: c, id: id, kind: kindSubOrchestration, name: name, attempt: attempt}
	ev := api.NewSubOrchestrationScheduled(id, name, input, ChildInstanceID(c.instanceID, c.generation, id))
	ev.Attempt = attempt
	return c.issue(ev, t)
}

func (c *orchestrationContext) createTimer(d time.Duration) *task {
	if d < 0 {
		d = 0
	}
	id := c.nextID()
	t := &task{ctx: c, id: id, kind: kindTimer}
	return c.issue(api.NewTimerCreated(id, c.now.Add(d)), t)
}

// waitForEvent registers an event wait. Waits are numbered like every
// other suspension point but have no scheduling event; the engine records
// EventRaised under the wait's ID once it hands the wait an event.
func (c *orchestrationContext) waitForEvent(name string) *task {
	id := c.nextID()
	t := &task{ctx: c, id: id, kind: kindEvent, name: name}
	c.tasks[id] = t
	return t
}

func (c *orchestrationContext) newComposite(name string) *task {
	return &task{ctx: c, kind: kindComposite, name: name}
}

func (c *orchestrationContext) failedTask(err error) *task {
	t := c.newComposite("")
	t.complete(nil, err)
	return t
}

// withRetry runs schedule for attempt 1 and, while the retry policy allows
// it, waits on a durable timer and schedules the next attempt after each
// failure. The returned task resolves with the first success or the last
// failure.
func (c *orchestrationContext) withRetry(opts api.RetryOptions, schedule func(attempt int) *task) *task {
	outer := c.newComposite("")

	var attemptN func(attempt int)
	attemptN = func(attempt int) {
		t := schedule(attempt)
		if outer.name == "" {
			outer.name = t.name
		}
		t.then(func() {
			if t.err == nil {
				outer.complete(t.result, nil)
				return
			}
			delay, again := retry.Decide(opts, attempt, api.FailureFromError(t.err).Kind)
			if !again {
				outer.complete(nil, t.err)
				return
			}
			c.createTimer(delay).then(func() {
				attemptN(attempt + 1)
			})
		})
	}
	attemptN(1)
	return outer
}

func (c *orchestrationContext) cancelTimer(t *task) {
	delete(c.tasks, t.id)
	t.abandon()
	if !c.replaying {
		c.canceledTimers = append(c.canceledTimers, t.id)
	}
}

func (c *orchestrationContext) cancelWait(t *task) {
	delete(c.tasks, t.id)
	t.abandon()
}

// ChildInstanceID is the instance ID of the sub-orchestration started by
// the given task of a parent generation.
func ChildInstanceID(parentID string, generation, taskID int) string {
	return fmt.Sprintf("%s:%d:%d", parentID, generation, taskID)
}
