package executor

import (
	"github.com/petrijr/durable/pkg/api"
)

type taskKind int

const (
	kindActivity taskKind = iota
	kindSubOrchestration
	kindTimer
	kindEvent
	// kindComposite tasks have no suspension point of their own; they are
	// resolved by callbacks of the tasks they wrap (retries, bounded waits).
	kindComposite
)

func (k taskKind) String() string {
	switch k {
	case kindActivity:
		return "activity"
	case kindSubOrchestration:
		return "sub-orchestration"
	case kindTimer:
		return "timer"
	case kindEvent:
		return "event wait"
	}
	return "composite"
}

// task is the executor's implementation of api.Task.
type task struct {
	ctx     *orchestrationContext
	id      int
	kind    taskKind
	name    string
	attempt int

	done     bool
	canceled bool
	result   *api.Payload
	err      error

	callbacks []func()
	cancel    func()
}

var _ api.Task = (*task)(nil)

func (t *task) Await(v any) error {
	for !t.done {
		t.ctx.step()
	}
	if t.err != nil {
		return t.err
	}
	if v == nil {
		return nil
	}
	return t.result.Decode(v)
}

func (t *task) Done() bool {
	return t.done
}

func (t *task) Cancel() {
	if t.done {
		return
	}
	switch t.kind {
	case kindTimer:
		t.ctx.cancelTimer(t)
	case kindEvent:
		t.ctx.cancelWait(t)
	case kindComposite:
		if t.cancel != nil {
			t.cancel()
		}
	}
}

// complete resolves the task and runs its callbacks. Later calls are
// ignored.
func (t *task) complete(result *api.Payload, err error) {
	if t.done {
		return
	}
	t.done = true
	t.result = result
	t.err = err

	callbacks := t.callbacks
	t.callbacks = nil
	for _, cb := range callbacks {
		cb()
	}
}

// abandon resolves the task with ErrTaskCanceled without running callbacks.
func (t *task) abandon() {
	t.done = true
	t.canceled = true
	t.err = api.ErrTaskCanceled
	t.callbacks = nil
}

// then registers fn to run once the task completes.
func (t *task) then(fn func()) {
	if t.done {
		if !t.canceled {
			fn()
		}
		return
	}
	t.callbacks = append(t.callbacks, fn)
}
