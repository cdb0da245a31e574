package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/petrijr/durable/internal/dispatcher"
	"github.com/petrijr/durable/internal/events"
	"github.com/petrijr/durable/internal/executor"
	"github.com/petrijr/durable/internal/persistence"
	"github.com/petrijr/durable/internal/taskqueue"
	"github.com/petrijr/durable/internal/timer"
	"github.com/petrijr/durable/pkg/api"
	"github.com/petrijr/durable/pkg/worker"
)

// Config describes how to construct an engineImpl.
// External callers usually go through the backend helpers.
type Config struct {
	History persistence.HistoryStore
	Queue   taskqueue.Queue

	Observer api.Observer
	Logger   *slog.Logger

	// Concurrency is the number of worker goroutines started by Run.
	Concurrency int

	// ActivityRatePerSecond limits activity starts; zero means unlimited.
	ActivityRatePerSecond float64
	ActivityBurst         int

	// EventRetention bounds how long a raised event waits for a matching
	// wait. Zero keeps it for the lifetime of the instance.
	EventRetention time.Duration

	// MaxTaskAttempts bounds how often a failing work item is retried
	// before it is dropped. Zero uses the worker default.
	MaxTaskAttempts int

	// MaxGenerations caps continue-as-new; zero means unbounded.
	MaxGenerations int

	// PollInterval is how often WaitForCompletion checks the history.
	PollInterval time.Duration

	// Clock supplies the time recorded on history events.
	Clock func() time.Time
}

// engineImpl is the orchestration engine: it owns the history store and
// the work-item queue, and turns queue tasks into instance activations.
type engineImpl struct {
	history persistence.HistoryStore
	queue   taskqueue.Queue

	registry   *registry
	executor   *executor.Executor
	dispatcher *dispatcher.Dispatcher
	timers     *timer.Service
	locks      *instanceLocks

	observer api.Observer
	logger   *slog.Logger
	cfg      Config

	mu      sync.Mutex
	waiting map[string][]string
}

var (
	_ api.Engine     = (*engineImpl)(nil)
	_ worker.Handler = (*engineImpl)(nil)
)

// NewEngineWithConfig creates a new Engine using the given configuration.
// History and Queue default to in-memory implementations.
func NewEngineWithConfig(cfg Config) api.Engine {
	return newEngine(cfg)
}

func newEngine(cfg Config) *engineImpl {
	if cfg.History == nil {
		cfg.History = persistence.NewInMemoryStore()
	}
	if cfg.Queue == nil {
		cfg.Queue = taskqueue.NewInMemoryQueue()
	}
	if cfg.Observer == nil {
		cfg.Observer = api.NoopObserver{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 20 * time.Millisecond
	}
	if cfg.Clock == nil {
		cfg.Clock = func() time.Time { return time.Now().UTC() }
	}

	reg := newRegistry()
	e := &engineImpl{
		history:  cfg.History,
		queue:    cfg.Queue,
		registry: reg,
		executor: executor.New(reg, cfg.Logger),
		dispatcher: dispatcher.New(dispatcher.Config{
			Queue:         cfg.Queue,
			Activities:    reg,
			Observer:      cfg.Observer,
			Logger:        cfg.Logger,
			RatePerSecond: cfg.ActivityRatePerSecond,
			Burst:         cfg.ActivityBurst,
		}),
		timers:   timer.NewService(cfg.Queue),
		locks:    newInstanceLocks(),
		observer: cfg.Observer,
		logger:   cfg.Logger,
		cfg:      cfg,
		waiting:  make(map[string][]string),
	}
	return e
}

func (e *engineImpl) RegisterOrchestrator(name string, fn api.Orchestrator) error {
	return e.registry.RegisterOrchestrator(name, fn)
}

func (e *engineImpl) RegisterActivity(name string, fn api.Activity) error {
	return e.registry.RegisterActivity(name, fn)
}

func (e *engineImpl) StartOrchestration(ctx context.Context, name string, input any, opts ...api.StartOption) (string, error) {
	if _, ok := e.registry.Orchestrator(name); !ok {
		return "", fmt.Errorf("%w: %s", api.ErrOrchestratorNotRegistered, name)
	}

	payload, err := api.NewPayload(input)
	if err != nil {
		return "", err
	}

	id := api.ResolveStartOptions(opts...).InstanceID
	if id == "" {
		id = uuid.NewString()
	}

	started := api.NewExecutionStarted(name, payload, 1, nil)
	started.At = e.cfg.Clock()
	if err := e.history.Create(ctx, id, started); err != nil {
		return "", err
	}

	e.observer.OnOrchestrationStarted(ctx, e.stateOf(id, []api.HistoryEvent{started}))

	if err := e.queue.Enqueue(ctx, taskqueue.Task{
		Type:       taskqueue.TaskTypeWake,
		InstanceID: id,
		Generation: 1,
	}); err != nil {
		return "", fmt.Errorf("schedule first activation of %s: %w", id, err)
	}
	return id, nil
}

func (e *engineImpl) RaiseEvent(ctx context.Context, instanceID, eventName string, payload any) error {
	if eventName == "" {
		return errors.New("event name is required")
	}

	st, err := e.GetStatus(ctx, instanceID)
	if err != nil {
		return err
	}
	if st.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", api.ErrInstanceNotRunning, instanceID, st.Status)
	}

	p, err := api.NewPayload(payload)
	if err != nil {
		return err
	}

	raised := api.NewEventBuffered(uuid.NewString(), eventName, p)
	return e.queue.Enqueue(ctx, taskqueue.Task{
		Type:       taskqueue.TaskTypeRaiseEvent,
		InstanceID: instanceID,
		Event:      &raised,
	})
}

func (e *engineImpl) GetStatus(ctx context.Context, instanceID string) (*api.OrchestrationState, error) {
	past, err := e.history.Read(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	st, err := deriveState(instanceID, past)
	if err != nil {
		return nil, err
	}
	if !st.Status.IsTerminal() {
		e.mu.Lock()
		st.WaitingFor = append([]string(nil), e.waiting[instanceID]...)
		e.mu.Unlock()
	}
	return st, nil
}

func (e *engineImpl) WaitForCompletion(ctx context.Context, instanceID string) (*api.OrchestrationState, error) {
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		st, err := e.GetStatus(ctx, instanceID)
		if err != nil {
			return nil, err
		}
		if st.Status.IsTerminal() {
			return st, nil
		}

		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (e *engineImpl) ListInstances(ctx context.Context, opts api.InstanceListOptions) ([]*api.OrchestrationState, error) {
	ids, err := e.history.ListInstances(ctx)
	if err != nil {
		return nil, err
	}

	var out []*api.OrchestrationState
	for _, id := range ids {
		st, err := e.GetStatus(ctx, id)
		if err != nil {
			if errors.Is(err, api.ErrInstanceNotFound) {
				continue
			}
			return nil, err
		}
		if opts.Name != "" && st.Name != opts.Name {
			continue
		}
		if opts.Status != "" && st.Status != opts.Status {
			continue
		}
		out = append(out, st)
	}
	return out, nil
}

// Run processes work items until ctx is cancelled.
func (e *engineImpl) Run(ctx context.Context) error {
	w := worker.NewWithConfig(e, e.queue, worker.Config{
		Concurrency:     e.cfg.Concurrency,
		MaxTaskAttempts: e.cfg.MaxTaskAttempts,
		Logger:          e.logger,
	})
	return w.Run(ctx)
}

// HandleTask carries out one work item.
func (e *engineImpl) HandleTask(ctx context.Context, task *taskqueue.Task) error {
	switch task.Type {
	case taskqueue.TaskTypeWake:
		var delivered []api.HistoryEvent
		if task.Event != nil {
			delivered = append(delivered, *task.Event)
		}
		return e.activate(ctx, task.InstanceID, task.Generation, delivered)

	case taskqueue.TaskTypeStartOrchestration:
		return e.startChild(ctx, task)

	case taskqueue.TaskTypeRaiseEvent:
		if task.Event == nil {
			return fmt.Errorf("raise-event task %s has no event", task.ID)
		}
		ev := *task.Event
		ev.Type, ev.Generation = api.EventBuffered, 0
		if ev.BufferID == "" {
			ev.BufferID = task.ID
		}
		return e.activate(ctx, task.InstanceID, 0, []api.HistoryEvent{ev})

	case taskqueue.TaskTypeActivity:
		ev, err := e.dispatcher.Execute(ctx, task)
		if err != nil {
			return fmt.Errorf("run activity task %s of %s: %w", task.ID, task.InstanceID, err)
		}
		return e.activate(ctx, task.InstanceID, task.Generation, []api.HistoryEvent{ev})

	case taskqueue.TaskTypeTimer:
		ev, ok := e.timers.Fire(task)
		if !ok {
			return nil
		}
		return e.activate(ctx, task.InstanceID, task.Generation, []api.HistoryEvent{ev})
	}

	return fmt.Errorf("unknown task type: %s", task.Type)
}

// activate runs one activation of an instance: read history, execute,
// append, then dispatch. delivered are the events that triggered it;
// generation (if non-zero) is the generation they belong to.
func (e *engineImpl) activate(ctx context.Context, instanceID string, generation int, delivered []api.HistoryEvent) error {
	unlock := e.locks.Lock(instanceID)
	defer unlock()

	past, err := e.history.Read(ctx, instanceID)
	if err != nil {
		if errors.Is(err, api.ErrInstanceNotFound) {
			e.logger.WarnContext(ctx, "dropping work for unknown instance",
				slog.String("instance_id", instanceID),
			)
			return nil
		}
		return err
	}

	st, err := deriveState(instanceID, past)
	if err != nil {
		return err
	}
	if st.Status.IsTerminal() || (generation != 0 && generation != st.Generation) {
		e.logger.DebugContext(ctx, "dropping stale work",
			slog.String("instance_id", instanceID),
			slog.String("status", string(st.Status)),
			slog.Int("generation", generation),
		)
		return nil
	}

	box := e.mailbox(past)
	hadDeliveries := len(delivered) > 0
	delivered = freshEvents(past, st.Generation, delivered)

	now := e.cfg.Clock()
	incoming := []api.HistoryEvent{api.NewOrchestratorStarted(now)}
	var arrived []api.HistoryEvent
	for _, ev := range delivered {
		if ev.Type != api.EventBuffered {
			incoming = append(incoming, ev)
			continue
		}
		if box.Seen(ev.BufferID) {
			continue
		}
		ev.At = now
		box.Add(ev)
		arrived = append(arrived, ev)
	}
	if hadDeliveries && len(incoming) == 1 && len(arrived) == 0 {
		return nil
	}

	replay := replayable(past)
	var res *executor.Result
	for {
		res = e.executor.Execute(instanceID, replay, incoming)
		if res.Fault != nil || res.Completed || res.ContinuedAsNew {
			break
		}
		matched := takeBuffered(box, st.Generation, res.Waiting)
		if len(matched) == 0 {
			break
		}
		incoming = append(incoming, matched...)
	}

	if len(incoming) == 1 && len(arrived) == 0 && len(res.NewEvents) == 0 {
		e.setWaiting(instanceID, res.Waiting)
		return nil
	}

	for i := range incoming {
		if incoming[i].At.IsZero() {
			incoming[i].At = now
		}
	}
	for i := range res.NewEvents {
		res.NewEvents[i].At = now
	}

	// Arrivals are written ahead of the events that may consume them.
	written := make([]api.HistoryEvent, 0, len(incoming)+len(arrived)+len(res.NewEvents))
	written = append(written, incoming[0])
	written = append(written, arrived...)
	written = append(written, incoming[1:]...)

	if res.ContinuedAsNew {
		return e.continueAsNew(ctx, instanceID, past, written, box.Pending(), res)
	}

	// A failed append leaves every buffered event unconsumed in history.
	if err := e.history.Append(ctx, instanceID, append(written, res.NewEvents...)...); err != nil {
		return fmt.Errorf("append history of %s: %w", instanceID, err)
	}

	for _, id := range res.CanceledTimers {
		e.timers.Cancel(instanceID, st.Generation, id)
	}
	if err := e.dispatch(ctx, instanceID, st.Generation, res.NewEvents); err != nil {
		return err
	}

	terminal, ended := res.Terminal()
	if !ended {
		e.setWaiting(instanceID, res.Waiting)
		return nil
	}

	full := append(append(past, written...), res.NewEvents...)
	return e.finish(ctx, instanceID, full, terminal)
}

// freshEvents drops deliveries from other generations and completions
// already recorded in history.
func freshEvents(past []api.HistoryEvent, generation int, delivered []api.HistoryEvent) []api.HistoryEvent {
	resolved := make(map[int]struct{})
	for _, ev := range past {
		if isCompletion(ev.Type) {
			resolved[ev.TaskID] = struct{}{}
		}
	}

	var out []api.HistoryEvent
	for _, ev := range delivered {
		if ev.Generation != 0 && ev.Generation != generation {
			continue
		}
		if isCompletion(ev.Type) {
			if _, dup := resolved[ev.TaskID]; dup {
				continue
			}
			resolved[ev.TaskID] = struct{}{}
		}
		out = append(out, ev)
	}
	return out
}

func isCompletion(t api.EventType) bool {
	switch t {
	case api.EventTaskCompleted, api.EventTaskFailed,
		api.EventSubOrchestrationCompleted, api.EventSubOrchestrationFailed,
		api.EventTimerFired, api.EventRaised:
		return true
	}
	return false
}

// takeBuffered hands buffered events to pending waits, oldest wait first.
func takeBuffered(box *events.Mailbox, generation int, waits []executor.Wait) []api.HistoryEvent {
	var out []api.HistoryEvent
	for _, w := range waits {
		if ev, ok := box.Take(w.Name); ok {
			raised := api.NewEventRaised(generation, w.TaskID, w.Name, ev.Input)
			raised.BufferID = ev.BufferID
			out = append(out, raised)
		}
	}
	return out
}

func (e *engineImpl) mailbox(history []api.HistoryEvent) *events.Mailbox {
	return events.Load(history,
		events.WithRetention(e.cfg.EventRetention),
		events.WithClock(e.cfg.Clock),
	)
}

// replayable drops the records the executor does not replay.
func replayable(history []api.HistoryEvent) []api.HistoryEvent {
	out := make([]api.HistoryEvent, 0, len(history))
	for _, ev := range history {
		if ev.Type != api.EventBuffered {
			out = append(out, ev)
		}
	}
	return out
}

// dispatch carries out the commands recorded by an activation.
func (e *engineImpl) dispatch(ctx context.Context, instanceID string, generation int, cmds []api.HistoryEvent) error {
	for _, ev := range cmds {
		var err error
		switch ev.Type {
		case api.EventTaskScheduled:
			err = e.dispatcher.Schedule(ctx, instanceID, generation, ev)
		case api.EventTimerCreated:
			err = e.timers.Schedule(ctx, instanceID, generation, ev)
		case api.EventSubOrchestrationScheduled:
			child := api.NewExecutionStarted(ev.Name, ev.Input, 1, &api.ParentRef{
				InstanceID: instanceID,
				TaskID:     ev.TaskID,
				Generation: generation,
			})
			err = e.queue.Enqueue(ctx, taskqueue.Task{
				Type:       taskqueue.TaskTypeStartOrchestration,
				InstanceID: ev.ChildInstanceID,
				Generation: 1,
				Event:      &child,
			})
		default:
			continue
		}
		if err != nil {
			return fmt.Errorf("dispatch %s for %s: %w", ev, instanceID, err)
		}
	}
	return nil
}

// continueAsNew starts the next generation. Events nobody consumed yet
// move into the new history.
func (e *engineImpl) continueAsNew(ctx context.Context, instanceID string, past, incoming, carried []api.HistoryEvent, res *executor.Result) error {
	started := past[0]
	next := started.Generation + 1

	if e.cfg.MaxGenerations > 0 && next > e.cfg.MaxGenerations {
		failure := api.FailureFromError(fmt.Errorf("%w: %s reached %d generations",
			api.ErrGenerationLimit, instanceID, e.cfg.MaxGenerations))
		terminal := api.NewExecutionCompleted(nil, failure)
		terminal.At = incoming[0].At

		if err := e.history.Append(ctx, instanceID, append(incoming, terminal)...); err != nil {
			return fmt.Errorf("append history of %s: %w", instanceID, err)
		}
		return e.finish(ctx, instanceID, append(append(past, incoming...), terminal), terminal)
	}

	fresh := api.NewExecutionStarted(started.Name, res.ContinueInput, next, started.Parent())
	fresh.At = incoming[0].At
	if err := e.history.Reset(ctx, instanceID, fresh, carried...); err != nil {
		return fmt.Errorf("reset history of %s: %w", instanceID, err)
	}

	e.timers.Forget(instanceID)
	e.setWaiting(instanceID, nil)
	e.observer.OnOrchestrationContinuedAsNew(ctx, e.stateOf(instanceID, []api.HistoryEvent{fresh}))

	return e.queue.Enqueue(ctx, taskqueue.Task{
		Type:       taskqueue.TaskTypeWake,
		InstanceID: instanceID,
		Generation: next,
	})
}

// finish runs the bookkeeping for an instance whose generation ended for
// good: observers, buffered events, and the parent's completion.
func (e *engineImpl) finish(ctx context.Context, instanceID string, history []api.HistoryEvent, terminal api.HistoryEvent) error {
	st := e.stateOf(instanceID, history)
	switch {
	case st.Status == api.StatusCompleted:
		e.observer.OnOrchestrationCompleted(ctx, st)
	default:
		e.observer.OnOrchestrationFailed(ctx, st, st.Failure)
	}

	e.setWaiting(instanceID, nil)
	e.timers.Forget(instanceID)
	if dropped := e.mailbox(history).Names(); len(dropped) > 0 {
		e.logger.WarnContext(ctx, "dropping undelivered events",
			slog.String("instance_id", instanceID),
			slog.Any("events", dropped),
		)
	}

	return e.notifyParent(ctx, history[0], terminal)
}

// notifyParent reports a sub-orchestration's outcome to its parent through
// the queue.
func (e *engineImpl) notifyParent(ctx context.Context, started, terminal api.HistoryEvent) error {
	parent := started.Parent()
	if parent == nil {
		return nil
	}

	var ev api.HistoryEvent
	if terminal.Type == api.EventExecutionCompleted && terminal.Failure == nil {
		ev = api.NewSubOrchestrationCompleted(parent.Generation, parent.TaskID, terminal.Result)
	} else {
		ev = api.NewSubOrchestrationFailed(parent.Generation, parent.TaskID, terminal.Failure)
	}

	return e.queue.Enqueue(ctx, taskqueue.Task{
		Type:       taskqueue.TaskTypeWake,
		InstanceID: parent.InstanceID,
		Generation: parent.Generation,
		Event:      &ev,
	})
}

func (e *engineImpl) startChild(ctx context.Context, task *taskqueue.Task) error {
	if task.Event == nil {
		return fmt.Errorf("start task %s has no event", task.ID)
	}
	started := *task.Event
	started.At = e.cfg.Clock()

	err := e.history.Create(ctx, task.InstanceID, started)
	if errors.Is(err, api.ErrInstanceExists) {
		// Started before; if it already ended, make sure the parent heard.
		past, rerr := e.history.Read(ctx, task.InstanceID)
		if rerr != nil {
			return rerr
		}
		if last := past[len(past)-1]; last.Type.IsTerminal() {
			return e.notifyParent(ctx, past[0], last)
		}
		return nil
	}
	if err != nil {
		return err
	}

	e.observer.OnOrchestrationStarted(ctx, e.stateOf(task.InstanceID, []api.HistoryEvent{started}))
	return e.activate(ctx, task.InstanceID, started.Generation, nil)
}

// RecoverInstances re-dispatches the outstanding commands of every running
// instance and schedules an activation for each. Commands whose outcome is
// already recorded are skipped; duplicates of the rest are harmless because
// activations drop completions that history already has.
func (e *engineImpl) RecoverInstances(ctx context.Context) (int, error) {
	ids, err := e.history.ListInstances(ctx)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, id := range ids {
		past, err := e.history.Read(ctx, id)
		if err != nil {
			if errors.Is(err, api.ErrInstanceNotFound) {
				continue
			}
			return recovered, err
		}
		st, err := deriveState(id, past)
		if err != nil {
			e.logger.ErrorContext(ctx, "skipping unreadable instance",
				slog.String("instance_id", id),
				slog.String("error", err.Error()),
			)
			continue
		}
		if st.Status.IsTerminal() {
			continue
		}

		if err := e.dispatch(ctx, id, st.Generation, outstanding(past)); err != nil {
			return recovered, err
		}
		if err := e.queue.Enqueue(ctx, taskqueue.Task{
			Type:       taskqueue.TaskTypeWake,
			InstanceID: id,
			Generation: st.Generation,
		}); err != nil {
			return recovered, err
		}
		recovered++
	}
	return recovered, nil
}

// outstanding returns the scheduling events of history that have no
// recorded outcome, in task ID order.
func outstanding(history []api.HistoryEvent) []api.HistoryEvent {
	pending := make(map[int]api.HistoryEvent)
	for _, ev := range history {
		switch {
		case ev.Type.IsScheduling():
			pending[ev.TaskID] = ev
		case isCompletion(ev.Type):
			delete(pending, ev.TaskID)
		}
	}

	out := make([]api.HistoryEvent, 0, len(pending))
	for _, ev := range pending {
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskID < out[j].TaskID })
	return out
}

func (e *engineImpl) setWaiting(instanceID string, waits []executor.Wait) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(waits) == 0 {
		delete(e.waiting, instanceID)
		return
	}
	names := make([]string, 0, len(waits))
	for _, w := range waits {
		names = append(names, w.Name)
	}
	e.waiting[instanceID] = names
}

// stateOf derives the state of a history the engine just wrote. A history
// the engine produced itself cannot break the lifecycle, so errors fall
// back to a bare state.
func (e *engineImpl) stateOf(instanceID string, history []api.HistoryEvent) *api.OrchestrationState {
	st, err := deriveState(instanceID, history)
	if err != nil {
		return &api.OrchestrationState{InstanceID: instanceID}
	}
	return st
}
