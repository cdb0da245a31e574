package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/petrijr/durable/internal/retry"
	"github.com/petrijr/durable/internal/taskqueue"
	"github.com/petrijr/durable/pkg/api"
)

// Handler processes a single work item.
type Handler interface {
	HandleTask(ctx context.Context, task *taskqueue.Task) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, task *taskqueue.Task) error

func (f HandlerFunc) HandleTask(ctx context.Context, task *taskqueue.Task) error {
	return f(ctx, task)
}

// Config controls a Worker.
type Config struct {
	// Concurrency is the number of goroutines pulling from the queue.
	// Defaults to 4.
	Concurrency int

	// ErrorBackoff is how long a goroutine pauses after a failed dequeue.
	// Defaults to 100ms.
	ErrorBackoff time.Duration

	// MaxTaskAttempts is how many times a task is handed to the handler
	// before a failing task is dropped. Defaults to 5.
	MaxTaskAttempts int

	// RetryBackoff is the delay before the first retry of a failed task.
	// It doubles on each further attempt, up to MaxRetryBackoff.
	// Defaults to 200ms and 30s.
	RetryBackoff    time.Duration
	MaxRetryBackoff time.Duration

	Logger *slog.Logger
}

// Worker pulls tasks from a Queue and hands them to a Handler.
type Worker struct {
	handler Handler
	queue   taskqueue.Queue
	cfg     Config
	policy  api.RetryOptions
	logger  *slog.Logger
}

// New creates a new Worker with default settings.
func New(handler Handler, queue taskqueue.Queue) *Worker {
	return NewWithConfig(handler, queue, Config{})
}

// NewWithConfig creates a new Worker.
func NewWithConfig(handler Handler, queue taskqueue.Queue, cfg Config) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = 100 * time.Millisecond
	}
	if cfg.MaxTaskAttempts <= 0 {
		cfg.MaxTaskAttempts = 5
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 200 * time.Millisecond
	}
	if cfg.MaxRetryBackoff <= 0 {
		cfg.MaxRetryBackoff = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		handler: handler,
		queue:   queue,
		cfg:     cfg,
		policy: api.RetryOptions{
			FirstRetryInterval:  cfg.RetryBackoff,
			MaxRetryInterval:    cfg.MaxRetryBackoff,
			MaxNumberOfAttempts: cfg.MaxTaskAttempts,
			Backoff:             api.BackoffExponential,
		},
		logger: logger,
	}
}

// ProcessOne pulls a single task from the queue and processes it.
// Returns (processed, error):
//   - processed == false: no task was obtained (ctx ended or dequeue failed).
//   - processed == true: a task was handled; err is the handler's result.
//
// A task whose handler fails goes back on the queue after a backoff until
// it has been attempted MaxTaskAttempts times.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	task, err := w.queue.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}
	if err := w.handler.HandleTask(ctx, task); err != nil {
		w.requeue(ctx, task, err)
		return true, err
	}
	return true, nil
}

// requeue schedules another attempt of a failed task, or drops it once its
// attempts are used up or the failure is terminal.
func (w *Worker) requeue(ctx context.Context, task *taskqueue.Task, cause error) {
	log := w.logger.With(
		slog.String("task_id", task.ID),
		slog.String("task_type", string(task.Type)),
		slog.String("instance_id", task.InstanceID),
		slog.Int("attempt", task.Attempts),
		slog.String("error", cause.Error()),
	)

	delay, ok := retry.Decide(w.policy, max(task.Attempts, 1), api.FailureFromError(cause).Kind)
	if !ok {
		log.ErrorContext(ctx, "task failed, dropping")
		return
	}

	next := *task
	next.NotBefore = time.Now().Add(delay)
	// Shutdown cancels ctx; the task must still go back.
	if err := w.queue.Enqueue(context.WithoutCancel(ctx), next); err != nil {
		log.ErrorContext(ctx, "requeue failed task", slog.String("requeue_error", err.Error()))
		return
	}
	log.WarnContext(ctx, "task failed, retrying", slog.Duration("backoff", delay))
}

// Run processes tasks on Concurrency goroutines until ctx is cancelled.
// Handler errors requeue the task and do not stop the worker. Run returns nil
// when ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < w.cfg.Concurrency; i++ {
		g.Go(func() error {
			return w.loop(gctx)
		})
	}
	err := g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (w *Worker) loop(ctx context.Context) error {
	for {
		processed, err := w.ProcessOne(ctx)
		if ctx.Err() != nil {
			return nil
		}
		switch {
		case err == nil, processed:
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil
		default:
			w.logger.WarnContext(ctx, "dequeue failed",
				slog.String("error", err.Error()),
			)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(w.cfg.ErrorBackoff):
			}
		}
	}
}
