package durable

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// LocalRunner runs an in-memory Engine in background goroutines. It is
// intended for local development, tests and single-process demos.
//
// Typical usage:
//
//	runner := durable.NewLocalRunner(durable.EngineConfig{})
//	_ = runner.Engine.RegisterOrchestrator("Greeting", greeting)
//
//	_ = runner.Start(ctx)
//	defer runner.Stop()
//
//	st, err := durable.RunToCompletion(ctx, runner.Engine, "Greeting", "Gopher")
type LocalRunner struct {
	// Engine is the in-memory engine driven by this runner.
	Engine Engine

	logger *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewLocalRunner constructs a LocalRunner around an in-memory engine built
// from cfg.
func NewLocalRunner(cfg EngineConfig) *LocalRunner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalRunner{
		Engine: NewEngine(cfg),
		logger: logger,
	}
}

// Start runs the engine's worker pool until Stop is called or ctx ends.
//
// If Start is called more than once without Stop, it returns an error.
func (r *LocalRunner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return errors.New("durable: LocalRunner already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.running = true

	go func(done chan struct{}) {
		defer close(done)
		if err := r.Engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Error("local runner stopped", slog.String("error", err.Error()))
		}
	}(r.done)

	return nil
}

// Stop cancels the worker pool started by Start and waits for it to exit.
func (r *LocalRunner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel, done := r.cancel, r.done
	r.running = false
	r.cancel = nil
	r.done = nil
	r.mu.Unlock()

	cancel()
	<-done
}
