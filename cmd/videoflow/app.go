package main

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/petrijr/durable"
	"github.com/petrijr/durable/sample/video"
)

// app carries what every command needs.
type app struct {
	ctx    context.Context
	cli    *CLI
	out    io.Writer
	logOut io.Writer
}

func (a *app) config() (durable.Config, error) {
	cfg := durable.DefaultConfig()
	if a.cli.Config != "" {
		var err error
		if cfg, err = durable.LoadConfig(a.cli.Config); err != nil {
			return durable.Config{}, err
		}
	}
	if a.cli.LogLevel != "" {
		cfg.LogLevel = a.cli.LogLevel
	}
	return cfg, cfg.Validate()
}

// pipeline is an opened backend with the video sample registered on it.
type pipeline struct {
	*durable.Bundle
	Activities *video.Activities
}

func (a *app) open(acts *video.Activities, orch *video.Orchestrators) (*pipeline, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger(a.logOut)
	observer := durable.NewCompositeObserver(
		durable.NewLoggingObserver(logger),
		durable.NewTracingObserver(),
	)

	b, err := durable.Open(a.ctx, cfg, logger, observer)
	if err != nil {
		return nil, err
	}

	if acts == nil {
		acts = &video.Activities{}
	}
	if orch == nil {
		orch = &video.Orchestrators{}
	}
	acts.Logger = logger.With(slog.String("component", "activities"))
	orch.Logger = logger.With(slog.String("component", "orchestrators"))

	if err := video.Register(b.Engine, acts, orch); err != nil {
		_ = b.Close()
		return nil, err
	}
	return &pipeline{Bundle: b, Activities: acts}, nil
}

// runInBackground runs the engine until the returned stop is called.
func (p *pipeline) runInBackground(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := p.Engine.Run(ctx); err != nil && ctx.Err() == nil {
			p.Logger.Error("engine stopped", slog.Any("error", err))
		}
	}()
	return func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			p.Logger.Warn("engine did not stop in time")
		}
	}
}
