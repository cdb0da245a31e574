package durable

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestLocalRunner_RunsToCompletion verifies that a LocalRunner drives an
// orchestration with activities from start to finish.
func TestLocalRunner_RunsToCompletion(t *testing.T) {
	runner := NewLocalRunner(EngineConfig{Logger: discardLogger()})

	require.NoError(t, Register(runner.Engine,
		map[string]Orchestrator{
			// (n + 1) * 2
			"IncThenDouble": func(ctx OrchestrationContext) (any, error) {
				var n int
				if err := ctx.GetInput(&n); err != nil {
					return nil, err
				}
				if err := ctx.CallActivity("Inc", n).Await(&n); err != nil {
					return nil, err
				}
				if err := ctx.CallActivity("Double", n).Await(&n); err != nil {
					return nil, err
				}
				return n, nil
			},
		},
		map[string]Activity{
			"Inc": func(ctx context.Context, in *Payload) (any, error) {
				var n int
				err := in.Decode(&n)
				return n + 1, err
			},
			"Double": func(ctx context.Context, in *Payload) (any, error) {
				var n int
				err := in.Decode(&n)
				return n * 2, err
			},
		},
	))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, runner.Start(ctx))
	defer runner.Stop()

	st, err := RunToCompletion(ctx, runner.Engine, "IncThenDouble", 3)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, st.Status)

	out, err := Output[int](st)
	require.NoError(t, err)
	require.Equal(t, 8, out)
}

func TestLocalRunner_StartTwiceFails(t *testing.T) {
	runner := NewLocalRunner(EngineConfig{Logger: discardLogger()})
	ctx := context.Background()

	require.NoError(t, runner.Start(ctx))
	require.Error(t, runner.Start(ctx))

	runner.Stop()
	// Stop is idempotent and the runner can be restarted.
	runner.Stop()
	require.NoError(t, runner.Start(ctx))
	runner.Stop()
}
