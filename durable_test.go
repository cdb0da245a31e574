package durable

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDurable_TopLevelWrappers(t *testing.T) {
	runner := NewLocalRunner(EngineConfig{Logger: discardLogger()})
	eng := runner.Engine

	require.NoError(t, eng.RegisterOrchestrator("WaitForGo", func(ctx OrchestrationContext) (any, error) {
		var msg string
		err := ctx.WaitForExternalEvent("go").Await(&msg)
		return msg, err
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, runner.Start(ctx))
	defer runner.Stop()

	id, err := Start(ctx, eng, "WaitForGo", nil)
	require.NoError(t, err)

	st, err := GetStatus(ctx, eng, id)
	require.NoError(t, err)
	require.Equal(t, "WaitForGo", st.Name)
	require.False(t, st.Status.IsTerminal())

	require.NoError(t, RaiseEvent(ctx, eng, id, "go", "went"))

	st, err = eng.WaitForCompletion(ctx, id)
	require.NoError(t, err)
	out, err := Output[string](st)
	require.NoError(t, err)
	require.Equal(t, "went", out)

	list, err := ListInstances(ctx, eng, InstanceListOptions{Status: StatusCompleted})
	require.NoError(t, err)
	require.Len(t, list, 1)

	n, err := RecoverInstances(ctx, eng)
	require.NoError(t, err)
	require.Zero(t, n, "completed instances are not recovered")
}

func TestDurable_RegisterStopsOnDuplicate(t *testing.T) {
	eng := NewInMemoryEngine()
	noop := func(ctx OrchestrationContext) (any, error) { return nil, nil }

	require.NoError(t, Register(eng, map[string]Orchestrator{"a": noop}, nil))
	require.Error(t, Register(eng, map[string]Orchestrator{"a": noop}, nil))
}

func TestDurable_ObserverAndMetrics(t *testing.T) {
	metrics := &BasicMetrics{}
	observer := NewCompositeObserver(NewLoggingObserver(discardLogger()), metrics)

	runner := NewLocalRunner(EngineConfig{Observer: observer, Logger: discardLogger()})
	require.NoError(t, runner.Engine.RegisterActivity("Flaky", func(ctx context.Context, in *Payload) (any, error) {
		return nil, errors.New("always")
	}))
	require.NoError(t, runner.Engine.RegisterActivity("Fine", func(ctx context.Context, in *Payload) (any, error) {
		return "ok", nil
	}))
	require.NoError(t, runner.Engine.RegisterOrchestrator("Mixed", func(ctx OrchestrationContext) (any, error) {
		if err := ctx.CallActivity("Fine", nil).Await(nil); err != nil {
			return nil, err
		}
		return nil, ctx.CallActivity("Flaky", nil, Retry(2).Immediate().CallOption()).Await(nil)
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, runner.Start(ctx))
	defer runner.Stop()

	st, err := RunToCompletion(ctx, runner.Engine, "Mixed", nil)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, st.Status)

	snap := metrics.Snapshot()
	require.EqualValues(t, 1, snap.OrchestrationsStarted)
	require.EqualValues(t, 1, snap.OrchestrationsFailed)
	require.EqualValues(t, 1, snap.ActivitiesCompleted)
	require.EqualValues(t, 2, snap.ActivitiesFailed)
}
