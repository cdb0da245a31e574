package persistence

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/durable/pkg/api"
)

// runHistoryStoreContract exercises the behavior every HistoryStore backend
// must share. newStore must return an empty store.
func runHistoryStoreContract(t *testing.T, newStore func(t *testing.T) HistoryStore) {
	t.Run("CreateReadAppend", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		started := api.NewExecutionStarted("O_ProcessVideo", api.MustPayload("cat.mp4"), 1, nil)
		started.At = at
		require.NoError(t, store.Create(ctx, "inst-1", started))

		require.NoError(t, store.Append(ctx, "inst-1",
			api.NewTaskScheduled(1, "A_TranscodeVideo", api.MustPayload(1000), 1),
			api.NewTaskCompleted(1, 1, api.MustPayload("cat-1000kbps.mp4")),
		))
		require.NoError(t, store.Append(ctx, "inst-1"))

		h, err := store.Read(ctx, "inst-1")
		require.NoError(t, err)
		require.Len(t, h, 3)
		require.Equal(t, api.EventExecutionStarted, h[0].Type)
		require.True(t, at.Equal(h[0].At))
		require.Equal(t, "O_ProcessVideo", h[0].Name)
		require.Equal(t, 1, h[0].Generation)
		require.Equal(t, api.EventTaskScheduled, h[1].Type)
		require.Equal(t, "A_TranscodeVideo", h[1].Name)
		require.Equal(t, api.EventTaskCompleted, h[2].Type)

		out, err := api.DecodePayload[string](h[2].Result)
		require.NoError(t, err)
		require.Equal(t, "cat-1000kbps.mp4", out)
	})

	t.Run("CreateTwiceFails", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		started := api.NewExecutionStarted("O", nil, 1, nil)
		require.NoError(t, store.Create(ctx, "dup", started))
		require.ErrorIs(t, store.Create(ctx, "dup", started), api.ErrInstanceExists)
	})

	t.Run("CreateRequiresExecutionStarted", func(t *testing.T) {
		store := newStore(t)
		require.Error(t, store.Create(context.Background(), "bad", api.NewTimerFired(1, 1)))
	})

	t.Run("MissingInstance", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, err := store.Read(ctx, "nope")
		require.ErrorIs(t, err, api.ErrInstanceNotFound)

		err = store.Append(ctx, "nope", api.NewTimerFired(1, 1))
		require.ErrorIs(t, err, api.ErrInstanceNotFound)

		err = store.Reset(ctx, "nope", api.NewExecutionStarted("O", nil, 2, nil))
		require.ErrorIs(t, err, api.ErrInstanceNotFound)
	})

	t.Run("ResetTruncates", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		parent := &api.ParentRef{InstanceID: "p", TaskID: 3, Generation: 1}
		require.NoError(t, store.Create(ctx, "can", api.NewExecutionStarted("O_PeriodicTask", api.MustPayload(0), 1, parent)))
		require.NoError(t, store.Append(ctx, "can",
			api.NewTimerCreated(1, time.Now()),
			api.NewTimerFired(1, 1),
			api.NewContinueAsNewRequested(api.MustPayload(1)),
		))

		require.NoError(t, store.Reset(ctx, "can", api.NewExecutionStarted("O_PeriodicTask", api.MustPayload(1), 2, parent)))

		h, err := store.Read(ctx, "can")
		require.NoError(t, err)
		require.Len(t, h, 1)
		require.Equal(t, 2, h[0].Generation)
		require.Equal(t, parent, h[0].Parent())

		n, err := api.DecodePayload[int](h[0].Input)
		require.NoError(t, err)
		require.Equal(t, 1, n)

		// History keeps growing after a reset.
		require.NoError(t, store.Append(ctx, "can", api.NewOrchestratorStarted(time.Now())))
		h, err = store.Read(ctx, "can")
		require.NoError(t, err)
		require.Len(t, h, 2)
	})

	t.Run("ResetCarriesEvents", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		require.NoError(t, store.Create(ctx, "carry", api.NewExecutionStarted("O_PeriodicTask", nil, 1, nil)))
		require.NoError(t, store.Append(ctx, "carry",
			api.NewEventBuffered("b1", "Stop", api.MustPayload("now")),
			api.NewContinueAsNewRequested(nil),
		))

		carried := api.NewEventBuffered("b1", "Stop", api.MustPayload("now"))
		require.NoError(t, store.Reset(ctx, "carry", api.NewExecutionStarted("O_PeriodicTask", nil, 2, nil), carried))

		h, err := store.Read(ctx, "carry")
		require.NoError(t, err)
		require.Len(t, h, 2)
		require.Equal(t, api.EventExecutionStarted, h[0].Type)
		require.Equal(t, api.EventBuffered, h[1].Type)
		require.Equal(t, "b1", h[1].BufferID)
		require.Equal(t, "Stop", h[1].Name)

		require.NoError(t, store.Append(ctx, "carry", api.NewOrchestratorStarted(time.Now())))
		h, err = store.Read(ctx, "carry")
		require.NoError(t, err)
		require.Len(t, h, 3)
	})

	t.Run("ListInstances", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		for _, id := range []string{"b", "a", "c"} {
			require.NoError(t, store.Create(ctx, id, api.NewExecutionStarted("O", nil, 1, nil)))
		}
		ids, err := store.ListInstances(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{"a", "b", "c"}, ids)
	})

	t.Run("ConcurrentAppendsKeepOrderPerCall", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		require.NoError(t, store.Create(ctx, "conc", api.NewExecutionStarted("O", nil, 1, nil)))

		const writers = 8
		var wg sync.WaitGroup
		for w := 0; w < writers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				name := fmt.Sprintf("w%d", w)
				err := store.Append(ctx, "conc",
					api.NewTaskScheduled(w*2+1, name, nil, 1),
					api.NewTaskCompleted(1, w*2+1, nil),
				)
				assert.NoError(t, err)
			}(w)
		}
		wg.Wait()

		h, err := store.Read(ctx, "conc")
		require.NoError(t, err)
		require.Len(t, h, 1+writers*2)

		// Each call's two events must be adjacent.
		for i := 1; i < len(h); i += 2 {
			require.Equal(t, api.EventTaskScheduled, h[i].Type)
			require.Equal(t, api.EventTaskCompleted, h[i+1].Type)
			require.Equal(t, h[i].TaskID, h[i+1].TaskID)
		}
	})
}
