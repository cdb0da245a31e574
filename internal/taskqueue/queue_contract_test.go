package taskqueue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/durable/pkg/api"
)

// runQueueContract exercises the behavior every Queue backend must share.
// newQueue must return an empty queue.
func runQueueContract(t *testing.T, newQueue func(t *testing.T) Queue) {
	t.Run("RoundTrip", func(t *testing.T) {
		q := newQueue(t)
		ctx := context.Background()

		ev := api.NewTaskScheduled(4, "A_TranscodeVideo", api.MustPayload(1000), 2)
		require.NoError(t, q.Enqueue(ctx, Task{
			Type:       TaskTypeActivity,
			InstanceID: "inst-1",
			Generation: 3,
			Event:      &ev,
		}))
		require.Equal(t, 1, q.Len())

		dctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		got, err := q.Dequeue(dctx)
		require.NoError(t, err)
		require.NotEmpty(t, got.ID)
		require.Equal(t, TaskTypeActivity, got.Type)
		require.Equal(t, "inst-1", got.InstanceID)
		require.Equal(t, 3, got.Generation)
		require.Equal(t, 1, got.Attempts)
		require.NotNil(t, got.Event)
		require.Equal(t, "A_TranscodeVideo", got.Event.Name)
		require.Equal(t, 4, got.Event.TaskID)

		bitRate, err := api.DecodePayload[int](got.Event.Input)
		require.NoError(t, err)
		require.Equal(t, 1000, bitRate)
		require.Equal(t, 0, q.Len())
	})

	t.Run("NotBeforeOrdering", func(t *testing.T) {
		q := newQueue(t)
		ctx := context.Background()

		now := time.Now()
		require.NoError(t, q.Enqueue(ctx, Task{Type: TaskTypeTimer, InstanceID: "late", NotBefore: now.Add(300 * time.Millisecond)}))
		require.NoError(t, q.Enqueue(ctx, Task{Type: TaskTypeWake, InstanceID: "now"}))

		dctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		first, err := q.Dequeue(dctx)
		require.NoError(t, err)
		require.Equal(t, "now", first.InstanceID)

		second, err := q.Dequeue(dctx)
		require.NoError(t, err)
		require.Equal(t, "late", second.InstanceID)
		require.False(t, time.Now().Before(now.Add(300*time.Millisecond)), "delayed task delivered early")
	})

	t.Run("DequeueRespectsContext", func(t *testing.T) {
		q := newQueue(t)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := q.Dequeue(ctx)
		require.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
	})
}
