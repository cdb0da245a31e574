package taskqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/durable/pkg/api"
)

func TestTaskCodec_PreservesEventFailure(t *testing.T) {
	ev := api.NewTaskFailed(2, 7, &api.FailureDetails{Kind: api.ErrorKindTransient, Message: "try again"})
	in := Task{
		ID:         "t-1",
		Type:       TaskTypeWake,
		InstanceID: "inst",
		Generation: 2,
		Event:      &ev,
		NotBefore:  time.Unix(100, 0),
	}

	data, err := EncodeTask(in)
	require.NoError(t, err)

	out, err := DecodeTask(data)
	require.NoError(t, err)
	require.Equal(t, in.ID, out.ID)
	require.Equal(t, api.EventTaskFailed, out.Event.Type)
	require.Equal(t, api.ErrorKindTransient, out.Event.Failure.Kind)
	require.True(t, in.NotBefore.Equal(out.NotBefore))
}

func TestTaskCodec_RejectsForeignRecords(t *testing.T) {
	_, err := DecodeTask(nil)
	require.ErrorIs(t, err, errEmptyTask)

	data, err := EncodeTask(Task{ID: "t-1", Type: TaskTypeTimer, InstanceID: "inst"})
	require.NoError(t, err)

	data[0] = codecVersion + 1
	_, err = DecodeTask(data)
	require.ErrorContains(t, err, "unsupported version")

	_, err = DecodeTask([]byte{codecVersion, 0xff, 0x00})
	require.Error(t, err)

	_, err = EncodeTask(Task{ID: "untyped"})
	require.Error(t, err)
}
