package taskqueue

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
)

// codecVersion prefixes every encoded task so a queue never hands a worker
// a record written in an incompatible layout.
const codecVersion byte = 1

var errEmptyTask = errors.New("task codec: empty record")

// EncodeTask serializes a Task for the durable queues.
func EncodeTask(t Task) ([]byte, error) {
	if t.Type == "" {
		return nil, fmt.Errorf("task codec: task %q has no type", t.ID)
	}

	var buf bytes.Buffer
	buf.WriteByte(codecVersion)
	if err := gob.NewEncoder(&buf).Encode(&t); err != nil {
		return nil, fmt.Errorf("task codec: encode %s task %q: %w", t.Type, t.ID, err)
	}
	return buf.Bytes(), nil
}

// DecodeTask is the inverse of EncodeTask.
func DecodeTask(data []byte) (*Task, error) {
	if len(data) == 0 {
		return nil, errEmptyTask
	}
	if data[0] != codecVersion {
		return nil, fmt.Errorf("task codec: unsupported version %d", data[0])
	}

	var t Task
	if err := gob.NewDecoder(bytes.NewReader(data[1:])).Decode(&t); err != nil {
		return nil, fmt.Errorf("task codec: decode: %w", err)
	}
	return &t, nil
}
