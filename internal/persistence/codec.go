package persistence

import (
	"encoding/json"
	"fmt"

	"github.com/petrijr/durable/pkg/api"
)

// EncodeEvent serializes a history event for storage. Events are stored
// as JSON so that histories stay readable with plain database tooling.
func EncodeEvent(ev api.HistoryEvent) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", ev.Type, err)
	}
	return data, nil
}

// DecodeEvent is the inverse of EncodeEvent.
func DecodeEvent(data []byte) (api.HistoryEvent, error) {
	var ev api.HistoryEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return api.HistoryEvent{}, fmt.Errorf("%w: decode event: %v", api.ErrHistoryCorrupted, err)
	}
	return ev, nil
}

func encodeEvents(events []api.HistoryEvent) ([][]byte, error) {
	out := make([][]byte, 0, len(events))
	for _, ev := range events {
		data, err := EncodeEvent(ev)
		if err != nil {
			return nil, err
		}
		out = append(out, data)
	}
	return out, nil
}

func checkStarted(ev api.HistoryEvent) error {
	if ev.Type != api.EventExecutionStarted {
		return fmt.Errorf("history must start with %s, got %s", api.EventExecutionStarted, ev.Type)
	}
	return nil
}
