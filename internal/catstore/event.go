package catstore

import (
	"encoding/json"
	"fmt"
)

func marshalEvent(event ChangeEvent) (string, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal change event: %w", err)
	}
	return string(payload), nil
}

func unmarshalEvent(payload string) (ChangeEvent, error) {
	var event ChangeEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return ChangeEvent{}, fmt.Errorf("unmarshal change event: %w", err)
	}
	if event.PositionCode == "" {
		return ChangeEvent{}, fmt.Errorf("change event without position code")
	}
	return event, nil
}
