package notify

import (
	"encoding/json"
	"time"
)

// ChangeEvent describes one committed mutation of a cached collection.
// Consumers that need the full entity fetch it from the service themselves.
type ChangeEvent struct {
	Entity    string    `json:"entity"`
	Action    string    `json:"action"`
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewChangeEvent(entity, action, id string) *ChangeEvent {
	return &ChangeEvent{
		Entity:    entity,
		Action:    action,
		ID:        id,
		Timestamp: time.Now(),
	}
}

func (e *ChangeEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func ChangeEventFromJSON(data []byte) (*ChangeEvent, error) {
	var e ChangeEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
