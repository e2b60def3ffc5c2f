package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event is a delivered-or-queued notification. Body is the full wire
// payload including its "type" field, so offline storage and live delivery
// carry the same bytes.
type Event struct {
	Type string    `json:"type"`
	Body Frame     `json:"body"`
	At   time.Time `json:"at"`
}

// NewEvent marshals v once for both live fan-out and offline storage.
// v must carry its own "type" field matching typ.
func NewEvent(typ string, at time.Time, v any) (Event, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s event: %w", typ, err)
	}
	return Event{Type: typ, Body: b, At: at}, nil
}
