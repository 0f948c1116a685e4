package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"finance/internal/core"
)

// Action is the kind of change a RecordEvent announces.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
)

// RecordEvent announces a change to one record. It carries only the
// identity; consumers load the current row from the store.
type RecordEvent struct {
	MessageID string    `json:"message_id"`
	Action    Action    `json:"action"`
	Kind      core.Kind `json:"kind"`
	ID        int64     `json:"id"`
	Period    string    `json:"period"`
	Timestamp time.Time `json:"timestamp"`
}

// NewRecordEvent stamps a fresh event for rec.
func NewRecordEvent(action Action, rec core.Record) *RecordEvent {
	return &RecordEvent{
		MessageID: uuid.NewString(),
		Action:    action,
		Kind:      rec.Kind,
		ID:        rec.ID,
		Period:    rec.Period().String(),
		Timestamp: time.Now().UTC(),
	}
}

func (e *RecordEvent) Validate() error {
	switch e.Action {
	case ActionCreated, ActionUpdated, ActionDeleted:
	default:
		return fmt.Errorf("unknown action %q", e.Action)
	}
	if !e.Kind.Valid() {
		return fmt.Errorf("unknown kind %q", e.Kind)
	}
	if e.ID <= 0 {
		return fmt.Errorf("invalid record id %d", e.ID)
	}
	return nil
}

// ToJSON converts the message to JSON bytes
func (e *RecordEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// RecordEventFromJSON decodes and validates an event body.
func RecordEventFromJSON(data []byte) (*RecordEvent, error) {
	var e RecordEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &e, nil
}
