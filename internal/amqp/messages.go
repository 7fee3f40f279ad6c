package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Action names the kind of change recorded in a BillEvent.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
)

// BillEvent announces that one or more bill rows changed.
// Consumers re-read the store; the event only carries ids.
type BillEvent struct {
	Action       Action    `json:"action"`
	BillIDs      []int64   `json:"bill_ids"`
	RecurrenceID *string   `json:"recurrence_id"`
	Count        int64     `json:"count"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewBillEvent builds an event for the given ids. recurrenceID may be empty.
func NewBillEvent(action Action, ids []int64, recurrenceID string, count int64) *BillEvent {
	ev := &BillEvent{
		Action:    action,
		BillIDs:   ids,
		Count:     count,
		Timestamp: time.Now().UTC(),
	}
	if ev.BillIDs == nil {
		ev.BillIDs = []int64{}
	}
	if recurrenceID != "" {
		ev.RecurrenceID = &recurrenceID
	}
	return ev
}

func (e *BillEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func BillEventFromJSON(data []byte) (*BillEvent, error) {
	var ev BillEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	switch ev.Action {
	case ActionCreated, ActionUpdated, ActionDeleted:
	default:
		return nil, fmt.Errorf("unknown event action %q", ev.Action)
	}
	return &ev, nil
}
