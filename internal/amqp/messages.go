package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType names what happened to a ledger.
type EventType string

const (
	EventStudentAdmitted   EventType = "student.admitted"
	EventStudentReadmitted EventType = "student.readmitted"
	EventFeeConfirmed      EventType = "fee.confirmed"
)

// LedgerEvent is a lightweight notification about a ledger change. It carries
// identifiers only; consumers read the current state from the store.
type LedgerEvent struct {
	Type      EventType `json:"type"`
	StudentID string    `json:"student_id"`
	Session   string    `json:"session"`
	Month     string    `json:"month,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewLedgerEvent(t EventType, studentID, session, month string) *LedgerEvent {
	return &LedgerEvent{
		Type:      t,
		StudentID: studentID,
		Session:   session,
		Month:     month,
		Timestamp: time.Now(),
	}
}

func (m *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerEventFromJSON decodes and validates a message body.
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var msg LedgerEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	switch msg.Type {
	case EventStudentAdmitted, EventStudentReadmitted:
	case EventFeeConfirmed:
		if msg.Month == "" {
			return nil, fmt.Errorf("%s event without month", msg.Type)
		}
	default:
		return nil, fmt.Errorf("unknown event type %q", msg.Type)
	}
	if msg.StudentID == "" || msg.Session == "" {
		return nil, fmt.Errorf("%s event without student or session", msg.Type)
	}
	return &msg, nil
}
