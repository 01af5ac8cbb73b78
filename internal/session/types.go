package session

import (
	"encoding/json"
	"time"
)

// #region event-type
// EventType enumerates the closed set of facts recordable about a Session.
type EventType string

const (
	EventInputCaptured        EventType = "input_captured"
	EventModelCallIssued      EventType = "model_call_issued"
	EventModelCallCompleted   EventType = "model_call_completed"
	EventOutputProduced       EventType = "output_produced"
	EventEscalationTriggered  EventType = "escalation_triggered"
	EventUserFeedbackReceived EventType = "user_feedback_received"
)

// ValidEventType reports whether t is a member of the closed event type set.
func ValidEventType(t EventType) bool {
	switch t {
	case EventInputCaptured, EventModelCallIssued, EventModelCallCompleted,
		EventOutputProduced, EventEscalationTriggered, EventUserFeedbackReceived:
		return true
	}
	return false
}

// #endregion event-type

// #region event
// Event is an immutable timestamped fact about a Session. Events are
// append-only; a Session is never mutated in place, only extended.
type Event struct {
	SessionID string          `json:"session_id"`
	Timestamp time.Time       `json:"timestamp"`
	Type      EventType       `json:"event_type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// #endregion event

// #region session
// Session is one end-to-end interaction being tracked. Its lifecycle state is
// always derived by folding its Events, never stored.
type Session struct {
	ID        string          `json:"session_id"`
	CreatedAt time.Time       `json:"created_at"`
	Input     json.RawMessage `json:"input,omitempty"`
}

// #endregion session
