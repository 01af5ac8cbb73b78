package session

import "time"

// #region lifecycle
// State is the derived lifecycle position of a Session.
type State string

const (
	StateCreated        State = "created"
	StateInputCaptured  State = "input_captured"
	StateModelInFlight  State = "model_in_flight"
	StateModelCompleted State = "model_completed"
	StateOutputProduced State = "output_produced"
	StateEscalated      State = "escalated"
)

// stateRank orders lifecycle states so a fold never regresses on a
// lower-ranked event arriving after a higher-ranked one.
var stateRank = map[State]int{
	StateCreated:        0,
	StateInputCaptured:  1,
	StateModelInFlight:  2,
	StateModelCompleted: 3,
	StateOutputProduced: 4,
	StateEscalated:      5,
}

// Lifecycle is the folded view of a Session's event sequence.
type Lifecycle struct {
	State            State
	LastEventAt      time.Time
	FeedbackReceived bool
	Escalated        bool
}

// #endregion lifecycle

// #region fold
// Fold derives the lifecycle from events in timestamp order. The fold is
// deterministic: the same sequence always reconstructs the same Lifecycle.
// UserFeedbackReceived sets a flag without moving the state.
func Fold(events []Event) Lifecycle {
	lc := Lifecycle{State: StateCreated}

	for _, ev := range events {
		lc.LastEventAt = ev.Timestamp

		var next State
		switch ev.Type {
		case EventInputCaptured:
			next = StateInputCaptured
		case EventModelCallIssued:
			next = StateModelInFlight
		case EventModelCallCompleted:
			next = StateModelCompleted
		case EventOutputProduced:
			next = StateOutputProduced
		case EventEscalationTriggered:
			next = StateEscalated
			lc.Escalated = true
		case EventUserFeedbackReceived:
			lc.FeedbackReceived = true
			continue
		default:
			continue
		}

		if stateRank[next] > stateRank[lc.State] {
			lc.State = next
		}
	}

	return lc
}

// #endregion fold
