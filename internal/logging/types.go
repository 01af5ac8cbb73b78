package logging

import "time"

// #region decision-entry
// DecisionEntry is a single row in the decision_log table. The snapshot
// carries the full threshold configuration active at decision time, so
// audits can reconstruct why a session was or wasn't escalated even after
// thresholds change.
type DecisionEntry struct {
	SessionID    string
	Decision     string // "auto_return" | "escalate"
	Reason       string
	Confidence   float64
	Threshold    float64
	SnapshotJSON string
	CreatedAt    time.Time
}

// #endregion decision-entry
