package gate

import "encoding/json"

// #region reason
// Reason enumerates why a session's output is routed to human review.
type Reason string

const (
	ReasonLowConfidence   Reason = "low_confidence"
	ReasonPolicyExclusion Reason = "policy_exclusion"
)

// #endregion reason

// #region scored-output
// ScoredOutput is the candidate output from the model-call collaborator:
// the output itself, a confidence in [0,1], and zero or more named
// sub-scores. Produced once per session, consumed once by the gate.
type ScoredOutput struct {
	Output     json.RawMessage    `json:"output"`
	Confidence float64            `json:"confidence"`
	Subscores  map[string]float64 `json:"subscores,omitempty"`
}

// #endregion scored-output

// #region threshold-config
// ExclusionRule escalates when a named sub-score reaches Min, regardless of
// overall confidence.
type ExclusionRule struct {
	Subscore string  `koanf:"subscore" json:"subscore"`
	Min      float64 `koanf:"min" json:"min"`
}

// ThresholdConfig holds the externally supplied escalation thresholds.
// It is passed into Decide explicitly; the gate keeps no hidden state.
type ThresholdConfig struct {
	ConfidenceThreshold float64            `koanf:"confidence_threshold" json:"confidence_threshold"`
	CategoryOverrides   map[string]float64 `koanf:"category_overrides" json:"category_overrides,omitempty"`
	Exclusions          []ExclusionRule    `koanf:"exclusions" json:"exclusions,omitempty"`
}

// DefaultThresholdConfig returns a conservative default threshold.
func DefaultThresholdConfig() ThresholdConfig {
	return ThresholdConfig{
		ConfidenceThreshold: 0.7,
	}
}

// #endregion threshold-config

// #region decision
// EscalationDecision is the gate's verdict, including the threshold and
// confidence compared, for auditability.
type EscalationDecision struct {
	Escalate   bool    `json:"escalate"`
	Reason     Reason  `json:"reason,omitempty"` // empty when auto-returned
	Threshold  float64 `json:"threshold"`
	Confidence float64 `json:"confidence"`
}

// EscalationPayload is handed to the human-review collaborator.
type EscalationPayload struct {
	SessionID  string          `json:"session_id"`
	Output     json.RawMessage `json:"output,omitempty"`
	Confidence float64         `json:"confidence"`
	Reason     Reason          `json:"reason"`
}

// #endregion decision
