package gate

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kestrelops/kestrel/internal/eventstore"
	"github.com/kestrelops/kestrel/internal/logging"
	"github.com/kestrelops/kestrel/internal/session"
)

// #region decide
// Decide maps a scored output to an escalation decision. Pure: identical
// (scored, category, cfg) always yields the identical decision. Exclusion
// rules are checked first, so a policy hit escalates even at high
// confidence. Confidence equal to the threshold auto-returns; only strictly
// lower confidence escalates. A nil scored output is treated as a
// low-confidence signal and escalates.
func Decide(scored *ScoredOutput, category string, cfg ThresholdConfig) EscalationDecision {
	threshold := cfg.ConfidenceThreshold
	if category != "" {
		if t, ok := cfg.CategoryOverrides[category]; ok {
			threshold = t
		}
	}

	if scored == nil {
		return EscalationDecision{
			Escalate:   true,
			Reason:     ReasonLowConfidence,
			Threshold:  threshold,
			Confidence: 0,
		}
	}

	// --- Hard exclusion pass ---
	for _, rule := range cfg.Exclusions {
		if v, ok := scored.Subscores[rule.Subscore]; ok && v >= rule.Min {
			return EscalationDecision{
				Escalate:   true,
				Reason:     ReasonPolicyExclusion,
				Threshold:  threshold,
				Confidence: scored.Confidence,
			}
		}
	}

	// --- Confidence threshold ---
	if scored.Confidence < threshold {
		return EscalationDecision{
			Escalate:   true,
			Reason:     ReasonLowConfidence,
			Threshold:  threshold,
			Confidence: scored.Confidence,
		}
	}

	return EscalationDecision{
		Escalate:   false,
		Threshold:  threshold,
		Confidence: scored.Confidence,
	}
}

// #endregion decide

// #region gate
// Gate applies Decide and records every decision durably: a decision audit
// row for each call and an escalation event when escalating.
type Gate struct {
	cfg   ThresholdConfig
	store *eventstore.Store
}

// NewGate creates a gate bound to a threshold configuration and store.
func NewGate(cfg ThresholdConfig, store *eventstore.Store) *Gate {
	return &Gate{cfg: cfg, store: store}
}

// Config returns the threshold configuration the gate decides with.
func (g *Gate) Config() ThresholdConfig {
	return g.cfg
}

// Apply decides for one session and records the outcome. When escalating it
// appends an escalation event and returns the payload for human review;
// otherwise the payload is nil. The audit row carries the full threshold
// snapshot active at decision time.
func (g *Gate) Apply(sessionID, category string, scored *ScoredOutput, ts time.Time) (EscalationDecision, *EscalationPayload, error) {
	decision := Decide(scored, category, g.cfg)
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	var payload *EscalationPayload
	if decision.Escalate {
		payload = &EscalationPayload{
			SessionID:  sessionID,
			Confidence: decision.Confidence,
			Reason:     decision.Reason,
		}
		if scored != nil {
			payload.Output = scored.Output
		}

		body, err := json.Marshal(payload)
		if err != nil {
			return decision, nil, fmt.Errorf("marshal escalation payload: %w", err)
		}
		if err := g.store.Append(session.Event{
			SessionID: sessionID,
			Timestamp: ts,
			Type:      session.EventEscalationTriggered,
			Payload:   body,
		}); err != nil {
			return decision, nil, fmt.Errorf("append escalation event: %w", err)
		}
	}

	snapshot, err := json.Marshal(g.cfg)
	if err != nil {
		return decision, payload, fmt.Errorf("marshal threshold snapshot: %w", err)
	}
	action := "auto_return"
	if decision.Escalate {
		action = "escalate"
	}
	if err := logging.LogDecision(g.store.DB(), logging.DecisionEntry{
		SessionID:    sessionID,
		Decision:     action,
		Reason:       string(decision.Reason),
		Confidence:   decision.Confidence,
		Threshold:    decision.Threshold,
		SnapshotJSON: string(snapshot),
		CreatedAt:    ts,
	}); err != nil {
		return decision, payload, fmt.Errorf("record decision: %w", err)
	}

	return decision, payload, nil
}

// #endregion gate
