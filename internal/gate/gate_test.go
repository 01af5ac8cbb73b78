package gate

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/kestrelops/kestrel/internal/eventstore"
	"github.com/kestrelops/kestrel/internal/logging"
	"github.com/kestrelops/kestrel/internal/session"
)

func TestDecideLowConfidenceEscalates(t *testing.T) {
	cfg := ThresholdConfig{ConfidenceThreshold: 0.7}
	scored := &ScoredOutput{Confidence: 0.65}

	d := Decide(scored, "", cfg)

	if !d.Escalate {
		t.Fatal("expected escalation")
	}
	if d.Reason != ReasonLowConfidence {
		t.Fatalf("expected low_confidence, got %s", d.Reason)
	}
	if d.Threshold != 0.7 || d.Confidence != 0.65 {
		t.Fatalf("expected threshold/confidence recorded, got %.2f/%.2f", d.Threshold, d.Confidence)
	}
}

func TestDecideHighConfidenceAutoReturns(t *testing.T) {
	cfg := ThresholdConfig{ConfidenceThreshold: 0.7}
	d := Decide(&ScoredOutput{Confidence: 0.85}, "", cfg)

	if d.Escalate {
		t.Fatalf("expected auto-return, got escalation: %s", d.Reason)
	}
	if d.Reason != "" {
		t.Fatalf("expected empty reason on auto-return, got %s", d.Reason)
	}
}

func TestDecideExclusionBeatsConfidence(t *testing.T) {
	cfg := ThresholdConfig{
		ConfidenceThreshold: 0.7,
		Exclusions:          []ExclusionRule{{Subscore: "policy_violation", Min: 0.5}},
	}
	scored := &ScoredOutput{
		Confidence: 0.9,
		Subscores:  map[string]float64{"policy_violation": 1.0},
	}

	d := Decide(scored, "", cfg)

	if !d.Escalate {
		t.Fatal("expected escalation despite high confidence")
	}
	if d.Reason != ReasonPolicyExclusion {
		t.Fatalf("expected policy_exclusion, got %s", d.Reason)
	}
}

func TestDecideExclusionBelowMinIgnored(t *testing.T) {
	cfg := ThresholdConfig{
		ConfidenceThreshold: 0.7,
		Exclusions:          []ExclusionRule{{Subscore: "policy_violation", Min: 0.5}},
	}
	scored := &ScoredOutput{
		Confidence: 0.9,
		Subscores:  map[string]float64{"policy_violation": 0.2},
	}

	if d := Decide(scored, "", cfg); d.Escalate {
		t.Fatalf("expected auto-return, got escalation: %s", d.Reason)
	}
}

func TestDecideExactThresholdAutoReturns(t *testing.T) {
	cfg := ThresholdConfig{ConfidenceThreshold: 0.7}
	if d := Decide(&ScoredOutput{Confidence: 0.7}, "", cfg); d.Escalate {
		t.Fatal("confidence equal to threshold must auto-return")
	}
}

func TestDecideNilScoredEscalates(t *testing.T) {
	d := Decide(nil, "", DefaultThresholdConfig())

	if !d.Escalate {
		t.Fatal("expected escalation for missing scored output")
	}
	if d.Reason != ReasonLowConfidence {
		t.Fatalf("expected low_confidence, got %s", d.Reason)
	}
	if d.Confidence != 0 {
		t.Fatalf("expected zero confidence, got %.2f", d.Confidence)
	}
}

func TestDecideCategoryOverride(t *testing.T) {
	cfg := ThresholdConfig{
		ConfidenceThreshold: 0.7,
		CategoryOverrides:   map[string]float64{"billing": 0.9},
	}
	scored := &ScoredOutput{Confidence: 0.8}

	if d := Decide(scored, "", cfg); d.Escalate {
		t.Fatal("0.8 should auto-return at base threshold 0.7")
	}
	d := Decide(scored, "billing", cfg)
	if !d.Escalate {
		t.Fatal("0.8 should escalate at billing override 0.9")
	}
	if d.Threshold != 0.9 {
		t.Fatalf("expected override threshold 0.9 recorded, got %.2f", d.Threshold)
	}
}

func TestDecideUnknownCategoryUsesBase(t *testing.T) {
	cfg := ThresholdConfig{
		ConfidenceThreshold: 0.7,
		CategoryOverrides:   map[string]float64{"billing": 0.9},
	}
	d := Decide(&ScoredOutput{Confidence: 0.8}, "support", cfg)
	if d.Escalate {
		t.Fatal("unknown category should fall back to base threshold")
	}
	if d.Threshold != 0.7 {
		t.Fatalf("expected base threshold, got %.2f", d.Threshold)
	}
}

func TestDecideDeterministic(t *testing.T) {
	cfg := ThresholdConfig{
		ConfidenceThreshold: 0.7,
		Exclusions:          []ExclusionRule{{Subscore: "policy_violation", Min: 0.5}},
	}
	scored := &ScoredOutput{Confidence: 0.65, Subscores: map[string]float64{"policy_violation": 0.1}}

	first := Decide(scored, "", cfg)
	for i := 0; i < 10; i++ {
		if got := Decide(scored, "", cfg); got != first {
			t.Fatalf("decision %d differs: %+v vs %+v", i, got, first)
		}
	}
}

// #region apply-tests

func tempStore(t *testing.T) *eventstore.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := eventstore.NewStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestApplyEscalateRecordsEventAndDecision(t *testing.T) {
	store := tempStore(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sess, _ := store.CreateSession("s1", nil, base)

	g := NewGate(ThresholdConfig{ConfidenceThreshold: 0.7}, store)
	scored := &ScoredOutput{Output: json.RawMessage(`"answer"`), Confidence: 0.5}

	decision, payload, err := g.Apply(sess.ID, "", scored, base)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !decision.Escalate {
		t.Fatal("expected escalation")
	}
	if payload == nil {
		t.Fatal("expected escalation payload")
	}
	if payload.SessionID != sess.ID || payload.Reason != ReasonLowConfidence {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if string(payload.Output) != `"answer"` {
		t.Fatalf("expected output carried in payload, got %s", payload.Output)
	}

	_, events, err := store.GetSession(sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if len(events) != 1 || events[0].Type != session.EventEscalationTriggered {
		t.Fatalf("expected one escalation_triggered event, got %+v", events)
	}

	entries, err := logging.ListDecisions(store.DB(), sess.ID, 10)
	if err != nil {
		t.Fatalf("ListDecisions: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 decision entry, got %d", len(entries))
	}
	if entries[0].Decision != "escalate" {
		t.Fatalf("expected escalate, got %s", entries[0].Decision)
	}
	if entries[0].SnapshotJSON == "" {
		t.Fatal("expected threshold snapshot recorded")
	}
}

func TestApplyAutoReturnLogsButNoEvent(t *testing.T) {
	store := tempStore(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sess, _ := store.CreateSession("s1", nil, base)

	g := NewGate(ThresholdConfig{ConfidenceThreshold: 0.7}, store)

	decision, payload, err := g.Apply(sess.ID, "", &ScoredOutput{Confidence: 0.95}, base)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if decision.Escalate {
		t.Fatal("expected auto-return")
	}
	if payload != nil {
		t.Fatal("expected nil payload on auto-return")
	}

	_, events, _ := store.GetSession(sess.ID)
	if len(events) != 0 {
		t.Fatalf("expected no events on auto-return, got %d", len(events))
	}

	entries, _ := logging.ListDecisions(store.DB(), sess.ID, 10)
	if len(entries) != 1 || entries[0].Decision != "auto_return" {
		t.Fatalf("expected one auto_return entry, got %+v", entries)
	}
}

func TestApplyUnknownSession(t *testing.T) {
	store := tempStore(t)
	g := NewGate(DefaultThresholdConfig(), store)

	_, _, err := g.Apply("missing", "", &ScoredOutput{Confidence: 0.1}, time.Now().UTC())
	if err == nil {
		t.Fatal("expected error for unknown session")
	}
}

// #endregion apply-tests
