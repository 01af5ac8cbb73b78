package runner

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/kestrelops/kestrel/internal/dataset"
	"github.com/kestrelops/kestrel/internal/registry"
)

func constEval(value float64) registry.Func {
	return func(ctx context.Context, ds dataset.Dataset) (map[string]float64, error) {
		return map[string]float64{"score": value}, nil
	}
}

func failEval(msg string) registry.Func {
	return func(ctx context.Context, ds dataset.Dataset) (map[string]float64, error) {
		return nil, fmt.Errorf("%s", msg)
	}
}

func testDS() dataset.Dataset {
	return dataset.Dataset{ID: "ref:test.jsonl", Examples: []dataset.Example{{Confidence: 0.8}}}
}

func TestRunAllInRegistrationOrder(t *testing.T) {
	reg := registry.New()
	reg.Register("c", "v1", constEval(0.3))
	reg.Register("a", "v1", constEval(0.1))
	reg.Register("b", "v1", constEval(0.2))

	r, err := New(reg, time.Second)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	report, err := r.Run(context.Background(), testDS(), nil, "v1.0")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.RunID == "" {
		t.Fatal("expected run ID")
	}
	if report.DatasetID != "ref:test.jsonl" || report.SystemVersion != "v1.0" {
		t.Fatalf("unexpected report identity: %s %s", report.DatasetID, report.SystemVersion)
	}
	if len(report.Failures) != 0 {
		t.Fatalf("expected no failures, got %+v", report.Failures)
	}

	want := []string{"c", "a", "b"}
	if len(report.MetricSets) != len(want) {
		t.Fatalf("expected %d metric sets, got %d", len(want), len(report.MetricSets))
	}
	for i, name := range want {
		if report.MetricSets[i].EvaluatorName != name {
			t.Fatalf("metric set %d: expected %s, got %s", i, name, report.MetricSets[i].EvaluatorName)
		}
	}
}

func TestRunSelectedSubset(t *testing.T) {
	reg := registry.New()
	reg.Register("a", "v1", constEval(0.1))
	reg.Register("b", "v1", constEval(0.2))

	r, _ := New(reg, time.Second)
	report, err := r.Run(context.Background(), testDS(), []string{"b"}, "v1.0")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.MetricSets) != 1 || report.MetricSets[0].EvaluatorName != "b" {
		t.Fatalf("expected only b, got %+v", report.MetricSets)
	}
}

func TestRunUnknownNameRecordedNotFound(t *testing.T) {
	reg := registry.New()
	reg.Register("a", "v1", constEval(0.1))

	r, _ := New(reg, time.Second)
	report, err := r.Run(context.Background(), testDS(), []string{"a", "ghost"}, "v1.0")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.MetricSets) != 1 {
		t.Fatalf("expected 1 metric set, got %d", len(report.MetricSets))
	}
	if len(report.Failures) != 1 {
		t.Fatalf("expected 1 failure, got %d", len(report.Failures))
	}
	f := report.Failures[0]
	if f.EvaluatorName != "ghost" || f.Kind != KindNotFound {
		t.Fatalf("expected ghost/not_found, got %+v", f)
	}
}

func TestRunErrorIsolated(t *testing.T) {
	reg := registry.New()
	reg.Register("good", "v1", constEval(0.1))
	reg.Register("bad", "v1", failEval("boom"))

	r, _ := New(reg, time.Second)
	report, err := r.Run(context.Background(), testDS(), nil, "v1.0")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.MetricSets) != 1 || report.MetricSets[0].EvaluatorName != "good" {
		t.Fatalf("expected good's metric set, got %+v", report.MetricSets)
	}
	if len(report.Failures) != 1 || report.Failures[0].Kind != KindError {
		t.Fatalf("expected one error failure, got %+v", report.Failures)
	}
	if report.Failures[0].Detail != "boom" {
		t.Fatalf("expected detail 'boom', got %q", report.Failures[0].Detail)
	}
}

func TestRunPanicIsolated(t *testing.T) {
	reg := registry.New()
	reg.Register("good", "v1", constEval(0.1))
	reg.Register("panicky", "v1", registry.Func(func(ctx context.Context, ds dataset.Dataset) (map[string]float64, error) {
		panic("kaboom")
	}))

	r, _ := New(reg, time.Second)
	report, err := r.Run(context.Background(), testDS(), nil, "v1.0")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.MetricSets) != 1 {
		t.Fatalf("expected good's metric set, got %+v", report.MetricSets)
	}
	if len(report.Failures) != 1 || report.Failures[0].Kind != KindPanic {
		t.Fatalf("expected one panic failure, got %+v", report.Failures)
	}
}

func TestRunSlowEvaluatorTimesOutWithoutBlockingOthers(t *testing.T) {
	reg := registry.New()
	reg.Register("fast", "v1", constEval(0.1))
	// Ignores its context entirely.
	reg.Register("stuck", "v1", registry.Func(func(ctx context.Context, ds dataset.Dataset) (map[string]float64, error) {
		time.Sleep(5 * time.Second)
		return map[string]float64{"score": 1}, nil
	}))

	r, _ := New(reg, 50*time.Millisecond)

	start := time.Now()
	report, err := r.Run(context.Background(), testDS(), nil, "v1.0")
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if elapsed > time.Second {
		t.Fatalf("run blocked on stuck evaluator: %v", elapsed)
	}
	if len(report.MetricSets) != 1 || report.MetricSets[0].EvaluatorName != "fast" {
		t.Fatalf("expected fast's metric set, got %+v", report.MetricSets)
	}
	if len(report.Failures) != 1 || report.Failures[0].Kind != KindTimeout {
		t.Fatalf("expected one timeout failure, got %+v", report.Failures)
	}
}

func TestRunCancellation(t *testing.T) {
	reg := registry.New()
	reg.Register("waits", "v1", registry.Func(func(ctx context.Context, ds dataset.Dataset) (map[string]float64, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}))

	r, _ := New(reg, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	report, err := r.Run(ctx, testDS(), nil, "v1.0")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Failures) != 1 || report.Failures[0].Kind != KindCancelled {
		t.Fatalf("expected one cancelled failure, got %+v", report.Failures)
	}
}

func TestNewRejectsNonPositiveTimeout(t *testing.T) {
	reg := registry.New()
	if _, err := New(reg, 0); err == nil {
		t.Fatal("expected error for zero timeout")
	}
	if _, err := New(reg, -time.Second); err == nil {
		t.Fatal("expected error for negative timeout")
	}
}
