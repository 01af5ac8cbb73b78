package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/kestrelops/kestrel/internal/dataset"
)

func constEval(value float64) Func {
	return func(ctx context.Context, ds dataset.Dataset) (map[string]float64, error) {
		return map[string]float64{"score": value}, nil
	}
}

func TestRegisterAndResolve(t *testing.T) {
	r := New()

	if err := r.Register("acc", "v1", constEval(0.5)); err != nil {
		t.Fatalf("Register: %v", err)
	}

	entry, err := r.Resolve("acc")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if entry.Name != "acc" || entry.Version != "v1" {
		t.Fatalf("unexpected entry %s@%s", entry.Name, entry.Version)
	}
}

func TestRegisterDuplicateKeepsPrior(t *testing.T) {
	r := New()

	if err := r.Register("acc", "v1", constEval(0.5)); err != nil {
		t.Fatalf("Register: %v", err)
	}
	err := r.Register("acc", "v1", constEval(0.9))
	if !errors.Is(err, ErrDuplicateNameVersion) {
		t.Fatalf("expected ErrDuplicateNameVersion, got %v", err)
	}

	entry, err := r.Get("acc", "v1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	values, _ := entry.Evaluator.Evaluate(context.Background(), dataset.Dataset{})
	if values["score"] != 0.5 {
		t.Fatalf("expected prior registration intact, got score %.2f", values["score"])
	}
}

func TestResolveReturnsLatestVersion(t *testing.T) {
	r := New()

	r.Register("acc", "v1", constEval(0.5))
	r.Register("acc", "v2", constEval(0.8))

	entry, err := r.Resolve("acc")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if entry.Version != "v2" {
		t.Fatalf("expected latest v2, got %s", entry.Version)
	}
}

func TestGetPinnedVersion(t *testing.T) {
	r := New()

	r.Register("acc", "v1", constEval(0.5))
	r.Register("acc", "v2", constEval(0.8))

	entry, err := r.Get("acc", "v1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if entry.Version != "v1" {
		t.Fatalf("expected pinned v1, got %s", entry.Version)
	}

	if _, err := r.Get("acc", "v9"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResolveUnknown(t *testing.T) {
	r := New()
	if _, err := r.Resolve("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNamesFirstRegistrationOrder(t *testing.T) {
	r := New()

	r.Register("c", "v1", constEval(0))
	r.Register("a", "v1", constEval(0))
	r.Register("b", "v1", constEval(0))
	r.Register("a", "v2", constEval(0)) // new version must not reorder

	names := r.Names()
	want := []string{"c", "a", "b"}
	if len(names) != len(want) {
		t.Fatalf("expected %d names, got %d", len(want), len(names))
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("name %d: expected %s, got %s", i, want[i], names[i])
		}
	}
}

func TestRegisterValidation(t *testing.T) {
	r := New()

	if err := r.Register("", "v1", constEval(0)); err == nil {
		t.Fatal("expected error for empty name")
	}
	if err := r.Register("acc", "", constEval(0)); err == nil {
		t.Fatal("expected error for empty version")
	}
	if err := r.Register("acc", "v1", nil); err == nil {
		t.Fatal("expected error for nil evaluator")
	}
}

func TestFuncTolerance(t *testing.T) {
	if got := constEval(0).Tolerance(); got != 0 {
		t.Fatalf("expected zero tolerance, got %f", got)
	}
}
