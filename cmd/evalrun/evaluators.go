package main

import (
	"context"
	"fmt"

	"github.com/kestrelops/kestrel/internal/dataset"
	"github.com/kestrelops/kestrel/internal/registry"
)

// #region builtin-evaluators
// registerBuiltins installs the generic telemetry evaluators this binary
// ships with. Domain-specific evaluators plug in through the same registry
// contract.
func registerBuiltins(reg *registry.Registry) error {
	if err := reg.Register("confidence_summary", "v1", registry.Func(confidenceSummary)); err != nil {
		return fmt.Errorf("register confidence_summary: %w", err)
	}
	if err := reg.Register("subscore_summary", "v1", registry.Func(subscoreSummary)); err != nil {
		return fmt.Errorf("register subscore_summary: %w", err)
	}
	return nil
}

// confidenceSummary reports confidence distribution and escalation rate
// over the dataset.
func confidenceSummary(ctx context.Context, ds dataset.Dataset) (map[string]float64, error) {
	if len(ds.Examples) == 0 {
		return nil, fmt.Errorf("empty dataset %s", ds.ID)
	}

	var sum, min float64
	min = 1.0
	escalated := 0
	for _, ex := range ds.Examples {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sum += ex.Confidence
		if ex.Confidence < min {
			min = ex.Confidence
		}
		if ex.Escalated {
			escalated++
		}
	}

	n := float64(len(ds.Examples))
	return map[string]float64{
		"confidence_mean": sum / n,
		"confidence_min":  min,
		"escalation_rate": float64(escalated) / n,
	}, nil
}

// subscoreSummary reports the mean of every named sub-score present in the
// dataset.
func subscoreSummary(ctx context.Context, ds dataset.Dataset) (map[string]float64, error) {
	if len(ds.Examples) == 0 {
		return nil, fmt.Errorf("empty dataset %s", ds.ID)
	}

	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, ex := range ds.Examples {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for name, v := range ex.Subscores {
			sums[name] += v
			counts[name]++
		}
	}

	values := make(map[string]float64, len(sums))
	for name, total := range sums {
		values["subscore_"+name+"_mean"] = total / float64(counts[name])
	}
	return values, nil
}

// #endregion builtin-evaluators
