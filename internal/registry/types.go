package registry

import (
	"context"

	"github.com/kestrelops/kestrel/internal/dataset"
)

// #region evaluator
// Evaluator scores a dataset and produces named metric values. Evaluators
// are treated as pure functions of the dataset snapshot: a re-run over the
// same snapshot must land within the evaluator's declared tolerance.
type Evaluator interface {
	// Evaluate computes metric values over the dataset. Implementations
	// must respect ctx cancellation.
	Evaluate(ctx context.Context, ds dataset.Dataset) (map[string]float64, error)

	// Tolerance is the declared band for inherently stochastic evaluators.
	// Deterministic evaluators return 0.
	Tolerance() float64
}

// Func adapts a plain function to the Evaluator interface with zero
// tolerance.
type Func func(ctx context.Context, ds dataset.Dataset) (map[string]float64, error)

// Evaluate implements Evaluator.
func (f Func) Evaluate(ctx context.Context, ds dataset.Dataset) (map[string]float64, error) {
	return f(ctx, ds)
}

// Tolerance implements Evaluator.
func (f Func) Tolerance() float64 { return 0 }

// #endregion evaluator

// #region entry
// Entry pairs a registered evaluator with its immutable identity.
type Entry struct {
	Name      string
	Version   string
	Evaluator Evaluator
}

// #endregion entry

// #region metric-set
// MetricSet is one evaluator's scores over one dataset, tagged with the
// identities needed for trend ingestion and reproduction.
type MetricSet struct {
	EvaluatorName    string             `json:"evaluator_name"`
	EvaluatorVersion string             `json:"evaluator_version"`
	DatasetID        string             `json:"dataset_id"`
	SystemVersion    string             `json:"system_version"`
	Values           map[string]float64 `json:"values"`
}

// #endregion metric-set
