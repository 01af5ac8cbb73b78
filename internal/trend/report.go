package trend

import (
	"sort"
	"time"

	"github.com/kestrelops/kestrel/internal/runner"
)

// #region report-types
// ReportMetric is one flattened metric line in an evaluation report.
type ReportMetric struct {
	EvaluatorName    string  `json:"evaluator_name"`
	EvaluatorVersion string  `json:"evaluator_version"`
	MetricName       string  `json:"metric_name"`
	Value            float64 `json:"value"`
}

// ReportFailure is one failed evaluator in an evaluation report.
type ReportFailure struct {
	EvaluatorName string `json:"evaluator_name"`
	Kind          string `json:"kind"`
	Detail        string `json:"detail,omitempty"`
}

// Report is the external evaluation report format consumed by dashboards.
type Report struct {
	RunID         string          `json:"run_id"`
	Timestamp     time.Time       `json:"timestamp"`
	DatasetID     string          `json:"dataset_id"`
	SystemVersion string          `json:"system_version"`
	Metrics       []ReportMetric  `json:"metrics"`
	Failures      []ReportFailure `json:"failures"`
}

// #endregion report-types

// #region build-report
// BuildReport projects a run outcome into the external report format.
// Pure: it reads the run report and nothing else. Metric sets keep their
// run order (evaluator registration order); within a set, metric names are
// sorted for stable output.
func BuildReport(r runner.Report) Report {
	out := Report{
		RunID:         r.RunID,
		Timestamp:     r.StartedAt,
		DatasetID:     r.DatasetID,
		SystemVersion: r.SystemVersion,
		Metrics:       []ReportMetric{},
		Failures:      []ReportFailure{},
	}

	for _, ms := range r.MetricSets {
		names := make([]string, 0, len(ms.Values))
		for name := range ms.Values {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			out.Metrics = append(out.Metrics, ReportMetric{
				EvaluatorName:    ms.EvaluatorName,
				EvaluatorVersion: ms.EvaluatorVersion,
				MetricName:       name,
				Value:            ms.Values[name],
			})
		}
	}

	for _, f := range r.Failures {
		out.Failures = append(out.Failures, ReportFailure{
			EvaluatorName: f.EvaluatorName,
			Kind:          string(f.Kind),
			Detail:        f.Detail,
		})
	}

	return out
}

// #endregion build-report
