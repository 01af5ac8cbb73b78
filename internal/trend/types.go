package trend

import "time"

// #region trend-record
// TrendRecord is one metric value summarized over a time window.
// TrendRecords for a (metric name, dataset) pair are totally ordered by
// window start, which is what makes consecutive-window comparison
// meaningful.
type TrendRecord struct {
	MetricName       string    `json:"metric_name"`
	DatasetID        string    `json:"dataset_id"`
	EvaluatorName    string    `json:"evaluator_name"`
	EvaluatorVersion string    `json:"evaluator_version"`
	SystemVersion    string    `json:"system_version"`
	Value            float64   `json:"value"`
	WindowStart      time.Time `json:"window_start"`
	WindowEnd        time.Time `json:"window_end"`
}

// #endregion trend-record

// #region policy
// Policy configures degradation detection: the newest window degrades when
// its value falls strictly below the Percentile-th percentile of the
// TrailingWindows windows before it.
type Policy struct {
	Percentile      float64 `koanf:"percentile" json:"percentile"`
	TrailingWindows int     `koanf:"trailing_windows" json:"trailing_windows"`
}

// DefaultPolicy returns the standard degradation policy.
func DefaultPolicy() Policy {
	return Policy{
		Percentile:      10,
		TrailingWindows: 5,
	}
}

// #endregion policy
