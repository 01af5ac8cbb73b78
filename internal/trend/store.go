package trend

import (
	"database/sql"
	"fmt"
	"math"
	"sort"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kestrelops/kestrel/internal/registry"
)

// timeLayout is fixed-width so lexicographic TEXT comparison on
// window_start matches chronological order; RFC3339Nano trims trailing
// zeros and does not sort correctly with mixed precision.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS trend_records (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	metric_name       TEXT NOT NULL,
	dataset_id        TEXT NOT NULL,
	evaluator_name    TEXT NOT NULL,
	evaluator_version TEXT NOT NULL,
	system_version    TEXT NOT NULL,
	value             REAL NOT NULL,
	window_start      TEXT NOT NULL,
	window_end        TEXT NOT NULL,
	created_at        TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trend_metric
	ON trend_records(metric_name, dataset_id, window_start);
`

// #endregion schema

// #region store
// Store persists trend records. It creates its table on an existing
// database handle so trend data can share the event store's file.
type Store struct {
	db *sql.DB
}

// NewStore creates the trend_records table if needed and returns a store.
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate trend schema: %w", err)
	}
	return &Store{db: db}, nil
}

// #endregion store

// #region ingest
// Ingest appends one TrendRecord per metric value in the set, all tagged
// with the given window. Records are append-only; reporting never mutates
// them. Returns the appended records with metric names in sorted order.
func (s *Store) Ingest(ms registry.MetricSet, windowStart, windowEnd time.Time) ([]TrendRecord, error) {
	names := make([]string, 0, len(ms.Values))
	for name := range ms.Values {
		names = append(names, name)
	}
	sort.Strings(names)

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(timeLayout)
	records := make([]TrendRecord, 0, len(names))
	for _, name := range names {
		rec := TrendRecord{
			MetricName:       name,
			DatasetID:        ms.DatasetID,
			EvaluatorName:    ms.EvaluatorName,
			EvaluatorVersion: ms.EvaluatorVersion,
			SystemVersion:    ms.SystemVersion,
			Value:            ms.Values[name],
			WindowStart:      windowStart.UTC(),
			WindowEnd:        windowEnd.UTC(),
		}
		_, err := tx.Exec(
			`INSERT INTO trend_records (metric_name, dataset_id, evaluator_name, evaluator_version, system_version, value, window_start, window_end, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.MetricName, rec.DatasetID, rec.EvaluatorName, rec.EvaluatorVersion,
			rec.SystemVersion, rec.Value,
			rec.WindowStart.Format(timeLayout),
			rec.WindowEnd.Format(timeLayout),
			now,
		)
		if err != nil {
			return nil, fmt.Errorf("insert trend record: %w", err)
		}
		records = append(records, rec)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return records, nil
}

// #endregion ingest

// #region trend
// Trend returns up to windowCount records for (metricName, datasetID),
// ordered by window start with the most recent last.
func (s *Store) Trend(metricName, datasetID string, windowCount int) ([]TrendRecord, error) {
	rows, err := s.db.Query(
		`SELECT metric_name, dataset_id, evaluator_name, evaluator_version, system_version, value, window_start, window_end
		 FROM trend_records
		 WHERE metric_name = ? AND dataset_id = ?
		 ORDER BY window_start DESC, id DESC LIMIT ?`,
		metricName, datasetID, windowCount,
	)
	if err != nil {
		return nil, fmt.Errorf("query trend: %w", err)
	}
	defer rows.Close()

	var records []TrendRecord
	for rows.Next() {
		var rec TrendRecord
		var startStr, endStr string
		if err := rows.Scan(&rec.MetricName, &rec.DatasetID, &rec.EvaluatorName,
			&rec.EvaluatorVersion, &rec.SystemVersion, &rec.Value, &startStr, &endStr); err != nil {
			return nil, fmt.Errorf("scan trend record: %w", err)
		}
		rec.WindowStart, _ = time.Parse(time.RFC3339Nano, startStr)
		rec.WindowEnd, _ = time.Parse(time.RFC3339Nano, endStr)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Query returns newest first; reverse for most-recent-last.
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

// #endregion trend

// #region degradation
// DetectDegradation reports whether the newest window for (metricName,
// datasetID) falls strictly below the policy percentile of its trailing
// windows. Fewer than one trailing window means no verdict (false).
func (s *Store) DetectDegradation(metricName, datasetID string, p Policy) (bool, error) {
	records, err := s.Trend(metricName, datasetID, p.TrailingWindows+1)
	if err != nil {
		return false, err
	}
	if len(records) < 2 {
		return false, nil
	}

	current := records[len(records)-1].Value
	trailing := make([]float64, 0, len(records)-1)
	for _, rec := range records[:len(records)-1] {
		trailing = append(trailing, rec.Value)
	}

	return current < percentile(trailing, p.Percentile), nil
}

// percentile computes the p-th percentile of values by sorted nearest rank.
func percentile(values []float64, p float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	idx := int(math.Floor(p / 100.0 * float64(len(sorted))))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}

// #endregion degradation
