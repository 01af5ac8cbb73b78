package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kestrelops/kestrel/internal/eventstore"
	"github.com/kestrelops/kestrel/internal/gate"
	"github.com/kestrelops/kestrel/internal/session"
)

// #region types
// Example is a single interaction an evaluator consumes: the input, the
// scored output, and whether the session ended up escalated.
type Example struct {
	SessionID  string             `json:"session_id,omitempty"`
	Input      json.RawMessage    `json:"input,omitempty"`
	Output     json.RawMessage    `json:"output,omitempty"`
	Confidence float64            `json:"confidence"`
	Subscores  map[string]float64 `json:"subscores,omitempty"`
	Escalated  bool               `json:"escalated"`
}

// Dataset is an immutable snapshot of examples with a stable identifier.
// Reference datasets come from JSONL files; live samples are drawn from the
// event store.
type Dataset struct {
	ID       string
	Examples []Example
}

// #endregion types

// #region reference
// LoadReference reads a JSONL reference dataset, one example per line.
// The dataset ID is "ref:" plus the file's base name.
func LoadReference(path string) (Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return Dataset{}, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	ds := Dataset{ID: "ref:" + filepath.Base(path)}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ex Example
		if err := json.Unmarshal(line, &ex); err != nil {
			return Dataset{}, fmt.Errorf("parse dataset line %d: %w", lineNum, err)
		}
		ds.Examples = append(ds.Examples, ex)
	}
	if err := scanner.Err(); err != nil {
		return Dataset{}, fmt.Errorf("read dataset: %w", err)
	}
	return ds, nil
}

// WriteReference writes a dataset as JSONL, one example per line.
func WriteReference(path string, ds Dataset) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create dataset file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, ex := range ds.Examples {
		line, err := json.Marshal(ex)
		if err != nil {
			return fmt.Errorf("marshal example: %w", err)
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("write example: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush dataset file: %w", err)
	}
	return nil
}

// #endregion reference

// #region live-sample
// FromLiveSample builds a dataset snapshot from a deterministic sample of
// recent sessions. The same (window, size, seed) always reproduces the same
// dataset ID and examples. Sessions with no output-produced event become
// zero-confidence examples rather than being skipped, so coverage gaps stay
// visible to evaluators.
func FromLiveSample(store *eventstore.Store, windowStart, windowEnd time.Time, sampleSize int, seed int64) (Dataset, error) {
	sessions, err := store.SampleLive(windowStart, windowEnd, sampleSize, seed)
	if err != nil {
		return Dataset{}, fmt.Errorf("sample live sessions: %w", err)
	}

	ds := Dataset{
		ID: fmt.Sprintf("live:%d-%d-%d", windowStart.UTC().Unix(), sampleSize, seed),
	}
	for _, sess := range sessions {
		_, events, err := store.GetSession(sess.ID)
		if err != nil {
			return Dataset{}, err
		}

		ex := Example{SessionID: sess.ID, Input: sess.Input}
		for _, ev := range events {
			if ev.Type != session.EventOutputProduced || len(ev.Payload) == 0 {
				continue
			}
			var scored gate.ScoredOutput
			if err := json.Unmarshal(ev.Payload, &scored); err != nil {
				continue
			}
			ex.Output = scored.Output
			ex.Confidence = scored.Confidence
			ex.Subscores = scored.Subscores
		}
		ex.Escalated = session.Fold(events).Escalated
		ds.Examples = append(ds.Examples, ex)
	}
	return ds, nil
}

// #endregion live-sample
