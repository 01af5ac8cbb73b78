package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kestrelops/kestrel/internal/dataset"
	"github.com/kestrelops/kestrel/internal/registry"
)

// #region types
// FailureKind classifies why an evaluator produced no metric set.
type FailureKind string

const (
	KindTimeout   FailureKind = "timeout"
	KindError     FailureKind = "error"
	KindPanic     FailureKind = "panic"
	KindNotFound  FailureKind = "not_found"
	KindCancelled FailureKind = "cancelled"
)

// Failure records one evaluator that produced no metric set.
type Failure struct {
	EvaluatorName    string      `json:"evaluator_name"`
	EvaluatorVersion string      `json:"evaluator_version,omitempty"`
	Kind             FailureKind `json:"kind"`
	Detail           string      `json:"detail,omitempty"`
}

// Report is the outcome of one run. Every selected evaluator lands in
// MetricSets or Failures, never both; a non-empty Failures list is the
// partial-failure report, surfaced to the caller rather than failing the
// whole run.
type Report struct {
	RunID         string               `json:"run_id"`
	StartedAt     time.Time            `json:"started_at"`
	DatasetID     string               `json:"dataset_id"`
	SystemVersion string               `json:"system_version"`
	MetricSets    []registry.MetricSet `json:"metric_sets"`
	Failures      []Failure            `json:"failures"`
}

// #endregion types

// #region runner
// Runner dispatches registered evaluators concurrently against an immutable
// dataset snapshot, isolating each evaluator's failure or timeout from the
// others.
type Runner struct {
	reg     *registry.Registry
	timeout time.Duration
	log     *zap.SugaredLogger
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the progress logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(r *Runner) { r.log = l }
}

// New creates a runner. perEvaluatorTimeout bounds each evaluator
// individually; one slow evaluator cannot starve the others' results.
func New(reg *registry.Registry, perEvaluatorTimeout time.Duration, opts ...Option) (*Runner, error) {
	if perEvaluatorTimeout <= 0 {
		return nil, fmt.Errorf("non-positive evaluator timeout %v", perEvaluatorTimeout)
	}
	r := &Runner{
		reg:     reg,
		timeout: perEvaluatorTimeout,
		log:     zap.NewNop().Sugar(),
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// #endregion runner

// #region run
// Run evaluates the named evaluators against ds. An empty names slice
// selects every registered evaluator. Output metric sets follow
// registration order regardless of completion order; unknown names are
// recorded as not_found failures. Cancelling ctx stops the run and records
// unfinished evaluators as cancelled, discarding their partial results.
func (r *Runner) Run(ctx context.Context, ds dataset.Dataset, names []string, systemVersion string) (Report, error) {
	report := Report{
		RunID:         uuid.New().String(),
		StartedAt:     time.Now().UTC(),
		DatasetID:     ds.ID,
		SystemVersion: systemVersion,
	}

	selected, missing := r.selectEntries(names)

	type slot struct {
		entry registry.Entry
		ms    *registry.MetricSet
		fail  *Failure
	}
	slots := make([]slot, len(selected))

	var g errgroup.Group
	for i, entry := range selected {
		slots[i].entry = entry
		g.Go(func() error {
			r.log.Debugw("evaluator start", "run_id", report.RunID, "evaluator", entry.Name, "version", entry.Version)
			slots[i].ms, slots[i].fail = r.runOne(ctx, entry, ds, systemVersion)
			if slots[i].fail != nil {
				r.log.Warnw("evaluator failed", "run_id", report.RunID, "evaluator", entry.Name, "kind", slots[i].fail.Kind, "detail", slots[i].fail.Detail)
			} else {
				r.log.Debugw("evaluator done", "run_id", report.RunID, "evaluator", entry.Name)
			}
			return nil
		})
	}
	g.Wait()

	for _, s := range slots {
		if s.ms != nil {
			report.MetricSets = append(report.MetricSets, *s.ms)
		}
		if s.fail != nil {
			report.Failures = append(report.Failures, *s.fail)
		}
	}
	for _, name := range missing {
		report.Failures = append(report.Failures, Failure{
			EvaluatorName: name,
			Kind:          KindNotFound,
			Detail:        "not registered",
		})
	}

	return report, nil
}

// selectEntries resolves names in registry registration order; empty names
// selects everything. Unknown names come back separately.
func (r *Runner) selectEntries(names []string) ([]registry.Entry, []string) {
	registered := r.reg.Names()

	if len(names) == 0 {
		entries := make([]registry.Entry, 0, len(registered))
		for _, name := range registered {
			if entry, err := r.reg.Resolve(name); err == nil {
				entries = append(entries, entry)
			}
		}
		return entries, nil
	}

	requested := make(map[string]bool, len(names))
	for _, n := range names {
		requested[n] = true
	}

	var entries []registry.Entry
	for _, name := range registered {
		if !requested[name] {
			continue
		}
		delete(requested, name)
		if entry, err := r.reg.Resolve(name); err == nil {
			entries = append(entries, entry)
		}
	}

	var missing []string
	for _, n := range names {
		if requested[n] {
			missing = append(missing, n)
			delete(requested, n)
		}
	}
	return entries, missing
}

// #endregion run

// #region run-one
type evalResult struct {
	values   map[string]float64
	err      error
	panicked bool
}

// runOne executes a single evaluator under its own timeout. A
// non-cooperative evaluator is abandoned at the deadline and recorded as a
// timeout; its eventual result is discarded via the buffered channel.
func (r *Runner) runOne(ctx context.Context, entry registry.Entry, ds dataset.Dataset, systemVersion string) (*registry.MetricSet, *Failure) {
	evalCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	done := make(chan evalResult, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- evalResult{err: fmt.Errorf("%v", rec), panicked: true}
			}
		}()
		values, err := entry.Evaluator.Evaluate(evalCtx, ds)
		done <- evalResult{values: values, err: err}
	}()

	fail := func(kind FailureKind, detail string) (*registry.MetricSet, *Failure) {
		return nil, &Failure{
			EvaluatorName:    entry.Name,
			EvaluatorVersion: entry.Version,
			Kind:             kind,
			Detail:           detail,
		}
	}

	select {
	case res := <-done:
		if res.panicked {
			return fail(KindPanic, res.err.Error())
		}
		if res.err != nil {
			if ctx.Err() != nil {
				return fail(KindCancelled, res.err.Error())
			}
			if evalCtx.Err() != nil {
				return fail(KindTimeout, res.err.Error())
			}
			return fail(KindError, res.err.Error())
		}
		return &registry.MetricSet{
			EvaluatorName:    entry.Name,
			EvaluatorVersion: entry.Version,
			DatasetID:        ds.ID,
			SystemVersion:    systemVersion,
			Values:           res.values,
		}, nil
	case <-evalCtx.Done():
		if ctx.Err() != nil {
			return fail(KindCancelled, ctx.Err().Error())
		}
		return fail(KindTimeout, fmt.Sprintf("exceeded %v", r.timeout))
	}
}

// #endregion run-one
