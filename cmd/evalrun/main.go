package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kestrelops/kestrel/internal/config"
	"github.com/kestrelops/kestrel/internal/dataset"
	"github.com/kestrelops/kestrel/internal/eventstore"
	"github.com/kestrelops/kestrel/internal/registry"
	"github.com/kestrelops/kestrel/internal/runner"
	"github.com/kestrelops/kestrel/internal/trend"
)

// #region main
func main() {
	configPath := flag.String("config", envOr("KESTREL_CONFIG", ""), "path to kestrel.yaml")
	dbPath := flag.String("db", "", "override store path from config")
	refPath := flag.String("dataset", "", "path to a JSONL reference dataset")
	window := flag.Duration("window", time.Hour, "live sample window ending now")
	sampleSize := flag.Int("size", 50, "live sample size")
	seed := flag.Int64("seed", 1, "live sample seed")
	systemVersion := flag.String("system-version", "dev", "system version under evaluation")
	evaluators := flag.String("evaluators", "", "comma-separated evaluator names (default: all)")
	noIngest := flag.Bool("no-ingest", false, "skip trend ingestion")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Sugar()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalw("load config", "err", err)
	}
	if *dbPath != "" {
		cfg.Store.Path = *dbPath
	}

	store, err := eventstore.NewStore(cfg.Store.Path)
	if err != nil {
		log.Fatalw("open store", "path", cfg.Store.Path, "err", err)
	}
	defer store.Close()

	reg := registry.New()
	if err := registerBuiltins(reg); err != nil {
		log.Fatalw("register evaluators", "err", err)
	}

	// Cancel in-flight evaluators on shutdown; partial results are dropped.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	windowEnd := time.Now().UTC()
	windowStart := windowEnd.Add(-*window)

	ds, err := loadDataset(store, *refPath, windowStart, windowEnd, *sampleSize, *seed)
	if err != nil {
		log.Fatalw("load dataset", "err", err)
	}
	log.Infow("dataset ready", "id", ds.ID, "examples", len(ds.Examples))

	run, err := runner.New(reg, cfg.Runner.EvaluatorTimeout, runner.WithLogger(log))
	if err != nil {
		log.Fatalw("init runner", "err", err)
	}

	var names []string
	if *evaluators != "" {
		names = strings.Split(*evaluators, ",")
	}
	runReport, err := run.Run(ctx, ds, names, *systemVersion)
	if err != nil {
		log.Fatalw("run evaluation", "err", err)
	}

	if !*noIngest {
		if err := ingestAndCheck(store, log, cfg, runReport, windowStart, windowEnd); err != nil {
			log.Fatalw("ingest trend records", "err", err)
		}
	}

	report := trend.BuildReport(runReport)
	enc, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Fatalw("marshal report", "err", err)
	}
	fmt.Println(string(enc))

	if len(runReport.Failures) > 0 {
		os.Exit(1)
	}
}

// #endregion main

// #region dataset
// loadDataset picks the reference file when given, otherwise draws a
// deterministic live sample from the store.
func loadDataset(store *eventstore.Store, refPath string, windowStart, windowEnd time.Time, size int, seed int64) (dataset.Dataset, error) {
	if refPath != "" {
		return dataset.LoadReference(refPath)
	}
	return dataset.FromLiveSample(store, windowStart, windowEnd, size, seed)
}

// #endregion dataset

// #region ingest
// ingestAndCheck appends trend records for every metric set and alerts on
// configured degradation breaches.
func ingestAndCheck(store *eventstore.Store, log *zap.SugaredLogger, cfg *config.Config, runReport runner.Report, windowStart, windowEnd time.Time) error {
	trendStore, err := trend.NewStore(store.DB())
	if err != nil {
		return err
	}

	for _, ms := range runReport.MetricSets {
		records, err := trendStore.Ingest(ms, windowStart, windowEnd)
		if err != nil {
			return err
		}
		for _, rec := range records {
			degraded, err := trendStore.DetectDegradation(rec.MetricName, rec.DatasetID, cfg.Degradation)
			if err != nil {
				return err
			}
			if degraded {
				log.Warnw("degradation detected",
					"metric", rec.MetricName,
					"dataset", rec.DatasetID,
					"value", rec.Value,
					"percentile", cfg.Degradation.Percentile,
					"trailing_windows", cfg.Degradation.TrailingWindows,
				)
			}
		}
	}
	return nil
}

// #endregion ingest

// #region helpers
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion helpers
