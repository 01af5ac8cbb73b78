package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/kestrelops/kestrel/internal/dataset"
	"github.com/kestrelops/kestrel/internal/eventstore"
)

// #region main
func main() {
	dbPath := flag.String("db", "kestrel.db", "path to kestrel.db")
	outPath := flag.String("out", "", "output JSONL path")
	window := flag.Duration("window", 24*time.Hour, "live sample window ending now")
	sampleSize := flag.Int("size", 100, "sample size")
	seed := flag.Int64("seed", 1, "sample seed")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Sugar()

	if *outPath == "" {
		fmt.Fprintln(os.Stderr, "usage: dataset-export --db kestrel.db --out ref.jsonl [--window 24h] [--size N] [--seed N]")
		os.Exit(2)
	}

	store, err := eventstore.NewStore(*dbPath)
	if err != nil {
		log.Fatalw("open store", "path", *dbPath, "err", err)
	}
	defer store.Close()

	windowEnd := time.Now().UTC()
	windowStart := windowEnd.Add(-*window)

	ds, err := dataset.FromLiveSample(store, windowStart, windowEnd, *sampleSize, *seed)
	if err != nil {
		log.Fatalw("sample live sessions", "err", err)
	}
	if len(ds.Examples) == 0 {
		log.Fatalw("no sessions in window", "start", windowStart, "end", windowEnd)
	}

	if err := dataset.WriteReference(*outPath, ds); err != nil {
		log.Fatalw("write dataset", "path", *outPath, "err", err)
	}
	log.Infow("dataset exported", "path", *outPath, "id", ds.ID, "examples", len(ds.Examples))
}

// #endregion main
