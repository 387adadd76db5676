// Command coverage-import loads a classified coverage CSV into the coverage
// store, optionally writing the normalised file back out.
//
//	coverage-import -source s3://stats/coverage.csv
//	coverage-import -source data/coverage.csv -dry-run -out normalised.csv
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/atmx/margin-engine/internal/config"
	"github.com/atmx/margin-engine/internal/coverage"
	"github.com/atmx/margin-engine/internal/logger"
	"github.com/atmx/margin-engine/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	source := flag.String("source", cfg.CoverageSource, "coverage CSV path or s3://bucket/key (default $COVERAGE_SOURCE)")
	out := flag.String("out", "", "write the normalised records to this CSV file")
	modelConfig := flag.String("model-config", "", "YAML model config for classification breakpoints (default $MODEL_CONFIG)")
	dryRun := flag.Bool("dry-run", false, "parse and classify without writing to the store")
	flag.Parse()

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: true})

	bp := cfg.Model.Coverage
	if *modelConfig != "" {
		m, err := config.LoadModelConfig(*modelConfig)
		if err != nil {
			log.Fatal().Err(err).Msg("load model config")
		}
		bp = m.Coverage
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *source, *out, bp, *dryRun, log); err != nil {
		log.Fatal().Err(err).Msg("coverage import failed")
	}
}

func run(ctx context.Context, cfg *config.Config, source, out string, bp coverage.Breakpoints, dryRun bool, log zerolog.Logger) error {
	if source == "" {
		return fmt.Errorf("no source: pass -source or set COVERAGE_SOURCE")
	}
	src, err := coverage.ParseSource(ctx, source)
	if err != nil {
		return err
	}

	records, err := readSource(ctx, src, bp)
	if err != nil {
		return err
	}

	byClass := make(map[coverage.Class]int)
	for _, r := range records {
		byClass[r.Class]++
	}
	log.Info().
		Str("source", src.String()).
		Int("records", len(records)).
		Int("high", byClass[coverage.High]).
		Int("partial", byClass[coverage.Partial]).
		Int("low", byClass[coverage.Low]).
		Int("none", byClass[coverage.None]).
		Msg("coverage parsed")

	if out != "" {
		if err := writeFile(out, records); err != nil {
			return err
		}
		log.Info().Str("path", out).Msg("normalised coverage written")
	}

	if dryRun {
		return nil
	}
	if len(records) == 0 {
		return fmt.Errorf("%s has no records", src)
	}

	st, backend, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := st.UpsertCoverage(ctx, records); err != nil {
		return fmt.Errorf("store coverage: %w", err)
	}
	log.Info().Str("backend", string(backend)).Int("records", len(records)).Msg("coverage stored")
	return nil
}

// openStore opens the configured database. When REDIS_URL is set the store is
// wrapped in the same read-through cache the server uses, so an import evicts
// the cached records it replaces.
func openStore(ctx context.Context, cfg *config.Config) (store.CoverageStore, store.Backend, func(), error) {
	st, backend, closeStore, err := store.Open(ctx, cfg.DatabaseURL, cfg.SQLitePath)
	if err != nil {
		return nil, "", nil, err
	}
	if backend == store.BackendMemory {
		closeStore()
		return nil, "", nil, fmt.Errorf("no database configured: set DATABASE_URL or SQLITE_PATH, or use -dry-run")
	}
	if cfg.RedisURL == "" {
		return st, backend, closeStore, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		closeStore()
		return nil, "", nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opt)
	return store.NewCachedStore(st, rdb, cfg.CacheTTL), backend, func() {
		rdb.Close()
		closeStore()
	}, nil
}

func readSource(ctx context.Context, src coverage.Source, bp coverage.Breakpoints) ([]coverage.Record, error) {
	rc, err := src.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	records, err := coverage.ReadCSV(rc, bp)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", src, err)
	}
	return records, nil
}

func writeFile(path string, records []coverage.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := coverage.WriteCSV(f, records); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
