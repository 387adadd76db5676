// Package refresh loads the classified coverage file into the coverage store,
// once at startup and then on a cron schedule.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/atmx/margin-engine/internal/coverage"
	"github.com/atmx/margin-engine/internal/metrics"
	"github.com/atmx/margin-engine/internal/store"
)

var ErrEmptyCoverage = errors.New("refresh: coverage source has no records")

// Result summarises one import.
type Result struct {
	Records int
	ByClass map[coverage.Class]int
}

// Import reads src, classifying rows without a class using bp, and upserts
// every record into st. An empty file is an error so a truncated upload
// cannot silently leave the store stale.
func Import(ctx context.Context, src coverage.Source, st store.CoverageStore, bp coverage.Breakpoints) (Result, error) {
	rc, err := src.Open(ctx)
	if err != nil {
		return Result{}, err
	}
	defer rc.Close()

	records, err := coverage.ReadCSV(rc, bp)
	if err != nil {
		return Result{}, fmt.Errorf("read %s: %w", src, err)
	}
	if len(records) == 0 {
		return Result{}, fmt.Errorf("%w: %s", ErrEmptyCoverage, src)
	}

	if err := st.UpsertCoverage(ctx, records); err != nil {
		return Result{}, fmt.Errorf("store coverage: %w", err)
	}

	res := Result{Records: len(records), ByClass: make(map[coverage.Class]int)}
	for _, r := range records {
		res.ByClass[r.Class]++
	}
	return res, nil
}

// Job imports coverage on demand. It satisfies the Scheduler's Job interface.
type Job struct {
	Source      coverage.Source
	Store       store.CoverageStore
	Breakpoints coverage.Breakpoints
	Timeout     time.Duration
	Log         zerolog.Logger
}

func (j *Job) Name() string { return "coverage-import" }

func (j *Job) Run() error {
	timeout := j.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()
	res, err := Import(ctx, j.Source, j.Store, j.Breakpoints)
	if err != nil {
		metrics.CoverageImports.WithLabelValues("error").Inc()
		return err
	}
	metrics.CoverageImports.WithLabelValues("ok").Inc()
	metrics.CoverageRecords.Set(float64(res.Records))

	j.Log.Info().
		Str("source", j.Source.String()).
		Int("records", res.Records).
		Int("high", res.ByClass[coverage.High]).
		Int("partial", res.ByClass[coverage.Partial]).
		Int("low", res.ByClass[coverage.Low]).
		Int("none", res.ByClass[coverage.None]).
		Dur("took", time.Since(start)).
		Msg("coverage imported")
	return nil
}
