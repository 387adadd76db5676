// Package simulator composes the margin calculator, scenario grid, risk
// classifier and confidence bands into a single evaluation, and serves it
// over HTTP.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/atmx/margin-engine/internal/confidence"
	"github.com/atmx/margin-engine/internal/coverage"
	"github.com/atmx/margin-engine/internal/margin"
	"github.com/atmx/margin-engine/internal/metrics"
	"github.com/atmx/margin-engine/internal/model"
	"github.com/atmx/margin-engine/internal/risk"
	"github.com/atmx/margin-engine/internal/scenario"
	"github.com/atmx/margin-engine/internal/store"
)

// ErrInvalidRequest wraps input validation failures.
var ErrInvalidRequest = errors.New("invalid request")

// Options configures an Engine. Zero-valued model parameters fall back to
// the package defaults.
type Options struct {
	Limits      margin.Limits
	Grid        scenario.Config
	Thresholds  risk.Thresholds
	Multipliers confidence.Multipliers

	Coverage store.CoverageStore
	Cache    store.ResultCache // optional
	Log      zerolog.Logger
}

// Engine runs evaluations. It is safe for concurrent use.
type Engine struct {
	calc        *margin.Calculator
	grid        scenario.Config
	thresholds  risk.Thresholds
	multipliers confidence.Multipliers
	coverage    store.CoverageStore
	cache       store.ResultCache
	log         zerolog.Logger
}

// NewEngine validates opts and builds an Engine.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Coverage == nil {
		return nil, errors.New("simulator: coverage store is required")
	}

	limits := opts.Limits
	if limits.MaxCostMultiplier.IsZero() && limits.MarginFloorPct.IsZero() {
		limits = margin.DefaultLimits
	}
	calc, err := margin.NewCalculator(limits)
	if err != nil {
		return nil, err
	}

	grid := opts.Grid
	if grid.Steps == 0 {
		grid = scenario.DefaultConfig()
	}
	grid.Calculator = calc

	th := opts.Thresholds
	if th.HighBelow.IsZero() && th.ModerateBelow.IsZero() {
		th = risk.DefaultThresholds
	}
	if err := th.Validate(); err != nil {
		return nil, err
	}

	mult := opts.Multipliers
	if mult.Fallback.IsZero() && mult.None.IsZero() {
		mult = confidence.DefaultMultipliers
	}
	if err := mult.Validate(); err != nil {
		return nil, err
	}

	return &Engine{
		calc:        calc,
		grid:        grid,
		thresholds:  th,
		multipliers: mult,
		coverage:    opts.Coverage,
		cache:       opts.Cache,
		log:         opts.Log.With().Str("component", "engine").Logger(),
	}, nil
}

// Compute evaluates a single scenario.
func (e *Engine) Compute(in model.ScenarioInput) model.ScenarioResult {
	return e.calc.Compute(in)
}

// GridConfig returns the engine's sweep configuration with steps overridden
// when steps is non-zero.
func (e *Engine) GridConfig(steps int) scenario.Config {
	cfg := e.grid
	if steps != 0 {
		cfg.Steps = steps
	}
	return cfg
}

// Grid runs the sensitivity sweep, consulting the result cache first. Cache
// failures are logged and never fail the request. Amounts outside the
// request bounds return ErrInvalidRequest.
func (e *Engine) Grid(ctx context.Context, importValue, revenue decimal.Decimal, steps int) ([]model.GridRow, error) {
	if err := checkAmount("import_value", importValue); err != nil {
		return nil, err
	}
	if err := checkAmount("revenue", revenue); err != nil {
		return nil, err
	}
	cfg := e.GridConfig(steps)
	key := scenario.Key(importValue, revenue, cfg)

	if e.cache != nil {
		rows, ok, err := e.cache.GetGrid(ctx, key)
		if err != nil {
			e.log.Warn().Err(err).Str("key", key).Msg("grid cache read failed")
		}
		if ok {
			metrics.GridCacheHits.Inc()
			return rows, nil
		}
		metrics.GridCacheMisses.Inc()
	}

	start := time.Now()
	rows, err := scenario.Run(importValue, revenue, cfg)
	if err != nil {
		return nil, err
	}
	metrics.GridDuration.Observe(time.Since(start).Seconds())

	if e.cache != nil {
		if err := e.cache.SetGrid(ctx, key, rows); err != nil {
			e.log.Warn().Err(err).Str("key", key).Msg("grid cache write failed")
		}
	}
	return rows, nil
}

// Lookup returns the coverage record for a commodity. A missing record, or a
// store failure, yields the no-coverage default so risk adjustment still runs
// on the cautious path.
func (e *Engine) Lookup(ctx context.Context, commodity int) coverage.Record {
	rec, err := e.coverage.GetCoverage(ctx, commodity)
	if err == nil {
		return *rec
	}
	if !errors.Is(err, store.ErrNotFound) {
		e.log.Warn().Err(err).Int("commodity", commodity).Msg("coverage lookup failed, using default")
	}
	metrics.CoverageFallbacks.Inc()
	return coverage.Default(commodity)
}

// Risk returns the margin tier and the coverage-adjusted tier.
func (e *Engine) Risk(marginPct decimal.NullDecimal, c coverage.Class) (base, adjusted risk.Tier) {
	base = e.thresholds.Label(marginPct)
	return base, risk.Adjust(base, c)
}

// Band returns the multiplier and signed profit band for c.
func (e *Engine) Band(profit decimal.Decimal, c coverage.Class) (mult, lower, upper decimal.Decimal) {
	lower, upper = e.multipliers.Band(profit, c)
	return e.multipliers.For(c), lower, upper
}

// Request is one evaluation: a commodity and its scenario assumptions.
type Request struct {
	Commodity int `json:"commodity"`
	model.ScenarioInput
	// Steps overrides the grid resolution; zero uses the configured value.
	Steps int `json:"steps,omitempty"`
}

// Validate rejects inputs the calculator would accept but that make no sense
// for a shipment.
func (r Request) Validate() error {
	if r.Commodity <= 0 {
		return fmt.Errorf("%w: commodity must be a positive HS code", ErrInvalidRequest)
	}
	return validateInput(r.ScenarioInput)
}

func validateInput(in model.ScenarioInput) error {
	if err := checkAmount("import_value", in.ImportValue); err != nil {
		return err
	}
	if err := checkAmount("revenue", in.Revenue); err != nil {
		return err
	}
	for _, f := range []struct {
		name string
		v    decimal.Decimal
	}{
		{"fx_shock_pct", in.FXShockPct},
		{"shipping_pct", in.ShippingPct},
		{"insurance_pct", in.InsurancePct},
		{"tariff_pct", in.TariffPct},
	} {
		if err := checkDecimal(f.name, f.v, maxRate); err != nil {
			return err
		}
	}

	switch {
	case in.ImportValue.IsNegative():
		return fmt.Errorf("%w: import_value must not be negative", ErrInvalidRequest)
	case in.ShippingPct.IsNegative(), in.InsurancePct.IsNegative(), in.TariffPct.IsNegative():
		return fmt.Errorf("%w: cost percentages must not be negative", ErrInvalidRequest)
	case in.FXShockPct.LessThanOrEqual(decimal.NewFromInt(-1)):
		return fmt.Errorf("%w: fx_shock_pct must be greater than -1", ErrInvalidRequest)
	}
	return nil
}

// Bounds on request values. Amounts are GBP; rates are fractions, so 100
// is a 10000% shock.
var (
	maxAmount = decimal.New(1, 15)
	maxRate   = decimal.NewFromInt(100)
)

const maxFractionDigits = 10

func checkAmount(name string, v decimal.Decimal) error {
	return checkDecimal(name, v, maxAmount)
}

// checkDecimal rejects values above limit in magnitude or with more than
// maxFractionDigits decimal places. The digit and exponent tests run before
// any comparison, which would rescale an extreme exponent.
func checkDecimal(name string, v, limit decimal.Decimal) error {
	if v.IsZero() {
		return nil
	}
	if v.Exponent() < -maxFractionDigits {
		return fmt.Errorf("%w: %s has more than %d decimal places", ErrInvalidRequest, name, maxFractionDigits)
	}
	if v.NumDigits()+int(v.Exponent()) > limit.NumDigits()+int(limit.Exponent()) || v.Abs().GreaterThan(limit) {
		return fmt.Errorf("%w: %s exceeds %s in magnitude", ErrInvalidRequest, name, limit)
	}
	return nil
}

// Evaluation is the full result for one Request.
type Evaluation struct {
	ID        string          `json:"id"`
	CreatedAt time.Time       `json:"created_at"`
	Commodity coverage.Record `json:"commodity"`

	Input            model.ScenarioInput  `json:"input"`
	Result           model.ScenarioResult `json:"result"`
	DisplayMarginPct decimal.Decimal      `json:"display_margin_pct"`

	BaseRisk     risk.Tier `json:"base_risk"`
	AdjustedRisk risk.Tier `json:"adjusted_risk"`
	Escalated    bool      `json:"escalated"`

	Multiplier  decimal.Decimal `json:"confidence_multiplier"`
	ProfitLower decimal.Decimal `json:"profit_lower"`
	ProfitUpper decimal.Decimal `json:"profit_upper"`

	Grid    []model.BandedRow `json:"grid"`
	Summary scenario.Summary  `json:"summary"`
	Heatmap scenario.Heatmap  `json:"heatmap"`
}

// Evaluate runs the single scenario and the full sweep for req.
func (e *Engine) Evaluate(ctx context.Context, req Request) (*Evaluation, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	rec := e.Lookup(ctx, req.Commodity)
	res := e.calc.Compute(req.ScenarioInput)
	base, adjusted := e.Risk(res.MarginPct, rec.Class)
	mult, lower, upper := e.Band(res.Profit, rec.Class)

	rows, err := e.Grid(ctx, req.ImportValue, req.Revenue, req.Steps)
	if err != nil {
		return nil, err
	}

	ev := &Evaluation{
		ID:               uuid.New().String(),
		CreatedAt:        time.Now().UTC(),
		Commodity:        rec,
		Input:            req.ScenarioInput,
		Result:           res,
		DisplayMarginPct: res.DisplayMarginPct(),
		BaseRisk:         base,
		AdjustedRisk:     adjusted,
		Escalated:        risk.Escalated(base, adjusted),
		Multiplier:       mult,
		ProfitLower:      lower,
		ProfitUpper:      upper,
		Grid:             e.multipliers.ApplyToGrid(rows, rec.Class),
		Summary:          scenario.Summarize(rows, e.thresholds),
		Heatmap:          scenario.Pivot(rows),
	}

	metrics.EvaluationsTotal.WithLabelValues(adjusted.String()).Inc()
	if ev.Escalated {
		metrics.RiskEscalations.WithLabelValues(rec.Class.String()).Inc()
	}

	e.log.Debug().
		Str("id", ev.ID).
		Int("commodity", req.Commodity).
		Str("coverage", rec.Class.String()).
		Str("base_risk", base.String()).
		Str("adjusted_risk", adjusted.String()).
		Msg("evaluation completed")

	return ev, nil
}
