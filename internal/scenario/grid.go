// Package scenario sweeps FX shock and shipping cost over a grid of evenly
// spaced points and evaluates the margin calculator at every combination.
package scenario

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/atmx/margin-engine/internal/margin"
	"github.com/atmx/margin-engine/internal/model"
)

var (
	ErrInvalidSteps = errors.New("scenario: steps must be at least 2")
	ErrTooManySteps = errors.New("scenario: steps exceeds limit")
)

var hundred = decimal.NewFromInt(100)

// Range is an inclusive interval of fractional shocks, e.g. -0.10..0.10.
type Range struct {
	Lo decimal.Decimal `json:"lo" yaml:"lo"`
	Hi decimal.Decimal `json:"hi" yaml:"hi"`
}

// Points returns steps evenly spaced values from Lo to Hi inclusive.
// Values are computed in decimal so the axis labels are exact.
func (r Range) Points(steps int) ([]decimal.Decimal, error) {
	if steps < 2 {
		return nil, fmt.Errorf("%w (got %d)", ErrInvalidSteps, steps)
	}
	span := r.Hi.Sub(r.Lo)
	denom := decimal.NewFromInt(int64(steps - 1))
	pts := make([]decimal.Decimal, steps)
	for i := 0; i < steps-1; i++ {
		pts[i] = r.Lo.Add(span.Mul(decimal.NewFromInt(int64(i))).Div(denom))
	}
	pts[steps-1] = r.Hi
	return pts, nil
}

// Config describes one sensitivity sweep.
type Config struct {
	FX           Range
	Shipping     Range
	Steps        int
	TariffPct    decimal.Decimal
	InsurancePct decimal.Decimal

	// MaxSteps bounds Steps; a grid has Steps² cells.
	MaxSteps int
	// Workers bounds concurrent FX rows. Zero means GOMAXPROCS.
	Workers int

	// Calculator evaluates each cell. Nil uses margin.DefaultLimits.
	Calculator *margin.Calculator
}

const (
	DefaultSteps = 11
	MaxSteps     = 101
)

// DefaultConfig sweeps FX over ±10% and shipping over 0–30% in 11 steps each.
func DefaultConfig() Config {
	return Config{
		FX:       Range{Lo: decimal.RequireFromString("-0.10"), Hi: decimal.RequireFromString("0.10")},
		Shipping: Range{Lo: decimal.Zero, Hi: decimal.RequireFromString("0.30")},
		Steps:    DefaultSteps,
		MaxSteps: MaxSteps,
	}
}

func (c Config) validate() error {
	if c.Steps < 2 {
		return fmt.Errorf("%w (got %d)", ErrInvalidSteps, c.Steps)
	}
	limit := c.MaxSteps
	if limit <= 0 {
		limit = MaxSteps
	}
	if c.Steps > limit {
		return fmt.Errorf("%w: %d > %d", ErrTooManySteps, c.Steps, limit)
	}
	return nil
}

// Run evaluates every (fx, shipping) combination. Rows are ordered with FX as
// the outer loop and shipping as the inner loop, both ascending by index. The
// axes in each row are reported in percent.
func Run(importValue, revenue decimal.Decimal, cfg Config) ([]model.GridRow, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	fxPts, err := cfg.FX.Points(cfg.Steps)
	if err != nil {
		return nil, err
	}
	shipPts, err := cfg.Shipping.Points(cfg.Steps)
	if err != nil {
		return nil, err
	}

	calc := cfg.Calculator
	if calc == nil {
		calc, _ = margin.NewCalculator(margin.DefaultLimits)
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	n := len(shipPts)
	rows := make([]model.GridRow, len(fxPts)*n)

	var g errgroup.Group
	g.SetLimit(workers)
	for i, fx := range fxPts {
		i, fx := i, fx // per-iteration copies; go directive is below 1.22
		g.Go(func() error {
			base := i * n
			for j, ship := range shipPts {
				res := calc.Compute(model.ScenarioInput{
					ImportValue:  importValue,
					Revenue:      revenue,
					FXShockPct:   fx,
					ShippingPct:  ship,
					InsurancePct: cfg.InsurancePct,
					TariffPct:    cfg.TariffPct,
				})
				rows[base+j] = model.GridRow{
					FXShockPct:  fx.Mul(hundred),
					ShippingPct: ship.Mul(hundred),
					Profit:      res.Profit,
					MarginPct:   res.MarginPct,
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return rows, nil
}

// Key identifies a sweep by its exact inputs, for result caching.
func Key(importValue, revenue decimal.Decimal, cfg Config) string {
	parts := []string{
		importValue.String(), revenue.String(),
		cfg.FX.Lo.String(), cfg.FX.Hi.String(),
		cfg.Shipping.Lo.String(), cfg.Shipping.Hi.String(),
		fmt.Sprint(cfg.Steps),
		cfg.TariffPct.String(), cfg.InsurancePct.String(),
	}
	if cfg.Calculator != nil {
		l := cfg.Calculator.Limits()
		parts = append(parts, l.MaxCostMultiplier.String(), l.MarginFloorPct.String())
	}
	return "grid:" + strings.Join(parts, ":")
}
