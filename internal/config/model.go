package config

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/atmx/margin-engine/internal/confidence"
	"github.com/atmx/margin-engine/internal/coverage"
	"github.com/atmx/margin-engine/internal/margin"
	"github.com/atmx/margin-engine/internal/risk"
	"github.com/atmx/margin-engine/internal/scenario"
)

// ModelConfig holds the tunable model parameters. Fields absent from the
// YAML file keep their defaults.
type ModelConfig struct {
	Margin struct {
		MaxCostMultiplier float64 `yaml:"max_cost_multiplier"`
		MarginFloorPct    float64 `yaml:"margin_floor_pct"`
	} `yaml:"margin"`

	Risk struct {
		HighBelow     float64 `yaml:"high_below"`
		ModerateBelow float64 `yaml:"moderate_below"`
	} `yaml:"risk"`

	Coverage coverage.Breakpoints `yaml:"coverage"`

	Confidence struct {
		High     float64 `yaml:"high"`
		Partial  float64 `yaml:"partial"`
		Low      float64 `yaml:"low"`
		None     float64 `yaml:"none"`
		Fallback float64 `yaml:"fallback"`
	} `yaml:"confidence"`

	Grid struct {
		FXLo         float64 `yaml:"fx_lo"`
		FXHi         float64 `yaml:"fx_hi"`
		ShippingLo   float64 `yaml:"shipping_lo"`
		ShippingHi   float64 `yaml:"shipping_hi"`
		Steps        int     `yaml:"steps"`
		MaxSteps     int     `yaml:"max_steps"`
		Workers      int     `yaml:"workers"`
		TariffPct    float64 `yaml:"tariff_pct"`
		InsurancePct float64 `yaml:"insurance_pct"`
		CacheEntries int     `yaml:"cache_entries"`
	} `yaml:"grid"`
}

// DefaultModelConfig returns the built-in parameters.
func DefaultModelConfig() ModelConfig {
	var m ModelConfig
	m.Margin.MaxCostMultiplier = 2
	m.Margin.MarginFloorPct = -100
	m.Risk.HighBelow = 5
	m.Risk.ModerateBelow = 10
	m.Coverage = coverage.DefaultBreakpoints
	m.Confidence.High = 0.05
	m.Confidence.Partial = 0.15
	m.Confidence.Low = 0.25
	m.Confidence.None = 0.40
	m.Confidence.Fallback = 0.30
	m.Grid.FXLo = -0.10
	m.Grid.FXHi = 0.10
	m.Grid.ShippingLo = 0
	m.Grid.ShippingHi = 0.30
	m.Grid.Steps = scenario.DefaultSteps
	m.Grid.MaxSteps = scenario.MaxSteps
	m.Grid.CacheEntries = 256
	return m
}

// LoadModelConfig reads a YAML file over the defaults.
func LoadModelConfig(path string) (*ModelConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model config: %w", err)
	}
	m := DefaultModelConfig()
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("parse model config %s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("model config %s: %w", path, err)
	}
	return &m, nil
}

// Validate rejects parameters that would break the model's ordering
// guarantees.
func (m ModelConfig) Validate() error {
	if _, err := margin.NewCalculator(m.MarginLimits()); err != nil {
		return err
	}
	if err := m.RiskThresholds().Validate(); err != nil {
		return err
	}
	if err := m.Coverage.Validate(); err != nil {
		return err
	}
	if err := m.ConfidenceMultipliers().Validate(); err != nil {
		return err
	}
	g := m.Grid
	if g.Steps < 2 || (g.MaxSteps > 0 && g.Steps > g.MaxSteps) {
		return fmt.Errorf("grid: steps must be in [2, %d], got %d", g.MaxSteps, g.Steps)
	}
	if g.FXHi < g.FXLo || g.ShippingHi < g.ShippingLo {
		return fmt.Errorf("grid: range upper bound below lower bound")
	}
	return nil
}

func (m ModelConfig) MarginLimits() margin.Limits {
	return margin.Limits{
		MaxCostMultiplier: decimal.NewFromFloat(m.Margin.MaxCostMultiplier),
		MarginFloorPct:    decimal.NewFromFloat(m.Margin.MarginFloorPct),
	}
}

func (m ModelConfig) RiskThresholds() risk.Thresholds {
	return risk.Thresholds{
		HighBelow:     decimal.NewFromFloat(m.Risk.HighBelow),
		ModerateBelow: decimal.NewFromFloat(m.Risk.ModerateBelow),
	}
}

func (m ModelConfig) ConfidenceMultipliers() confidence.Multipliers {
	return confidence.Multipliers{
		High:     decimal.NewFromFloat(m.Confidence.High),
		Partial:  decimal.NewFromFloat(m.Confidence.Partial),
		Low:      decimal.NewFromFloat(m.Confidence.Low),
		None:     decimal.NewFromFloat(m.Confidence.None),
		Fallback: decimal.NewFromFloat(m.Confidence.Fallback),
	}
}

// GridConfig builds the scenario sweep configuration. The calculator is
// attached by the caller.
func (m ModelConfig) GridConfig() scenario.Config {
	g := m.Grid
	return scenario.Config{
		FX:           scenario.Range{Lo: decimal.NewFromFloat(g.FXLo), Hi: decimal.NewFromFloat(g.FXHi)},
		Shipping:     scenario.Range{Lo: decimal.NewFromFloat(g.ShippingLo), Hi: decimal.NewFromFloat(g.ShippingHi)},
		Steps:        g.Steps,
		TariffPct:    decimal.NewFromFloat(g.TariffPct),
		InsurancePct: decimal.NewFromFloat(g.InsurancePct),
		MaxSteps:     g.MaxSteps,
		Workers:      g.Workers,
	}
}
