// Package margin computes landed cost, profit and margin for a single import
// scenario.
//
// FX, shipping, insurance and tariff are flat percentage levers. Shipping,
// insurance and tariff apply to the FX-adjusted goods cost, so an FX shock
// compounds through every cost line.
//
// All monetary values use shopspring/decimal. Arithmetic runs at full
// precision; results are rounded to MoneyScale only on return.
package margin

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/atmx/margin-engine/internal/model"
)

var (
	// ErrInvalidCostMultiplier is returned when the landed cost cap
	// multiplier is not positive.
	ErrInvalidCostMultiplier = errors.New("margin: max cost multiplier must be positive")

	// MoneyScale is the number of decimal places for returned amounts.
	MoneyScale int32 = 2

	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// Limits bounds pathological input combinations.
type Limits struct {
	// MaxCostMultiplier caps landed cost at MaxCostMultiplier × import value.
	MaxCostMultiplier decimal.Decimal

	// MarginFloorPct is the lowest reported margin percentage.
	MarginFloorPct decimal.Decimal
}

// DefaultLimits caps landed cost at 200% of import value and margin at -100%.
var DefaultLimits = Limits{
	MaxCostMultiplier: decimal.NewFromInt(2),
	MarginFloorPct:    decimal.NewFromInt(-100),
}

// Calculator computes scenario results. It is stateless apart from its limits.
type Calculator struct {
	limits Limits
}

// NewCalculator creates a Calculator with the given limits.
func NewCalculator(limits Limits) (*Calculator, error) {
	if limits.MaxCostMultiplier.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidCostMultiplier
	}
	return &Calculator{limits: limits}, nil
}

// Limits returns the calculator's limits.
func (c *Calculator) Limits() Limits {
	return c.limits
}

var defaultCalculator = &Calculator{limits: DefaultLimits}

// Compute runs the calculation with DefaultLimits.
func Compute(in model.ScenarioInput) model.ScenarioResult {
	return defaultCalculator.Compute(in)
}

// Compute calculates the landed cost breakdown:
//
//	goods  = importValue × (1 + fx)
//	landed = min(goods × (1 + shipping + insurance + tariff), cap × importValue)
//	profit = max(revenue − landed, −importValue)
//	margin = max(profit / revenue × 100, floor)   only when revenue > 0
//
// There are no error conditions; every numeric input yields a result.
func (c *Calculator) Compute(in model.ScenarioInput) model.ScenarioResult {
	goods := in.ImportValue.Mul(one.Add(in.FXShockPct))

	shipping := goods.Mul(in.ShippingPct)
	insurance := goods.Mul(in.InsurancePct)
	tariff := goods.Mul(in.TariffPct)

	landed := goods.Add(shipping).Add(insurance).Add(tariff)
	landed = decimal.Min(landed, in.ImportValue.Mul(c.limits.MaxCostMultiplier))

	// Worst case modelled is losing the entire import value.
	profit := in.Revenue.Sub(landed)
	profit = decimal.Max(profit, in.ImportValue.Neg())

	var marginPct decimal.NullDecimal
	if in.Revenue.IsPositive() {
		m := profit.Mul(hundred).Div(in.Revenue)
		m = decimal.Max(m, c.limits.MarginFloorPct)
		marginPct = decimal.NewNullDecimal(m.Round(MoneyScale))
	}

	return model.ScenarioResult{
		GoodsCost:     goods.Round(MoneyScale),
		ShippingCost:  shipping.Round(MoneyScale),
		InsuranceCost: insurance.Round(MoneyScale),
		TariffCost:    tariff.Round(MoneyScale),
		LandedCost:    landed.Round(MoneyScale),
		Profit:        profit.Round(MoneyScale),
		MarginPct:     marginPct,
	}
}
