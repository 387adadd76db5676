// Package confidence widens scenario outputs into bands whose width depends on
// how well official statistics cover the commodity.
package confidence

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/atmx/margin-engine/internal/coverage"
	"github.com/atmx/margin-engine/internal/model"
)

var ErrInvalidMultipliers = errors.New("confidence: invalid multipliers")

// Multipliers holds the band half-width per coverage class, as a fraction.
// Fallback applies to any class outside the four known ones.
type Multipliers struct {
	High     decimal.Decimal `json:"high" yaml:"high"`
	Partial  decimal.Decimal `json:"partial" yaml:"partial"`
	Low      decimal.Decimal `json:"low" yaml:"low"`
	None     decimal.Decimal `json:"none" yaml:"none"`
	Fallback decimal.Decimal `json:"fallback" yaml:"fallback"`
}

var DefaultMultipliers = Multipliers{
	High:     decimal.RequireFromString("0.05"),
	Partial:  decimal.RequireFromString("0.15"),
	Low:      decimal.RequireFromString("0.25"),
	None:     decimal.RequireFromString("0.40"),
	Fallback: decimal.RequireFromString("0.30"),
}

// Validate requires None >= Low >= Partial >= High >= 0 and a non-negative
// fallback, so weaker coverage never yields a narrower band.
func (m Multipliers) Validate() error {
	switch {
	case m.High.IsNegative() || m.Fallback.IsNegative():
		return fmt.Errorf("%w: negative multiplier", ErrInvalidMultipliers)
	case m.Partial.LessThan(m.High), m.Low.LessThan(m.Partial), m.None.LessThan(m.Low):
		return fmt.Errorf("%w: must satisfy none >= low >= partial >= high (got %s/%s/%s/%s)",
			ErrInvalidMultipliers, m.None, m.Low, m.Partial, m.High)
	}
	return nil
}

// For returns the multiplier for c.
func (m Multipliers) For(c coverage.Class) decimal.Decimal {
	switch c {
	case coverage.High:
		return m.High
	case coverage.Partial:
		return m.Partial
	case coverage.Low:
		return m.Low
	case coverage.None:
		return m.None
	default:
		return m.Fallback
	}
}

// Band returns profit×(1−m) and profit×(1+m). For a negative profit the
// "lower" value is the larger number.
func (m Multipliers) Band(profit decimal.Decimal, c coverage.Class) (lower, upper decimal.Decimal) {
	mult := m.For(c)
	one := decimal.NewFromInt(1)
	lower = profit.Mul(one.Sub(mult)).Round(2)
	upper = profit.Mul(one.Add(mult)).Round(2)
	return lower, upper
}

// ApplyToGrid annotates every grid row with value ∓ |value|×m for profit and
// margin, so lower <= value <= upper regardless of sign. Rows with an
// undefined margin get undefined margin bounds.
func (m Multipliers) ApplyToGrid(rows []model.GridRow, c coverage.Class) []model.BandedRow {
	mult := m.For(c)
	out := make([]model.BandedRow, len(rows))
	for i, r := range rows {
		b := model.BandedRow{GridRow: r}
		b.ProfitLower, b.ProfitUpper = spread(r.Profit, mult)
		if r.MarginPct.Valid {
			lo, hi := spread(r.MarginPct.Decimal, mult)
			b.MarginLower = decimal.NewNullDecimal(lo)
			b.MarginUpper = decimal.NewNullDecimal(hi)
		}
		out[i] = b
	}
	return out
}

func spread(v, mult decimal.Decimal) (lo, hi decimal.Decimal) {
	w := v.Abs().Mul(mult)
	return v.Sub(w).Round(2), v.Add(w).Round(2)
}

// Multiplier returns the default multiplier for c.
func Multiplier(c coverage.Class) decimal.Decimal {
	return DefaultMultipliers.For(c)
}

// Band applies DefaultMultipliers.
func Band(profit decimal.Decimal, c coverage.Class) (lower, upper decimal.Decimal) {
	return DefaultMultipliers.Band(profit, c)
}

// ApplyToGrid applies DefaultMultipliers.
func ApplyToGrid(rows []model.GridRow, c coverage.Class) []model.BandedRow {
	return DefaultMultipliers.ApplyToGrid(rows, c)
}
