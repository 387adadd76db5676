// Package model defines the value types shared across the margin engine.
// Money is shopspring/decimal throughout; float64 is kept for coverage
// percentages and summary statistics.
package model

import (
	"github.com/shopspring/decimal"
)

// ScenarioInput is one set of financial assumptions for an import.
// Percent fields are fractions: 0.05 means 5%.
type ScenarioInput struct {
	ImportValue  decimal.Decimal `json:"import_value"`
	Revenue      decimal.Decimal `json:"revenue"`
	FXShockPct   decimal.Decimal `json:"fx_shock_pct"` // +ve = weaker GBP
	ShippingPct  decimal.Decimal `json:"shipping_pct"`
	InsurancePct decimal.Decimal `json:"insurance_pct"`
	TariffPct    decimal.Decimal `json:"tariff_pct"`
}

// ScenarioResult is the landed-cost breakdown for one ScenarioInput.
// Values are rounded to two decimal places.
type ScenarioResult struct {
	GoodsCost     decimal.Decimal     `json:"goods_cost"`
	ShippingCost  decimal.Decimal     `json:"shipping_cost"`
	InsuranceCost decimal.Decimal     `json:"insurance_cost"`
	TariffCost    decimal.Decimal     `json:"tariff_cost"`
	LandedCost    decimal.Decimal     `json:"landed_cost"`
	Profit        decimal.Decimal     `json:"profit"`
	MarginPct     decimal.NullDecimal `json:"margin_pct"` // invalid when revenue <= 0
}

// DisplayMarginPct returns the margin, or zero when it is undefined.
// Only for presentation: risk classification must use MarginPct.
func (r ScenarioResult) DisplayMarginPct() decimal.Decimal {
	if !r.MarginPct.Valid {
		return decimal.Zero
	}
	return r.MarginPct.Decimal
}

// GridRow is one cell of the FX × shipping sensitivity surface.
// The two axes are in percent (×100), unlike ScenarioInput.
type GridRow struct {
	FXShockPct  decimal.Decimal     `json:"fx_shock_pct"`
	ShippingPct decimal.Decimal     `json:"shipping_pct"`
	Profit      decimal.Decimal     `json:"profit"`
	MarginPct   decimal.NullDecimal `json:"margin_pct"`
}

// BandedRow is a GridRow widened by a coverage-derived uncertainty band.
type BandedRow struct {
	GridRow
	ProfitLower decimal.Decimal     `json:"profit_lower"`
	ProfitUpper decimal.Decimal     `json:"profit_upper"`
	MarginLower decimal.NullDecimal `json:"margin_lower"`
	MarginUpper decimal.NullDecimal `json:"margin_upper"`
}
