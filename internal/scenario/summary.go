package scenario

import (
	"math"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"github.com/atmx/margin-engine/internal/model"
	"github.com/atmx/margin-engine/internal/risk"
)

// Summary condenses a grid into headline figures, rounded to pence.
type Summary struct {
	Scenarios     int                 `json:"scenarios"`
	MinProfit     decimal.Decimal     `json:"min_profit"`
	MaxProfit     decimal.Decimal     `json:"max_profit"`
	MeanProfit    decimal.Decimal     `json:"mean_profit"`
	ProfitStdDev  decimal.Decimal     `json:"profit_std_dev"`
	MinMarginPct  decimal.NullDecimal `json:"min_margin_pct"`
	MaxMarginPct  decimal.NullDecimal `json:"max_margin_pct"`
	LossScenarios int                 `json:"loss_scenarios"`
	// HighRiskShare is the fraction of cells whose margin alone labels HIGH.
	HighRiskShare float64 `json:"high_risk_share"`
}

// Summarize computes a Summary using th to decide which cells are high risk.
// Extremes and the mean are exact; only the standard deviation goes through
// float64, on profits scaled into [-1, 1] so large amounts cannot overflow.
func Summarize(rows []model.GridRow, th risk.Thresholds) Summary {
	s := Summary{Scenarios: len(rows)}
	if len(rows) == 0 {
		return s
	}

	profits := make([]decimal.Decimal, len(rows))
	var margins []decimal.Decimal
	high := 0
	for i, r := range rows {
		profits[i] = r.Profit
		if r.Profit.IsNegative() {
			s.LossScenarios++
		}
		if r.MarginPct.Valid {
			margins = append(margins, r.MarginPct.Decimal)
		}
		if th.Label(r.MarginPct) == risk.High {
			high++
		}
	}

	s.MinProfit = decimal.Min(profits[0], profits[1:]...).Round(2)
	s.MaxProfit = decimal.Max(profits[0], profits[1:]...).Round(2)
	s.MeanProfit = decimal.Avg(profits[0], profits[1:]...).Round(2)
	s.ProfitStdDev = stdDev(profits).Round(2)
	if len(margins) > 0 {
		s.MinMarginPct = decimal.NewNullDecimal(decimal.Min(margins[0], margins[1:]...).Round(2))
		s.MaxMarginPct = decimal.NewNullDecimal(decimal.Max(margins[0], margins[1:]...).Round(2))
	}
	s.HighRiskShare = float64(high) / float64(len(rows))
	return s
}

// stdDev returns the sample standard deviation, or zero when it cannot be
// represented.
func stdDev(vals []decimal.Decimal) decimal.Decimal {
	if len(vals) < 2 {
		return decimal.Zero
	}
	scale := decimal.Zero
	for _, v := range vals {
		scale = decimal.Max(scale, v.Abs())
	}
	if scale.IsZero() {
		return decimal.Zero
	}

	scaled := make([]float64, len(vals))
	for i, v := range vals {
		scaled[i] = v.Div(scale).InexactFloat64()
	}
	sd := stat.StdDev(scaled, nil)
	if math.IsNaN(sd) || math.IsInf(sd, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(sd).Mul(scale)
}

// Heatmap is the grid pivoted into a matrix: Margin[i][j] is the margin at
// FX[i] and Shipping[j].
type Heatmap struct {
	FX       []decimal.Decimal       `json:"fx_shock_pct"`
	Shipping []decimal.Decimal       `json:"shipping_pct"`
	Margin   [][]decimal.NullDecimal `json:"margin_pct"`
}

// Pivot builds a Heatmap from rows in Run order. Axis values keep their
// first-seen order.
func Pivot(rows []model.GridRow) Heatmap {
	var h Heatmap
	fxIdx := map[string]int{}
	shipIdx := map[string]int{}
	for _, r := range rows {
		if _, ok := fxIdx[r.FXShockPct.String()]; !ok {
			fxIdx[r.FXShockPct.String()] = len(h.FX)
			h.FX = append(h.FX, r.FXShockPct)
		}
		if _, ok := shipIdx[r.ShippingPct.String()]; !ok {
			shipIdx[r.ShippingPct.String()] = len(h.Shipping)
			h.Shipping = append(h.Shipping, r.ShippingPct)
		}
	}

	h.Margin = make([][]decimal.NullDecimal, len(h.FX))
	for i := range h.Margin {
		h.Margin[i] = make([]decimal.NullDecimal, len(h.Shipping))
	}
	for _, r := range rows {
		h.Margin[fxIdx[r.FXShockPct.String()]][shipIdx[r.ShippingPct.String()]] = r.MarginPct
	}
	return h
}
