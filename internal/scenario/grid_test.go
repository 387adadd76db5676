package scenario

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/margin-engine/internal/margin"
	"github.com/atmx/margin-engine/internal/model"
	"github.com/atmx/margin-engine/internal/risk"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func nullEq(a, b decimal.NullDecimal) bool {
	return a.Valid == b.Valid && (!a.Valid || a.Decimal.Equal(b.Decimal))
}

func inputFor(iv, rev, fx, ship decimal.Decimal, cfg Config) model.ScenarioInput {
	return model.ScenarioInput{
		ImportValue:  iv,
		Revenue:      rev,
		FXShockPct:   fx,
		ShippingPct:  ship,
		InsurancePct: cfg.InsurancePct,
		TariffPct:    cfg.TariffPct,
	}
}

func TestPoints(t *testing.T) {
	pts, err := Range{Lo: d("-0.10"), Hi: d("0.10")}.Points(11)
	require.NoError(t, err)

	want := []string{"-0.1", "-0.08", "-0.06", "-0.04", "-0.02", "0", "0.02", "0.04", "0.06", "0.08", "0.1"}
	require.Len(t, pts, len(want))
	for i, w := range want {
		assert.True(t, pts[i].Equal(d(w)), "point %d = %s, want %s", i, pts[i], w)
	}
}

func TestPoints_RejectsFewerThanTwo(t *testing.T) {
	for _, steps := range []int{-1, 0, 1} {
		_, err := Range{Lo: d("0"), Hi: d("1")}.Points(steps)
		assert.ErrorIs(t, err, ErrInvalidSteps, "steps=%d", steps)
	}
}

func TestPoints_EndpointExactForUnevenDivision(t *testing.T) {
	pts, err := Range{Lo: d("0"), Hi: d("0.30")}.Points(7)
	require.NoError(t, err)

	assert.True(t, pts[6].Equal(d("0.30")), "last point = %s", pts[6])
	for i := 1; i < len(pts); i++ {
		assert.True(t, pts[i].GreaterThan(pts[i-1]), "points not ascending at %d", i)
	}
}

func TestRun_DefaultGrid(t *testing.T) {
	rows, err := Run(d("1000000"), d("1350000"), DefaultConfig())
	require.NoError(t, err)
	require.Len(t, rows, 121)

	fxSeen := map[string]bool{}
	shipSeen := map[string]bool{}
	for i, r := range rows {
		fxWant := decimal.NewFromInt(int64(-10 + 2*(i/11)))
		shipWant := decimal.NewFromInt(int64(3 * (i % 11)))
		assert.True(t, r.FXShockPct.Equal(fxWant), "row %d fx = %s, want %s", i, r.FXShockPct, fxWant)
		assert.True(t, r.ShippingPct.Equal(shipWant), "row %d shipping = %s, want %s", i, r.ShippingPct, shipWant)
		fxSeen[r.FXShockPct.String()] = true
		shipSeen[r.ShippingPct.String()] = true
	}
	assert.Len(t, fxSeen, 11)
	assert.Len(t, shipSeen, 11)

	// Strongest GBP, free shipping.
	first := rows[0]
	assert.True(t, first.Profit.Equal(d("450000")), "first profit = %s", first.Profit)
	assert.True(t, first.MarginPct.Decimal.Equal(d("33.33")), "first margin = %s", first.MarginPct.Decimal)

	// Weakest GBP, 30% shipping.
	last := rows[120]
	assert.True(t, last.Profit.Equal(d("-80000")), "last profit = %s", last.Profit)
	assert.True(t, last.MarginPct.Decimal.Equal(d("-5.93")), "last margin = %s", last.MarginPct.Decimal)
}

func TestRun_MatchesSingleScenario(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TariffPct = d("0.02")
	cfg.InsurancePct = d("0.01")
	rows, err := Run(d("250000"), d("300000"), cfg)
	require.NoError(t, err)

	fxPts, _ := cfg.FX.Points(cfg.Steps)
	shipPts, _ := cfg.Shipping.Points(cfg.Steps)
	for i, fx := range fxPts {
		for j, ship := range shipPts {
			res := margin.Compute(inputFor(d("250000"), d("300000"), fx, ship, cfg))
			row := rows[i*len(shipPts)+j]
			assert.True(t, row.Profit.Equal(res.Profit), "(%s,%s) profit = %s, want %s", fx, ship, row.Profit, res.Profit)
			assert.True(t, nullEq(row.MarginPct, res.MarginPct), "(%s,%s) margin = %v, want %v", fx, ship, row.MarginPct, res.MarginPct)
		}
	}
}

func TestRun_WorkerCountDoesNotChangeOutput(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Steps = 21
	cfg.Workers = 1
	seq, err := Run(d("80000"), d("95000"), cfg)
	require.NoError(t, err)

	cfg.Workers = 8
	par, err := Run(d("80000"), d("95000"), cfg)
	require.NoError(t, err)

	require.Len(t, par, len(seq))
	for i := range seq {
		require.True(t, seq[i].FXShockPct.Equal(par[i].FXShockPct) &&
			seq[i].ShippingPct.Equal(par[i].ShippingPct) &&
			seq[i].Profit.Equal(par[i].Profit), "row %d differs: %+v vs %+v", i, seq[i], par[i])
	}
}

func TestRun_ZeroRevenueLeavesMarginUndefined(t *testing.T) {
	rows, err := Run(d("1000"), d("0"), DefaultConfig())
	require.NoError(t, err)
	for i, r := range rows {
		require.False(t, r.MarginPct.Valid, "row %d has margin %s", i, r.MarginPct.Decimal)
	}
}

func TestRun_StepValidation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Steps = 1
	_, err := Run(d("1"), d("1"), cfg)
	assert.ErrorIs(t, err, ErrInvalidSteps)

	cfg.Steps = MaxSteps + 1
	_, err = Run(d("1"), d("1"), cfg)
	assert.ErrorIs(t, err, ErrTooManySteps)

	cfg.Steps = 2
	rows, err := Run(d("1"), d("1"), cfg)
	require.NoError(t, err)
	assert.Len(t, rows, 4)
}

func TestRun_CustomCalculator(t *testing.T) {
	calc, err := margin.NewCalculator(margin.Limits{
		MaxCostMultiplier: d("1.05"),
		MarginFloorPct:    d("-100"),
	})
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Calculator = calc
	rows, err := Run(d("1000"), d("2000"), cfg)
	require.NoError(t, err)

	// Landed cost cap of 1050 keeps profit at or above 950 everywhere.
	for _, r := range rows {
		require.True(t, r.Profit.GreaterThanOrEqual(d("950")), "profit %s below capped minimum", r.Profit)
	}
	assert.NotEqual(t, Key(d("1000"), d("2000"), DefaultConfig()), Key(d("1000"), d("2000"), cfg),
		"cache key must include calculator limits")
}

func TestKey(t *testing.T) {
	a := Key(d("1000"), d("1200"), DefaultConfig())
	assert.Equal(t, a, Key(d("1000.00"), d("1200"), DefaultConfig()), "scale must not change the key")

	cfg := DefaultConfig()
	cfg.Steps = 5
	assert.NotEqual(t, a, Key(d("1000"), d("1200"), cfg))
}

func TestSummarize(t *testing.T) {
	rows, err := Run(d("1000000"), d("1350000"), DefaultConfig())
	require.NoError(t, err)

	s := Summarize(rows, risk.DefaultThresholds)
	assert.Equal(t, 121, s.Scenarios)
	assert.True(t, s.MaxProfit.Equal(d("450000")), "max profit = %s", s.MaxProfit)
	assert.True(t, s.MinProfit.Equal(d("-80000")), "min profit = %s", s.MinProfit)
	require.True(t, s.MaxMarginPct.Valid)
	assert.True(t, s.MaxMarginPct.Decimal.Equal(d("33.33")))
	assert.Greater(t, s.LossScenarios, 0)
	assert.Less(t, s.LossScenarios, 121)
	assert.Greater(t, s.HighRiskShare, 0.0)
	assert.Less(t, s.HighRiskShare, 1.0)
	assert.True(t, s.MeanProfit.GreaterThanOrEqual(s.MinProfit) && s.MeanProfit.LessThanOrEqual(s.MaxProfit),
		"mean %s outside range", s.MeanProfit)
	assert.True(t, s.ProfitStdDev.IsPositive())
}

func TestSummarize_ExactExtremesAndMean(t *testing.T) {
	rows := []model.GridRow{
		{Profit: d("0.10")},
		{Profit: d("0.20")},
		{Profit: d("0.30")},
	}
	s := Summarize(rows, risk.DefaultThresholds)
	assert.True(t, s.MinProfit.Equal(d("0.1")))
	assert.True(t, s.MaxProfit.Equal(d("0.3")))
	assert.True(t, s.MeanProfit.Equal(d("0.2")), "mean = %s", s.MeanProfit)
	assert.True(t, s.ProfitStdDev.Equal(d("0.1")), "std dev = %s", s.ProfitStdDev)
}

func TestSummarize_HugeAmounts(t *testing.T) {
	rows, err := Run(d("1e200"), d("3e200"), DefaultConfig())
	require.NoError(t, err)

	var s Summary
	require.NotPanics(t, func() { s = Summarize(rows, risk.DefaultThresholds) })
	assert.True(t, s.MinProfit.LessThan(s.MaxProfit))
	assert.True(t, s.MeanProfit.GreaterThan(s.MinProfit) && s.MeanProfit.LessThan(s.MaxProfit))
	assert.True(t, s.ProfitStdDev.GreaterThan(d("1e198")), "std dev = %s", s.ProfitStdDev)
}

func TestSummarize_UndefinedMargins(t *testing.T) {
	rows, err := Run(d("1000"), d("0"), DefaultConfig())
	require.NoError(t, err)

	s := Summarize(rows, risk.DefaultThresholds)
	assert.False(t, s.MinMarginPct.Valid)
	assert.False(t, s.MaxMarginPct.Valid)
	assert.Equal(t, 1.0, s.HighRiskShare)

	assert.Equal(t, Summary{}, Summarize(nil, risk.DefaultThresholds))
}

func TestPivot(t *testing.T) {
	rows, err := Run(d("1000000"), d("1350000"), DefaultConfig())
	require.NoError(t, err)

	h := Pivot(rows)
	require.Len(t, h.FX, 11)
	require.Len(t, h.Shipping, 11)
	require.Len(t, h.Margin, 11)
	assert.True(t, h.FX[0].Equal(d("-10")))
	assert.True(t, h.Shipping[10].Equal(d("30")))
	for i := range h.FX {
		for j := range h.Shipping {
			require.True(t, nullEq(h.Margin[i][j], rows[i*11+j].MarginPct), "cell (%d,%d) mismatch", i, j)
		}
	}
}
