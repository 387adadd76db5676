package confidence

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/margin-engine/internal/coverage"
	"github.com/atmx/margin-engine/internal/model"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDec(t *testing.T, want string, got decimal.Decimal, msg string) {
	t.Helper()
	assert.Truef(t, got.Equal(d(want)), "%s: got %s, want %s", msg, got, want)
}

func TestMultiplier(t *testing.T) {
	tests := []struct {
		cls  coverage.Class
		want string
	}{
		{coverage.High, "0.05"},
		{coverage.Partial, "0.15"},
		{coverage.Low, "0.25"},
		{coverage.None, "0.40"},
		{coverage.Unknown, "0.30"},
		{coverage.Class(17), "0.30"},
	}
	for _, tt := range tests {
		assertDec(t, tt.want, Multiplier(tt.cls), tt.cls.String())
	}
}

func TestMultiplier_WeakerCoverageIsWider(t *testing.T) {
	ordered := []coverage.Class{coverage.High, coverage.Partial, coverage.Low, coverage.None}
	for i := 1; i < len(ordered); i++ {
		assert.True(t, Multiplier(ordered[i]).GreaterThanOrEqual(Multiplier(ordered[i-1])),
			"%s should be at least as wide as %s", ordered[i], ordered[i-1])
	}
	require.NoError(t, DefaultMultipliers.Validate())
}

func TestValidate_Rejects(t *testing.T) {
	m := DefaultMultipliers
	m.Partial = d("0.50")
	assert.ErrorIs(t, m.Validate(), ErrInvalidMultipliers)

	m = DefaultMultipliers
	m.High = d("-0.01")
	assert.ErrorIs(t, m.Validate(), ErrInvalidMultipliers)
}

func TestBand_PartialCoverage(t *testing.T) {
	lower, upper := Band(d("100000"), coverage.Partial)
	assertDec(t, "85000", lower, "lower")
	assertDec(t, "115000", upper, "upper")
}

func TestBand_HighCoverage(t *testing.T) {
	lower, upper := Band(d("100000"), coverage.High)
	assertDec(t, "95000", lower, "lower")
	assertDec(t, "105000", upper, "upper")
}

func TestBand_NegativeProfitIsSigned(t *testing.T) {
	lower, upper := Band(d("-200"), coverage.Low)
	assertDec(t, "-150", lower, "lower")
	assertDec(t, "-250", upper, "upper")
}

func TestApplyToGrid(t *testing.T) {
	rows := []model.GridRow{
		{FXShockPct: d("-10"), ShippingPct: d("0"), Profit: d("1000"), MarginPct: decimal.NewNullDecimal(d("20"))},
		{FXShockPct: d("10"), ShippingPct: d("30"), Profit: d("-400"), MarginPct: decimal.NewNullDecimal(d("-8"))},
		{FXShockPct: d("0"), ShippingPct: d("0"), Profit: d("-1000")},
	}

	out := ApplyToGrid(rows, coverage.None)
	require.Len(t, out, 3)

	assertDec(t, "600", out[0].ProfitLower, "row0 profit lower")
	assertDec(t, "1400", out[0].ProfitUpper, "row0 profit upper")
	assertDec(t, "12", out[0].MarginLower.Decimal, "row0 margin lower")
	assertDec(t, "28", out[0].MarginUpper.Decimal, "row0 margin upper")

	// Absolute width keeps lower below upper for losses.
	assertDec(t, "-560", out[1].ProfitLower, "row1 profit lower")
	assertDec(t, "-240", out[1].ProfitUpper, "row1 profit upper")
	assertDec(t, "-11.2", out[1].MarginLower.Decimal, "row1 margin lower")
	assertDec(t, "-4.8", out[1].MarginUpper.Decimal, "row1 margin upper")

	assert.False(t, out[2].MarginLower.Valid)
	assert.False(t, out[2].MarginUpper.Valid)
	assertDec(t, "-1400", out[2].ProfitLower, "row2 profit lower")

	// Grid row values pass through unchanged.
	assert.Equal(t, rows[1], out[1].GridRow)
}

func TestApplyToGrid_Empty(t *testing.T) {
	assert.Empty(t, ApplyToGrid(nil, coverage.High))
}
