package risk

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/margin-engine/internal/coverage"
)

func margin(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func TestLabel(t *testing.T) {
	tests := []struct {
		name   string
		margin decimal.NullDecimal
		want   Tier
	}{
		{"undefined", decimal.NullDecimal{}, High},
		{"negative", margin("-100"), High},
		{"just below 5", margin("4.99"), High},
		{"exactly 5", margin("5"), Moderate},
		{"just below 10", margin("9.99"), Moderate},
		{"exactly 10", margin("10"), Low},
		{"healthy", margin("20"), Low},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Label(tt.margin))
		})
	}
}

func TestAdjust_Examples(t *testing.T) {
	// Healthy margin on a commodity with no statistics gets one notch worse.
	assert.Equal(t, Moderate, Adjust(Label(margin("20")), coverage.None))

	// Moderate margin on well-covered commodity stays put.
	assert.Equal(t, Moderate, Adjust(Label(margin("7")), coverage.High))
}

func TestAdjust_Table(t *testing.T) {
	tests := []struct {
		tier Tier
		cls  coverage.Class
		want Tier
	}{
		{Low, coverage.None, Moderate},
		{Low, coverage.Low, Moderate},
		{Low, coverage.Partial, Low},
		{Low, coverage.High, Low},
		{Moderate, coverage.None, High},
		{Moderate, coverage.Low, High},
		{Moderate, coverage.Partial, Moderate},
		{High, coverage.None, High},
		{High, coverage.High, High},
		{Low, coverage.Unknown, Moderate},
		{Moderate, coverage.Class(42), High},
		{Unknown, coverage.High, High},
		{Tier(9), coverage.Partial, High},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Adjust(tt.tier, tt.cls), "Adjust(%s, %s)", tt.tier, tt.cls)
	}
}

func TestAdjust_NeverDowngrades(t *testing.T) {
	classes := []coverage.Class{coverage.Unknown, coverage.None, coverage.Low, coverage.Partial, coverage.High, coverage.Class(-1)}
	for _, tier := range []Tier{Low, Moderate, High} {
		for _, c := range classes {
			got := Adjust(tier, c)
			assert.GreaterOrEqual(t, got, tier, "Adjust(%s, %s) lowered the tier", tier, c)
			assert.True(t, got.Valid(), "Adjust(%s, %s) = %s, not a valid tier", tier, c, got)
			if !c.Reliable() && tier != High {
				assert.True(t, Escalated(tier, got), "Adjust(%s, %s) did not escalate on weak coverage", tier, c)
			}
		}
	}
}

func TestThresholds_Custom(t *testing.T) {
	th := Thresholds{HighBelow: decimal.NewFromInt(0), ModerateBelow: decimal.NewFromInt(15)}
	require.NoError(t, th.Validate())
	assert.Equal(t, Moderate, th.Label(margin("12")))
	assert.Equal(t, High, th.Label(margin("-0.01")))

	bad := Thresholds{HighBelow: decimal.NewFromInt(10), ModerateBelow: decimal.NewFromInt(5)}
	assert.Error(t, bad.Validate(), "inverted thresholds")
}

func TestTier_Text(t *testing.T) {
	data, err := json.Marshal(struct {
		T Tier `json:"t"`
	}{Moderate})
	require.NoError(t, err)
	assert.JSONEq(t, `{"t":"MODERATE"}`, string(data))

	var got Tier
	require.NoError(t, got.UnmarshalText([]byte("high")))
	assert.Equal(t, High, got)
	assert.Error(t, got.UnmarshalText([]byte("extreme")))
}
