package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/margin-engine/internal/confidence"
	"github.com/atmx/margin-engine/internal/coverage"
	"github.com/atmx/margin-engine/internal/margin"
	"github.com/atmx/margin-engine/internal/risk"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PORT", "LOG_LEVEL", "LOG_PRETTY", "CORS_ORIGINS", "DATABASE_URL", "SQLITE_PATH",
		"REDIS_URL", "CACHE_TTL", "COVERAGE_SOURCE", "COVERAGE_REFRESH_CRON", "MODEL_CONFIG",
	} {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.LogPretty)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, DefaultModelConfig(), cfg.Model)
}

func TestLoad_FromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_PRETTY", "true")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("CACHE_TTL", "2m")
	t.Setenv("COVERAGE_SOURCE", "s3://stats/coverage.csv")
	t.Setenv("COVERAGE_REFRESH_CRON", "0 6 * * 1")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.True(t, cfg.LogPretty)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, 2*time.Minute, cfg.CacheTTL)
	assert.Equal(t, "0 6 * * 1", cfg.CoverageRefreshCron)
}

func TestLoad_InvalidCron(t *testing.T) {
	clearEnv(t)
	t.Setenv("COVERAGE_SOURCE", "coverage.csv")
	t.Setenv("COVERAGE_REFRESH_CRON", "every monday")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_CronWithoutSource(t *testing.T) {
	clearEnv(t)
	t.Setenv("COVERAGE_REFRESH_CRON", "@daily")
	_, err := Load()
	assert.ErrorContains(t, err, "COVERAGE_SOURCE")
}

func TestLoad_ModelConfigOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("MODEL_CONFIG", writeFile(t, `
risk:
  high_below: 3
coverage:
  low_max: 50
confidence:
  fallback: 0.5
grid:
  steps: 21
  tariff_pct: 0.04
`))

	cfg, err := Load()
	require.NoError(t, err)

	th := cfg.Model.RiskThresholds()
	assert.True(t, th.HighBelow.Equal(decimal.NewFromInt(3)))
	assert.True(t, th.ModerateBelow.Equal(decimal.NewFromInt(10)), "unset keys keep defaults")

	assert.Equal(t, coverage.Breakpoints{LowMax: 50, PartialMax: 80}, cfg.Model.Coverage)
	assert.True(t, cfg.Model.ConfidenceMultipliers().Fallback.Equal(decimal.RequireFromString("0.5")))

	grid := cfg.Model.GridConfig()
	assert.Equal(t, 21, grid.Steps)
	assert.True(t, grid.TariffPct.Equal(decimal.RequireFromString("0.04")))
	assert.True(t, grid.FX.Lo.Equal(decimal.RequireFromString("-0.1")))
}

func TestModelConfig_DefaultsMatchPackages(t *testing.T) {
	m := DefaultModelConfig()
	require.NoError(t, m.Validate())

	limits := m.MarginLimits()
	assert.True(t, limits.MaxCostMultiplier.Equal(margin.DefaultLimits.MaxCostMultiplier))
	assert.True(t, limits.MarginFloorPct.Equal(margin.DefaultLimits.MarginFloorPct))

	th := m.RiskThresholds()
	assert.True(t, th.HighBelow.Equal(risk.DefaultThresholds.HighBelow))
	assert.True(t, th.ModerateBelow.Equal(risk.DefaultThresholds.ModerateBelow))

	mult := m.ConfidenceMultipliers()
	for _, c := range []coverage.Class{coverage.High, coverage.Partial, coverage.Low, coverage.None, coverage.Unknown} {
		assert.True(t, mult.For(c).Equal(confidence.DefaultMultipliers.For(c)), c.String())
	}
}

func TestLoadModelConfig_Invalid(t *testing.T) {
	tests := map[string]string{
		"zero multiplier":     "margin:\n  max_cost_multiplier: 0\n",
		"inverted thresholds": "risk:\n  high_below: 12\n",
		"bad breakpoints":     "coverage:\n  low_max: 90\n",
		"narrow none band":    "confidence:\n  none: 0.1\n",
		"one step":            "grid:\n  steps: 1\n",
		"inverted fx":         "grid:\n  fx_lo: 0.2\n",
		"not yaml":            "risk: [",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadModelConfig(writeFile(t, body))
			assert.Error(t, err)
		})
	}

	_, err := LoadModelConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
