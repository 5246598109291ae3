package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
environment: test
store:
  driver: sqlite
  sqlite:
    path: data/test.db
marketdata:
  symbols: [AMZN, META]
  timeframe: 1h
  history_bars: 250
engine:
  time_delta_mode: additive
  time_delta_increment: 1.0
  initial_score: 100.0
  suggestion_limit: 5
  profit_threshold_1: 0.02
  profit_threshold_2: 0.05
  profit_multiplier_1: 1.0
  profit_multiplier_2: 2.0
  loss_threshold_1: 0.02
  loss_threshold_2: 0.05
  loss_multiplier_1: 1.0
  loss_multiplier_2: 2.0
  sim_initial_cash: 10000.0
  sim_trade_fraction: 0.1
  rank_coefficients: [1.0, 0.8, 0.5]
portfolio:
  liquidity_limit: 1000.0
  asset_allocation_limit: 0.25
  stop_loss: 0.03
  take_profit: 0.06
  base_order_value: 1000.0
  score_norm: 5.0
  lot_step: 0.0001
scheduler:
  enabled: true
  cron: "0 */15 * * * *"
broker:
  mode: paper
  initial_cash: 10000.0
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_ParsesYAMLFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Environment)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, []string{"AMZN", "META"}, cfg.MarketData.Symbols)
	assert.Equal(t, "additive", cfg.Engine.TimeDeltaMode)
	assert.Equal(t, []float64{1.0, 0.8, 0.5}, cfg.Engine.RankCoefficients)
	assert.Equal(t, 0.25, cfg.Portfolio.AssetAllocationLimit)
	assert.Equal(t, "0 */15 * * * *", cfg.Scheduler.Cron)
	assert.Equal(t, "paper", cfg.Broker.Mode)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_MalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "environment: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"missing environment", func(c *Config) { c.Environment = "" }},
		{"unknown store driver", func(c *Config) { c.Store.Driver = "postgres" }},
		{"unknown intake type", func(c *Config) { c.Intake.Type = "rabbitmq" }},
		{"empty symbol universe", func(c *Config) { c.MarketData.Symbols = nil }},
		{"unknown broker mode", func(c *Config) { c.Broker.Mode = "margin" }},
		{"unknown delta mode", func(c *Config) { c.Engine.TimeDeltaMode = "quadratic" }},
		{"zero increment in additive mode", func(c *Config) { c.Engine.TimeDeltaIncrement = 0 }},
		{"thresholds out of order", func(c *Config) { c.Engine.ProfitThreshold2 = c.Engine.ProfitThreshold1 }},
		{"negative loss threshold", func(c *Config) { c.Engine.LossThreshold1 = -0.01 }},
		{"trade fraction above one", func(c *Config) { c.Engine.SimTradeFraction = 1.5 }},
		{"increasing rank coefficients", func(c *Config) { c.Engine.RankCoefficients = []float64{0.5, 0.8} }},
		{"coefficient above one", func(c *Config) { c.Engine.RankCoefficients = []float64{1.2} }},
		{"zero suggestion limit", func(c *Config) { c.Engine.SuggestionLimit = 0 }},
		{"allocation limit above one", func(c *Config) { c.Portfolio.AssetAllocationLimit = 1.5 }},
		{"zero stop loss", func(c *Config) { c.Portfolio.StopLoss = 0 }},
		{"zero base order value", func(c *Config) { c.Portfolio.BaseOrderValue = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, validYAML))
			require.NoError(t, err)

			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_MultiplicativeModeNeedsGrowingFactor(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	cfg.Engine.TimeDeltaMode = "multiplicative"
	cfg.Engine.TimeDeltaMultiplier = 1.1
	require.NoError(t, cfg.Validate())

	// multiplier*loss_multiplier_1 = 0.55 would shrink a correct call.
	cfg.Engine.LossMultiplier1 = 0.5
	assert.Error(t, cfg.Validate())
}

func TestLoadWithEnv_EnvironmentOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("STORE_DRIVER", "redis")
	t.Setenv("REDIS_ADDR", "redis.internal:6380")
	t.Setenv("SYMBOLS", "INTC,AMD,QCOM")

	cfg, err := LoadWithEnv(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "redis", cfg.Store.Driver)
	assert.Equal(t, "redis.internal:6380", cfg.Store.Redis.Addr)
	assert.Equal(t, []string{"INTC", "AMD", "QCOM"}, cfg.MarketData.Symbols)
}

func TestLoadWithEnv_NoOverrideKeepsFileValues(t *testing.T) {
	cfg, err := LoadWithEnv(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, []string{"AMZN", "META"}, cfg.MarketData.Symbols)
}
