package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "symbol: BTC-USDT-SWAP\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "BTC-USDT-SWAP", cfg.Symbol)
	assert.Equal(t, "1h", cfg.Timeframe)
	assert.Equal(t, DefaultRiskFraction, cfg.Trading.RiskFraction)
	assert.Equal(t, DefaultLeverage, cfg.Trading.Leverage)
	assert.Equal(t, 2*time.Second, cfg.Trading.SettleDelay())
	assert.Equal(t, 100.0, cfg.TpSl.ClosePercentage)
	assert.Equal(t, 300, cfg.TpSl.CooldownSeconds)
	assert.Equal(t, 30, cfg.TpSl.CheckIntervalSeconds)
	assert.Equal(t, "normal", cfg.Report.DetailLevel)
	assert.Equal(t, 3600, cfg.Report.IntervalSeconds)
	assert.Equal(t, "https://www.okx.com", cfg.Exchange.BaseURL)
	assert.Equal(t, "data/trade_history.json", cfg.HistoryFile)
}

func TestLoad_MissingSymbol(t *testing.T) {
	path := writeConfig(t, "timeframe: 1h\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_ScheduleHoursDisableInterval(t *testing.T) {
	path := writeConfig(t, `
symbol: ETH-USDT-SWAP
report:
  interval_seconds: 600
  schedule_hours: [0, 8, 16]
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Report.IntervalSeconds)
	assert.Equal(t, []int{0, 8, 16}, cfg.Report.ScheduleHours)
}

func TestLoad_ScheduleHourOutOfRange(t *testing.T) {
	path := writeConfig(t, `
symbol: ETH-USDT-SWAP
report:
  schedule_hours: [24]
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestSymbolOverrides(t *testing.T) {
	path := writeConfig(t, `
symbol: BTC-USDT-SWAP
trading:
  risk_fraction: 0.02
  leverage: 3
  max_position_size: 50
tp_sl:
  enable_take_profit: true
  take_profit_pct: 20
  stop_loss_pct: 10
  cooldown_seconds: 120
symbol_overrides:
  ETH-USDT-SWAP:
    risk_fraction: 0.05
    leverage: 10
    tp_sl:
      enable_take_profit: true
      enable_stop_loss: true
      take_profit_pct: 40
      stop_loss_pct: 15
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 0.05, cfg.RiskFractionFor("ETH-USDT-SWAP"))
	assert.Equal(t, 0.02, cfg.RiskFractionFor("BTC-USDT-SWAP"))
	assert.Equal(t, 10.0, cfg.LeverageFor("ETH-USDT-SWAP"))
	assert.Equal(t, 3.0, cfg.LeverageFor("BTC-USDT-SWAP"))
	assert.Equal(t, 50.0, cfg.MaxPositionSizeFor("ETH-USDT-SWAP"))

	rule := cfg.RuleFor("ETH-USDT-SWAP")
	assert.True(t, rule.EnableStopLoss)
	assert.Equal(t, 40.0, rule.TakeProfitPct)
	// Override omits cooldown and close pct, globals fill in.
	assert.Equal(t, 120, rule.CooldownSeconds)
	assert.Equal(t, 100.0, rule.ClosePercentage)

	global := cfg.RuleFor("BTC-USDT-SWAP")
	assert.False(t, global.EnableStopLoss)
	assert.Equal(t, 20.0, global.TakeProfitPct)
}

func TestLoadEnvCredentials(t *testing.T) {
	t.Setenv("OKX_API_KEY", "key")
	t.Setenv("OKX_SECRET_KEY", "secret")
	t.Setenv("OKX_PASSPHRASE", "pass")
	t.Setenv("DATABASE_URL", "postgres://localhost/trader")

	path := writeConfig(t, "symbol: BTC-USDT-SWAP\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "key", cfg.Exchange.APIKey)
	assert.Equal(t, "secret", cfg.Exchange.SecretKey)
	assert.Equal(t, "pass", cfg.Exchange.Passphrase)
	assert.Equal(t, "postgres://localhost/trader", cfg.Journal.DSN)
}
