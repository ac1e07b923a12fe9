// Package config
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultRiskFraction  = 0.02
	TestModeRiskFraction = 0.30
	DefaultLeverage      = 3.0
	DefaultFixedQty      = 1.0
)

type Config struct {
	Symbol       string `yaml:"symbol"`
	Timeframe    string `yaml:"timeframe"`
	Strategy     string `yaml:"strategy"`
	TestMode     bool   `yaml:"test_mode"`
	AccountAlias string `yaml:"account_alias"`

	// TradeDirection restricts strategies to one side: "both", "only_long"
	// or "only_short".
	TradeDirection string             `yaml:"trade_direction"`
	StrategyParams map[string]float64 `yaml:"strategy_params"`

	Trading         TradingConfig             `yaml:"trading"`
	SymbolOverrides map[string]SymbolOverride `yaml:"symbol_overrides"`
	TpSl            TpSlConfig                `yaml:"tp_sl"`
	Report          ReportConfig              `yaml:"report"`
	Notifications   NotificationConfig        `yaml:"notifications"`
	Exchange        ExchangeConfig            `yaml:"exchange"`
	Journal         JournalConfig             `yaml:"journal"`
	Logging         LoggingConfig             `yaml:"logging"`

	HistoryFile string `yaml:"history_file"`
}

type TradingConfig struct {
	DynamicSizing       bool    `yaml:"dynamic_sizing"`
	FixedQuantity       float64 `yaml:"fixed_quantity"`
	RiskFraction        float64 `yaml:"risk_fraction"`
	Leverage            float64 `yaml:"leverage"`
	MaxPositionSize     float64 `yaml:"max_position_size"`
	SettleDelaySeconds  int     `yaml:"settle_delay_seconds"`
	CandleBufferSeconds int     `yaml:"candle_buffer_seconds"`
	WarmupCandles       int     `yaml:"warmup_candles"`
	TickRetrySeconds    int     `yaml:"tick_retry_seconds"`
}

// SettleDelay is the pause between a close order and the position re-fetch.
func (t TradingConfig) SettleDelay() time.Duration {
	return time.Duration(t.SettleDelaySeconds) * time.Second
}

// TickRetryDelay is the sleep after a failed trading tick.
func (t TradingConfig) TickRetryDelay() time.Duration {
	return time.Duration(t.TickRetrySeconds) * time.Second
}

// SymbolOverride carries per-symbol settings; nil fields fall back to the
// global values.
type SymbolOverride struct {
	RiskFraction    *float64  `yaml:"risk_fraction"`
	Leverage        *float64  `yaml:"leverage"`
	MaxPositionSize *float64  `yaml:"max_position_size"`
	TpSl            *TpSlRule `yaml:"tp_sl"`
}

type TpSlRule struct {
	EnableTakeProfit bool    `yaml:"enable_take_profit"`
	EnableStopLoss   bool    `yaml:"enable_stop_loss"`
	TakeProfitPct    float64 `yaml:"take_profit_pct"`
	StopLossPct      float64 `yaml:"stop_loss_pct"`
	ClosePercentage  float64 `yaml:"close_percentage"`
	CooldownSeconds  int     `yaml:"cooldown_seconds"`
}

type TpSlConfig struct {
	TpSlRule             `yaml:",inline"`
	CheckIntervalSeconds int `yaml:"check_interval_seconds"`
}

type ReportConfig struct {
	Enabled         bool   `yaml:"enabled"`
	IntervalSeconds int    `yaml:"interval_seconds"`
	ScheduleHours   []int  `yaml:"schedule_hours"`
	DetailLevel     string `yaml:"detail_level"`
}

type NotificationConfig struct {
	NotifyTrades      bool `yaml:"notify_trades"`
	NotifyErrors      bool `yaml:"notify_errors"`
	NotifyTpSl        bool `yaml:"notify_tp_sl"`
	Retries           int  `yaml:"retries"`
	RetryDelaySeconds int  `yaml:"retry_delay_seconds"`

	WeComWebhookURL string `yaml:"-"`
	TelegramToken   string `yaml:"-"`
	TelegramChatID  string `yaml:"-"`
}

// RetryDelay is the pause between notification send attempts.
func (n NotificationConfig) RetryDelay() time.Duration {
	return time.Duration(n.RetryDelaySeconds) * time.Second
}

type ExchangeConfig struct {
	BaseURL   string `yaml:"base_url"`
	Simulated bool   `yaml:"simulated"`

	APIKey     string `yaml:"-"`
	SecretKey  string `yaml:"-"`
	Passphrase string `yaml:"-"`
}

type JournalConfig struct {
	DSN     string `yaml:"dsn"`
	MaxOpen int    `yaml:"max_open"`
	MaxIdle int    `yaml:"max_idle"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Load reads the YAML config at path, applies defaults, and pulls credentials
// from the environment.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	cfg.loadEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Timeframe == "" {
		c.Timeframe = "1h"
	}
	if c.TradeDirection == "" {
		c.TradeDirection = "both"
	}
	if c.Trading.FixedQuantity <= 0 {
		c.Trading.FixedQuantity = DefaultFixedQty
	}
	if c.Trading.RiskFraction <= 0 {
		c.Trading.RiskFraction = DefaultRiskFraction
	}
	if c.Trading.Leverage <= 0 {
		c.Trading.Leverage = DefaultLeverage
	}
	if c.Trading.SettleDelaySeconds <= 0 {
		c.Trading.SettleDelaySeconds = 2
	}
	if c.Trading.CandleBufferSeconds <= 0 {
		c.Trading.CandleBufferSeconds = 5
	}
	if c.Trading.WarmupCandles <= 0 {
		c.Trading.WarmupCandles = 100
	}
	if c.Trading.TickRetrySeconds <= 0 {
		c.Trading.TickRetrySeconds = 30
	}
	if c.TpSl.ClosePercentage <= 0 {
		c.TpSl.ClosePercentage = 100
	}
	if c.TpSl.CooldownSeconds <= 0 {
		c.TpSl.CooldownSeconds = 300
	}
	if c.TpSl.CheckIntervalSeconds <= 0 {
		c.TpSl.CheckIntervalSeconds = 30
	}
	if c.Report.DetailLevel == "" {
		c.Report.DetailLevel = "normal"
	}
	if c.Report.IntervalSeconds <= 0 && len(c.Report.ScheduleHours) == 0 {
		c.Report.IntervalSeconds = 3600
	}
	if c.Notifications.Retries <= 0 {
		c.Notifications.Retries = 3
	}
	if c.Notifications.RetryDelaySeconds <= 0 {
		c.Notifications.RetryDelaySeconds = 5
	}
	if c.Exchange.BaseURL == "" {
		c.Exchange.BaseURL = "https://www.okx.com"
	}
	if c.Journal.MaxOpen <= 0 {
		c.Journal.MaxOpen = 10
	}
	if c.Journal.MaxIdle <= 0 {
		c.Journal.MaxIdle = 5
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.HistoryFile == "" {
		c.HistoryFile = "data/trade_history.json"
	}
}

func (c *Config) loadEnv() {
	c.Exchange.APIKey = os.Getenv("OKX_API_KEY")
	c.Exchange.SecretKey = os.Getenv("OKX_SECRET_KEY")
	c.Exchange.Passphrase = os.Getenv("OKX_PASSPHRASE")
	c.Notifications.WeComWebhookURL = os.Getenv("WECOM_WEBHOOK_URL")
	c.Notifications.TelegramToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	c.Notifications.TelegramChatID = os.Getenv("TELEGRAM_CHAT_ID")
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		c.Journal.DSN = dsn
	}
}

func (c *Config) validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("config: symbol is required")
	}
	if c.Report.IntervalSeconds > 0 && len(c.Report.ScheduleHours) > 0 {
		// Fixed hours win when both are present.
		c.Report.IntervalSeconds = 0
	}
	for _, h := range c.Report.ScheduleHours {
		if h < 0 || h > 23 {
			return fmt.Errorf("config: schedule hour %d out of range", h)
		}
	}
	return nil
}

// Param returns the named strategy parameter, or def when unset.
func (c *Config) Param(name string, def float64) float64 {
	if v, ok := c.StrategyParams[name]; ok {
		return v
	}
	return def
}

// RiskFractionFor resolves the risk fraction for a symbol, symbol override
// first, then the global value.
func (c *Config) RiskFractionFor(symbol string) float64 {
	if ov, ok := c.SymbolOverrides[symbol]; ok && ov.RiskFraction != nil && *ov.RiskFraction > 0 {
		return *ov.RiskFraction
	}
	return c.Trading.RiskFraction
}

// LeverageFor resolves leverage for a symbol, symbol override first.
func (c *Config) LeverageFor(symbol string) float64 {
	if ov, ok := c.SymbolOverrides[symbol]; ok && ov.Leverage != nil && *ov.Leverage > 0 {
		return *ov.Leverage
	}
	return c.Trading.Leverage
}

// MaxPositionSizeFor resolves the position ceiling for a symbol. Zero means
// no ceiling.
func (c *Config) MaxPositionSizeFor(symbol string) float64 {
	if ov, ok := c.SymbolOverrides[symbol]; ok && ov.MaxPositionSize != nil && *ov.MaxPositionSize > 0 {
		return *ov.MaxPositionSize
	}
	return c.Trading.MaxPositionSize
}

// RuleFor resolves the effective TP/SL rule for a symbol.
func (c *Config) RuleFor(symbol string) TpSlRule {
	if ov, ok := c.SymbolOverrides[symbol]; ok && ov.TpSl != nil {
		rule := *ov.TpSl
		if rule.ClosePercentage <= 0 {
			rule.ClosePercentage = c.TpSl.ClosePercentage
		}
		if rule.CooldownSeconds <= 0 {
			rule.CooldownSeconds = c.TpSl.CooldownSeconds
		}
		return rule
	}
	return c.TpSl.TpSlRule
}
