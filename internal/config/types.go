// Package config loads and validates the engine configuration.
package config

import "strings"

// Config is the full configuration tree.
type Config struct {
	App     AppConfig     `toml:"app"`
	Broker  BrokerConfig  `toml:"broker"`
	Risk    RiskConfig    `toml:"risk"`
	Engine  EngineConfig  `toml:"engine"`
	Store   StoreConfig   `toml:"store"`
	Session SessionConfig `toml:"session"`
	Notify  NotifyConfig  `toml:"notify"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
}

type BrokerConfig struct {
	// Mode selects the gateway: "opend" for a live OpenD bridge,
	// "paper" for the in-process simulator.
	Mode      string `toml:"mode"`
	Host      string `toml:"host"`
	Port      int    `toml:"port"`
	AccountID string `toml:"account_id"`
	TradeEnv  string `toml:"trade_env"`
}

// RiskConfig carries the account risk limits. Percentages are fractions
// (0.02 == 2%).
type RiskConfig struct {
	MaxPositions         int     `toml:"max_positions"`
	MaxPositionPct       float64 `toml:"max_position_pct"`
	MaxDailyLossPct      float64 `toml:"max_daily_loss_pct"`
	MaxTradeLossPct      float64 `toml:"max_trade_loss_pct"`
	MinRiskReward        float64 `toml:"min_risk_reward"`
	MinPositionValue     float64 `toml:"min_position_value"`
	MaxStopDistancePct   float64 `toml:"max_stop_distance_pct"`
	MaxDailyTrades       int     `toml:"max_daily_trades"`
	WarningFraction      float64 `toml:"warning_fraction"`
	SlippageTolerancePct float64 `toml:"slippage_tolerance_pct"`
	AllowPyramiding      bool    `toml:"allow_pyramiding"`
}

type EngineConfig struct {
	SyncIntervalSeconds      int `toml:"sync_interval_seconds"`
	ReconcileIntervalSeconds int `toml:"reconcile_interval_seconds"`
	VerifySettleMillis       int `toml:"verify_settle_millis"`
}

type StoreConfig struct {
	Path string `toml:"path"`
}

type SessionConfig struct {
	// ForceOpen bypasses the exchange calendar, for paper trading and
	// development.
	ForceOpen bool `toml:"force_open"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

// keySet tracks which paths were explicitly set in the file, so
// defaults never overwrite a deliberate zero.
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault describes one field's default rule.
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
