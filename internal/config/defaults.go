package config

import "strings"

const (
	defaultAppEnv      = "dev"
	defaultAppLogLevel = "info"
	defaultAppHTTPAddr = ":9980"
	defaultAppLogPath  = "data/logs/catalyst.log"

	defaultBrokerMode     = "paper"
	defaultBrokerHost     = "127.0.0.1"
	defaultBrokerPort     = 11111
	defaultBrokerTradeEnv = "SIMULATE"

	defaultSyncInterval      = 15
	defaultReconcileInterval = 60
	defaultVerifySettle      = 500

	defaultStorePath = "data/db/catalyst.db"
)

func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Broker.applyDefaults(keys)
	c.Risk.applyDefaults(keys)
	c.Engine.applyDefaults(keys)
	c.Store.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
	)
}

func (b *BrokerConfig) applyDefaults(keys keySet) {
	if b == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("broker.mode", &b.Mode, defaultBrokerMode),
		stringFieldDefault("broker.host", &b.Host, defaultBrokerHost),
		stringFieldDefault("broker.trade_env", &b.TradeEnv, defaultBrokerTradeEnv),
		fieldDefault{
			key:   "broker.port",
			need:  func() bool { return b.Port <= 0 },
			apply: func() { b.Port = defaultBrokerPort },
		},
	)
}

func (r *RiskConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	def := defaultRiskConfig()
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "risk.max_positions",
			need:  func() bool { return r.MaxPositions <= 0 },
			apply: func() { r.MaxPositions = def.MaxPositions },
		},
		fieldDefault{
			key:   "risk.max_position_pct",
			need:  func() bool { return r.MaxPositionPct <= 0 },
			apply: func() { r.MaxPositionPct = def.MaxPositionPct },
		},
		fieldDefault{
			key:   "risk.max_daily_loss_pct",
			need:  func() bool { return r.MaxDailyLossPct <= 0 },
			apply: func() { r.MaxDailyLossPct = def.MaxDailyLossPct },
		},
		fieldDefault{
			key:   "risk.max_trade_loss_pct",
			need:  func() bool { return r.MaxTradeLossPct <= 0 },
			apply: func() { r.MaxTradeLossPct = def.MaxTradeLossPct },
		},
		fieldDefault{
			key:   "risk.min_risk_reward",
			need:  func() bool { return r.MinRiskReward <= 0 },
			apply: func() { r.MinRiskReward = def.MinRiskReward },
		},
		fieldDefault{
			key:   "risk.min_position_value",
			need:  func() bool { return r.MinPositionValue <= 0 },
			apply: func() { r.MinPositionValue = def.MinPositionValue },
		},
		fieldDefault{
			key:   "risk.max_stop_distance_pct",
			need:  func() bool { return r.MaxStopDistancePct <= 0 },
			apply: func() { r.MaxStopDistancePct = def.MaxStopDistancePct },
		},
		fieldDefault{
			key:   "risk.max_daily_trades",
			need:  func() bool { return r.MaxDailyTrades <= 0 },
			apply: func() { r.MaxDailyTrades = def.MaxDailyTrades },
		},
		fieldDefault{
			key:   "risk.warning_fraction",
			need:  func() bool { return r.WarningFraction <= 0 },
			apply: func() { r.WarningFraction = def.WarningFraction },
		},
		fieldDefault{
			key:   "risk.slippage_tolerance_pct",
			need:  func() bool { return r.SlippageTolerancePct <= 0 },
			apply: func() { r.SlippageTolerancePct = def.SlippageTolerancePct },
		},
	)
}

func defaultRiskConfig() RiskConfig {
	return RiskConfig{
		MaxPositions:         5,
		MaxPositionPct:       0.20,
		MaxDailyLossPct:      0.02,
		MaxTradeLossPct:      0.01,
		MinRiskReward:        2.0,
		MinPositionValue:     10_000,
		MaxStopDistancePct:   0.05,
		MaxDailyTrades:       10,
		WarningFraction:      0.75,
		SlippageTolerancePct: 0.005,
	}
}

func (e *EngineConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "engine.sync_interval_seconds",
			need:  func() bool { return e.SyncIntervalSeconds <= 0 },
			apply: func() { e.SyncIntervalSeconds = defaultSyncInterval },
		},
		fieldDefault{
			key:   "engine.reconcile_interval_seconds",
			need:  func() bool { return e.ReconcileIntervalSeconds <= 0 },
			apply: func() { e.ReconcileIntervalSeconds = defaultReconcileInterval },
		},
		fieldDefault{
			key:   "engine.verify_settle_millis",
			need:  func() bool { return e.VerifySettleMillis <= 0 },
			apply: func() { e.VerifySettleMillis = defaultVerifySettle },
		},
	)
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("store.path", &s.Path, defaultStorePath),
	)
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
