package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"catalyst/internal/risk"
)

// Load reads, defaults and validates the configuration at path.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}

	setKeys := make(keySet)
	flattenConfigKeys("", v.AllSettings(), setKeys)
	cfg.applyDefaults(setKeys)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func flattenConfigKeys(prefix string, node any, dest keySet) {
	switch val := node.(type) {
	case map[string]any:
		for k, v := range val {
			next := strings.ToLower(strings.TrimSpace(k))
			if next == "" {
				continue
			}
			if prefix != "" {
				next = prefix + "." + next
			}
			flattenConfigKeys(next, v, dest)
		}
	case []any:
		if prefix != "" {
			dest.mark(prefix)
		}
		for _, item := range val {
			flattenConfigKeys(prefix, item, dest)
		}
	default:
		if prefix != "" {
			dest.mark(prefix)
		}
	}
}

// Limits converts the risk section into an immutable limits snapshot.
func (r RiskConfig) Limits() risk.Limits {
	return risk.Limits{
		MaxPositions:         r.MaxPositions,
		MaxPositionPct:       r.MaxPositionPct,
		MaxDailyLossPct:      r.MaxDailyLossPct,
		MaxTradeLossPct:      r.MaxTradeLossPct,
		MinRiskReward:        r.MinRiskReward,
		MinPositionValue:     r.MinPositionValue,
		MaxStopDistancePct:   r.MaxStopDistancePct,
		MaxDailyTrades:       r.MaxDailyTrades,
		WarningFraction:      r.WarningFraction,
		SlippageTolerancePct: r.SlippageTolerancePct,
		AllowPyramiding:      r.AllowPyramiding,
		CreatedAt:            time.Now(),
	}
}

// SyncInterval returns the order-sync cadence.
func (e EngineConfig) SyncInterval() time.Duration {
	return time.Duration(e.SyncIntervalSeconds) * time.Second
}

// ReconcileInterval returns the position-reconciliation cadence.
func (e EngineConfig) ReconcileInterval() time.Duration {
	return time.Duration(e.ReconcileIntervalSeconds) * time.Second
}

// VerifySettle returns the post-submit settle delay before bracket
// verification.
func (e EngineConfig) VerifySettle() time.Duration {
	return time.Duration(e.VerifySettleMillis) * time.Millisecond
}
