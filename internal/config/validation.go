package config

import (
	"fmt"
	"strings"
)

func validate(c *Config) error {
	if err := c.Broker.validate(); err != nil {
		return err
	}
	if err := c.Risk.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	return nil
}

func (b *BrokerConfig) validate() error {
	switch b.Mode {
	case "paper", "opend":
	default:
		return fmt.Errorf("broker.mode must be paper or opend, got %q", b.Mode)
	}
	if b.Mode == "opend" {
		if strings.TrimSpace(b.Host) == "" {
			return fmt.Errorf("broker.host is required for opend mode")
		}
		if b.Port <= 0 || b.Port > 65535 {
			return fmt.Errorf("broker.port must be a valid port, got %d", b.Port)
		}
		switch b.TradeEnv {
		case "SIMULATE", "REAL":
		default:
			return fmt.Errorf("broker.trade_env must be SIMULATE or REAL, got %q", b.TradeEnv)
		}
	}
	return nil
}

func (r *RiskConfig) validate() error {
	if r.MaxPositionPct <= 0 || r.MaxPositionPct > 1 {
		return fmt.Errorf("risk.max_position_pct must be in (0, 1], got %v", r.MaxPositionPct)
	}
	if r.MaxDailyLossPct <= 0 || r.MaxDailyLossPct > 1 {
		return fmt.Errorf("risk.max_daily_loss_pct must be in (0, 1], got %v", r.MaxDailyLossPct)
	}
	if r.MaxTradeLossPct <= 0 || r.MaxTradeLossPct > r.MaxDailyLossPct {
		return fmt.Errorf("risk.max_trade_loss_pct must be in (0, max_daily_loss_pct], got %v", r.MaxTradeLossPct)
	}
	if r.MinRiskReward < 1 {
		return fmt.Errorf("risk.min_risk_reward must be >= 1, got %v", r.MinRiskReward)
	}
	if r.WarningFraction <= 0 || r.WarningFraction >= 1 {
		return fmt.Errorf("risk.warning_fraction must be in (0, 1), got %v", r.WarningFraction)
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	t := n.Telegram
	if t.Enabled {
		if strings.TrimSpace(t.BotToken) == "" {
			return fmt.Errorf("notify.telegram.bot_token is required when telegram is enabled")
		}
		if strings.TrimSpace(t.ChatID) == "" {
			return fmt.Errorf("notify.telegram.chat_id is required when telegram is enabled")
		}
	}
	return nil
}
