package config

import (
	"fmt"
	"strings"
	"time"
)

var validTimeframes = map[string]struct{}{
	"1m": {}, "3m": {}, "5m": {}, "15m": {}, "30m": {},
	"1h": {}, "2h": {}, "4h": {}, "6h": {}, "8h": {}, "12h": {},
	"1d": {},
}

// Validate rejects configurations the bot cannot run safely with.
func (c *Config) Validate() error {
	if len(c.Strategy.Symbols) == 0 {
		return fmt.Errorf("strategy.symbols must list at least one symbol")
	}
	seen := make(map[string]struct{}, len(c.Strategy.Symbols))
	for i, s := range c.Strategy.Symbols {
		sym := strings.ToUpper(strings.TrimSpace(s))
		if sym == "" {
			return fmt.Errorf("strategy.symbols[%d] is empty", i)
		}
		if _, dup := seen[sym]; dup {
			return fmt.Errorf("strategy.symbols lists %s more than once", sym)
		}
		seen[sym] = struct{}{}
		c.Strategy.Symbols[i] = sym
	}

	if _, ok := validTimeframes[c.Strategy.Timeframe]; !ok {
		return fmt.Errorf("strategy.timeframe %q is not a supported interval", c.Strategy.Timeframe)
	}
	if c.Strategy.BBPeriod < 2 {
		return fmt.Errorf("strategy.bb_period must be at least 2, got %d", c.Strategy.BBPeriod)
	}
	if c.Strategy.BBStdDev <= 0 {
		return fmt.Errorf("strategy.bb_std_dev must be positive, got %v", c.Strategy.BBStdDev)
	}
	if c.Strategy.TriggerMult < 0 {
		return fmt.Errorf("strategy.trigger_mult must not be negative, got %v", c.Strategy.TriggerMult)
	}
	if c.Strategy.TP1Pct <= 0 || c.Strategy.TP2Pct <= 0 {
		return fmt.Errorf("strategy.tp1_pct and tp2_pct must be positive")
	}
	if c.Strategy.TP2Pct <= c.Strategy.TP1Pct {
		return fmt.Errorf("strategy.tp2_pct (%v) must exceed tp1_pct (%v)", c.Strategy.TP2Pct, c.Strategy.TP1Pct)
	}
	if c.Strategy.TP1CloseFrac <= 0 || c.Strategy.TP1CloseFrac >= 1 {
		return fmt.Errorf("strategy.tp1_close_frac must be in (0, 1), got %v", c.Strategy.TP1CloseFrac)
	}
	if c.Strategy.SLMult <= 0 {
		return fmt.Errorf("strategy.sl_mult must be positive, got %v", c.Strategy.SLMult)
	}
	if c.Strategy.SeriesMax < c.Strategy.BBPeriod {
		return fmt.Errorf("strategy.series_max (%d) must hold at least bb_period (%d) closes",
			c.Strategy.SeriesMax, c.Strategy.BBPeriod)
	}

	if c.Sizing.MarginUSD <= 0 {
		return fmt.Errorf("sizing.margin_usd must be positive, got %v", c.Sizing.MarginUSD)
	}
	if c.Sizing.Leverage < 1 || c.Sizing.Leverage > 125 {
		return fmt.Errorf("sizing.leverage must be in [1, 125], got %d", c.Sizing.Leverage)
	}

	mode := strings.ToUpper(strings.TrimSpace(c.Exec.PositionMode))
	switch mode {
	case "ONE_WAY", "HEDGE":
		c.Exec.PositionMode = mode
	case "AUTO":
		return fmt.Errorf("exec.position_mode AUTO is not supported; set ONE_WAY or HEDGE explicitly")
	default:
		return fmt.Errorf("exec.position_mode must be ONE_WAY or HEDGE, got %q", c.Exec.PositionMode)
	}

	entryType := strings.ToUpper(strings.TrimSpace(c.Exec.EntryType))
	switch entryType {
	case "MARKET", "LIMIT":
		c.Exec.EntryType = entryType
	default:
		return fmt.Errorf("exec.entry_type must be MARKET or LIMIT, got %q", c.Exec.EntryType)
	}
	exitType := strings.ToUpper(strings.TrimSpace(c.Exec.ExitType))
	switch exitType {
	case "MARKET", "LIMIT":
		c.Exec.ExitType = exitType
	default:
		return fmt.Errorf("exec.exit_type must be MARKET or LIMIT, got %q", c.Exec.ExitType)
	}
	tif := strings.ToUpper(strings.TrimSpace(c.Exec.EntryTimeInForce))
	switch tif {
	case "GTC", "IOC", "FOK":
		c.Exec.EntryTimeInForce = tif
	default:
		return fmt.Errorf("exec.entry_time_in_force must be GTC, IOC or FOK, got %q", c.Exec.EntryTimeInForce)
	}
	if c.Exec.EntrySlipTicks < 0 {
		return fmt.Errorf("exec.entry_slip_ticks must not be negative, got %d", c.Exec.EntrySlipTicks)
	}
	if c.Exec.PendingTimeoutSeconds <= 0 {
		return fmt.Errorf("exec.pending_timeout_seconds must be positive, got %d", c.Exec.PendingTimeoutSeconds)
	}
	if c.Exec.HardPendingSeconds <= c.Exec.PendingTimeoutSeconds {
		return fmt.Errorf("exec.hard_pending_seconds (%d) must exceed pending_timeout_seconds (%d)",
			c.Exec.HardPendingSeconds, c.Exec.PendingTimeoutSeconds)
	}
	if c.Exec.ReconcilePauseSeconds < 0 {
		return fmt.Errorf("exec.reconcile_pause_seconds must not be negative, got %d", c.Exec.ReconcilePauseSeconds)
	}

	if _, err := time.LoadLocation(c.App.DayTimezone); err != nil {
		return fmt.Errorf("app.day_timezone %q: %w", c.App.DayTimezone, err)
	}

	if c.Guards.CooldownBarsAfterSL < 0 {
		return fmt.Errorf("guards.cooldown_bars_after_sl must not be negative")
	}
	if c.Guards.KillSwitchEnabled {
		if c.Guards.KillSwitch.MaxStops < 1 {
			return fmt.Errorf("guards.kill_switch.max_stops must be at least 1 when the kill switch is enabled")
		}
		if c.Guards.KillSwitch.WindowMinutes < 1 || c.Guards.KillSwitch.PauseMinutes < 1 {
			return fmt.Errorf("guards.kill_switch window and pause must be at least one minute")
		}
	}

	if c.Stream.MarketStaleSeconds <= c.Stream.WatchdogSeconds {
		return fmt.Errorf("stream.market_stale_seconds (%d) must exceed watchdog_seconds (%d)",
			c.Stream.MarketStaleSeconds, c.Stream.WatchdogSeconds)
	}
	if c.UserStream.KeepAliveMinutes < 1 || c.UserStream.KeepAliveMinutes > 55 {
		return fmt.Errorf("user_stream.keep_alive_minutes must be in [1, 55], got %d", c.UserStream.KeepAliveMinutes)
	}

	if c.Notify.Telegram.Enabled {
		if strings.TrimSpace(c.Notify.Telegram.BotToken) == "" || strings.TrimSpace(c.Notify.Telegram.ChatID) == "" {
			return fmt.Errorf("notify.telegram requires bot_token and chat_id when enabled")
		}
	}
	return nil
}

// BarDuration converts the strategy timeframe to a duration. Validate
// guarantees the timeframe parses.
func (c *Config) BarDuration() time.Duration {
	return TimeframeDuration(c.Strategy.Timeframe)
}

// TimeframeDuration maps an exchange interval string to its wall duration.
func TimeframeDuration(tf string) time.Duration {
	n := len(tf)
	if n < 2 {
		return 0
	}
	var num int
	if _, err := fmt.Sscanf(tf[:n-1], "%d", &num); err != nil {
		return 0
	}
	switch tf[n-1] {
	case 'm':
		return time.Duration(num) * time.Minute
	case 'h':
		return time.Duration(num) * time.Hour
	case 'd':
		return time.Duration(num) * 24 * time.Hour
	}
	return 0
}
