package config

import "strings"

func applyDefaults(cfg *Config, keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &cfg.App.Env, "prod"),
		stringFieldDefault("app.log_level", &cfg.App.LogLevel, "info"),
		stringFieldDefault("app.day_timezone", &cfg.App.DayTimezone, "Asia/Jakarta"),

		stringFieldDefault("strategy.timeframe", &cfg.Strategy.Timeframe, "5m"),
		intFieldDefault("strategy.bb_period", &cfg.Strategy.BBPeriod, 20),
		floatFieldDefault("strategy.bb_std_dev", &cfg.Strategy.BBStdDev, 2.0),
		floatFieldDefault("strategy.trigger_mult", &cfg.Strategy.TriggerMult, 0.3),
		floatFieldDefault("strategy.sl_mult", &cfg.Strategy.SLMult, 0.7),
		floatFieldDefault("strategy.tp1_pct", &cfg.Strategy.TP1Pct, 0.01),
		floatFieldDefault("strategy.tp2_pct", &cfg.Strategy.TP2Pct, 0.03),
		floatFieldDefault("strategy.tp1_close_frac", &cfg.Strategy.TP1CloseFrac, 0.5),
		intFieldDefault("strategy.series_max", &cfg.Strategy.SeriesMax, 500),

		floatFieldDefault("sizing.margin_usd", &cfg.Sizing.MarginUSD, 50),
		intFieldDefault("sizing.leverage", &cfg.Sizing.Leverage, 3),

		boolFieldDefault("guards.cooldown_enabled", &cfg.Guards.CooldownEnabled, true),
		boolFieldDefault("guards.min_gap_enabled", &cfg.Guards.MinGapEnabled, true),
		boolFieldDefault("guards.max_trades_enabled", &cfg.Guards.MaxTradesEnabled, true),
		boolFieldDefault("guards.kill_switch_enabled", &cfg.Guards.KillSwitchEnabled, true),
		boolFieldDefault("guards.armed_enabled", &cfg.Guards.ArmedEnabled, true),
		boolFieldDefault("guards.debounce_enabled", &cfg.Guards.DebounceEnabled, true),
		intFieldDefault("guards.cooldown_bars_after_sl", &cfg.Guards.CooldownBarsAfterSL, 3),
		intFieldDefault("guards.min_minutes_between_entries", &cfg.Guards.MinMinutesBetweenEntries, 15),
		intFieldDefault("guards.max_trades_per_day", &cfg.Guards.MaxTradesPerDay, 6),
		intFieldDefault("guards.kill_switch.max_stops", &cfg.Guards.KillSwitch.MaxStops, 3),
		intFieldDefault("guards.kill_switch.window_minutes", &cfg.Guards.KillSwitch.WindowMinutes, 120),
		intFieldDefault("guards.kill_switch.pause_minutes", &cfg.Guards.KillSwitch.PauseMinutes, 180),

		stringFieldDefault("exec.position_mode", &cfg.Exec.PositionMode, "ONE_WAY"),
		stringFieldDefault("exec.entry_type", &cfg.Exec.EntryType, "LIMIT"),
		stringFieldDefault("exec.entry_time_in_force", &cfg.Exec.EntryTimeInForce, "IOC"),
		intFieldDefault("exec.entry_slip_ticks", &cfg.Exec.EntrySlipTicks, 2),
		stringFieldDefault("exec.exit_type", &cfg.Exec.ExitType, "MARKET"),
		intFieldDefault("exec.pending_timeout_seconds", &cfg.Exec.PendingTimeoutSeconds, 30),
		intFieldDefault("exec.hard_pending_seconds", &cfg.Exec.HardPendingSeconds, 180),
		intFieldDefault("exec.reconcile_pause_seconds", &cfg.Exec.ReconcilePauseSeconds, 30),

		intFieldDefault("market.http_timeout_seconds", &cfg.Market.HTTPTimeoutSeconds, 10),

		intFieldDefault("stream.market_stale_seconds", &cfg.Stream.MarketStaleSeconds, 20),
		intFieldDefault("stream.user_stale_seconds", &cfg.Stream.UserStaleSeconds, 30),
		intFieldDefault("stream.watchdog_seconds", &cfg.Stream.WatchdogSeconds, 5),
		intFieldDefault("stream.max_backoff_seconds", &cfg.Stream.MaxBackoffSeconds, 30),

		intFieldDefault("user_stream.keep_alive_minutes", &cfg.UserStream.KeepAliveMinutes, 25),
		intFieldDefault("user_stream.max_keep_alive_fails", &cfg.UserStream.MaxKeepAliveFails, 3),

		stringFieldDefault("metrics.addr", &cfg.Metrics.Addr, ":9090"),
	)
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if keys.isSet(def.key) {
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
		key:   key,
		need:  func() bool { return strings.TrimSpace(*target) == "" },
		apply: func() { *target = def },
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return target != nil },
		apply: func() { *target = def },
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return *target == 0 },
		apply: func() { *target = def },
	}
}

func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return *target == 0 },
		apply: func() { *target = def },
	}
}
