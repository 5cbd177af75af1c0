package config

import (
	"strings"
	"time"
)

// Config is the full bot configuration.
type Config struct {
	App        AppConfig        `toml:"app"`
	Strategy   StrategyConfig   `toml:"strategy"`
	Sizing     SizingConfig     `toml:"sizing"`
	Guards     GuardsConfig     `toml:"guards"`
	Exec       ExecConfig       `toml:"exec"`
	Market     MarketConfig     `toml:"market"`
	Stream     StreamConfig     `toml:"stream"`
	UserStream UserStreamConfig `toml:"user_stream"`
	Notify     NotifyConfig     `toml:"notify"`
	Metrics    MetricsConfig    `toml:"metrics"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	LogPath  string `toml:"log_path"`
	// DayTimezone fixes the trading-day boundary for guard counters and
	// PnL tallies, independent of the host zone.
	DayTimezone string `toml:"day_timezone"`
}

type StrategyConfig struct {
	Symbols      []string `toml:"symbols"`
	Timeframe    string   `toml:"timeframe"`
	BBPeriod     int      `toml:"bb_period"`
	BBStdDev     float64  `toml:"bb_std_dev"`
	TriggerMult  float64  `toml:"trigger_mult"`
	SLMult       float64  `toml:"sl_mult"`
	TP1Pct       float64  `toml:"tp1_pct"`
	TP2Pct       float64  `toml:"tp2_pct"`
	TP1CloseFrac float64  `toml:"tp1_close_frac"`
	SeriesMax    int      `toml:"series_max"`
}

type SizingConfig struct {
	MarginUSD float64 `toml:"margin_usd"`
	Leverage  int     `toml:"leverage"`
}

// NotionalUSD is the target order notional: margin scaled by leverage.
func (s SizingConfig) NotionalUSD() float64 {
	return s.MarginUSD * float64(s.Leverage)
}

// GuardsConfig toggles and tunes the entry guards. Every guard defaults to
// enabled; disabling one removes its refusal condition entirely.
type GuardsConfig struct {
	CooldownEnabled   bool `toml:"cooldown_enabled"`
	MinGapEnabled     bool `toml:"min_gap_enabled"`
	MaxTradesEnabled  bool `toml:"max_trades_enabled"`
	KillSwitchEnabled bool `toml:"kill_switch_enabled"`
	ArmedEnabled      bool `toml:"armed_enabled"`
	DebounceEnabled   bool `toml:"debounce_enabled"`

	CooldownBarsAfterSL      int `toml:"cooldown_bars_after_sl"`
	MinMinutesBetweenEntries int `toml:"min_minutes_between_entries"`
	MaxTradesPerDay          int `toml:"max_trades_per_day"`

	KillSwitch KillSwitchConfig `toml:"kill_switch"`
}

type KillSwitchConfig struct {
	MaxStops      int `toml:"max_stops"`
	WindowMinutes int `toml:"window_minutes"`
	PauseMinutes  int `toml:"pause_minutes"`
}

func (k KillSwitchConfig) Window() time.Duration {
	return time.Duration(k.WindowMinutes) * time.Minute
}

func (k KillSwitchConfig) Pause() time.Duration {
	return time.Duration(k.PauseMinutes) * time.Minute
}

type ExecConfig struct {
	// PositionMode is ONE_WAY or HEDGE. There is no runtime auto-detection;
	// the account's dual-side setting must match this value.
	PositionMode string `toml:"position_mode"`

	EntryType        string `toml:"entry_type"` // MARKET | LIMIT
	EntryTimeInForce string `toml:"entry_time_in_force"`
	EntrySlipTicks   int    `toml:"entry_slip_ticks"`
	ExitType         string `toml:"exit_type"`

	PendingTimeoutSeconds int `toml:"pending_timeout_seconds"`
	HardPendingSeconds    int `toml:"hard_pending_seconds"`
	ReconcilePauseSeconds int `toml:"reconcile_pause_seconds"`
}

func (e ExecConfig) PendingTimeout() time.Duration {
	return time.Duration(e.PendingTimeoutSeconds) * time.Second
}

func (e ExecConfig) HardPending() time.Duration {
	return time.Duration(e.HardPendingSeconds) * time.Second
}

func (e ExecConfig) ReconcilePause() time.Duration {
	return time.Duration(e.ReconcilePauseSeconds) * time.Second
}

func (e ExecConfig) HedgeMode() bool {
	return strings.EqualFold(strings.TrimSpace(e.PositionMode), "HEDGE")
}

type MarketConfig struct {
	UseTestnet         bool        `toml:"use_testnet"`
	RESTBaseURL        string      `toml:"rest_base_url"`
	HTTPTimeoutSeconds int         `toml:"http_timeout_seconds"`
	Proxy              ProxyConfig `toml:"proxy"`

	// Credentials come from the environment, never from the file.
	APIKey    string `toml:"-"`
	APISecret string `toml:"-"`
}

func (m MarketConfig) HTTPTimeout() time.Duration {
	return time.Duration(m.HTTPTimeoutSeconds) * time.Second
}

type ProxyConfig struct {
	Enabled bool   `toml:"enabled"`
	RESTURL string `toml:"rest_url"`
	WSURL   string `toml:"ws_url"`
}

type StreamConfig struct {
	MarketStaleSeconds int `toml:"market_stale_seconds"`
	UserStaleSeconds   int `toml:"user_stale_seconds"`
	WatchdogSeconds    int `toml:"watchdog_seconds"`
	MaxBackoffSeconds  int `toml:"max_backoff_seconds"`
}

func (s StreamConfig) MarketStale() time.Duration {
	return time.Duration(s.MarketStaleSeconds) * time.Second
}

func (s StreamConfig) UserStale() time.Duration {
	return time.Duration(s.UserStaleSeconds) * time.Second
}

func (s StreamConfig) Watchdog() time.Duration {
	return time.Duration(s.WatchdogSeconds) * time.Second
}

func (s StreamConfig) MaxBackoff() time.Duration {
	return time.Duration(s.MaxBackoffSeconds) * time.Second
}

type UserStreamConfig struct {
	KeepAliveMinutes  int `toml:"keep_alive_minutes"`
	MaxKeepAliveFails int `toml:"max_keep_alive_fails"`
}

func (u UserStreamConfig) KeepAliveInterval() time.Duration {
	return time.Duration(u.KeepAliveMinutes) * time.Minute
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

// keySet tracks which config paths were explicitly present in the file, so
// defaults never clobber an intentional zero/false value.
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

// fieldDefault describes the default rule for a single field.
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
