// Package config loads the runtime tunables spec.md §6.4 names, merging a
// YAML/JSON file with environment-variable overrides (env wins), adapted
// from the teacher's config.LoadFromFile/SaveToFile/Validate/Default idiom
// but backed by spf13/viper so every key binds to an environment variable —
// the teacher's hand-rolled loader has no env support, which spec.md §6.4
// requires.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds every tunable named in spec.md §6.4.
type Config struct {
	ScanIntervalSeconds     int `mapstructure:"scan_interval_seconds" yaml:"scan_interval_seconds"`
	MonitorIntervalSeconds  int `mapstructure:"monitor_interval_seconds" yaml:"monitor_interval_seconds"`
	BuyerIntervalSeconds    int `mapstructure:"buyer_interval_seconds" yaml:"buyer_interval_seconds"`
	SellerIntervalSeconds   int `mapstructure:"seller_interval_seconds" yaml:"seller_interval_seconds"`
	HotCheckIntervalSeconds int `mapstructure:"hot_check_interval" yaml:"hot_check_interval"`

	DailyWatchlistSize int `mapstructure:"daily_watchlist_size" yaml:"daily_watchlist_size"`
	BaseUniverseSize   int `mapstructure:"base_universe_size" yaml:"base_universe_size"`

	MinGapPct             float64 `mapstructure:"min_gap_pct" yaml:"min_gap_pct"`
	MinPremarketVolume    float64 `mapstructure:"min_premarket_volume" yaml:"min_premarket_volume"`
	MinPremarketRelVolume float64 `mapstructure:"min_premarket_rel_volume" yaml:"min_premarket_rel_volume"`
	PriceMin              float64 `mapstructure:"price_min" yaml:"price_min"`
	PriceMax              float64 `mapstructure:"price_max" yaml:"price_max"`

	MinEntryScore     int     `mapstructure:"min_entry_score" yaml:"min_entry_score"`
	MinBreakoutPct    float64 `mapstructure:"min_breakout_pct" yaml:"min_breakout_pct"`
	MinRelativeVolume float64 `mapstructure:"min_relative_volume" yaml:"min_relative_volume"`
	RSIMin            float64 `mapstructure:"rsi_min" yaml:"rsi_min"`
	RSIMax            float64 `mapstructure:"rsi_max" yaml:"rsi_max"`
	RequireAboveVWAP  bool    `mapstructure:"require_above_vwap" yaml:"require_above_vwap"`

	SignalMaxAgeSeconds int     `mapstructure:"signal_max_age_seconds" yaml:"signal_max_age_seconds"`
	MaxSlippagePct      float64 `mapstructure:"max_slippage_pct" yaml:"max_slippage_pct"`
	MaxSpreadPct        float64 `mapstructure:"max_spread_pct" yaml:"max_spread_pct"`
	UseLimitOrders      bool    `mapstructure:"use_limit_orders" yaml:"use_limit_orders"`
	LimitOrderBuffer    float64 `mapstructure:"limit_order_buffer" yaml:"limit_order_buffer"`

	MaxPositions int `mapstructure:"max_positions" yaml:"max_positions"`

	StopLossPct            float64 `mapstructure:"stop_loss_pct" yaml:"stop_loss_pct"`
	BreakevenProfit        float64 `mapstructure:"breakeven_profit" yaml:"breakeven_profit"`
	DecelExitThreshold     float64 `mapstructure:"decel_exit_threshold" yaml:"decel_exit_threshold"`
	MinProfitForDecelCheck float64 `mapstructure:"min_profit_for_decel_check" yaml:"min_profit_for_decel_check"`

	CooldownMinutes int `mapstructure:"cooldown_minutes" yaml:"cooldown_minutes"`
	APIRateLimit    int `mapstructure:"api_rate_limit" yaml:"api_rate_limit"`

	StateDir string `mapstructure:"state_dir" yaml:"state_dir"`
	LogDir   string `mapstructure:"log_dir" yaml:"log_dir"`
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`

	BrokerKind    string `mapstructure:"broker" yaml:"broker"` // "paper" or "alpaca"
	BrokerAPIKey  string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	BrokerSecret  string `mapstructure:"api_secret" yaml:"api_secret,omitempty"`
	BrokerBaseURL string `mapstructure:"base_url" yaml:"base_url,omitempty"`
	BrokerDataURL string `mapstructure:"data_url" yaml:"data_url,omitempty"`

	// BrokerStreamURL is the WebSocket endpoint Monitor streams live quotes
	// from (internal/streamquote). Empty disables streaming; Monitor falls
	// back to polling the broker's REST quote endpoint every cycle.
	BrokerStreamURL string `mapstructure:"stream_url" yaml:"stream_url,omitempty"`

	// MetricsAddr, if non-empty, is the address `momentum orchestrator`
	// binds a Prometheus /metrics HTTP endpoint to (e.g. ":9090").
	MetricsAddr string `mapstructure:"metrics_addr" yaml:"metrics_addr,omitempty"`

	// UniverseRoot is the directory internal/universe.Locate searches for
	// universes/base_universe/base_universe.txt (spec.md §4.1). It is
	// resolved against the process's working directory, not StateDir, since
	// the universe file ships alongside the binary rather than living in
	// per-run state.
	UniverseRoot string `mapstructure:"universe_root" yaml:"universe_root,omitempty"`
}

// SaveToFile writes cfg as YAML, following the teacher's
// Config.SaveToFile so `momentum config init` can hand the operator a file
// shaped exactly like what Load reads back in.
func (c *Config) SaveToFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// ScanInterval etc. convert the stored seconds into time.Duration for the
// service loops.
func (c *Config) ScanInterval() time.Duration    { return time.Duration(c.ScanIntervalSeconds) * time.Second }
func (c *Config) MonitorInterval() time.Duration { return time.Duration(c.MonitorIntervalSeconds) * time.Second }
func (c *Config) BuyerInterval() time.Duration   { return time.Duration(c.BuyerIntervalSeconds) * time.Second }
func (c *Config) SellerInterval() time.Duration  { return time.Duration(c.SellerIntervalSeconds) * time.Second }
func (c *Config) HotCheckInterval() time.Duration {
	return time.Duration(c.HotCheckIntervalSeconds) * time.Second
}
func (c *Config) SignalMaxAge() time.Duration {
	return time.Duration(c.SignalMaxAgeSeconds) * time.Second
}
func (c *Config) CooldownDuration() time.Duration {
	return time.Duration(c.CooldownMinutes) * time.Minute
}

// Default returns spec.md §6.4's defaults.
func Default() *Config {
	return &Config{
		ScanIntervalSeconds:     45,
		MonitorIntervalSeconds:  30,
		BuyerIntervalSeconds:    15,
		SellerIntervalSeconds:   15,
		HotCheckIntervalSeconds: 5,

		DailyWatchlistSize: 25,
		BaseUniverseSize:   500,

		MinGapPct:             0.03,
		MinPremarketVolume:    50000,
		MinPremarketRelVolume: 2.0,
		PriceMin:              2.0,
		PriceMax:              50.0,

		MinEntryScore:     60,
		MinBreakoutPct:    0.01,
		MinRelativeVolume: 2.0,
		RSIMin:            40,
		RSIMax:            75,
		RequireAboveVWAP:  true,

		SignalMaxAgeSeconds: 60,
		MaxSlippagePct:      0.02,
		MaxSpreadPct:        0.02,
		UseLimitOrders:      true,
		LimitOrderBuffer:    0.005,

		MaxPositions: 20,

		StopLossPct:            0.025,
		BreakevenProfit:        0.05,
		DecelExitThreshold:     0.5,
		MinProfitForDecelCheck: 0.05,

		CooldownMinutes: 15,
		APIRateLimit:    200,

		StateDir: "state",
		LogDir:   "logs",
		LogLevel: "info",

		BrokerKind: "paper",

		UniverseRoot: ".",
	}
}

// Load merges spec.md §6.4's defaults, an optional config file, and
// environment variables (env wins), following the teacher's
// LoadFromFile/Validate/Default naming.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MOMENTUM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := Default()
	bindDefaults(v, def)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func bindDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("scan_interval_seconds", d.ScanIntervalSeconds)
	v.SetDefault("monitor_interval_seconds", d.MonitorIntervalSeconds)
	v.SetDefault("buyer_interval_seconds", d.BuyerIntervalSeconds)
	v.SetDefault("seller_interval_seconds", d.SellerIntervalSeconds)
	v.SetDefault("hot_check_interval", d.HotCheckIntervalSeconds)
	v.SetDefault("daily_watchlist_size", d.DailyWatchlistSize)
	v.SetDefault("base_universe_size", d.BaseUniverseSize)
	v.SetDefault("min_gap_pct", d.MinGapPct)
	v.SetDefault("min_premarket_volume", d.MinPremarketVolume)
	v.SetDefault("min_premarket_rel_volume", d.MinPremarketRelVolume)
	v.SetDefault("price_min", d.PriceMin)
	v.SetDefault("price_max", d.PriceMax)
	v.SetDefault("min_entry_score", d.MinEntryScore)
	v.SetDefault("min_breakout_pct", d.MinBreakoutPct)
	v.SetDefault("min_relative_volume", d.MinRelativeVolume)
	v.SetDefault("rsi_min", d.RSIMin)
	v.SetDefault("rsi_max", d.RSIMax)
	v.SetDefault("require_above_vwap", d.RequireAboveVWAP)
	v.SetDefault("signal_max_age_seconds", d.SignalMaxAgeSeconds)
	v.SetDefault("max_slippage_pct", d.MaxSlippagePct)
	v.SetDefault("max_spread_pct", d.MaxSpreadPct)
	v.SetDefault("use_limit_orders", d.UseLimitOrders)
	v.SetDefault("limit_order_buffer", d.LimitOrderBuffer)
	v.SetDefault("max_positions", d.MaxPositions)
	v.SetDefault("stop_loss_pct", d.StopLossPct)
	v.SetDefault("breakeven_profit", d.BreakevenProfit)
	v.SetDefault("decel_exit_threshold", d.DecelExitThreshold)
	v.SetDefault("min_profit_for_decel_check", d.MinProfitForDecelCheck)
	v.SetDefault("cooldown_minutes", d.CooldownMinutes)
	v.SetDefault("api_rate_limit", d.APIRateLimit)
	v.SetDefault("state_dir", d.StateDir)
	v.SetDefault("log_dir", d.LogDir)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("broker", d.BrokerKind)
	v.SetDefault("api_key", "")
	v.SetDefault("api_secret", "")
	v.SetDefault("base_url", "")
	v.SetDefault("data_url", "")
	v.SetDefault("stream_url", "")
	v.SetDefault("metrics_addr", "")
	v.SetDefault("universe_root", d.UniverseRoot)
}

// Validate checks the configuration's invariants, following the teacher's
// one-if-per-invariant style.
func (c *Config) Validate() error {
	if c.ScanIntervalSeconds <= 0 {
		return fmt.Errorf("scan_interval_seconds must be positive")
	}
	if c.MaxPositions <= 0 {
		return fmt.Errorf("max_positions must be positive")
	}
	if c.StopLossPct <= 0 || c.StopLossPct >= 1 {
		return fmt.Errorf("stop_loss_pct must be between 0 and 1")
	}
	if c.PriceMin <= 0 || c.PriceMax <= c.PriceMin {
		return fmt.Errorf("price_min/price_max must be positive and price_max > price_min")
	}
	if c.RSIMin < 0 || c.RSIMax > 100 || c.RSIMin >= c.RSIMax {
		return fmt.Errorf("rsi_min/rsi_max must be a valid 0-100 range")
	}
	if c.StateDir == "" {
		return fmt.Errorf("state_dir is required")
	}
	if c.BrokerKind != "paper" && c.BrokerKind != "alpaca" {
		return fmt.Errorf("broker must be 'paper' or 'alpaca'")
	}
	if c.BrokerKind == "alpaca" && (c.BrokerAPIKey == "" || c.BrokerSecret == "") {
		return fmt.Errorf("api_key/api_secret are required when broker=alpaca")
	}
	return nil
}
