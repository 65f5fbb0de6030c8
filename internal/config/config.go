// Package config defines all configuration for the grid-trading bot.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via GRIDBOT_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"gridbot/pkg/types"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	System   SystemConfig   `mapstructure:"system"`
	Default  Strategy       `mapstructure:"default_strategy"`
	Pairs    []Pair         `mapstructure:"pairs"`
	Web      WebConfig      `mapstructure:"web"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Store    StoreConfig    `mapstructure:"store"`
}

// SystemConfig holds process-wide flags.
//
//   - UseTestnet: trade against the venue sandbox instead of mainnet.
//   - CycleDelay: pause between full reconciliation passes.
//   - DaysKeep: retention window for trades and balance snapshots.
type SystemConfig struct {
	UseTestnet bool          `mapstructure:"use_testnet"`
	CycleDelay time.Duration `mapstructure:"cycle_delay"`
	DaysKeep   int           `mapstructure:"days_keep"`
}

// Strategy tunes the grid for one pair (or the default for all pairs).
//
//   - GridsQuantity: total number of ladder levels, must be even and ≥ 2.
//   - GridSpread: per-step price delta as a percent of the reference price.
//   - AmountPerGrid: order notional per level, in the quote asset.
//   - StartMode: behavior on the first reconciliation (wait, buy_1, buy_2).
//   - TrailingEnabled: shift the ladder up when price breaks the top level.
type Strategy struct {
	GridsQuantity   int             `mapstructure:"grids_quantity"`
	GridSpread      float64         `mapstructure:"grid_spread"`
	AmountPerGrid   float64         `mapstructure:"amount_per_grid"`
	StartMode       types.StartMode `mapstructure:"start_mode"`
	TrailingEnabled bool            `mapstructure:"trailing_enabled"`
}

// Pair enables one trading symbol, optionally overriding the default strategy.
type Pair struct {
	Symbol   string    `mapstructure:"symbol"`
	Enabled  bool      `mapstructure:"enabled"`
	Strategy *Strategy `mapstructure:"strategy"`
}

// WebConfig controls the HTTP command/query server. An empty Token leaves
// the API open, intended for localhost binds only.
type WebConfig struct {
	Host  string `mapstructure:"host"`
	Port  int    `mapstructure:"port"`
	Token string `mapstructure:"token"`
}

// TelegramConfig controls the notification sink.
type TelegramConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Token   string `mapstructure:"token"`
	ChatID  int64  `mapstructure:"chat_id"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// StoreConfig sets where the SQLite database and key file live.
type StoreConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: GRIDBOT_TELEGRAM_TOKEN; WEB_HOST and
// WEB_PORT override the HTTP bind address.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("GRIDBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("system.cycle_delay", 5*time.Second)
	v.SetDefault("system.days_keep", 30)
	v.SetDefault("web.host", "127.0.0.1")
	v.SetDefault("web.port", 8080)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("store.data_dir", "data")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if tok := os.Getenv("GRIDBOT_TELEGRAM_TOKEN"); tok != "" {
		cfg.Telegram.Token = tok
	}
	if host := os.Getenv("WEB_HOST"); host != "" {
		cfg.Web.Host = host
	}
	if port := os.Getenv("WEB_PORT"); port != "" {
		var p int
		if _, err := fmt.Sscanf(port, "%d", &p); err == nil && p > 0 {
			cfg.Web.Port = p
		}
	}
	if tok := os.Getenv("GRIDBOT_WEB_TOKEN"); tok != "" {
		cfg.Web.Token = tok
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.System.CycleDelay <= 0 {
		return fmt.Errorf("system.cycle_delay must be > 0")
	}
	if c.System.DaysKeep <= 0 {
		return fmt.Errorf("system.days_keep must be > 0")
	}
	if err := c.Default.validate("default_strategy"); err != nil {
		return err
	}
	seen := make(map[string]bool, len(c.Pairs))
	for _, p := range c.Pairs {
		if p.Symbol == "" {
			return fmt.Errorf("pairs: symbol is required")
		}
		if seen[p.Symbol] {
			return fmt.Errorf("pairs: duplicate symbol %q", p.Symbol)
		}
		seen[p.Symbol] = true
		if p.Strategy != nil {
			if err := p.Strategy.validate("pairs." + p.Symbol + ".strategy"); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Strategy) validate(where string) error {
	if s.GridsQuantity < 2 || s.GridsQuantity%2 != 0 {
		return fmt.Errorf("%s.grids_quantity must be even and >= 2, got %d", where, s.GridsQuantity)
	}
	if s.GridSpread <= 0 {
		return fmt.Errorf("%s.grid_spread must be > 0", where)
	}
	if s.AmountPerGrid <= 0 {
		return fmt.Errorf("%s.amount_per_grid must be > 0", where)
	}
	switch s.StartMode {
	case types.StartWait, types.StartBuy1, types.StartBuy2:
	default:
		return fmt.Errorf("%s.start_mode must be one of: wait, buy_1, buy_2", where)
	}
	return nil
}

// StrategyFor resolves the effective strategy for a symbol: the pair's
// override when present, otherwise the default.
func (c *Config) StrategyFor(symbol string) Strategy {
	for _, p := range c.Pairs {
		if p.Symbol == symbol && p.Strategy != nil {
			return *p.Strategy
		}
	}
	return c.Default
}

// EnabledSymbols returns the enabled pair symbols in config order.
func (c *Config) EnabledSymbols() []string {
	var out []string
	for _, p := range c.Pairs {
		if p.Enabled {
			out = append(out, p.Symbol)
		}
	}
	return out
}
