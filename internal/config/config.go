// Package config defines the top-level configuration for the stochastic
// trader and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/alanyoungcy/stochtrader/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by STOCHTRADER_* environment variables.
type Config struct {
	Mode            string             `toml:"mode"`
	LogLevel        string             `toml:"log_level"`
	CloseOnShutdown bool               `toml:"close_on_shutdown"`
	Log             LogConfig          `toml:"log"`
	Instruments     []InstrumentConfig `toml:"instruments"`
	Strategy        StrategyConfig     `toml:"strategy"`
	Feed            FeedConfig         `toml:"feed"`
	Venue           VenueConfig        `toml:"venue"`
	Router          RouterConfig       `toml:"router"`
	Postgres        PostgresConfig     `toml:"postgres"`
	Redis           RedisConfig        `toml:"redis"`
	S3              S3Config           `toml:"s3"`
	Server          ServerConfig       `toml:"server"`
	Notify          NotifyConfig       `toml:"notify"`
}

// LogConfig controls the optional rotating log file. Stdout logging is
// always on.
type LogConfig struct {
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// InstrumentConfig names one traded instrument and its minimum price step.
type InstrumentConfig struct {
	Symbol   string  `toml:"symbol"`
	TickSize float64 `toml:"tick_size"`
}

// StrategyConfig holds the stochastic/ADX input parameters shared by every
// instrument.
type StrategyConfig struct {
	Monday    bool `toml:"monday"`
	Tuesday   bool `toml:"tuesday"`
	Wednesday bool `toml:"wednesday"`
	Thursday  bool `toml:"thursday"`
	Friday    bool `toml:"friday"`

	// Timezone is the IANA zone the day and session filters read bar
	// times in. Empty means UTC.
	Timezone         string           `toml:"timezone"`
	SessionStart     domain.TimeOfDay `toml:"session_start"`
	SessionEnd       domain.TimeOfDay `toml:"session_end"`
	ExitAtSessionEnd bool             `toml:"exit_at_session_end"`

	RangeLookback int     `toml:"range_lookback"`
	MinimumRange  float64 `toml:"minimum_range"`

	ADXLength   int     `toml:"adx_length"`
	SMALength   int     `toml:"sma_length"`
	MinLongADX  float64 `toml:"min_long_adx"`
	MinShortADX float64 `toml:"min_short_adx"`

	StochLength int `toml:"stoch_length"`
	StochSlowK  int `toml:"stoch_slow_k"`
	StochSlowD  int `toml:"stoch_slow_d"`

	BuySignal  float64 `toml:"buy_signal"`
	SellSignal float64 `toml:"sell_signal"`

	TrailingDistanceTicks int     `toml:"trailing_distance_ticks"`
	AccelerationSeed      float64 `toml:"acceleration_seed"`
	ProfitDistanceTicks   int     `toml:"profit_distance_ticks"`

	HistorySize int `toml:"history_size"`
}

// FeedConfig selects and configures the bar source.
type FeedConfig struct {
	// Source is "ws" or "redis".
	Source        string   `toml:"source"`
	WsURL         string   `toml:"ws_url"`
	PingInterval  duration `toml:"ping_interval"`
	ReconnectMin  duration `toml:"reconnect_min"`
	ReconnectMax  duration `toml:"reconnect_max"`
	ChannelPrefix string   `toml:"channel_prefix"`
}

// VenueConfig selects where orders are sent.
type VenueConfig struct {
	// Kind is "paper" or "bus".
	Kind          string `toml:"kind"`
	CommandPrefix string `toml:"command_prefix"`
	EventPrefix   string `toml:"event_prefix"`
}

// RouterConfig holds retry policy for transient venue errors.
type RouterConfig struct {
	MaxAttempts int      `toml:"max_attempts"`
	MinBackoff  duration `toml:"min_backoff"`
	MaxBackoff  duration `toml:"max_backoff"`
	Factor      float64  `toml:"factor"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	LockTTL    duration `toml:"lock_ttl"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	JournalPrefix  string `toml:"journal_prefix"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled bool   `toml:"enabled"`
	Port    int    `toml:"port"`
	APIKey  string `toml:"api_key"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Mode:     "paper",
		LogLevel: "info",
		Log: LogConfig{
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		Strategy: StrategyConfig{
			Monday:                true,
			Tuesday:               true,
			Wednesday:             true,
			Thursday:              true,
			Friday:                true,
			SessionStart:          domain.NewTimeOfDay(0, 0, 0),
			SessionEnd:            domain.NewTimeOfDay(23, 59, 59),
			RangeLookback:         20,
			MinimumRange:          0,
			ADXLength:             14,
			SMALength:             20,
			MinLongADX:            20,
			MinShortADX:           20,
			StochLength:           14,
			StochSlowK:            3,
			StochSlowD:            3,
			BuySignal:             51,
			SellSignal:            49,
			TrailingDistanceTicks: 24,
			AccelerationSeed:      0.2,
			ProfitDistanceTicks:   77,
			HistorySize:           500,
		},
		Feed: FeedConfig{
			Source:        "ws",
			WsURL:         "ws://localhost:8765/bars",
			PingInterval:  duration{30 * time.Second},
			ReconnectMin:  duration{500 * time.Millisecond},
			ReconnectMax:  duration{30 * time.Second},
			ChannelPrefix: "bars:",
		},
		Venue: VenueConfig{
			Kind:          "paper",
			CommandPrefix: "venue:commands:",
			EventPrefix:   "venue:events:",
		},
		Router: RouterConfig{
			MaxAttempts: 3,
			MinBackoff:  duration{100 * time.Millisecond},
			MaxBackoff:  duration{2 * time.Second},
			Factor:      2,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "stochtrader",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			LockTTL:    duration{30 * time.Second},
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "stochtrader-journal",
			ForcePathStyle: true,
			JournalPrefix:  "sessions",
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8000,
		},
		Notify: NotifyConfig{
			Events: []string{string(domain.PositionOpened), string(domain.PositionClosed), "error"},
		},
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"paper": true,
	"live":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: paper, live)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Instruments
	if len(c.Instruments) == 0 {
		errs = append(errs, "instruments: at least one [[instruments]] entry is required")
	}
	seen := make(map[string]bool, len(c.Instruments))
	for i, inst := range c.Instruments {
		if strings.TrimSpace(inst.Symbol) == "" {
			errs = append(errs, fmt.Sprintf("instruments[%d]: symbol must not be empty", i))
		}
		if seen[inst.Symbol] {
			errs = append(errs, fmt.Sprintf("instruments[%d]: duplicate symbol %q", i, inst.Symbol))
		}
		seen[inst.Symbol] = true
		if inst.TickSize <= 0 {
			errs = append(errs, fmt.Sprintf("instruments[%d]: tick_size must be > 0", i))
		}
	}

	errs = append(errs, c.Strategy.validate()...)

	// Feed
	switch c.Feed.Source {
	case "ws":
		if c.Feed.WsURL == "" {
			errs = append(errs, "feed: ws_url must not be empty when source is ws")
		}
	case "redis":
		if !c.Redis.Enabled {
			errs = append(errs, "feed: source redis requires redis.enabled")
		}
	default:
		errs = append(errs, fmt.Sprintf("feed: unknown source %q (valid: ws, redis)", c.Feed.Source))
	}

	// Venue
	switch c.Venue.Kind {
	case "paper":
		if c.Mode == "live" {
			errs = append(errs, "venue: kind paper is not allowed in live mode")
		}
	case "bus":
		if !c.Redis.Enabled {
			errs = append(errs, "venue: kind bus requires redis.enabled")
		}
	default:
		errs = append(errs, fmt.Sprintf("venue: unknown kind %q (valid: paper, bus)", c.Venue.Kind))
	}

	// Router
	if c.Router.MaxAttempts < 1 {
		errs = append(errs, "router: max_attempts must be >= 1")
	}
	if c.Router.Factor < 1 {
		errs = append(errs, "router: factor must be >= 1")
	}

	// Postgres
	if c.Mode == "live" && !c.Postgres.Enabled {
		errs = append(errs, "postgres: must be enabled in live mode")
	}
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Mode == "live" && !c.Redis.Enabled {
		errs = append(errs, "redis: must be enabled in live mode")
	}
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.Redis.LockTTL.Duration < time.Second {
			errs = append(errs, "redis: lock_ttl must be at least 1s")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Location resolves Timezone.
func (s StrategyConfig) Location() (*time.Location, error) {
	return time.LoadLocation(s.Timezone)
}

func (s StrategyConfig) validate() []string {
	var errs []string
	positive := []struct {
		name string
		v    int
	}{
		{"range_lookback", s.RangeLookback},
		{"adx_length", s.ADXLength},
		{"sma_length", s.SMALength},
		{"stoch_length", s.StochLength},
		{"stoch_slow_k", s.StochSlowK},
		{"stoch_slow_d", s.StochSlowD},
		{"trailing_distance_ticks", s.TrailingDistanceTicks},
		{"profit_distance_ticks", s.ProfitDistanceTicks},
	}
	for _, p := range positive {
		if p.v < 1 {
			errs = append(errs, fmt.Sprintf("strategy: %s must be >= 1", p.name))
		}
	}
	if s.SMALength < 2 {
		errs = append(errs, "strategy: sma_length must be >= 2")
	}
	if s.MinimumRange < 0 {
		errs = append(errs, "strategy: minimum_range must be >= 0")
	}
	if _, err := s.Location(); err != nil {
		errs = append(errs, fmt.Sprintf("strategy: timezone: %v", err))
	}
	if s.MinLongADX < 0 || s.MinLongADX > 100 {
		errs = append(errs, "strategy: min_long_adx must be within [0, 100]")
	}
	if s.MinShortADX < 0 || s.MinShortADX > 100 {
		errs = append(errs, "strategy: min_short_adx must be within [0, 100]")
	}
	if s.BuySignal <= 0 || s.BuySignal >= 100 {
		errs = append(errs, "strategy: buy_signal must be within (0, 100)")
	}
	if s.SellSignal <= 0 || s.SellSignal >= 100 {
		errs = append(errs, "strategy: sell_signal must be within (0, 100)")
	}
	if s.AccelerationSeed <= 0 {
		errs = append(errs, "strategy: acceleration_seed must be > 0")
	}
	if s.HistorySize < 2 {
		errs = append(errs, "strategy: history_size must be >= 2")
	}
	return errs
}

// TickSizeFor returns the configured tick size of symbol.
func (c *Config) TickSizeFor(symbol string) (float64, error) {
	for _, inst := range c.Instruments {
		if inst.Symbol == symbol {
			return inst.TickSize, nil
		}
	}
	return 0, fmt.Errorf("config: %q: %w", symbol, domain.ErrUnknownInstrument)
}

// Symbols lists the configured instrument symbols in file order.
func (c *Config) Symbols() []string {
	out := make([]string, 0, len(c.Instruments))
	for _, inst := range c.Instruments {
		out = append(out, inst.Symbol)
	}
	return out
}
