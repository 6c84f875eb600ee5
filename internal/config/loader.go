package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/alanyoungcy/stochtrader/internal/domain"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies STOCHTRADER_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known STOCHTRADER_* environment variables and
// overwrites the corresponding Config fields when a variable is set.
func applyEnvOverrides(cfg *Config) {
	// ── Top-level ──
	setStr(&cfg.Mode, "STOCHTRADER_MODE")
	setStr(&cfg.LogLevel, "STOCHTRADER_LOG_LEVEL")
	setBool(&cfg.CloseOnShutdown, "STOCHTRADER_CLOSE_ON_SHUTDOWN")
	setStr(&cfg.Log.File, "STOCHTRADER_LOG_FILE")
	setInstruments(&cfg.Instruments, "STOCHTRADER_INSTRUMENTS")

	// ── Strategy ──
	s := &cfg.Strategy
	setBool(&s.Monday, "STOCHTRADER_STRATEGY_MONDAY")
	setBool(&s.Tuesday, "STOCHTRADER_STRATEGY_TUESDAY")
	setBool(&s.Wednesday, "STOCHTRADER_STRATEGY_WEDNESDAY")
	setBool(&s.Thursday, "STOCHTRADER_STRATEGY_THURSDAY")
	setBool(&s.Friday, "STOCHTRADER_STRATEGY_FRIDAY")
	setStr(&s.Timezone, "STOCHTRADER_STRATEGY_TIMEZONE")
	setTimeOfDay(&s.SessionStart, "STOCHTRADER_STRATEGY_SESSION_START")
	setTimeOfDay(&s.SessionEnd, "STOCHTRADER_STRATEGY_SESSION_END")
	setBool(&s.ExitAtSessionEnd, "STOCHTRADER_STRATEGY_EXIT_AT_SESSION_END")
	setInt(&s.RangeLookback, "STOCHTRADER_STRATEGY_RANGE_LOOKBACK")
	setFloat64(&s.MinimumRange, "STOCHTRADER_STRATEGY_MINIMUM_RANGE")
	setInt(&s.ADXLength, "STOCHTRADER_STRATEGY_ADX_LENGTH")
	setInt(&s.SMALength, "STOCHTRADER_STRATEGY_SMA_LENGTH")
	setFloat64(&s.MinLongADX, "STOCHTRADER_STRATEGY_MIN_LONG_ADX")
	setFloat64(&s.MinShortADX, "STOCHTRADER_STRATEGY_MIN_SHORT_ADX")
	setInt(&s.StochLength, "STOCHTRADER_STRATEGY_STOCH_LENGTH")
	setInt(&s.StochSlowK, "STOCHTRADER_STRATEGY_STOCH_SLOW_K")
	setInt(&s.StochSlowD, "STOCHTRADER_STRATEGY_STOCH_SLOW_D")
	setFloat64(&s.BuySignal, "STOCHTRADER_STRATEGY_BUY_SIGNAL")
	setFloat64(&s.SellSignal, "STOCHTRADER_STRATEGY_SELL_SIGNAL")
	setInt(&s.TrailingDistanceTicks, "STOCHTRADER_STRATEGY_TRAILING_DISTANCE_TICKS")
	setFloat64(&s.AccelerationSeed, "STOCHTRADER_STRATEGY_ACCELERATION_SEED")
	setInt(&s.ProfitDistanceTicks, "STOCHTRADER_STRATEGY_PROFIT_DISTANCE_TICKS")
	setInt(&s.HistorySize, "STOCHTRADER_STRATEGY_HISTORY_SIZE")

	// ── Feed / venue / router ──
	setStr(&cfg.Feed.Source, "STOCHTRADER_FEED_SOURCE")
	setStr(&cfg.Feed.WsURL, "STOCHTRADER_FEED_WS_URL")
	setDuration(&cfg.Feed.PingInterval, "STOCHTRADER_FEED_PING_INTERVAL")
	setStr(&cfg.Venue.Kind, "STOCHTRADER_VENUE_KIND")
	setInt(&cfg.Router.MaxAttempts, "STOCHTRADER_ROUTER_MAX_ATTEMPTS")
	setDuration(&cfg.Router.MinBackoff, "STOCHTRADER_ROUTER_MIN_BACKOFF")
	setDuration(&cfg.Router.MaxBackoff, "STOCHTRADER_ROUTER_MAX_BACKOFF")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "STOCHTRADER_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "STOCHTRADER_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "STOCHTRADER_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "STOCHTRADER_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "STOCHTRADER_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "STOCHTRADER_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "STOCHTRADER_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "STOCHTRADER_POSTGRES_SSL_MODE")
	setBool(&cfg.Postgres.RunMigrations, "STOCHTRADER_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "STOCHTRADER_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "STOCHTRADER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "STOCHTRADER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "STOCHTRADER_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "STOCHTRADER_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "STOCHTRADER_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "STOCHTRADER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "STOCHTRADER_S3_REGION")
	setStr(&cfg.S3.Bucket, "STOCHTRADER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "STOCHTRADER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "STOCHTRADER_S3_SECRET_KEY")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "STOCHTRADER_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "STOCHTRADER_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "STOCHTRADER_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "STOCHTRADER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "STOCHTRADER_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "STOCHTRADER_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "STOCHTRADER_NOTIFY_EVENTS")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present, non-empty and parses.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setTimeOfDay(dst *domain.TimeOfDay, key string) {
	if v := os.Getenv(key); v != "" {
		if t, err := domain.ParseTimeOfDay(v); err == nil {
			*dst = t
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		if cleaned := splitList(v); len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}

// setInstruments parses "SYMBOL:TICK,SYMBOL:TICK". The override is applied
// only when every entry parses.
func setInstruments(dst *[]InstrumentConfig, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []InstrumentConfig
	for _, item := range splitList(v) {
		sym, tick, ok := strings.Cut(item, ":")
		if !ok {
			return
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(tick), 64)
		if err != nil {
			return
		}
		out = append(out, InstrumentConfig{Symbol: strings.TrimSpace(sym), TickSize: f})
	}
	if len(out) > 0 {
		*dst = out
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	cleaned := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return cleaned
}
