package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/stochtrader/internal/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMergesDefaults(t *testing.T) {
	path := writeConfig(t, `
mode = "paper"

[[instruments]]
symbol = "ES"
tick_size = 0.25

[strategy]
session_start = "18:00"
session_end = "06:00:30"
buy_signal = 55

[router]
min_backoff = "250ms"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got := cfg.Strategy.SessionStart; got != domain.NewTimeOfDay(18, 0, 0) {
		t.Errorf("session_start = %s", got)
	}
	if got := cfg.Strategy.SessionEnd; got != domain.NewTimeOfDay(6, 0, 30) {
		t.Errorf("session_end = %s", got)
	}
	if cfg.Strategy.BuySignal != 55 {
		t.Errorf("buy_signal = %v, want 55", cfg.Strategy.BuySignal)
	}
	if cfg.Strategy.SellSignal != 49 {
		t.Errorf("sell_signal default = %v, want 49", cfg.Strategy.SellSignal)
	}
	if cfg.Strategy.TrailingDistanceTicks != 24 || cfg.Strategy.ProfitDistanceTicks != 77 {
		t.Errorf("tick distances = %d/%d", cfg.Strategy.TrailingDistanceTicks, cfg.Strategy.ProfitDistanceTicks)
	}
	if cfg.Router.MinBackoff.Duration != 250*time.Millisecond {
		t.Errorf("min_backoff = %v", cfg.Router.MinBackoff.Duration)
	}
	tick, err := cfg.TickSizeFor("ES")
	if err != nil || tick != 0.25 {
		t.Errorf("TickSizeFor(ES) = %v, %v", tick, err)
	}
}

func TestLoadRejectsBadTimeOfDay(t *testing.T) {
	path := writeConfig(t, `
[strategy]
session_start = "25:00"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected decode error for 25:00")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("STOCHTRADER_MODE", "live")
	t.Setenv("STOCHTRADER_INSTRUMENTS", "EURUSD:0.0001, ES:0.25")
	t.Setenv("STOCHTRADER_STRATEGY_SESSION_END", "17:30")
	t.Setenv("STOCHTRADER_STRATEGY_FRIDAY", "false")
	t.Setenv("STOCHTRADER_STRATEGY_TIMEZONE", "America/Chicago")
	t.Setenv("STOCHTRADER_ROUTER_MAX_ATTEMPTS", "not-a-number")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	if cfg.Mode != "live" {
		t.Errorf("mode = %q", cfg.Mode)
	}
	if len(cfg.Instruments) != 2 || cfg.Instruments[0].Symbol != "EURUSD" || cfg.Instruments[1].TickSize != 0.25 {
		t.Errorf("instruments = %+v", cfg.Instruments)
	}
	if cfg.Strategy.SessionEnd != domain.NewTimeOfDay(17, 30, 0) {
		t.Errorf("session_end = %s", cfg.Strategy.SessionEnd)
	}
	if cfg.Strategy.Friday {
		t.Error("friday should be disabled")
	}
	if cfg.Strategy.Timezone != "America/Chicago" {
		t.Errorf("timezone = %q", cfg.Strategy.Timezone)
	}
	if cfg.Router.MaxAttempts != 3 {
		t.Errorf("unparseable override must be ignored, max_attempts = %d", cfg.Router.MaxAttempts)
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "backtest"
	cfg.Instruments = []InstrumentConfig{{Symbol: "ES", TickSize: 0}}
	cfg.Strategy.ADXLength = 0
	cfg.Strategy.AccelerationSeed = 0
	cfg.Strategy.Timezone = "Mars/Olympus_Mons"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"unknown mode", "tick_size", "adx_length", "acceleration_seed", "timezone"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q:\n%v", want, err)
		}
	}
}

func TestValidateLiveRequiresInfrastructure(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "live"
	cfg.Instruments = []InstrumentConfig{{Symbol: "ES", TickSize: 0.25}}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected live mode without postgres/redis to fail")
	}
	for _, want := range []string{"postgres: must be enabled", "redis: must be enabled", "kind paper is not allowed"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q:\n%v", want, err)
		}
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "hunter2"
	cfg.Server.APIKey = "k"
	out := RedactedConfig(&cfg)
	if out.Postgres.Password != redacted || out.Server.APIKey != redacted {
		t.Errorf("secrets not redacted: %+v", out.Postgres)
	}
	if cfg.Postgres.Password != "hunter2" {
		t.Error("original mutated")
	}
	if out.Redis.Password != "" {
		t.Error("empty secret must stay empty")
	}
}

func TestStrategyLocation(t *testing.T) {
	tests := []struct {
		zone    string
		want    string
		wantErr bool
	}{
		{"", "UTC", false},
		{"America/Chicago", "America/Chicago", false},
		{"Europe/London", "Europe/London", false},
		{"Not/AZone", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.zone, func(t *testing.T) {
			loc, err := StrategyConfig{Timezone: tt.zone}.Location()
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v", err)
			}
			if err == nil && loc.String() != tt.want {
				t.Errorf("location = %s, want %s", loc, tt.want)
			}
		})
	}
}
