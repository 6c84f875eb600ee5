package strategy

import (
	"testing"
	"time"

	"github.com/alanyoungcy/stochtrader/internal/domain"
)

func TestSessionFilter(t *testing.T) {
	at := func(h int) time.Time { return time.Date(2024, 3, 4, h, 0, 0, 0, time.UTC) }
	tests := []struct {
		name       string
		start, end domain.TimeOfDay
		when       time.Time
		want       bool
	}{
		{"overnight late evening", domain.NewTimeOfDay(18, 0, 0), domain.NewTimeOfDay(6, 0, 0), at(23), true},
		{"overnight midday", domain.NewTimeOfDay(18, 0, 0), domain.NewTimeOfDay(6, 0, 0), at(12), false},
		{"overnight early morning", domain.NewTimeOfDay(18, 0, 0), domain.NewTimeOfDay(6, 0, 0), at(3), true},
		{"day session midday", domain.NewTimeOfDay(6, 0, 0), domain.NewTimeOfDay(18, 0, 0), at(12), true},
		{"day session evening", domain.NewTimeOfDay(6, 0, 0), domain.NewTimeOfDay(18, 0, 0), at(20), false},
		{"inclusive start", domain.NewTimeOfDay(6, 0, 0), domain.NewTimeOfDay(18, 0, 0), at(6), true},
		{"inclusive end", domain.NewTimeOfDay(6, 0, 0), domain.NewTimeOfDay(18, 0, 0), at(18), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams(dec("0.25"))
			p.SessionStart, p.SessionEnd = tt.start, tt.end
			if got := NewFilterEvaluator(p).InSession(tt.when); got != tt.want {
				t.Errorf("InSession(%s) = %v, want %v", tt.when.Format("15:04"), got, tt.want)
			}
		})
	}
}

func TestFiltersUseExchangeTimezone(t *testing.T) {
	chicago := time.FixedZone("CST", -6*60*60)
	p := DefaultParams(dec("0.25"))
	p.Location = chicago
	p.SessionStart, p.SessionEnd = domain.NewTimeOfDay(8, 30, 0), domain.NewTimeOfDay(15, 0, 0)
	p.Monday = false
	f := NewFilterEvaluator(p)

	tests := []struct {
		name        string
		when        time.Time
		wantSession bool
		wantDay     bool
	}{
		// 2024-03-05 15:00 UTC is Tuesday 09:00 in Chicago.
		{"open in exchange time", time.Date(2024, 3, 5, 15, 0, 0, 0, time.UTC), true, true},
		// 2024-03-05 09:00 UTC is Tuesday 03:00 in Chicago.
		{"closed in exchange time", time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC), false, true},
		// 2024-03-05 03:00 UTC is still Monday evening in Chicago.
		{"weekday in exchange time", time.Date(2024, 3, 5, 3, 0, 0, 0, time.UTC), false, false},
		{"offset bar times", time.Date(2024, 3, 5, 10, 0, 0, 0, time.FixedZone("EST", -5*60*60)), true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.InSession(tt.when); got != tt.wantSession {
				t.Errorf("InSession = %v, want %v", got, tt.wantSession)
			}
			if got := f.DayAllowed(tt.when); got != tt.wantDay {
				t.Errorf("DayAllowed = %v, want %v", got, tt.wantDay)
			}
		})
	}
}

func TestFiltersDefaultToUTC(t *testing.T) {
	p := DefaultParams(dec("0.25"))
	p.SessionStart, p.SessionEnd = domain.NewTimeOfDay(9, 0, 0), domain.NewTimeOfDay(10, 0, 0)
	// 04:30 in New York is 09:30 UTC.
	when := time.Date(2024, 3, 4, 4, 30, 0, 0, time.FixedZone("EST", -5*60*60))
	if !NewFilterEvaluator(p).InSession(when) {
		t.Error("bar time not read in UTC")
	}
}

func TestDayFilter(t *testing.T) {
	p := DefaultParams(dec("0.25"))
	p.Wednesday = false
	f := NewFilterEvaluator(p)

	// 2024-03-04 is a Monday.
	for i := 0; i < 7; i++ {
		day := monday.AddDate(0, 0, i)
		want := day.Weekday() != time.Wednesday
		if got := f.DayAllowed(day); got != want {
			t.Errorf("DayAllowed(%s) = %v, want %v", day.Weekday(), got, want)
		}
	}
}

func TestVolatilityFilter(t *testing.T) {
	p := DefaultParams(dec("0.25"))
	p.MinimumRange = 5
	f := NewFilterEvaluator(p)
	if f.VolatilityAllowed(105, 100) {
		t.Error("range equal to the minimum must not pass")
	}
	if !f.VolatilityAllowed(105.25, 100) {
		t.Error("range above the minimum must pass")
	}
}

func TestTrendFilter(t *testing.T) {
	p := DefaultParams(dec("0.25"))
	p.MinLongADX, p.MinShortADX = 20, 30
	f := NewFilterEvaluator(p)

	tests := []struct {
		name       string
		pos        domain.Direction
		adx        float64
		sma0, sma1 float64
		want       Gates
	}{
		{"bullish strong", domain.Flat, 20, 101, 100, Gates{Long: true}},
		{"bullish weak", domain.Flat, 19.9, 101, 100, Gates{}},
		{"bearish strong", domain.Flat, 30, 99, 100, Gates{Short: true}},
		{"bearish below short minimum", domain.Flat, 25, 99, 100, Gates{}},
		{"flat sma", domain.Flat, 50, 100, 100, Gates{}},
		{"in position", domain.Long, 50, 101, 100, Gates{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.Trend(tt.pos, tt.adx, tt.sma0, tt.sma1); got != tt.want {
				t.Errorf("Trend = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestEvaluateRequiresEveryCategory(t *testing.T) {
	base := FilterInput{Time: monday, HighestHigh: 110, LowestLow: 100, ADX: 25, SMA0: 101, SMA1: 100}
	p := DefaultParams(dec("0.25"))
	if got := NewFilterEvaluator(p).Evaluate(base); !got.Long {
		t.Fatalf("baseline gates = %+v, want long enabled", got)
	}

	tests := []struct {
		name   string
		params func(*Params)
		input  func(*FilterInput)
	}{
		{"day", func(p *Params) { p.Monday = false }, nil},
		{"session", func(p *Params) { p.SessionStart, p.SessionEnd = domain.NewTimeOfDay(12, 0, 0), domain.NewTimeOfDay(13, 0, 0) }, nil},
		{"volatility", func(p *Params) { p.MinimumRange = 10 }, nil},
		{"trend", nil, func(in *FilterInput) { in.ADX = 5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams(dec("0.25"))
			in := base
			if tt.params != nil {
				tt.params(&p)
			}
			if tt.input != nil {
				tt.input(&in)
			}
			if got := NewFilterEvaluator(p).Evaluate(in); got.Long || got.Short {
				t.Errorf("gates = %+v, want both disabled", got)
			}
		})
	}
}
