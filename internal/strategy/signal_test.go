package strategy

import "testing"

func TestDetect(t *testing.T) {
	both := Gates{Long: true, Short: true}
	tests := []struct {
		name   string
		gates  Gates
		d1, d0 float64
		want   Signal
	}{
		{"upward cross", both, 48, 52, SignalLong},
		{"upward from threshold", both, 51, 51.5, SignalLong},
		{"downward is not a buy", Gates{Long: true}, 52, 48, SignalNone},
		{"downward cross", both, 52, 48, SignalShort},
		{"downward from threshold", both, 49, 48.9, SignalShort},
		{"upward is not a sell", Gates{Short: true}, 48, 52, SignalNone},
		{"long gate closed", Gates{Short: true}, 48, 52, SignalNone},
		{"short gate closed", Gates{Long: true}, 52, 48, SignalNone},
		{"stays above", both, 60, 70, SignalNone},
		{"touches without crossing", both, 50, 51, SignalNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Detect(tt.gates, tt.d0, tt.d1, 51, 49); got != tt.want {
				t.Errorf("Detect(d1=%v, d0=%v) = %s, want %s", tt.d1, tt.d0, got, tt.want)
			}
		})
	}
}
