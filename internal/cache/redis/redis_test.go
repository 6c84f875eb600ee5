package redis

import "testing"

func TestIsPattern(t *testing.T) {
	tests := map[string]bool{
		"positions":      false,
		"bars:ES":        false,
		"venue:events:*": true,
		"bars:E?":        true,
		"bars:[EN]*":     true,
	}
	for channel, want := range tests {
		if got := isPattern(channel); got != want {
			t.Errorf("isPattern(%q) = %v, want %v", channel, got, want)
		}
	}
}

func TestLockKey(t *testing.T) {
	if got := lockKey("instrument:ES"); got != "lock:instrument:ES" {
		t.Errorf("lockKey = %q", got)
	}
}
