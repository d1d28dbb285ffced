package realtime

import (
	"testing"
	"time"
)

// TestBackoffGrowth simulates consecutive connection failures and
// checks that retry delays are non-decreasing and never exceed the cap.
func TestBackoffGrowth(t *testing.T) {
	initial := time.Second
	max := 30 * time.Second

	prev := time.Duration(0)
	for attempt := 0; attempt < 20; attempt++ {
		delay := backoffDelay(attempt, initial, max)
		if delay < prev {
			t.Errorf("attempt %d: delay %v < previous %v (must be non-decreasing)", attempt, delay, prev)
		}
		if delay > max {
			t.Errorf("attempt %d: delay %v exceeds cap %v", attempt, delay, max)
		}
		prev = delay
	}
}

func TestBackoffDoubling(t *testing.T) {
	initial := time.Second
	max := 30 * time.Second

	want := []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 30 * time.Second,
	}
	for attempt, w := range want {
		if got := backoffDelay(attempt, initial, max); got != w {
			t.Errorf("backoffDelay(%d) = %v, want %v", attempt, got, w)
		}
	}
}

func TestBackoffDefaults(t *testing.T) {
	if got := backoffDelay(0, 0, 0); got != defaultInitialBackoff {
		t.Errorf("backoffDelay(0) with zero opts = %v, want %v", got, defaultInitialBackoff)
	}
	if got := backoffDelay(100, 0, 0); got != defaultMaxBackoff {
		t.Errorf("backoffDelay(100) with zero opts = %v, want %v", got, defaultMaxBackoff)
	}
}
