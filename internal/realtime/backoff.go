package realtime

import "time"

const (
	defaultInitialBackoff = time.Second
	defaultMaxBackoff     = 30 * time.Second
)

// backoffDelay returns the reconnect delay for the given attempt
// (0-based): initial, 2×initial, 4×initial, ... capped at max.
// Reconnection never gives up, so delays saturate at the cap rather
// than growing without bound.
func backoffDelay(attempt int, initial, max time.Duration) time.Duration {
	if initial <= 0 {
		initial = defaultInitialBackoff
	}
	if max <= 0 {
		max = defaultMaxBackoff
	}
	delay := initial
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
