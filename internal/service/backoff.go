package service

import (
	"math"
	"time"
)

// Backoff returns the delay before retry number attempt (1-based):
// base doubled for every earlier attempt, capped at ceiling. A ceiling of
// zero or less means no cap; the delay then saturates at the largest
// Duration instead of overflowing.
func Backoff(attempt int, base, ceiling time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if base <= 0 {
		return 0
	}
	if ceiling <= 0 {
		ceiling = math.MaxInt64
	}

	delay := base
	for i := 1; i < attempt; i++ {
		if delay > ceiling/2 {
			return ceiling
		}
		delay *= 2
	}
	return min(delay, ceiling)
}
