package delivery

import "time"

// MaxBackoff caps the retry delay at one hour.
const MaxBackoff = 3600 * time.Second

// Backoff returns the delay before the next attempt after attemptCount
// failed attempts: min(2^attemptCount, 3600) seconds.
func Backoff(attemptCount int) time.Duration {
	if attemptCount < 1 {
		attemptCount = 1
	}
	// 2^12 already exceeds the cap; avoids shift overflow for large counts.
	if attemptCount > 12 {
		return MaxBackoff
	}
	d := time.Duration(1<<uint(attemptCount)) * time.Second
	if d > MaxBackoff {
		return MaxBackoff
	}
	return d
}
