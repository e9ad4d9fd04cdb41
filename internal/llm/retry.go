package llm

import (
	"math/rand"
	"time"

	"github.com/rapidaai/voicecore/internal/callerr"
)

// Retry defaults, per spec.md §4.4.
const (
	RetryBaseDelay     = 500 * time.Millisecond
	RetryMaxDelay      = 8 * time.Second
	RetryBackoffFactor = 2.0
	RetryJitter        = 200 * time.Millisecond
	RetryMaxAttempts   = 4
)

// IsRetryable classifies err per spec.md §4.4. Delegates to
// callerr.IsRetryable so the status/substring classification rules have
// one source of truth shared with the rest of the engine's error
// taxonomy.
func IsRetryable(err error, httpStatus int) bool {
	return callerr.IsRetryable(err, httpStatus)
}

// BackoffDelay computes the delay before retry attempt n (1-indexed),
// per spec.md §4.4: if retryAfter is present, use it; else
// min(BASE * FACTOR^(n-1), MAX) + U(0, JITTER).
func BackoffDelay(attempt int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		return retryAfter
	}
	delay := float64(RetryBaseDelay)
	for i := 1; i < attempt; i++ {
		delay *= RetryBackoffFactor
	}
	if delay > float64(RetryMaxDelay) {
		delay = float64(RetryMaxDelay)
	}
	jitter := time.Duration(rand.Int63n(int64(RetryJitter) + 1))
	return time.Duration(delay) + jitter
}
