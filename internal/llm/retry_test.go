package llm

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryable_ByStatus(t *testing.T) {
	for _, status := range []int{408, 425, 429, 500, 502, 503, 504} {
		assert.True(t, IsRetryable(nil, status), "status %d should be retryable", status)
	}
	assert.False(t, IsRetryable(nil, 400))
}

func TestIsRetryable_ByMessageSubstring(t *testing.T) {
	assert.True(t, IsRetryable(errors.New("RateLimitError: too many requests"), 0))
	assert.True(t, IsRetryable(errors.New("connection timeout exceeded"), 0))
	assert.False(t, IsRetryable(errors.New("invalid api key"), 0))
}

func TestBackoffDelay_UsesRetryAfterWhenPresent(t *testing.T) {
	d := BackoffDelay(3, 5*time.Second)
	assert.Equal(t, 5*time.Second, d)
}

func TestBackoffDelay_ExponentialWithJitterCeiling(t *testing.T) {
	d1 := BackoffDelay(1, 0)
	assert.GreaterOrEqual(t, d1, RetryBaseDelay)
	assert.LessOrEqual(t, d1, RetryBaseDelay+RetryJitter)

	d4 := BackoffDelay(4, 0)
	assert.LessOrEqual(t, d4, RetryMaxDelay+RetryJitter)
}
