package llm

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseRateLimitHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("x-request-id", "req-123")
	h.Set("x-ms-region", "eastus")
	h.Set("retry-after", "2")
	h.Set("x-ratelimit-remaining-requests", "10")
	h.Set("x-ratelimit-limit-requests", "100")
	h.Set("x-ratelimit-remaining-tokens", "5000")
	h.Set("x-ratelimit-limit-tokens", "60000")

	snap := ParseRateLimitHeaders(h)
	assert.Equal(t, "req-123", snap.RequestID)
	assert.Equal(t, "eastus", snap.Region)
	assert.Equal(t, 2*time.Second, snap.RetryAfter)
	assert.Equal(t, 10, snap.RemainingRequests)
	assert.Equal(t, 100, snap.LimitRequests)
	assert.Equal(t, 5000, snap.RemainingTokens)
	assert.Equal(t, 60000, snap.LimitTokens)
}

func TestParseRateLimitHeaders_MissingHeadersAreZero(t *testing.T) {
	snap := ParseRateLimitHeaders(http.Header{})
	assert.Zero(t, snap.RequestID)
	assert.Zero(t, snap.RetryAfter)
	assert.Zero(t, snap.RemainingRequests)
}
