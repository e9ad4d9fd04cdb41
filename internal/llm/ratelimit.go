package llm

import (
	"net/http"
	"strconv"
	"time"
)

// RateLimitSnapshot captures the rate-limit headers parsed from an LLM
// provider response, per spec.md §3/§4.4.
type RateLimitSnapshot struct {
	RequestID          string
	Region             string
	RetryAfter         time.Duration
	RemainingRequests  int
	LimitRequests      int
	ResetRequests       time.Duration
	RemainingTokens    int
	LimitTokens        int
	ResetTokens        time.Duration
}

// ParseRateLimitHeaders extracts the header set named in spec.md §4.4:
// x-request-id, x-ms-region, retry-after, and the x-ratelimit-*
// request/token headers. Missing headers leave their field zero.
func ParseRateLimitHeaders(h http.Header) RateLimitSnapshot {
	return RateLimitSnapshot{
		RequestID:         h.Get("x-request-id"),
		Region:            h.Get("x-ms-region"),
		RetryAfter:        parseSeconds(h.Get("retry-after")),
		RemainingRequests: parseInt(h.Get("x-ratelimit-remaining-requests")),
		LimitRequests:     parseInt(h.Get("x-ratelimit-limit-requests")),
		ResetRequests:     parseSeconds(h.Get("x-ratelimit-reset-requests")),
		RemainingTokens:   parseInt(h.Get("x-ratelimit-remaining-tokens")),
		LimitTokens:       parseInt(h.Get("x-ratelimit-limit-tokens")),
		ResetTokens:       parseSeconds(h.Get("x-ratelimit-reset-tokens")),
	}
}

func parseInt(s string) int {
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

func parseSeconds(s string) time.Duration {
	if s == "" {
		return 0
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(n * float64(time.Second))
	}
	return 0
}

// LogFields renders the snapshot as structured logging key/value pairs
// for a single log line per request, per spec.md §4.4.
func (s RateLimitSnapshot) LogFields() []interface{} {
	return []interface{}{
		"request_id", s.RequestID,
		"region", s.Region,
		"remaining_requests", s.RemainingRequests,
		"limit_requests", s.LimitRequests,
		"remaining_tokens", s.RemainingTokens,
		"limit_tokens", s.LimitTokens,
	}
}
