// Package callerr classifies engine errors into the kinds enumerated in
// spec.md §7 and provides the retryability/HTTP-status rules spec.md §4.4
// describes for the LLM streamer's retry loop.
package callerr

import (
	"errors"
	"strings"
)

// Kind names an error category. These are not Go types — spec.md §7 is
// explicit that they are "error kinds (not type names)" — so Kind is a
// plain string enum attached to a callErr wrapper.
type Kind string

const (
	TransientProvider   Kind = "transient_provider"
	RateLimited         Kind = "rate_limited"
	ProtocolViolation   Kind = "protocol_violation"
	GateClosed          Kind = "gate_closed"
	Cancelled           Kind = "cancelled"
	ConfigurationMissing Kind = "configuration_missing"
	Fatal               Kind = "fatal"
)

// callErr attaches a Kind to a wrapped error without losing the original
// error chain (errors.Is/As still work through it).
type callErr struct {
	kind Kind
	err  error
}

func (e *callErr) Error() string { return string(e.kind) + ": " + e.err.Error() }
func (e *callErr) Unwrap() error { return e.err }

// New wraps err with the given Kind.
func New(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &callErr{kind: kind, err: err}
}

// KindOf returns the Kind attached via New, or Fatal if err was never
// classified. A bare context.Canceled or context.DeadlineExceeded is not
// classified by this package and so reports Fatal here.
func KindOf(err error) Kind {
	var ce *callErr
	if errors.As(err, &ce) {
		return ce.kind
	}
	return Fatal
}

// retryableNames are substrings (case-insensitive) that mark a provider
// exception as transient per spec.md §4.4.
var retryableNames = []string{
	"ratelimit", "rate limit", "timeout", "serviceunavailable", "service unavailable",
	"badgateway", "bad gateway", "gatewaytimeout", "gateway timeout",
	"connectionerror", "connection error", "apitimeout", "api timeout",
}

// retryableStatus are HTTP status codes classified retryable per spec.md §4.4.
var retryableStatus = map[int]bool{
	408: true, 425: true, 429: true, 500: true, 502: true, 503: true, 504: true,
}

// IsRetryable implements spec.md §4.4's classification: retryable when the
// error's name/message matches a known transient signature, or the HTTP
// status is one of the listed codes.
func IsRetryable(err error, httpStatus int) bool {
	if retryableStatus[httpStatus] {
		return true
	}
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, n := range retryableNames {
		if strings.Contains(msg, n) {
			return true
		}
	}
	return false
}
