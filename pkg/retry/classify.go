// Package retry provides a rate-limit aware retry executor and the
// minimum-gap pacer shared by every wallet-bound caller.
package retry

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

type statusCoder interface {
	StatusCode() int
}

type retryAfterer interface {
	RetryAfter() time.Duration
}

type retryAfterHeaderer interface {
	RetryAfterHeader() string
}

// walk visits err and every error reachable from it through Unwrap,
// including joined errors, until visit returns true.
func walk(err error, visit func(error) bool) bool {
	if err == nil {
		return false
	}
	if visit(err) {
		return true
	}
	switch u := err.(type) {
	case interface{ Unwrap() error }:
		return walk(u.Unwrap(), visit)
	case interface{ Unwrap() []error }:
		for _, inner := range u.Unwrap() {
			if walk(inner, visit) {
				return true
			}
		}
	}
	return false
}

// IsRateLimited reports whether err signals throttling: an HTTP 429 anywhere
// in its chain, or a message that mentions "429" or "rate limit".
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	return walk(err, func(e error) bool {
		if sc, ok := e.(statusCoder); ok && sc.StatusCode() == http.StatusTooManyRequests {
			return true
		}
		msg := strings.ToLower(e.Error())
		return strings.Contains(msg, "429") || strings.Contains(msg, "rate limit")
	})
}

// RetryAfterHint extracts a server-suggested delay from err, or zero.
func RetryAfterHint(err error, now time.Time) time.Duration {
	var hint time.Duration
	walk(err, func(e error) bool {
		if ra, ok := e.(retryAfterer); ok {
			if d := ra.RetryAfter(); d > 0 {
				hint = d
				return true
			}
		}
		if h, ok := e.(retryAfterHeaderer); ok {
			if d := ParseRetryAfter(h.RetryAfterHeader(), now); d > 0 {
				hint = d
				return true
			}
		}
		return false
	})
	return hint
}

// ParseRetryAfter interprets a Retry-After header value given either as a
// number of seconds or as an HTTP date. Unparseable, past or non-positive
// values yield zero.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs * float64(time.Second))
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
