package homeconnect

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// Flat delay after a drop that followed a healthy Connected period. The
	// vendor closes idle streams on purpose; this is not a failure.
	normalReconnectDelay = 300 * time.Second

	// Exponential backoff for failure streaks: 60s, 120s, 240s, capped.
	backoffBaseDelay = 60 * time.Second
	backoffCapDelay  = 300 * time.Second

	// After this many failed attempts with no success in between, stop
	// retrying and require a manual reconnect.
	maxConnectAttempts = 10

	// Added on top of a rate-limit expiry before the scheduled resume.
	rateLimitSafetyBuffer = 300 * time.Second

	// Retry-after assumed when a stream rate-limit payload is unparseable.
	defaultRateLimitRetryAfter = 24 * time.Hour

	// A disconnection longer than this may have lost events; a full state
	// resync is requested shortly after reconnecting.
	resyncAfterDisconnect = 300 * time.Second
	resyncNotifyDelay     = 10 * time.Second
)

// backoffDelay returns the reconnect delay for the given failure count
// (1-based: the delay scheduled after the n-th consecutive failure).
func backoffDelay(failures int) time.Duration {
	if failures < 1 {
		failures = 1
	}
	delay := backoffBaseDelay
	for i := 1; i < failures; i++ {
		delay *= 2
		if delay >= backoffCapDelay {
			return backoffCapDelay
		}
	}
	if delay > backoffCapDelay {
		return backoffCapDelay
	}
	return delay
}

var retryAfterRe = regexp.MustCompile(`(?i)(\d+)\s*(second|minute|hour|day)s?`)

// parseRetryAfter extracts a "try again in N seconds/minutes/hours" duration
// from a rate-limit payload. Falls back to 24h when nothing parses: the
// vendor's blanket quota window is one day.
func parseRetryAfter(payload string) time.Duration {
	m := retryAfterRe.FindStringSubmatch(payload)
	if m == nil {
		return defaultRateLimitRetryAfter
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return defaultRateLimitRetryAfter
	}
	switch strings.ToLower(m[2]) {
	case "second":
		return time.Duration(n) * time.Second
	case "minute":
		return time.Duration(n) * time.Minute
	case "hour":
		return time.Duration(n) * time.Hour
	default:
		return time.Duration(n) * 24 * time.Hour
	}
}

// isRateLimitMessage reports whether a framed stream message is the vendor's
// embedded rate-limit notice rather than an appliance event.
func isRateLimitMessage(message string) bool {
	lower := strings.ToLower(message)
	return strings.Contains(lower, `"key":"429"`) ||
		strings.Contains(lower, `"key": "429"`) ||
		strings.Contains(lower, "rate limit")
}
