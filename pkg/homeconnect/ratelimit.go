package homeconnect

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	HEADER_RATELIMIT_REMAINING = "X-RateLimit-Remaining"
	HEADER_RATELIMIT_LIMIT     = "X-RateLimit-Limit"

	quotaLowWaterMark = 100
)

// RateTracker keeps the last observed daily quota counters and gates mutating
// calls behind a cooldown window. The cooldown has two independent triggers: a
// short one set by the HTTP client on a 429 response and a long one set by the
// stream manager on a rate-limit signal embedded in stream data. A new
// cooldown never shortens an active one.
type RateTracker struct {
	mu         sync.Mutex
	remaining  int
	limit      int
	observedAt time.Time
	coolUntil  time.Time
	now        func() time.Time
	logger     *zap.Logger
}

func NewRateTracker(logger *zap.Logger) *RateTracker {
	return &RateTracker{
		remaining: -1,
		limit:     -1,
		now:       time.Now,
		logger:    logger,
	}
}

// RecordHeaders stores the quota counters of a response if present.
func (t *RateTracker) RecordHeaders(header http.Header) {
	remaining, okRem := atoiHeader(header.Get(HEADER_RATELIMIT_REMAINING))
	limit, okLim := atoiHeader(header.Get(HEADER_RATELIMIT_LIMIT))
	if !okRem && !okLim {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if okRem {
		t.remaining = remaining
	}
	if okLim {
		t.limit = limit
	}
	t.observedAt = t.now()
	if okRem && remaining < quotaLowWaterMark {
		t.logger.Warn("rate quota running low",
			zap.Int("remaining", remaining), zap.Int("limit", t.limit))
	}
}

// RecordExhausted marks the quota as spent and starts a cooldown, unless a
// longer cooldown is already active.
func (t *RateTracker) RecordExhausted(cooldown time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.remaining = 0
	t.observedAt = t.now()
	until := t.now().Add(cooldown)
	if until.After(t.coolUntil) {
		t.coolUntil = until
	}
}

func (t *RateTracker) IsCoolingDown() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.coolUntil.After(t.now())
}

func (t *RateTracker) CooldownUntil() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.coolUntil
}

// ClearCooldown drops any active cooldown. Manual recovery only.
func (t *RateTracker) ClearCooldown() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.coolUntil = time.Time{}
}

// Quota returns the last observed remaining/limit counters and when they were
// observed. Counters are -1 until a response carrying quota headers is seen.
func (t *RateTracker) Quota() (remaining, limit int, observedAt time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining, t.limit, t.observedAt
}

func atoiHeader(value string) (int, bool) {
	if value == "" {
		return 0, false
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return n, true
}
