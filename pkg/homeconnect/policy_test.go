package homeconnect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelaySequence(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(60*time.Second, backoffDelay(1))
	assert.Equal(120*time.Second, backoffDelay(2))
	assert.Equal(240*time.Second, backoffDelay(3))
	assert.Equal(300*time.Second, backoffDelay(4))
	assert.Equal(300*time.Second, backoffDelay(9))
	assert.Equal(60*time.Second, backoffDelay(0), "lower bound")
}

func TestParseRetryAfter(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(30*time.Second, parseRetryAfter("try again in 30 seconds"))
	assert.Equal(1*time.Second, parseRetryAfter("try again in 1 second"))
	assert.Equal(10*time.Minute, parseRetryAfter("blocked, retry in 10 minutes"))
	assert.Equal(24*time.Hour, parseRetryAfter("try again in 24 hours"))
	assert.Equal(24*time.Hour, parseRetryAfter("1 day"))
	assert.Equal(24*time.Hour, parseRetryAfter("no duration here"), "default")
	assert.Equal(24*time.Hour, parseRetryAfter(""), "default on empty")
}

func TestIsRateLimitMessage(t *testing.T) {
	assert := assert.New(t)

	assert.True(isRateLimitMessage(`data: {"error":{"key":"429","description":"too many requests"}}`))
	assert.True(isRateLimitMessage(`data: {"error":{"key": "429"}}`))
	assert.True(isRateLimitMessage("data: The rate limit has been exceeded"))
	assert.False(isRateLimitMessage(`event: STATUS` + "\n" + `data: {"haId":"X","items":[]}`))
}
