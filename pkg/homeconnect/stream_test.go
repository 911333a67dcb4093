package homeconnect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type streamFixture struct {
	manager   *StreamManager
	transport *TestTransport
	scheduler *TestScheduler
	tokens    *TestTokenSource
	registry  *Registry
	notifier  *TestNotifier
	clock     time.Time
}

func newStreamFixture() *streamFixture {
	fx := &streamFixture{
		transport: &TestTransport{},
		scheduler: &TestScheduler{},
		tokens:    &TestTokenSource{AccessToken: "tok-1"},
		registry:  NewRegistry(),
		notifier:  NewTestNotifier(),
		clock:     time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC),
	}
	logger := zap.NewNop()
	router := NewRouter(fx.registry, fx.notifier, logger)
	rate := NewRateTracker(logger)
	rate.now = fx.now
	fx.manager = NewStreamManager(fx.transport, fx.tokens, router, rate, fx.scheduler, logger)
	fx.manager.now = fx.now
	return fx
}

func (fx *streamFixture) now() time.Time {
	return fx.clock
}

func (fx *streamFixture) advance(d time.Duration) {
	fx.clock = fx.clock.Add(d)
}

func TestConnectOpensStreamWithToken(t *testing.T) {
	assert := assert.New(t)

	fx := newStreamFixture()
	fx.manager.Connect()

	assert.Equal(1, fx.transport.Opens)
	assert.Equal([]string{"tok-1"}, fx.transport.Tokens)
	assert.Equal(StateConnecting, fx.manager.Status().State)
}

func TestConnectFailsFastWithoutToken(t *testing.T) {
	assert := assert.New(t)

	fx := newStreamFixture()
	fx.tokens.FailToken = true
	fx.manager.Connect()

	assert.Equal(0, fx.transport.Opens)
	assert.Equal(StateFailed, fx.manager.Status().State)
	assert.Equal("failed: no token", fx.manager.Status().StatusText)
}

func TestExponentialBackoffForFailureStreak(t *testing.T) {
	assert := assert.New(t)

	fx := newStreamFixture()
	fx.manager.Connect()

	// start then immediate stop, never any data: exponential sequence
	expected := []time.Duration{60 * time.Second, 120 * time.Second, 240 * time.Second, 300 * time.Second}
	for i, want := range expected {
		fx.manager.OnStatus(StreamSignal{Kind: SignalStart})
		fx.manager.OnStatus(StreamSignal{Kind: SignalStop, Reason: "EOF"})
		got, ok := fx.scheduler.LastReconnect()
		assert.True(ok)
		assert.Equal(want, got, "attempt %d", i+1)
		fx.advance(got)
		fx.manager.Reconnect()
	}
	assert.Equal(300*time.Second, fx.scheduler.Reconnects[3], "capped at 300s")
}

func TestFlatDelayAfterHealthyConnection(t *testing.T) {
	assert := assert.New(t)

	fx := newStreamFixture()
	fx.manager.Connect()

	// build up a failure streak first
	for i := 0; i < 3; i++ {
		fx.manager.OnStatus(StreamSignal{Kind: SignalStart})
		fx.manager.OnStatus(StreamSignal{Kind: SignalStop, Reason: "EOF"})
		fx.manager.Reconnect()
	}
	assert.Equal(3, fx.manager.Status().Failures)

	// now the stream delivers data before dropping: streak over, flat delay
	fx.manager.OnStatus(StreamSignal{Kind: SignalStart})
	fx.manager.OnData([]byte("event: KEEP-ALIVE\ndata:\n\n"))
	fx.manager.OnStatus(StreamSignal{Kind: SignalStop, Reason: "EOF"})

	got, ok := fx.scheduler.LastReconnect()
	assert.True(ok)
	assert.Equal(300*time.Second, got)
	assert.Equal(0, fx.manager.Status().Failures)
}

func TestAttemptCapRequiresManualReconnect(t *testing.T) {
	assert := assert.New(t)

	fx := newStreamFixture()
	fx.manager.Connect()

	for i := 0; i < 10; i++ {
		fx.manager.OnStatus(StreamSignal{Kind: SignalStart})
		fx.manager.OnStatus(StreamSignal{Kind: SignalStop, Reason: "EOF"})
		if i < 9 {
			fx.manager.Reconnect()
		}
	}

	assert.Equal(StateFailed, fx.manager.Status().State)
	assert.Equal("failed - manual reconnect required", fx.manager.Status().StatusText)
	assert.Len(fx.scheduler.Reconnects, 9, "no reconnect scheduled after the cap")

	// manual reconnect resets the streak
	fx.manager.Connect()
	assert.Equal(0, fx.manager.Status().Failures)
	assert.Equal(StateConnecting, fx.manager.Status().State)
}

func TestDuplicateStopSchedulesOneReconnect(t *testing.T) {
	assert := assert.New(t)

	fx := newStreamFixture()
	fx.manager.Connect()
	fx.manager.OnStatus(StreamSignal{Kind: SignalStart})
	fx.manager.OnData([]byte("event: KEEP-ALIVE\ndata:\n\n"))

	fx.manager.OnStatus(StreamSignal{Kind: SignalStop, Reason: "EOF"})
	fx.manager.OnStatus(StreamSignal{Kind: SignalStop, Reason: "EOF"})
	fx.manager.OnStatus(StreamSignal{Kind: SignalError, Reason: "broken pipe"})

	assert.Len(fx.scheduler.Reconnects, 1)
}

func TestStreamRateLimitSignal(t *testing.T) {
	assert := assert.New(t)

	fx := newStreamFixture()
	fx.manager.Connect()
	fx.manager.OnStatus(StreamSignal{Kind: SignalStart})

	fx.manager.OnData([]byte("data: {\"error\":{\"key\":\"429\",\"description\":\"rate limit exceeded, try again in 120 seconds\"}}\n\n"))

	status := fx.manager.Status()
	assert.Equal(StateRateLimited, status.State)
	assert.Equal(fx.clock.Add(120*time.Second), status.RateLimitedTil)
	assert.Equal(0, status.Failures)

	// resume scheduled at expiry + safety buffer
	got, ok := fx.scheduler.LastReconnect()
	assert.True(ok)
	assert.Equal(120*time.Second+300*time.Second, got)

	// manual connect before expiry is a logged no-op
	opens := fx.transport.Opens
	fx.manager.Connect()
	assert.Equal(opens, fx.transport.Opens)
	assert.Equal(StateRateLimited, fx.manager.Status().State)
	assert.Contains(fx.manager.Status().StatusText, "rate limited until")

	// stream drop while rate limited schedules nothing extra
	reconnects := len(fx.scheduler.Reconnects)
	fx.manager.OnStatus(StreamSignal{Kind: SignalStop, Reason: "EOF"})
	assert.Len(fx.scheduler.Reconnects, reconnects)

	// after expiry the scheduled resume connects
	fx.advance(120*time.Second + 300*time.Second + time.Second)
	fx.manager.Reconnect()
	assert.Equal(opens+1, fx.transport.Opens)
}

func TestClearRateLimit(t *testing.T) {
	assert := assert.New(t)

	fx := newStreamFixture()
	fx.manager.Connect()
	fx.manager.OnStatus(StreamSignal{Kind: SignalStart})
	fx.manager.OnData([]byte("data: {\"error\":{\"key\":\"429\",\"description\":\"try again in 24 hours\"}}\n\n"))
	assert.Equal(StateRateLimited, fx.manager.Status().State)

	fx.manager.ClearRateLimit()
	assert.Equal(StateDisconnected, fx.manager.Status().State)

	fx.manager.Connect()
	assert.Equal(2, fx.transport.Opens)
}

func TestUnparseableRateLimitDefaultsToOneDay(t *testing.T) {
	assert := assert.New(t)

	fx := newStreamFixture()
	fx.manager.Connect()
	fx.manager.OnStatus(StreamSignal{Kind: SignalStart})

	fx.manager.OnData([]byte("data: {\"error\":{\"key\":\"429\",\"description\":\"enhance your calm\"}}\n\n"))

	assert.Equal(fx.clock.Add(24*time.Hour), fx.manager.Status().RateLimitedTil)
}

func TestResyncAfterLongDisconnect(t *testing.T) {
	assert := assert.New(t)

	fx := newStreamFixture()
	fx.manager.Connect()
	fx.manager.OnStatus(StreamSignal{Kind: SignalStart})
	fx.manager.OnData([]byte("event: KEEP-ALIVE\ndata:\n\n"))
	fx.manager.OnStatus(StreamSignal{Kind: SignalStop, Reason: "EOF"})
	assert.Empty(fx.scheduler.Resyncs)

	// short outage: no resync
	fx.advance(30 * time.Second)
	fx.manager.Reconnect()
	fx.manager.OnStatus(StreamSignal{Kind: SignalStart})
	assert.Empty(fx.scheduler.Resyncs)

	fx.manager.OnData([]byte("event: KEEP-ALIVE\ndata:\n\n"))
	fx.manager.OnStatus(StreamSignal{Kind: SignalStop, Reason: "EOF"})

	// long outage: resync scheduled shortly after reconnecting
	fx.advance(10 * time.Minute)
	fx.manager.Reconnect()
	fx.manager.OnStatus(StreamSignal{Kind: SignalStart})
	assert.Len(fx.scheduler.Resyncs, 1)
}

func TestDisconnectSuppressesReconnect(t *testing.T) {
	assert := assert.New(t)

	fx := newStreamFixture()
	fx.manager.Connect()
	fx.manager.OnStatus(StreamSignal{Kind: SignalStart})
	fx.manager.OnData([]byte("event: KEEP-ALIVE\ndata:\n\n"))

	fx.manager.Disconnect()
	assert.Equal(1, fx.transport.Closes)
	assert.Equal(StateDisconnected, fx.manager.Status().State)

	// transport reports the close; nothing gets scheduled
	fx.manager.OnStatus(StreamSignal{Kind: SignalStop, Reason: "closed"})
	assert.Empty(fx.scheduler.Reconnects)

	// a stale timer firing after a manual disconnect must not reopen
	fx.manager.Reconnect()
	assert.Equal(1, fx.transport.Opens)
}

func TestEndToEndRouting(t *testing.T) {
	assert := assert.New(t)

	fx := newStreamFixture()
	sub := &TestSubscriber{}
	fx.registry.Register("X", sub)

	fx.manager.Connect()
	fx.manager.OnStatus(StreamSignal{Kind: SignalStart})
	fx.manager.OnData([]byte("event: STATUS\ndata: {\"haId\":\"X\",\"items\":[{\"key\":\"K1\",\"value\":\"V1\"},{\"key\":\"K2\",\"value\":\"V2\"}]}\n\n"))

	assert.Equal([]string{"K1", "K2"}, sub.EventKeys())

	// same payload for an unregistered appliance: dropped, no crash
	assert.NotPanics(func() {
		fx.manager.OnData([]byte("event: STATUS\ndata: {\"haId\":\"Y\",\"items\":[{\"key\":\"K1\",\"value\":\"V1\"}]}\n\n"))
	})
	assert.Len(sub.Events, 2)
	assert.False(fx.manager.Status().LastEvent.IsZero())
}
