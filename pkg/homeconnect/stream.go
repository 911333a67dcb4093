package homeconnect

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// StreamTransport is the raw SSE pipe. Open starts a stream with the given
// token and reports back through the manager's OnData/OnStatus entry points;
// Close tears the current stream down. Implementations must never keep two
// streams open at once.
type StreamTransport interface {
	Open(token string)
	Close()
}

// Scheduler executes the manager's deferred actions. The actor layer backs it
// with real timers; tests with a recording fake.
type Scheduler interface {
	ScheduleReconnect(after time.Duration)
	CancelReconnect()
	ScheduleResync(after time.Duration)
}

// StreamManager owns the single stream connection: it decides when to
// (re)connect, enforces backoff and rate-limit policy, frames incoming data
// and feeds it to the router.
//
// The manager is not synchronized. All entry points must be called from one
// goroutine (the owning actor); only Status() may be read elsewhere via the
// actor's request protocol.
type StreamManager struct {
	transport StreamTransport
	tokens    TokenSource
	framer    *Framer
	router    *Router
	rate      *RateTracker
	sched     Scheduler
	logger    *zap.Logger
	now       func() time.Time

	state          ConnState
	statusText     string
	lastConnect    time.Time
	lastDisconnect time.Time
	lastEvent      time.Time
	failures       int
	steady         bool
	rateLimitUntil time.Time
	reconnectQd    bool
	manualStop     bool
}

func NewStreamManager(transport StreamTransport, tokens TokenSource, router *Router,
	rate *RateTracker, sched Scheduler, logger *zap.Logger) *StreamManager {
	return &StreamManager{
		transport:  transport,
		tokens:     tokens,
		framer:     NewFramer(),
		router:     router,
		rate:       rate,
		sched:      sched,
		logger:     logger,
		now:        time.Now,
		state:      StateDisconnected,
		statusText: StateDisconnected.String(),
	}
}

// Connect is the operator entry point. It clears a finished failure streak so
// a manual reconnect always gets a fresh set of attempts.
func (m *StreamManager) Connect() {
	m.failures = 0
	m.manualStop = false
	m.connect()
}

// Reconnect is the scheduled-timer entry point. The failure streak carries
// over so backoff keeps growing across attempts.
func (m *StreamManager) Reconnect() {
	m.reconnectQd = false
	if m.manualStop {
		m.logger.Debug("skipping scheduled reconnect after manual disconnect")
		return
	}
	m.connect()
}

func (m *StreamManager) connect() {
	now := m.now()
	if now.Before(m.rateLimitUntil) {
		m.logger.Warn("connect ignored, rate limited",
			zap.Time("until", m.rateLimitUntil))
		m.setState(StateRateLimited, fmt.Sprintf("rate limited until %s",
			m.rateLimitUntil.Format(time.RFC3339)))
		return
	}
	m.rateLimitUntil = time.Time{}

	if m.state == StateConnecting || m.state == StateConnected {
		m.logger.Warn("connect ignored, stream already active",
			zap.String("state", m.state.String()))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	token, err := m.tokens.Token(ctx)
	if err != nil || token == "" {
		m.logger.Error("cannot connect, no auth token", zap.Error(err))
		m.setState(StateFailed, "failed: no token")
		return
	}

	m.setState(StateConnecting, StateConnecting.String())
	m.transport.Open(token)
}

// Disconnect closes the stream and suppresses any pending reconnect.
func (m *StreamManager) Disconnect() {
	m.manualStop = true
	m.sched.CancelReconnect()
	m.reconnectQd = false
	m.transport.Close()
	if m.state != StateRateLimited && m.state != StateFailed {
		m.setState(StateDisconnected, StateDisconnected.String())
	}
	m.lastDisconnect = m.now()
}

// ClearRateLimit unconditionally drops rate-limit state. Manual recovery.
func (m *StreamManager) ClearRateLimit() {
	m.rateLimitUntil = time.Time{}
	m.rate.ClearCooldown()
	m.sched.CancelReconnect()
	m.reconnectQd = false
	if m.state == StateRateLimited {
		m.setState(StateDisconnected, StateDisconnected.String())
	}
	m.logger.Info("rate limit state cleared")
}

// OnData is the raw-bytes entry point from the transport.
func (m *StreamManager) OnData(chunk []byte) {
	for _, msg := range m.framer.Feed(chunk) {
		m.lastEvent = m.now()
		if !m.steady {
			// The stream proved itself: the failure streak is over.
			m.steady = true
			m.failures = 0
		}
		if isRateLimitMessage(msg) {
			m.onStreamRateLimit(msg)
			continue
		}
		m.router.Route(msg)
	}
}

// OnStatus is the stream-status entry point from the transport.
func (m *StreamManager) OnStatus(signal StreamSignal) {
	switch signal.Kind {
	case SignalStart:
		m.onStreamStart()
	case SignalStop, SignalError:
		m.onStreamStop(signal)
	}
}

func (m *StreamManager) onStreamStart() {
	m.logger.Info("stream connected")
	prevDisconnect := m.lastDisconnect
	m.lastConnect = m.now()
	m.framer.Reset()
	m.setState(StateConnected, StateConnected.String())

	if !prevDisconnect.IsZero() && m.now().Sub(prevDisconnect) > resyncAfterDisconnect {
		// Events were likely missed while down; ask for a full state refresh
		// once the stream has settled.
		m.logger.Info("long disconnection, scheduling state resync",
			zap.Duration("downtime", m.now().Sub(prevDisconnect)))
		m.sched.ScheduleResync(resyncNotifyDelay)
	}
}

func (m *StreamManager) onStreamStop(signal StreamSignal) {
	if m.state == StateDisconnected || m.state == StateFailed {
		// Duplicate stop signal; one reconnect is already queued or the
		// connection is terminally down.
		m.logger.Debug("ignoring stream stop in current state",
			zap.String("state", m.state.String()), zap.String("signal", signal.String()))
		return
	}

	m.logger.Info("stream stopped", zap.String("signal", signal.String()))
	m.lastDisconnect = m.now()

	if m.state == StateRateLimited || m.now().Before(m.rateLimitUntil) {
		// The scheduled resume will handle it.
		return
	}
	if m.manualStop {
		m.setState(StateDisconnected, StateDisconnected.String())
		return
	}

	wasSteady := m.steady
	m.steady = false

	if wasSteady {
		// Normal vendor idle-timeout drop: flat delay, streak over.
		m.failures = 0
		m.setState(StateDisconnected, StateDisconnected.String())
		m.scheduleReconnect(normalReconnectDelay)
		return
	}

	m.failures++
	if m.failures >= maxConnectAttempts {
		m.logger.Error("giving up after repeated connection failures",
			zap.Int("attempts", m.failures))
		m.setState(StateFailed, "failed - manual reconnect required")
		return
	}
	m.setState(StateDisconnected, StateDisconnected.String())
	m.scheduleReconnect(backoffDelay(m.failures))
}

func (m *StreamManager) onStreamRateLimit(msg string) {
	retryAfter := parseRetryAfter(msg)
	m.rateLimitUntil = m.now().Add(retryAfter)
	m.failures = 0
	m.steady = false
	m.rate.RecordExhausted(retryAfter)
	m.setState(StateRateLimited, fmt.Sprintf("rate limited until %s",
		m.rateLimitUntil.Format(time.RFC3339)))
	m.logger.Warn("stream rate limit signal",
		zap.Duration("retryAfter", retryAfter), zap.Time("resume", m.rateLimitUntil))

	// Single scheduled resume; replaces whatever was queued.
	m.sched.CancelReconnect()
	m.reconnectQd = true
	m.sched.ScheduleReconnect(retryAfter + rateLimitSafetyBuffer)
}

func (m *StreamManager) scheduleReconnect(after time.Duration) {
	if m.reconnectQd {
		return
	}
	m.reconnectQd = true
	m.logger.Info("reconnect scheduled", zap.Duration("after", after),
		zap.Int("failures", m.failures))
	m.sched.ScheduleReconnect(after)
}

func (m *StreamManager) setState(state ConnState, text string) {
	m.state = state
	m.statusText = text
}

// Status returns a snapshot of the connection for operator surfaces.
func (m *StreamManager) Status() ConnStatus {
	return ConnStatus{
		State:          m.state,
		StatusText:     m.statusText,
		LastConnect:    m.lastConnect,
		LastDisconnect: m.lastDisconnect,
		LastEvent:      m.lastEvent,
		Failures:       m.failures,
		RateLimitedTil: m.rateLimitUntil,
	}
}
