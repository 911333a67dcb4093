package homeconnect

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Test doubles shared by this package's tests and the actor-layer tests.

// TestTokenSource returns canned tokens and counts refreshes.
type TestTokenSource struct {
	mu           sync.Mutex
	AccessToken  string
	RefreshedTok string
	FailToken    bool
	FailRefresh  bool
	Refreshes    int
	refreshed    bool
}

func (t *TestTokenSource) Token(_ context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.FailToken {
		return "", errors.New("token source unavailable")
	}
	if t.refreshed && t.RefreshedTok != "" {
		return t.RefreshedTok, nil
	}
	return t.AccessToken, nil
}

func (t *TestTokenSource) Refresh(_ context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Refreshes++
	if t.FailRefresh {
		return "", errors.New("refresh failed")
	}
	t.refreshed = true
	if t.RefreshedTok != "" {
		return t.RefreshedTok, nil
	}
	return t.AccessToken, nil
}

// TestTransport records open/close calls without touching the network. Tests
// drive the manager directly through OnData/OnStatus.
type TestTransport struct {
	Opens  int
	Closes int
	Tokens []string
}

func (t *TestTransport) Open(token string) {
	t.Opens++
	t.Tokens = append(t.Tokens, token)
}

func (t *TestTransport) Close() {
	t.Closes++
}

// TestScheduler records scheduled delays instead of running timers.
type TestScheduler struct {
	Reconnects []time.Duration
	Resyncs    []time.Duration
	Cancels    int
}

func (s *TestScheduler) ScheduleReconnect(after time.Duration) {
	s.Reconnects = append(s.Reconnects, after)
}

func (s *TestScheduler) CancelReconnect() {
	s.Cancels++
}

func (s *TestScheduler) ScheduleResync(after time.Duration) {
	s.Resyncs = append(s.Resyncs, after)
}

func (s *TestScheduler) LastReconnect() (time.Duration, bool) {
	if len(s.Reconnects) == 0 {
		return 0, false
	}
	return s.Reconnects[len(s.Reconnects)-1], true
}

// TestSubscriber collects the events routed to one appliance.
type TestSubscriber struct {
	mu           sync.Mutex
	Events       []ApplianceEvent
	Connectivity []bool
}

func (s *TestSubscriber) HandleEvent(event ApplianceEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Events = append(s.Events, event)
}

func (s *TestSubscriber) HandleConnectivity(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Connectivity = append(s.Connectivity, connected)
}

func (s *TestSubscriber) EventKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.Events))
	for _, ev := range s.Events {
		keys = append(keys, ev.Key)
	}
	return keys
}

// TestNotifier collects bridge-level notifications.
type TestNotifier struct {
	mu             sync.Mutex
	Connectivity   map[string]bool
	ResyncRequests int
}

func NewTestNotifier() *TestNotifier {
	return &TestNotifier{Connectivity: make(map[string]bool)}
}

func (n *TestNotifier) NotifyConnectivity(haId string, connected bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Connectivity[haId] = connected
}

func (n *TestNotifier) NotifyResyncNeeded() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ResyncRequests++
}
