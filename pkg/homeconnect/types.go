package homeconnect

import (
	"context"
	"fmt"
	"time"
)

// Event types delivered on the Home Connect event stream.
const (
	EVENT_TYPE_KEEP_ALIVE   = "KEEP-ALIVE"
	EVENT_TYPE_STATUS       = "STATUS"
	EVENT_TYPE_EVENT        = "EVENT"
	EVENT_TYPE_NOTIFY       = "NOTIFY"
	EVENT_TYPE_CONNECTED    = "CONNECTED"
	EVENT_TYPE_DISCONNECTED = "DISCONNECTED"
)

// ApplianceEvent is one normalized item from a stream payload. Events are
// ephemeral: produced by the router, consumed once by a subscriber, never
// stored.
type ApplianceEvent struct {
	HaId         string
	Key          string
	Value        any
	DisplayValue string
	Unit         string
	EventType    string
}

// ApplianceInfo describes one appliance as returned by the homeappliances
// listing endpoint.
type ApplianceInfo struct {
	HaId      string `json:"haId"`
	Name      string `json:"name"`
	Brand     string `json:"brand"`
	VIB       string `json:"vib"`
	Type      string `json:"type"`
	ENumber   string `json:"enumber"`
	Connected bool   `json:"connected"`
}

// TokenSource provides bearer tokens for the vendor API. Token returns the
// current access token; Refresh discards it and obtains a fresh one (used for
// the one-shot retry after a 401).
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
}

// Subscriber receives the normalized events of a single appliance.
type Subscriber interface {
	HandleEvent(event ApplianceEvent)
	HandleConnectivity(connected bool)
}

// BridgeNotifier receives stream-level notifications that concern the whole
// bridge rather than one appliance.
type BridgeNotifier interface {
	NotifyConnectivity(haId string, connected bool)
	NotifyResyncNeeded()
}

// ConnState is the lifecycle state of the single stream connection.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateRateLimited
	StateFailed
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateRateLimited:
		return "rate limited"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SignalKind classifies a transport status callback.
type SignalKind int

const (
	SignalStart SignalKind = iota
	SignalStop
	SignalError
)

// StreamSignal is a status notification from the stream transport.
type StreamSignal struct {
	Kind   SignalKind
	Reason string
}

func (s StreamSignal) String() string {
	switch s.Kind {
	case SignalStart:
		return "START"
	case SignalStop:
		return fmt.Sprintf("STOP: %s", s.Reason)
	default:
		return fmt.Sprintf("ERROR: %s", s.Reason)
	}
}

// ConnStatus is a point-in-time snapshot of the connection, exposed to
// operators through the HTTP server and MQTT bridge sensors.
type ConnStatus struct {
	State          ConnState
	StatusText     string
	LastConnect    time.Time
	LastDisconnect time.Time
	LastEvent      time.Time
	Failures       int
	RateLimitedTil time.Time
}
