package homeconnect

import (
	"encoding/json"
	"strings"

	"go.uber.org/zap"
)

// Router turns one framed SSE message into zero or more ApplianceEvents and
// delivers them to the matching subscriber. Malformed payloads and unknown
// appliances are dropped with a warning: the stream must survive anything the
// vendor sends.
type Router struct {
	registry *Registry
	notifier BridgeNotifier
	logger   *zap.Logger
}

type streamPayload struct {
	HaId  string       `json:"haId"`
	Items []streamItem `json:"items"`
}

type streamItem struct {
	Key          string `json:"key"`
	Value        any    `json:"value"`
	DisplayValue string `json:"displayvalue"`
	Unit         string `json:"unit"`
}

func NewRouter(registry *Registry, notifier BridgeNotifier, logger *zap.Logger) *Router {
	return &Router{
		registry: registry,
		notifier: notifier,
		logger:   logger,
	}
}

// Route processes one framed message. It never returns an error: every
// failure mode is a warning, so one bad payload cannot take down the stream.
func (r *Router) Route(message string) {
	eventType, data := splitMessage(message)

	if eventType == EVENT_TYPE_KEEP_ALIVE {
		return
	}
	if data == "" {
		// Nothing to do for a typed message without payload.
		return
	}

	var payload streamPayload
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		r.logger.Warn("dropping non-JSON stream payload",
			zap.String("event", eventType), zap.Error(err))
		return
	}
	if payload.HaId == "" {
		r.logger.Warn("dropping stream payload without haId",
			zap.String("event", eventType))
		return
	}

	switch eventType {
	case EVENT_TYPE_CONNECTED:
		r.notifier.NotifyConnectivity(payload.HaId, true)
		return
	case EVENT_TYPE_DISCONNECTED:
		r.notifier.NotifyConnectivity(payload.HaId, false)
		return
	}

	sub := r.registry.Lookup(payload.HaId)
	if sub == nil {
		r.logger.Warn("dropping events for unknown appliance",
			zap.String("haId", payload.HaId), zap.Int("items", len(payload.Items)))
		return
	}

	for _, item := range payload.Items {
		sub.HandleEvent(ApplianceEvent{
			HaId:         payload.HaId,
			Key:          item.Key,
			Value:        item.Value,
			DisplayValue: item.DisplayValue,
			Unit:         item.Unit,
			EventType:    eventType,
		})
	}
}

// splitMessage extracts the optional "event:" type and the "data:" payload
// from a framed message.
func splitMessage(message string) (eventType, data string) {
	for _, line := range strings.Split(message, "\n") {
		line = strings.TrimRight(line, "\r")
		switch {
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
	return eventType, data
}
