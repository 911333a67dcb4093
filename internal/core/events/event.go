package events

import (
	"strings"

	. "github.com/berfenger/homeconnect2mqtt/internal/core/domain"
	"github.com/berfenger/homeconnect2mqtt/pkg/homeconnect"

	"github.com/asynkron/protoactor-go/eventstream"
)

// Home Connect item keys mapped to bridge sensors.
const (
	KEY_DOOR_STATE       = "BSH.Common.Status.DoorState"
	KEY_OPERATION_STATE  = "BSH.Common.Status.OperationState"
	KEY_ACTIVE_PROGRAM   = "BSH.Common.Root.ActiveProgram"
	KEY_SELECTED_PROGRAM = "BSH.Common.Root.SelectedProgram"
	KEY_POWER_STATE      = "BSH.Common.Setting.PowerState"
	KEY_PROGRAM_PROGRESS = "BSH.Common.Option.ProgramProgress"
	KEY_REMAINING_TIME   = "BSH.Common.Option.RemainingProgramTime"

	VALUE_DOOR_OPEN   = "BSH.Common.EnumType.DoorState.Open"
	VALUE_POWER_ON    = "BSH.Common.EnumType.PowerState.On"
	VALUE_POWER_OFF   = "BSH.Common.EnumType.PowerState.Off"
	VALUE_OP_INACTIVE = "BSH.Common.EnumType.OperationState.Inactive"
)

// ApplianceEventToUpdateEvents maps one stream item to sensor updates. Items
// with keys the bridge has no sensor for yield nothing.
func ApplianceEventToUpdateEvents(ev homeconnect.ApplianceEvent) []any {
	var events []any

	switch ev.Key {
	case KEY_DOOR_STATE:
		events = append(events, BinarySensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				HaId: ev.HaId,
				Id:   SENSOR_ID_DOOR_STATE,
			},
			Value: stringValue(ev.Value) == VALUE_DOOR_OPEN,
		})
	case KEY_OPERATION_STATE:
		events = append(events, TextSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				HaId: ev.HaId,
				Id:   SENSOR_ID_OPERATION_STATE,
			},
			Value: shortKey(stringValue(ev.Value)),
		})
	case KEY_ACTIVE_PROGRAM:
		events = append(events, TextSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				HaId: ev.HaId,
				Id:   SENSOR_ID_ACTIVE_PROGRAM,
			},
			Value: shortKey(stringValue(ev.Value)),
		})
	case KEY_POWER_STATE:
		events = append(events, SwitchSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				HaId: ev.HaId,
				Id:   SWITCH_ID_POWER,
			},
			Value: stringValue(ev.Value) == VALUE_POWER_ON,
		})
	case KEY_PROGRAM_PROGRESS:
		if value, ok := floatValue(ev.Value); ok {
			events = append(events, FloatSensorUpdateEvent{
				SensorUpdateEventMixIn: SensorUpdateEventMixIn{
					HaId: ev.HaId,
					Id:   SENSOR_ID_PROGRAM_PROGRESS,
				},
				Value:    value,
				Decimals: 0,
			})
		}
	case KEY_REMAINING_TIME:
		if value, ok := floatValue(ev.Value); ok {
			events = append(events, FloatSensorUpdateEvent{
				SensorUpdateEventMixIn: SensorUpdateEventMixIn{
					HaId: ev.HaId,
					Id:   SENSOR_ID_REMAINING_TIME,
				},
				Value:    value,
				Decimals: 0,
			})
		}
	}

	return events
}

func ApplianceConnectivityToUpdateEvents(haId string, connected bool) []any {
	var events []any
	events = append(events, BinarySensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			HaId: haId,
			Id:   SENSOR_ID_APPLIANCE_CONNECTED,
		},
		Value: connected,
	})
	return events
}

func StreamStateToUpdateEvents(status homeconnect.ConnStatus) []any {
	var events []any
	events = append(events, TextSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_STREAM_STATE,
		},
		Value: status.StatusText,
	})
	events = append(events, BridgeStateUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_BRIDGE_STATE,
		},
		Value: status.State == homeconnect.StateConnected,
	})
	return events
}

func RateQuotaToUpdateEvents(remaining int) []any {
	var events []any
	if remaining >= 0 {
		events = append(events, FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_RATE_QUOTA,
			},
			Value:    float64(remaining),
			Decimals: 0,
		})
	}
	return events
}

// StreamSubscriber bridges one appliance's stream events onto the actor
// event stream.
type StreamSubscriber struct {
	haId string
	es   *eventstream.EventStream
}

func NewStreamSubscriber(haId string, es *eventstream.EventStream) *StreamSubscriber {
	return &StreamSubscriber{haId: haId, es: es}
}

func (s *StreamSubscriber) HandleEvent(ev homeconnect.ApplianceEvent) {
	for _, update := range ApplianceEventToUpdateEvents(ev) {
		s.es.Publish(update)
	}
}

func (s *StreamSubscriber) HandleConnectivity(connected bool) {
	for _, update := range ApplianceConnectivityToUpdateEvents(s.haId, connected) {
		s.es.Publish(update)
	}
}

// shortKey reduces a BSH enum value to its last segment.
// "BSH.Common.EnumType.OperationState.Run" => "Run"
func shortKey(key string) string {
	if idx := strings.LastIndex(key, "."); idx >= 0 {
		return key[idx+1:]
	}
	return key
}

func stringValue(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	return ""
}

func floatValue(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}
