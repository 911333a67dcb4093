package events

import (
	"testing"

	"github.com/berfenger/homeconnect2mqtt/internal/core/domain"
	"github.com/berfenger/homeconnect2mqtt/pkg/homeconnect"

	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplianceEventToUpdateEventsDoor(t *testing.T) {

	updates := ApplianceEventToUpdateEvents(homeconnect.ApplianceEvent{
		HaId:  "BOSCH-Dishwasher-01",
		Key:   KEY_DOOR_STATE,
		Value: "BSH.Common.EnumType.DoorState.Open",
	})

	require.Len(t, updates, 1)
	door, ok := updates[0].(domain.BinarySensorUpdateEvent)
	require.True(t, ok)
	assert.Equal(t, "BOSCH-Dishwasher-01", door.HaId)
	assert.Equal(t, domain.SENSOR_ID_DOOR_STATE, door.Id)
	assert.True(t, door.Value)
}

func TestApplianceEventToUpdateEventsOperationState(t *testing.T) {

	updates := ApplianceEventToUpdateEvents(homeconnect.ApplianceEvent{
		HaId:  "BOSCH-Dishwasher-01",
		Key:   KEY_OPERATION_STATE,
		Value: "BSH.Common.EnumType.OperationState.Run",
	})

	require.Len(t, updates, 1)
	op, ok := updates[0].(domain.TextSensorUpdateEvent)
	require.True(t, ok)
	assert.Equal(t, "Run", op.Value)
}

func TestApplianceEventToUpdateEventsPower(t *testing.T) {

	updates := ApplianceEventToUpdateEvents(homeconnect.ApplianceEvent{
		HaId:  "BOSCH-Dishwasher-01",
		Key:   KEY_POWER_STATE,
		Value: VALUE_POWER_ON,
	})

	require.Len(t, updates, 1)
	power, ok := updates[0].(domain.SwitchSensorUpdateEvent)
	require.True(t, ok)
	assert.Equal(t, domain.SWITCH_ID_POWER, power.Id)
	assert.True(t, power.Value)
}

func TestApplianceEventToUpdateEventsProgress(t *testing.T) {

	updates := ApplianceEventToUpdateEvents(homeconnect.ApplianceEvent{
		HaId:  "BOSCH-Dishwasher-01",
		Key:   KEY_PROGRAM_PROGRESS,
		Value: float64(42),
	})

	require.Len(t, updates, 1)
	progress, ok := updates[0].(domain.FloatSensorUpdateEvent)
	require.True(t, ok)
	assert.Equal(t, float64(42), progress.Value)
}

func TestApplianceEventToUpdateEventsUnknownKey(t *testing.T) {

	updates := ApplianceEventToUpdateEvents(homeconnect.ApplianceEvent{
		HaId:  "BOSCH-Dishwasher-01",
		Key:   "LaundryCare.Washer.Option.SpinSpeed",
		Value: "1400",
	})

	assert.Empty(t, updates)
}

func TestStreamStateToUpdateEvents(t *testing.T) {

	updates := StreamStateToUpdateEvents(homeconnect.ConnStatus{
		State:      homeconnect.StateConnected,
		StatusText: "connected",
	})

	require.Len(t, updates, 2)
	text, ok := updates[0].(domain.TextSensorUpdateEvent)
	require.True(t, ok)
	assert.Equal(t, domain.SENSOR_ID_STREAM_STATE, text.Id)
	assert.Equal(t, "connected", text.Value)

	bridge, ok := updates[1].(domain.BridgeStateUpdateEvent)
	require.True(t, ok)
	assert.True(t, bridge.Value)
}

func TestRateQuotaToUpdateEvents(t *testing.T) {

	assert.Len(t, RateQuotaToUpdateEvents(250), 1)
	// unknown quota publishes nothing
	assert.Empty(t, RateQuotaToUpdateEvents(-1))
}

func TestStreamSubscriberPublishes(t *testing.T) {

	es := eventstream.EventStream{}
	var received []any
	sub := es.Subscribe(func(evt any) {
		received = append(received, evt)
	})
	defer es.Unsubscribe(sub)

	streamSub := NewStreamSubscriber("BOSCH-Dishwasher-01", &es)
	streamSub.HandleEvent(homeconnect.ApplianceEvent{
		HaId:  "BOSCH-Dishwasher-01",
		Key:   KEY_ACTIVE_PROGRAM,
		Value: "Dishcare.Dishwasher.Program.Eco50",
	})
	streamSub.HandleConnectivity(false)

	require.Len(t, received, 2)
	program, ok := received[0].(domain.TextSensorUpdateEvent)
	require.True(t, ok)
	assert.Equal(t, "Eco50", program.Value)

	conn, ok := received[1].(domain.BinarySensorUpdateEvent)
	require.True(t, ok)
	assert.Equal(t, domain.SENSOR_ID_APPLIANCE_CONNECTED, conn.Id)
	assert.False(t, conn.Value)
}
