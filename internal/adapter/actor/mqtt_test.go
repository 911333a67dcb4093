package actor

import (
	"testing"
	"time"

	"github.com/berfenger/homeconnect2mqtt/internal/core/domain"
	"github.com/berfenger/homeconnect2mqtt/internal/mqtt"
	"github.com/berfenger/homeconnect2mqtt/internal/util"
	"github.com/berfenger/homeconnect2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestMQTTActor(t *testing.T) {

	cfg := util.LoadTestConfig()

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)

	context := as.Root

	es := eventstream.EventStream{}

	props := actor.PropsFromProducer(func() actor.Actor { return NewTestMQTTActor(&cfg, &es, logger) })
	pid := context.Spawn(props)

	time.Sleep(2 * time.Second)

	msg := domain.ActorHealthRequest{}
	result, err := context.RequestFuture(pid, msg, 2*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp, ok := result.(domain.ActorHealthResponse)
	assert.True(t, ok)
	assert.NotNil(t, resp)

	es.Publish(domain.FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{
			HaId: "BOSCH-Dishwasher-01",
			Id:   domain.SENSOR_ID_PROGRAM_PROGRESS,
		},
		Value: 45,
	})
	es.Publish(domain.TextSensorUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{
			Id: domain.SENSOR_ID_STREAM_STATE,
		},
		Value: "connected",
	})

	time.Sleep(1 * time.Second)

	context.Stop(pid)

	time.Sleep(1 * time.Second)

	as.Shutdown()
}

func TestMQTTEvent2Message(t *testing.T) {

	cfg := util.LoadTestConfig()
	logger := zap.Must(zap.NewDevelopment())
	es := eventstream.EventStream{}

	state := NewTestMQTTActor(&cfg, &es, logger)
	state.client = mqtt.CreateMQTTClient(&cfg, mqtt.OptsFromConfig(&cfg), nil, nil)

	msg := state.event2MQTTMessage(domain.BinarySensorUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{
			HaId: "BOSCH-Dishwasher-01",
			Id:   domain.SENSOR_ID_DOOR_STATE,
		},
		Value: true,
	})
	assert.NotNil(t, msg)
	assert.Equal(t, "homeconnect/appliance/bosch_dishwasher_01/binary_sensor/door/state", msg.topic)
	assert.Equal(t, "on", msg.message)

	msg = state.event2MQTTMessage(domain.SwitchSensorUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{
			HaId: "BOSCH-Dishwasher-01",
			Id:   domain.SWITCH_ID_POWER,
		},
		Value: false,
	})
	assert.NotNil(t, msg)
	assert.Equal(t, "homeconnect/appliance/bosch_dishwasher_01/switch/power/state", msg.topic)
	assert.Equal(t, "off", msg.message)
	assert.True(t, msg.retain)

	// bridge-level sensors have no appliance id and publish under bridge/
	msg = state.event2MQTTMessage(domain.TextSensorUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{
			Id: domain.SENSOR_ID_STREAM_STATE,
		},
		Value: "connected",
	})
	assert.NotNil(t, msg)
	assert.Equal(t, "homeconnect/bridge/stream_state/state", msg.topic)
	assert.Equal(t, "connected", msg.message)

	msg = state.event2MQTTMessage(domain.BridgeStateUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{
			Id: domain.SENSOR_ID_BRIDGE_STATE,
		},
		Value: true,
	})
	assert.NotNil(t, msg)
	assert.Equal(t, "homeconnect/bridge/state", msg.topic)
	assert.Equal(t, "online", msg.message)
}
