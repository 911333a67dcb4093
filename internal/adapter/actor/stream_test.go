package actor

import (
	"testing"
	"time"

	"github.com/berfenger/homeconnect2mqtt/internal/core/domain"
	"github.com/berfenger/homeconnect2mqtt/internal/util"
	"github.com/berfenger/homeconnect2mqtt/internal/util/actorutil"
	"github.com/berfenger/homeconnect2mqtt/pkg/homeconnect"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func spawnTestStreamActor(t *testing.T) (*actor.RootContext, *actor.PID, *homeconnect.TestTransport,
	*homeconnect.Registry, *eventstream.EventStream, func()) {
	t.Helper()

	cfg := util.LoadTestConfig()
	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	tokens := &homeconnect.TestTokenSource{AccessToken: "tok-1"}
	registry := homeconnect.NewRegistry()
	rate := homeconnect.NewRateTracker(logger)
	es := &eventstream.EventStream{}
	transport := &homeconnect.TestTransport{}

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewTestStreamActor(&cfg, tokens, registry, rate, es, transport, logger)
	})
	pid := context.Spawn(props)

	return context, pid, transport, registry, es, func() {
		context.Stop(pid)
		time.Sleep(500 * time.Millisecond)
		as.Shutdown()
	}
}

func TestStreamActorConnectDisconnect(t *testing.T) {

	context, pid, transport, _, _, shutdown := spawnTestStreamActor(t)
	defer shutdown()

	time.Sleep(1 * time.Second)

	res, err := context.RequestFuture(pid, domain.ConnectStreamRequest{}, 2*time.Second).Result()
	require.NoError(t, err)
	connResp, ok := res.(domain.ConnectStreamResponse)
	require.True(t, ok)
	assert.Equal(t, homeconnect.StateConnecting, connResp.Status.State)

	// transport confirms the connection
	context.Send(pid, streamSignal{signal: homeconnect.StreamSignal{Kind: homeconnect.SignalStart}})
	time.Sleep(500 * time.Millisecond)

	res, err = context.RequestFuture(pid, domain.StreamStatusRequest{}, 2*time.Second).Result()
	require.NoError(t, err)
	statusResp, ok := res.(domain.StreamStatusResponse)
	require.True(t, ok)
	assert.Equal(t, homeconnect.StateConnected, statusResp.Status.State)
	assert.Equal(t, 1, transport.Opens)

	res, err = context.RequestFuture(pid, domain.DisconnectStreamRequest{}, 2*time.Second).Result()
	require.NoError(t, err)
	discResp, ok := res.(domain.DisconnectStreamResponse)
	require.True(t, ok)
	assert.Equal(t, homeconnect.StateDisconnected, discResp.Status.State)
	assert.Equal(t, 1, transport.Closes)
}

func TestStreamActorRoutesEvents(t *testing.T) {

	context, pid, _, registry, _, shutdown := spawnTestStreamActor(t)
	defer shutdown()

	sub := &homeconnect.TestSubscriber{}
	registry.Register("BOSCH-Dishwasher-01", sub)

	time.Sleep(1 * time.Second)

	_, err := context.RequestFuture(pid, domain.ConnectStreamRequest{}, 2*time.Second).Result()
	require.NoError(t, err)
	context.Send(pid, streamSignal{signal: homeconnect.StreamSignal{Kind: homeconnect.SignalStart}})

	payload := "event: STATUS\ndata: {\"haId\":\"BOSCH-Dishwasher-01\",\"items\":" +
		"[{\"key\":\"BSH.Common.Status.DoorState\",\"value\":\"BSH.Common.EnumType.DoorState.Open\"}]}\n\n"
	context.Send(pid, streamData{chunk: []byte(payload)})

	time.Sleep(1 * time.Second)

	keys := sub.EventKeys()
	require.Len(t, keys, 1)
	assert.Equal(t, "BSH.Common.Status.DoorState", keys[0])
}

func TestStreamActorPublishesStateChanges(t *testing.T) {

	context, pid, _, _, es, shutdown := spawnTestStreamActor(t)
	defer shutdown()

	var texts []string
	sub := es.Subscribe(func(evt any) {
		if text, ok := evt.(domain.TextSensorUpdateEvent); ok && text.Id == domain.SENSOR_ID_STREAM_STATE {
			texts = append(texts, text.Value)
		}
	})
	defer es.Unsubscribe(sub)

	time.Sleep(1 * time.Second)

	_, err := context.RequestFuture(pid, domain.ConnectStreamRequest{}, 2*time.Second).Result()
	require.NoError(t, err)
	context.Send(pid, streamSignal{signal: homeconnect.StreamSignal{Kind: homeconnect.SignalStart}})

	// keep-alives must not republish the unchanged state
	context.Send(pid, streamData{chunk: []byte("event: KEEP-ALIVE\ndata:\n\n")})
	context.Send(pid, streamData{chunk: []byte("event: KEEP-ALIVE\ndata:\n\n")})

	time.Sleep(1 * time.Second)

	assert.Contains(t, texts, "connecting")
	assert.Contains(t, texts, "connected")
	count := 0
	for _, text := range texts {
		if text == "connected" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}
