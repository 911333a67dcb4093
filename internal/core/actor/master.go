package actor

import (
	"errors"
	"fmt"
	"log"
	"time"

	adactor "github.com/berfenger/homeconnect2mqtt/internal/adapter/actor"
	"github.com/berfenger/homeconnect2mqtt/internal/config"
	"github.com/berfenger/homeconnect2mqtt/internal/core/domain"
	"github.com/berfenger/homeconnect2mqtt/internal/core/events"
	. "github.com/berfenger/homeconnect2mqtt/internal/util/actorutil"
	"github.com/berfenger/homeconnect2mqtt/pkg/homeconnect"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

type MQTTActorProvider func(*eventstream.EventStream) *adactor.MQTTActor

type APIClientActorProvider func() *adactor.APIClientActor

type StreamActorProvider func(*homeconnect.Registry, *eventstream.EventStream) *adactor.StreamActor

// MasterOfPuppetsActor supervises the actor tree: API client, MQTT bridge and
// the event stream. It also owns the appliance registry and routes inbound
// MQTT commands to the API client.
type MasterOfPuppetsActor struct {
	config   config.Config
	behavior actor.Behavior
	stash    *Stash

	currentHealthCheck healthCheckResult
	eventStream        *eventstream.EventStream
	registry           *homeconnect.Registry

	apiClientActor *actor.PID
	mqttActor      *actor.PID
	streamActor    *actor.PID

	apiClientActorProvider APIClientActorProvider
	mqttActorProvider      MQTTActorProvider
	streamActorProvider    StreamActorProvider
	logger                 *zap.Logger
}

type healthCheckResult struct {
	apiClientActorHealthy bool
	mqttActorHealthy      bool
	streamActorHealthy    bool
	checksReceived        int
	respondTo             *actor.PID
}

func NewMasterOfPuppetsActor(config config.Config, apiClientActorProvider APIClientActorProvider,
	mqttActorProvider MQTTActorProvider, streamActorProvider StreamActorProvider,
	logger *zap.Logger) *MasterOfPuppetsActor {
	act := &MasterOfPuppetsActor{
		config:                 config,
		behavior:               actor.NewBehavior(),
		stash:                  &Stash{},
		logger:                 ActorLogger(domain.ACTOR_ID_MASTER, logger),
		eventStream:            &eventstream.EventStream{},
		registry:               homeconnect.NewRegistry(),
		apiClientActorProvider: apiClientActorProvider,
		mqttActorProvider:      mqttActorProvider,
		streamActorProvider:    streamActorProvider,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterOfPuppetsActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MasterOfPuppetsActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		state.currentHealthCheck = healthCheckResult{}
		state.currentHealthCheck.reset()

		// start API client child
		apiClientActorPID, err := state.startAPIClientActor(ctx)
		if err != nil {
			panic(err)
		}
		state.apiClientActor = apiClientActorPID

		// start MQTT child
		mqttActorPID, err := state.startMQTTActor(ctx)
		if err != nil {
			panic(err)
		}
		state.mqttActor = mqttActorPID

		// start Stream child
		streamActorPID, err := state.startStreamActor(ctx)
		if err != nil {
			panic(err)
		}
		state.streamActor = streamActorPID

		// start HA Discovery
		if state.config.MQTT.HADiscoveryEnable {
			_, err := state.startHADiscoveryActor(ctx)
			if err != nil {
				panic(err)
			}
		}

		// discover appliances to populate the registry
		ctx.Request(state.apiClientActor, domain.GetAppliancesRequest{})

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.currentHealthCheck.reset()
		state.currentHealthCheck.respondTo = ctx.Sender()
		// API client Actor Request
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.apiClientActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_APICLIENT,
				Healthy: false,
			}
		})
		// MQTT Actor Request
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
			}
		})
		// Stream Actor Request
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.streamActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_STREAM,
				Healthy: false,
			}
		})

		ctx.SetReceiveTimeout(1 * time.Second)

		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case domain.GetAppliancesResponse:
		if msg.HasResponseError() {
			state.logger.Error("master@default appliance discovery failed", zap.Error(msg.GetResponseError()))
			return
		}
		state.registerAppliances(msg.Appliances)
	case domain.GetApplianceStateResponse:
		// resync answer: replay current state as if it arrived on the stream
		if msg.HasResponseError() {
			state.logger.Error("master@default appliance state read failed",
				zap.String("haId", msg.HaId), zap.Error(msg.GetResponseError()))
			return
		}
		state.logger.Debug("master@default appliance state", zap.String("haId", msg.HaId),
			zap.Int("items", len(msg.Items)))
		for _, item := range msg.Items {
			for _, update := range events.ApplianceEventToUpdateEvents(item) {
				state.eventStream.Publish(update)
			}
		}
	case domain.ResyncNeeded:
		state.logger.Info("master@default resync")
		for _, haId := range state.registry.Ids() {
			ctx.Request(state.apiClientActor, domain.GetApplianceStateRequest{HaId: haId})
		}
	case adactor.ParsedCommand:
		// redirect parsedCommand to the API client
		state.logger.Debug("master@default parsedCommand", zap.Any("command", msg.Command))
		if msg.Command != nil {
			cmd, err := ParsedMQTTCommandToCommand(*msg.Command)
			if err == nil && cmd != nil {
				ctx.Send(state.apiClientActor, cmd)
			}
		}
	case domain.ConnectStreamRequest:
		ctx.Forward(state.streamActor)
	case domain.DisconnectStreamRequest:
		ctx.Forward(state.streamActor)
	case domain.ClearRateLimitRequest:
		ctx.Forward(state.streamActor)
	case domain.StreamStatusRequest:
		ctx.Forward(state.streamActor)
	case *actor.Terminated:
		// if some actor fails on boot, terminate
		if msg.Who.Id == fmt.Sprintf("%s/%s", domain.ACTOR_ID_MASTER, domain.ACTOR_ID_APICLIENT) {
			state.logger.Error("master@default apiclient error")
			panic(errors.New("apiclient terminated"))
		}
	default:
		state.logger.Debug("master@default stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// if some actor does not respond to healthCheck, assume not healthy
		state.currentHealthCheck.respond(ctx)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.checksReceived++
		if msg.Healthy {
			if msg.Id == domain.ACTOR_ID_APICLIENT {
				state.currentHealthCheck.apiClientActorHealthy = true
			} else if msg.Id == domain.ACTOR_ID_MQTT {
				state.currentHealthCheck.mqttActorHealthy = true
			} else if msg.Id == domain.ACTOR_ID_STREAM {
				state.currentHealthCheck.streamActorHealthy = true
			}
		}
		if state.currentHealthCheck.allReceived() {

			state.currentHealthCheck.respond(ctx)

			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		} else {
			ctx.SetReceiveTimeout(1 * time.Second)
		}
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

// registerAppliances wires each discovered appliance into the registry so
// stream events find their subscriber, then publishes initial connectivity.
func (state *MasterOfPuppetsActor) registerAppliances(appliances []homeconnect.ApplianceInfo) {
	for _, appliance := range appliances {
		state.logger.Info("master: appliance", zap.String("haId", appliance.HaId),
			zap.String("name", appliance.Name), zap.Bool("connected", appliance.Connected))
		state.registry.Register(appliance.HaId, events.NewStreamSubscriber(appliance.HaId, state.eventStream))
		for _, update := range events.ApplianceConnectivityToUpdateEvents(appliance.HaId, appliance.Connected) {
			state.eventStream.Publish(update)
		}
	}
}

func (state *MasterOfPuppetsActor) startAPIClientActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	apiClientProps := actor.PropsFromProducer(func() actor.Actor {
		return state.apiClientActorProvider()
	}, actor.WithSupervisor(supervisor))
	apiClientActorPID, err := ctx.SpawnNamed(apiClientProps, domain.ACTOR_ID_APICLIENT)
	if err != nil {
		return nil, err
	}

	return apiClientActorPID, nil
}

func (state *MasterOfPuppetsActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	mqttProps := actor.PropsFromProducer(func() actor.Actor {
		return state.mqttActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	mqttActorPID, err := ctx.SpawnNamed(mqttProps, domain.ACTOR_ID_MQTT)
	if err != nil {
		return nil, err
	}

	return mqttActorPID, nil
}

func (state *MasterOfPuppetsActor) startStreamActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	streamProps := actor.PropsFromProducer(func() actor.Actor {
		return state.streamActorProvider(state.registry, state.eventStream)
	}, actor.WithSupervisor(supervisor))
	streamActorPID, err := ctx.SpawnNamed(streamProps, domain.ACTOR_ID_STREAM)
	if err != nil {
		return nil, err
	}

	return streamActorPID, nil
}

func (state *MasterOfPuppetsActor) startHADiscoveryActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	haDiscProps := actor.PropsFromProducer(func() actor.Actor {
		return NewHADiscoveryActor(&state.config, state.apiClientActor, state.mqttActor, state.logger)
	}, actor.WithSupervisor(supervisor))
	haDiscPID, err := ctx.SpawnNamed(haDiscProps, domain.ACTOR_ID_HA_DISCOVERY)
	if err != nil {
		return nil, err
	}

	return haDiscPID, nil
}

func (state *healthCheckResult) reset() {
	state.apiClientActorHealthy = false
	state.mqttActorHealthy = false
	state.streamActorHealthy = false
	state.checksReceived = 0
}

func (state *healthCheckResult) allReceived() bool {
	return state.checksReceived == 3
}

func (state *healthCheckResult) allHealthy() bool {
	return state.apiClientActorHealthy && state.mqttActorHealthy && state.streamActorHealthy
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: state.allHealthy(),
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
