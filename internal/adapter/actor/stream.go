package actor

import (
	"fmt"
	"time"

	"github.com/berfenger/homeconnect2mqtt/internal/config"
	"github.com/berfenger/homeconnect2mqtt/internal/core/domain"
	"github.com/berfenger/homeconnect2mqtt/internal/core/events"
	"github.com/berfenger/homeconnect2mqtt/internal/util/actorutil"
	"github.com/berfenger/homeconnect2mqtt/pkg/homeconnect"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

// StreamActor owns the event stream connection. It hosts the StreamManager
// and serializes every entry point through its mailbox: transport callbacks,
// timers and operator requests all arrive as messages.
type StreamActor struct {
	config   *config.Config
	behavior actor.Behavior
	stash    *actorutil.Stash

	manager   *homeconnect.StreamManager
	tokens    homeconnect.TokenSource
	registry  *homeconnect.Registry
	rate      *homeconnect.RateTracker
	transport homeconnect.StreamTransport

	eventStream *eventstream.EventStream
	scheduler   *scheduler.TimerScheduler
	self        *actor.PID

	cancelReconnect scheduler.CancelFunc
	lastStatusText  string

	logger *zap.Logger
}

type streamData struct {
	chunk []byte
}

type streamSignal struct {
	signal homeconnect.StreamSignal
}

type reconnectTick struct {
}

type resyncTick struct {
}

// actorStreamSink forwards transport callbacks into the actor mailbox. The
// transport read loop runs on its own goroutine and must never touch actor
// state directly.
type actorStreamSink struct {
	root *actor.RootContext
	pid  *actor.PID
}

func (s *actorStreamSink) OnData(chunk []byte) {
	s.root.Send(s.pid, streamData{chunk: chunk})
}

func (s *actorStreamSink) OnStatus(signal homeconnect.StreamSignal) {
	s.root.Send(s.pid, streamSignal{signal: signal})
}

func NewStreamActor(cfg *config.Config, tokens homeconnect.TokenSource, registry *homeconnect.Registry,
	rate *homeconnect.RateTracker, eventStream *eventstream.EventStream, logger *zap.Logger) *StreamActor {
	act := &StreamActor{
		config:      cfg,
		tokens:      tokens,
		registry:    registry,
		rate:        rate,
		eventStream: eventStream,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_STREAM, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

// NewTestStreamActor wires the actor to a fake transport instead of the SSE
// one. Everything above the transport runs for real.
func NewTestStreamActor(cfg *config.Config, tokens homeconnect.TokenSource, registry *homeconnect.Registry,
	rate *homeconnect.RateTracker, eventStream *eventstream.EventStream,
	transport homeconnect.StreamTransport, logger *zap.Logger) *StreamActor {
	act := NewStreamActor(cfg, tokens, registry, rate, eventStream, logger)
	act.transport = transport
	return act
}

func (state *StreamActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *StreamActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("stream@starting started")

		state.self = ctx.Self()
		state.scheduler = scheduler.NewTimerScheduler(ctx)

		if state.transport == nil {
			sink := &actorStreamSink{root: ctx.ActorSystem().Root, pid: ctx.Self()}
			state.transport = homeconnect.NewSSETransport(state.config.HomeConnect.APIBaseURL,
				state.config.HomeConnect.Locale, sink, state.logger)
		}

		notifier := &streamNotifier{
			eventStream: state.eventStream,
			root:        ctx.ActorSystem().Root,
			master:      ctx.Parent(),
		}
		router := homeconnect.NewRouter(state.registry, notifier, state.logger)
		state.manager = homeconnect.NewStreamManager(state.transport, state.tokens, router,
			state.rate, state, state.logger)

		if state.config.MonitorConfig.StreamAutoConnect {
			state.manager.Connect()
		}
		state.publishStreamState()
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.closeTransport()
	default:
		state.logger.Debug("stream@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *StreamActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Restarting:
		state.closeTransport()
	case *actor.Stopping:
		state.closeTransport()
	case domain.ActorHealthRequest:
		state.logger.Debug("stream@default ActorHealthRequest")
		status := state.manager.Status()
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_STREAM,
			Healthy: status.State != homeconnect.StateFailed,
			State:   status.StatusText,
		})
	case streamData:
		state.manager.OnData(msg.chunk)
		state.publishQuota()
		state.publishStreamState()
	case streamSignal:
		state.logger.Debug("stream@default signal", zap.String("signal", msg.signal.String()))
		state.manager.OnStatus(msg.signal)
		state.publishStreamState()
	case reconnectTick:
		state.logger.Debug("stream@default reconnectTick")
		state.manager.Reconnect()
		state.publishStreamState()
	case resyncTick:
		state.logger.Debug("stream@default resyncTick")
		ctx.Send(ctx.Parent(), domain.ResyncNeeded{})
	case domain.ConnectStreamRequest:
		state.logger.Debug("stream@default ConnectStreamRequest")
		state.manager.Connect()
		state.publishStreamState()
		actorutil.ForRequest(msg).Respond(ctx, domain.ConnectStreamResponse{Status: state.manager.Status()})
	case domain.DisconnectStreamRequest:
		state.logger.Debug("stream@default DisconnectStreamRequest")
		state.manager.Disconnect()
		state.publishStreamState()
		actorutil.ForRequest(msg).Respond(ctx, domain.DisconnectStreamResponse{Status: state.manager.Status()})
	case domain.ClearRateLimitRequest:
		state.logger.Debug("stream@default ClearRateLimitRequest")
		state.manager.ClearRateLimit()
		state.publishStreamState()
		actorutil.ForRequest(msg).Respond(ctx, domain.ClearRateLimitResponse{Status: state.manager.Status()})
	case domain.StreamStatusRequest:
		remaining, limit, _ := state.rate.Quota()
		actorutil.ForRequest(msg).Respond(ctx, domain.StreamStatusResponse{
			Status:         state.manager.Status(),
			QuotaRemaining: remaining,
			QuotaLimit:     limit,
		})
	default:
		state.logger.Debug("stream@default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// ScheduleReconnect implements homeconnect.Scheduler on actor timers.
func (state *StreamActor) ScheduleReconnect(after time.Duration) {
	if state.cancelReconnect != nil {
		state.cancelReconnect()
	}
	state.cancelReconnect = state.scheduler.RequestOnce(after, state.self, reconnectTick{})
}

func (state *StreamActor) CancelReconnect() {
	if state.cancelReconnect != nil {
		state.cancelReconnect()
		state.cancelReconnect = nil
	}
}

func (state *StreamActor) ScheduleResync(after time.Duration) {
	state.scheduler.RequestOnce(after, state.self, resyncTick{})
}

// publishStreamState publishes only on change so keep-alives do not flood
// the bus.
func (state *StreamActor) publishStreamState() {
	status := state.manager.Status()
	if status.StatusText == state.lastStatusText {
		return
	}
	state.lastStatusText = status.StatusText
	for _, ev := range events.StreamStateToUpdateEvents(status) {
		state.eventStream.Publish(ev)
	}
}

func (state *StreamActor) publishQuota() {
	remaining, _, _ := state.rate.Quota()
	for _, ev := range events.RateQuotaToUpdateEvents(remaining) {
		state.eventStream.Publish(ev)
	}
}

func (state *StreamActor) closeTransport() {
	state.logger.Debug("stream: close")
	if state.manager != nil {
		state.manager.Disconnect()
	}
}

// streamNotifier handles stream-level notifications from the router. It runs
// inside the actor's receive, so publishing synchronously is safe.
type streamNotifier struct {
	eventStream *eventstream.EventStream
	root        *actor.RootContext
	master      *actor.PID
}

func (n *streamNotifier) NotifyConnectivity(haId string, connected bool) {
	for _, ev := range events.ApplianceConnectivityToUpdateEvents(haId, connected) {
		n.eventStream.Publish(ev)
	}
}

func (n *streamNotifier) NotifyResyncNeeded() {
	if n.master != nil {
		n.root.Send(n.master, domain.ResyncNeeded{})
	}
}
