package actor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/berfenger/homeconnect2mqtt/internal/core/domain"
	"github.com/berfenger/homeconnect2mqtt/internal/core/events"
	"github.com/berfenger/homeconnect2mqtt/internal/util/actorutil"
	"github.com/berfenger/homeconnect2mqtt/pkg/homeconnect"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/reugn/go-quartz/logger"
	"go.uber.org/zap"
)

const apiRequestTimeout = 35 * time.Second

// APIClientActor serializes command and query traffic against the vendor
// REST API. Requests run as tasks with a timeout and the actor stashes
// everything else until the in-flight call answers.
type APIClientActor struct {
	behavior actor.Behavior
	stash    *actorutil.Stash
	client   *homeconnect.Client
	logger   *zap.Logger
}

type backgroundTaskResult struct {
	message any
	replyTo *actor.PID
}

func NewAPIClientActor(client *homeconnect.Client, logger *zap.Logger) *APIClientActor {
	act := &APIClientActor{
		client:   client,
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		logger:   actorutil.ActorLogger(domain.ACTOR_ID_APICLIENT, logger),
	}
	act.behavior.Become(act.DefaultReceive)
	return act
}

func (state *APIClientActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *APIClientActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("apiclient@default ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_APICLIENT,
			Healthy: true,
			State:   "idle",
		})
	case domain.GetAppliancesRequest:
		state.logger.Debug("apiclient@default GetAppliancesRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.getAppliances),
			mapTaskResult[domain.GetAppliancesResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.GetAppliancesResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(apiRequestTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingAPI)
	case domain.GetApplianceStateRequest:
		state.logger.Debug("apiclient@default GetApplianceStateRequest", zap.String("haId", msg.HaId))
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, func() (*domain.GetApplianceStateResponse, error) {
			return state.getApplianceState(msg.HaId)
		}), mapTaskResult[domain.GetApplianceStateResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.GetApplianceStateResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
					HaId: msg.HaId,
				},
				replyTo: sender,
			}
		}).WithTimeout(apiRequestTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingAPI)
	case domain.AppliancePowerRequest:
		state.logger.Debug("apiclient@default AppliancePowerRequest",
			zap.String("haId", msg.HaId), zap.Bool("on", msg.On))
		state.runCommand(ctx, msg, func() error {
			return state.setPower(msg.HaId, msg.On)
		}, func(err error) any {
			return domain.AppliancePowerResponse{
				ApplianceCommandResponseMixIn: commandError(err),
			}
		})
	case domain.ApplianceStartProgramRequest:
		state.logger.Debug("apiclient@default ApplianceStartProgramRequest",
			zap.String("haId", msg.HaId), zap.String("program", msg.ProgramKey))
		state.runCommand(ctx, msg, func() error {
			return state.startProgram(msg.HaId, msg.ProgramKey)
		}, func(err error) any {
			return domain.ApplianceStartProgramResponse{
				ApplianceCommandResponseMixIn: commandError(err),
			}
		})
	case domain.ApplianceStopProgramRequest:
		state.logger.Debug("apiclient@default ApplianceStopProgramRequest", zap.String("haId", msg.HaId))
		state.runCommand(ctx, msg, func() error {
			return state.stopProgram(msg.HaId)
		}, func(err error) any {
			return domain.ApplianceStopProgramResponse{
				ApplianceCommandResponseMixIn: commandError(err),
			}
		})
	case domain.ApplianceSetSettingRequest:
		state.logger.Debug("apiclient@default ApplianceSetSettingRequest",
			zap.String("haId", msg.HaId), zap.String("setting", msg.SettingKey))
		state.runCommand(ctx, msg, func() error {
			return state.setSetting(msg.HaId, msg.SettingKey, msg.Value)
		}, func(err error) any {
			return domain.ApplianceSetSettingResponse{
				ApplianceCommandResponseMixIn: commandError(err),
			}
		})
	default:
		state.logger.Debug("apiclient@default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *APIClientActor) WaitingAPI(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("apiclient@waiting backgroundTaskResult", zap.String("type", fmt.Sprintf("%T", msg.message)))
		if msg.replyTo != nil {
			ctx.Send(msg.replyTo, msg.message)
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("apiclient@waiting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

// runCommand executes a mutating call in the background and answers with the
// mapped response, error or not.
func (state *APIClientActor) runCommand(ctx actor.Context, msg domain.ActorRequest,
	call func() error, response func(error) any) {
	sender := actorutil.ForRequest(msg).ReplyTo(ctx)
	actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, func() (*any, error) {
		err := call()
		resp := response(err)
		return &resp, nil
	}), mapTaskResult[any](sender)).Recover(func(err error) backgroundTaskResult {
		return backgroundTaskResult{
			message: response(err),
			replyTo: sender,
		}
	}).WithTimeout(apiRequestTimeout).PipeTo(ctx.Self())
	state.behavior.BecomeStacked(state.WaitingAPI)
}

func (a *APIClientActor) getAppliances() (*domain.GetAppliancesResponse, error) {
	appliances, err := a.client.GetAppliances(context.Background())
	if err != nil {
		logger.Error(err)
		return nil, err
	}
	return &domain.GetAppliancesResponse{
		Appliances: appliances,
	}, nil
}

// getApplianceState reads the full status and settings of one appliance and
// normalizes both into stream-shaped items. Used for resync after outages.
func (a *APIClientActor) getApplianceState(haId string) (*domain.GetApplianceStateResponse, error) {
	var items []homeconnect.ApplianceEvent

	statusItems, err := a.fetchItems(haId, "status")
	if err != nil {
		logger.Error(err)
		return nil, err
	}
	items = append(items, statusItems...)

	settingItems, err := a.fetchItems(haId, "settings")
	if err != nil {
		logger.Error(err)
		return nil, err
	}
	items = append(items, settingItems...)

	return &domain.GetApplianceStateResponse{
		HaId:  haId,
		Items: items,
	}, nil
}

func (a *APIClientActor) fetchItems(haId, section string) ([]homeconnect.ApplianceEvent, error) {
	body, err := a.client.Get(context.Background(), fmt.Sprintf("/api/homeappliances/%s/%s", haId, section))
	if err != nil {
		return nil, err
	}
	var wrapper struct {
		Data map[string][]struct {
			Key          string `json:"key"`
			Value        any    `json:"value"`
			DisplayValue string `json:"displayvalue"`
			Unit         string `json:"unit"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, err
	}
	var items []homeconnect.ApplianceEvent
	for _, item := range wrapper.Data[section] {
		items = append(items, homeconnect.ApplianceEvent{
			HaId:         haId,
			Key:          item.Key,
			Value:        item.Value,
			DisplayValue: item.DisplayValue,
			Unit:         item.Unit,
			EventType:    homeconnect.EVENT_TYPE_STATUS,
		})
	}
	return items, nil
}

func (a *APIClientActor) setPower(haId string, on bool) error {
	value := events.VALUE_POWER_OFF
	if on {
		value = events.VALUE_POWER_ON
	}
	return a.setSetting(haId, events.KEY_POWER_STATE, value)
}

func (a *APIClientActor) setSetting(haId, key string, value any) error {
	return a.client.Put(context.Background(),
		fmt.Sprintf("/api/homeappliances/%s/settings/%s", haId, key),
		map[string]any{"key": key, "value": value})
}

func (a *APIClientActor) startProgram(haId, programKey string) error {
	return a.client.Put(context.Background(),
		fmt.Sprintf("/api/homeappliances/%s/programs/active", haId),
		map[string]any{"key": programKey})
}

func (a *APIClientActor) stopProgram(haId string) error {
	return a.client.Delete(context.Background(),
		fmt.Sprintf("/api/homeappliances/%s/programs/active", haId))
}

func commandError(err error) domain.ApplianceCommandResponseMixIn {
	return domain.ApplianceCommandResponseMixIn{
		ActorResponse: domain.ActorResponseMixIn{
			ResponseError: err,
		},
	}
}

func mapTaskResult[T any](sender *actor.PID) func(t *T) *backgroundTaskResult {
	return func(t *T) *backgroundTaskResult {
		return &backgroundTaskResult{
			message: *t,
			replyTo: sender,
		}
	}
}
