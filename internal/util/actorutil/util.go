package actorutil

import (
	"log/slog"
	"time"

	"github.com/berfenger/homeconnect2mqtt/internal/core/domain"
	"github.com/berfenger/homeconnect2mqtt/internal/mqtt"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/lmittmann/tint"
	"go.uber.org/zap"
)

func PipeToSelfWithRecover(ctx actor.Context, future *actor.Future, mapFn func(error) any) {
	ctx.ReenterAfter(future, func(msg any, err error) {
		if err != nil {
			ctx.Send(ctx.Self(), mapFn(err))
			return
		}
		ctx.Send(ctx.Self(), msg)
	})
}

func NewActorSystemWithZapLogger(logger *zap.Logger) *actor.ActorSystem {
	stdOutLogger := zap.NewStdLog(logger)

	var slogLevel slog.Level = slog.LevelInfo

	switch logger.Level() {
	case zap.DebugLevel:
		slogLevel = slog.LevelDebug
	case zap.InfoLevel:
		slogLevel = slog.LevelInfo
	case zap.WarnLevel:
		slogLevel = slog.LevelWarn
	case zap.ErrorLevel:
		slogLevel = slog.LevelError
	case zap.PanicLevel:
		slogLevel = slog.LevelError
	}

	return actor.NewActorSystem(actor.WithLoggerFactory(func(system *actor.ActorSystem) *slog.Logger {

		// create a new logger
		return slog.New(tint.NewHandler(stdOutLogger.Writer(), &tint.Options{
			Level:      slogLevel,
			TimeFormat: time.DateTime,
		}))
	}))
}

func ActorLogger(actorName string, logger *zap.Logger) *zap.Logger {
	return logger.With(zap.String("actor", actorName))
}

// ParsedMQTTCommandToCommand maps an inbound MQTT command to the actor
// request the API client understands. Unknown commands map to nil.
func ParsedMQTTCommandToCommand(cmd mqtt.ParsedMQTTCommand) (domain.ActorRequest, error) {
	switch cmd.Command {
	case mqtt.COMMAND_SWITCH:
		if cmd.Param == domain.SWITCH_ID_POWER {
			return domain.AppliancePowerRequest{
				ApplianceCommandRequestMixIn: domain.ApplianceCommandRequestMixIn{
					HaId: cmd.HaId,
				},
				On: cmd.Payload == mqtt.MQTT_PAYLOAD_ON,
			}, nil
		}
	case mqtt.COMMAND_PROGRAM:
		// empty or "stop" payload aborts the active program
		if cmd.Payload == "" || cmd.Payload == "stop" {
			return domain.ApplianceStopProgramRequest{
				ApplianceCommandRequestMixIn: domain.ApplianceCommandRequestMixIn{
					HaId: cmd.HaId,
				},
			}, nil
		}
		return domain.ApplianceStartProgramRequest{
			ApplianceCommandRequestMixIn: domain.ApplianceCommandRequestMixIn{
				HaId: cmd.HaId,
			},
			ProgramKey: cmd.Payload,
		}, nil
	}
	return nil, nil
}
