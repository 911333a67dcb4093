package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	adactor "github.com/berfenger/homeconnect2mqtt/internal/adapter/actor"
	"github.com/berfenger/homeconnect2mqtt/internal/auth"
	"github.com/berfenger/homeconnect2mqtt/internal/config"
	"github.com/berfenger/homeconnect2mqtt/internal/core/actor"
	"github.com/berfenger/homeconnect2mqtt/internal/server"
	"github.com/berfenger/homeconnect2mqtt/internal/util/actorutil"
	"github.com/berfenger/homeconnect2mqtt/pkg/homeconnect"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		return
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	defer logger.Sync()

	// shared API plumbing: token source, rate tracker and REST client
	tokens := auth.NewRefreshTokenSource(cfg.HomeConnect, logger)
	rate := homeconnect.NewRateTracker(logger)
	apiClient := homeconnect.NewClient(cfg.HomeConnect.APIBaseURL, cfg.HomeConnect.Locale,
		tokens, rate, logger)

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg,
			apiClientActorProvider(apiClient, logger),
			mqttActorProvider(cfg, logger),
			streamActorProvider(cfg, tokens, rate, logger),
			logger)
	})
	pid, err := ctx.SpawnNamed(props, "master")
	if err != nil {
		return
	}

	server := server.NewServer(*cfg, ctx, pid)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	ctx.Stop(pid)
	as.Shutdown()
}

func initConfig() (*config.Config, error) {

	// alias PORT => HOMECONNECT_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("HOMECONNECT_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("homeconnect")
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	// check and fix base topic
	baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	// check and fix homeassistant discovery topic
	hadBaseTopic, err := config.CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return nil, errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.HADiscoveryTopic = hadBaseTopic

	// check required credentials
	if cfg.HomeConnect.ClientId == "" {
		return nil, errors.New("config param homeconnect.client_id is required")
	}
	if cfg.HomeConnect.RefreshToken == "" {
		return nil, errors.New("config param homeconnect.refresh_token is required")
	}

	return &cfg, nil
}

func apiClientActorProvider(client *homeconnect.Client, logger *zap.Logger) actor.APIClientActorProvider {
	return func() *adactor.APIClientActor {
		return adactor.NewAPIClientActor(client, logger)
	}
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(es *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, es, logger)
	}
}

func streamActorProvider(cfg *config.Config, tokens homeconnect.TokenSource,
	rate *homeconnect.RateTracker, logger *zap.Logger) actor.StreamActorProvider {
	return func(registry *homeconnect.Registry, es *eventstream.EventStream) *adactor.StreamActor {
		return adactor.NewStreamActor(cfg, tokens, registry, rate, es, logger)
	}
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("homeconnect.api_base_url", "https://api.home-connect.com")
	viper.SetDefault("homeconnect.token_url", "https://api.home-connect.com/security/oauth/token")
	viper.SetDefault("homeconnect.locale", "en-US")
	viper.SetDefault("mqtt.ha_discovery_enable", false)
	viper.SetDefault("mqtt.base_topic", "homeconnect")
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	viper.SetDefault("monitor.stream_auto_connect", true)
	viper.SetDefault("port", 8080)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	cfg.HomeConnect.ClientSecret = "*redacted*"
	cfg.HomeConnect.RefreshToken = "*redacted*"
	slog.Info("Using", "config", cfg)
}
