package util

import (
	"github.com/berfenger/homeconnect2mqtt/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		HomeConnect: config.HomeConnectConfig{
			APIBaseURL:   "https://localhost:1443",
			TokenURL:     "https://localhost:1443/security/oauth/token",
			ClientId:     "test_client",
			ClientSecret: "test_secret",
			RefreshToken: "test_refresh_token",
			Locale:       "en-US",
		},
		MQTT: config.MQTTConfig{
			Host:             "localhost",
			Port:             1883,
			BaseTopic:        "homeconnect",
			HADiscoveryTopic: "homeassistant",
		},
		MonitorConfig: config.MonitorConfig{
			StreamAutoConnect: false,
		},
		Port: 8080,
	}
}
