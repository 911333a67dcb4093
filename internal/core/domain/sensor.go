package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/berfenger/homeconnect2mqtt/pkg/homeconnect"

	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE        = "bridge"
	SENSOR_ID_STREAM_STATE        = "stream_state"
	SENSOR_ID_RATE_QUOTA          = "rate_quota_remaining"
	SENSOR_ID_APPLIANCE_CONNECTED = "connected"
	SENSOR_ID_DOOR_STATE          = "door"
	SENSOR_ID_OPERATION_STATE     = "operation_state"
	SENSOR_ID_ACTIVE_PROGRAM      = "active_program"
	SENSOR_ID_PROGRAM_PROGRESS    = "program_progress"
	SENSOR_ID_REMAINING_TIME      = "remaining_program_time"
	SWITCH_ID_POWER               = "power"

	STATE_CLASS_DURATION      = "duration"
	STATE_CLASS_MEASUREMENT   = "measurement"
	DEVICE_CLASS_DOOR         = "door"
	DEVICE_CLASS_RUNNING      = "running"
	DEVICE_CLASS_DURATION     = "duration"
	DEVICE_CLASS_CONNECTIVITY = "connectivity"
	ENTITY_CLASS_DIAGNOSTIC   = "diagnostic"
	ENTITY_CLASS_CONFIG       = "config"
	SENSOR_TYPE_SENSOR        = "sensor"
	SENSOR_TYPE_BINARY        = "binary_sensor"
)

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("homeconnect_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "ACasal",
		Model:        "HomeConnect2MQTT",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("HomeConnect %s", md5HashShort(baseTopic)),
	}
}

func ApplianceDevice(info homeconnect.ApplianceInfo) Device {
	return Device{
		Id:           fmt.Sprintf("hc_%s", SlugId(info.HaId)),
		Manufacturer: info.Brand,
		Model:        info.VIB,
		Name:         info.Name,
	}
}

func IdDevice(device Device) Device {
	return Device{
		Id:   device.Id,
		Name: device.Name,
	}
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {

	var sensors []GenericSensor

	// Bridge connectivity
	sensors = append(sensors, GenericSensor{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Connection state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	})

	// Event stream state
	sensors = append(sensors, GenericSensor{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_STREAM_STATE,
		SensorType:     SENSOR_TYPE_SENSOR,
		Name:           "Event stream state",
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		Icon:           "mdi:connection",
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_STREAM_STATE),
	})

	// Remaining API quota
	sensors = append(sensors, GenericSensor{
		Device:           bridgeDevice,
		Id:               SENSOR_ID_RATE_QUOTA,
		SensorType:       SENSOR_TYPE_SENSOR,
		Name:             "API quota remaining",
		StateClass:       STATE_CLASS_MEASUREMENT,
		EntityCategory:   ENTITY_CLASS_DIAGNOSTIC,
		EnabledByDefault: optionalBool(false),
		Icon:             "mdi:counter",
		UniqueId:         uniqueId(bridgeDevice.Id, SENSOR_ID_RATE_QUOTA),
	})

	return sensors
}

func ApplianceBaseSensors(applianceDevice Device, info homeconnect.ApplianceInfo) []GenericSensor {

	var sensors []GenericSensor

	// Appliance connectivity
	sensors = append(sensors, GenericSensor{
		Device:         applianceDevice,
		HaId:           info.HaId,
		Id:             SENSOR_ID_APPLIANCE_CONNECTED,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Connected",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(applianceDevice.Id, SENSOR_ID_APPLIANCE_CONNECTED),
	})

	// Door state
	sensors = append(sensors, GenericSensor{
		Device:      applianceDevice,
		HaId:        info.HaId,
		Id:          SENSOR_ID_DOOR_STATE,
		SensorType:  SENSOR_TYPE_BINARY,
		Name:        "Door",
		DeviceClass: DEVICE_CLASS_DOOR,
		UniqueId:    uniqueId(applianceDevice.Id, SENSOR_ID_DOOR_STATE),
	})

	// Operation state
	sensors = append(sensors, GenericSensor{
		Device:     applianceDevice,
		HaId:       info.HaId,
		Id:         SENSOR_ID_OPERATION_STATE,
		SensorType: SENSOR_TYPE_SENSOR,
		Name:       "Operation state",
		UniqueId:   uniqueId(applianceDevice.Id, SENSOR_ID_OPERATION_STATE),
	})

	// Active program
	sensors = append(sensors, GenericSensor{
		Device:     applianceDevice,
		HaId:       info.HaId,
		Id:         SENSOR_ID_ACTIVE_PROGRAM,
		SensorType: SENSOR_TYPE_SENSOR,
		Name:       "Active program",
		Icon:       "mdi:playlist-play",
		UniqueId:   uniqueId(applianceDevice.Id, SENSOR_ID_ACTIVE_PROGRAM),
	})

	// Program progress
	sensors = append(sensors, GenericSensor{
		Device:            applianceDevice,
		HaId:              info.HaId,
		Id:                SENSOR_ID_PROGRAM_PROGRESS,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Program progress",
		StateClass:        STATE_CLASS_MEASUREMENT,
		UnitOfMeasurement: "%",
		Icon:              "mdi:progress-clock",
		UniqueId:          uniqueId(applianceDevice.Id, SENSOR_ID_PROGRAM_PROGRESS),
	})

	// Remaining program time
	sensors = append(sensors, GenericSensor{
		Device:            applianceDevice,
		HaId:              info.HaId,
		Id:                SENSOR_ID_REMAINING_TIME,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Remaining program time",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_DURATION,
		UnitOfMeasurement: "s",
		UniqueId:          uniqueId(applianceDevice.Id, SENSOR_ID_REMAINING_TIME),
	})

	return sensors
}

func ApplianceSwitches(applianceDevice Device, info homeconnect.ApplianceInfo) []GenericSwitch {

	var switches []GenericSwitch

	// Power
	switches = append(switches, GenericSwitch{
		Device:   applianceDevice,
		HaId:     info.HaId,
		Id:       SWITCH_ID_POWER,
		Name:     "Power",
		UniqueId: uniqueId(applianceDevice.Id, SWITCH_ID_POWER),
		Icon:     "mdi:power",
	})

	return switches
}

// SlugId lowercases a haId for use in topics and entity ids.
func SlugId(haId string) string {
	slug := strings.ToLower(haId)
	slug = strings.ReplaceAll(slug, "-", "_")
	slug = strings.ReplaceAll(slug, ".", "_")
	return slug
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5HashShort(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])[0:8]
}

func optionalBool(value bool) *bool {
	return &value
}
