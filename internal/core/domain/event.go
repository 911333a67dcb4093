package domain

import "fmt"

// SensorUpdateEventMixIn identifies a sensor of a device. HaId is empty for
// bridge level sensors.
type SensorUpdateEventMixIn struct {
	HaId string
	Id   string
}

type SensorUpdateEvent interface {
	SensorUpdateEvent() string
	SensorId() string
	SensorApplianceId() string
}

func (e SensorUpdateEventMixIn) SensorUpdateEvent() string {
	return fmt.Sprintf("%T", e)
}

func (e SensorUpdateEventMixIn) SensorId() string {
	return e.Id
}

func (e SensorUpdateEventMixIn) SensorApplianceId() string {
	return e.HaId
}

type FloatSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value    float64
	Decimals uint
}

type BinarySensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value bool
}

type SwitchSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value bool
}

type TextSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value string
}

type BridgeStateUpdateEvent struct {
	SensorUpdateEventMixIn
	Value bool
}
