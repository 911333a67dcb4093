package domain

import "github.com/berfenger/homeconnect2mqtt/pkg/homeconnect"

const (
	ACTOR_ID_MASTER       = "master"
	ACTOR_ID_STREAM       = "stream"
	ACTOR_ID_APICLIENT    = "apiclient"
	ACTOR_ID_MQTT         = "mqtt"
	ACTOR_ID_HA_DISCOVERY = "hadiscovery"
)

type ConnectStreamRequest struct {
	ActorRequestMixIn
}

type ConnectStreamResponse struct {
	ActorResponseMixIn
	Status homeconnect.ConnStatus
}

type DisconnectStreamRequest struct {
	ActorRequestMixIn
}

type DisconnectStreamResponse struct {
	ActorResponseMixIn
	Status homeconnect.ConnStatus
}

type ClearRateLimitRequest struct {
	ActorRequestMixIn
}

type ClearRateLimitResponse struct {
	ActorResponseMixIn
	Status homeconnect.ConnStatus
}

type StreamStatusRequest struct {
	ActorRequestMixIn
}

type StreamStatusResponse struct {
	ActorResponseMixIn
	Status         homeconnect.ConnStatus
	QuotaRemaining int
	QuotaLimit     int
}

type GetAppliancesRequest struct {
	ActorRequestMixIn
}

type GetAppliancesResponse struct {
	ActorResponseMixIn
	Appliances []homeconnect.ApplianceInfo
}

type GetApplianceStateRequest struct {
	ActorRequestMixIn
	HaId string
}

type GetApplianceStateResponse struct {
	ActorResponseMixIn
	HaId  string
	Items []homeconnect.ApplianceEvent
}

// ResyncNeeded is published by the stream layer after an outage long enough
// to have missed events. The master reacts by re-reading appliance state.
type ResyncNeeded struct {
}

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishSensorUpdateRequest struct {
	ActorRequestMixIn
	Retain bool
	Event  SensorUpdateEvent
}

type PublishSensorUpdateResponse struct {
	ActorResponseMixIn
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors  []GenericSensor
	Switches []GenericSwitch
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
