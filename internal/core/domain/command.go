package domain

import "fmt"

// ApplianceCommandRequest

type ApplianceCommandRequest interface {
	ActorRequest
	ApplianceCommand() string
	ApplianceId() string
}

type ApplianceCommandRequestMixIn struct {
	ActorRequestMixIn
	HaId string
}

func (r ApplianceCommandRequestMixIn) ApplianceCommand() string {
	return fmt.Sprintf("%T", r)
}

func (r ApplianceCommandRequestMixIn) ApplianceId() string {
	return r.HaId
}

// ApplianceCommandResponse

type ApplianceCommandResponse interface {
	ActorResponse
	ApplianceCommandResponse() string
}

type ApplianceCommandResponseMixIn struct {
	ActorResponse
}

func (r ApplianceCommandResponseMixIn) ApplianceCommandResponse() string {
	return fmt.Sprintf("%T", r)
}

// Appliance commands

type AppliancePowerRequest struct {
	ApplianceCommandRequestMixIn
	On bool
}

type AppliancePowerResponse struct {
	ApplianceCommandResponseMixIn
}

type ApplianceStartProgramRequest struct {
	ApplianceCommandRequestMixIn
	ProgramKey string
}

type ApplianceStartProgramResponse struct {
	ApplianceCommandResponseMixIn
}

type ApplianceStopProgramRequest struct {
	ApplianceCommandRequestMixIn
}

type ApplianceStopProgramResponse struct {
	ApplianceCommandResponseMixIn
}

type ApplianceSetSettingRequest struct {
	ApplianceCommandRequestMixIn
	SettingKey string
	Value      any
}

type ApplianceSetSettingResponse struct {
	ApplianceCommandResponseMixIn
}

// ensure interface compliance
var _ ApplianceCommandRequest = (*AppliancePowerRequest)(nil)
