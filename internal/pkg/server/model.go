package server

import "github.com/anicoll/mqtt-plug/internal/pkg/model"

type deviceRef struct {
	ID model.DeviceID `json:"id"`
}

type commandRequest struct {
	Command string     `json:"command"`
	Dev     *deviceRef `json:"dev"`
}

type sidebarRequest struct {
	Dev *deviceRef `json:"dev"`
}

type saveDeviceRequest struct {
	Device *model.DevicePayload `json:"device"`
}

type deleteDeviceRequest struct {
	DeviceID model.DeviceID `json:"device_id"`
}
