package model

import "strings"

// DeviceID accepts both string and numeric identifiers. Older UIs and
// automations post the numeric ids the settings were first written with.
type DeviceID string

func (id *DeviceID) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		return nil
	}
	*id = DeviceID(strings.Trim(raw, `"`))
	return nil
}

// DeviceCommand is the payload of the turnOn and turnOff command topics.
type DeviceCommand struct {
	ID DeviceID `json:"id"`
}
