package model

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

type ShutdownType string

const (
	ShutdownTime     ShutdownType = "time"
	ShutdownCooldown ShutdownType = "cooldown"

	// legacyShutdownCooldown is the spelling older settings files were written with.
	legacyShutdownCooldown ShutdownType = "coldown"
)

func (st ShutdownType) String() string {
	return string(st)
}

// Normalize maps unknown and legacy values onto the two supported shutdown types.
func (st ShutdownType) Normalize() ShutdownType {
	switch ShutdownType(strings.ToLower(string(st))) {
	case ShutdownTime:
		return ShutdownTime
	case ShutdownCooldown, legacyShutdownCooldown:
		return ShutdownCooldown
	}
	return ShutdownCooldown
}

// NoDeviceID is the identifier the UI sends for a device that has not been saved yet.
const NoDeviceID = "-1"

// Device is a configured smart outlet. Live power state is tracked by the registry
// and is not part of the persisted configuration.
type Device struct {
	ID              string       `json:"id"`
	DeviceName      string       `json:"deviceName"`
	StateTopic      string       `json:"stateTopic"`
	SwitchTopic     string       `json:"switchTopic"`
	OnValue         string       `json:"onValue"`
	OffValue        string       `json:"offValue"`
	Icon            string       `json:"icon"`
	ShowNavbarIcon  bool         `json:"showNavbarIcon"`
	ShowNavbarName  bool         `json:"showNavbarName"`
	ConnectionDelay int          `json:"connectionDelay"` // seconds, below -1 disables the auto connect
	OnDone          bool         `json:"onDone"`
	OnFailed        bool         `json:"onFailed"`
	ShutdownType    ShutdownType `json:"shutdownType"`
	StopDelay       int          `json:"stopDelay"`     // seconds
	PostponeDelay   int          `json:"postponeDelay"` // seconds
	HotendTemp      int          `json:"hotendTemp"`    // °C, -1 disables the check
	BedTemp         int          `json:"bedTemp"`       // °C, -1 disables the check
	ConnectPalette2 bool         `json:"connectPalette2"`
}

// NewDevice returns a device carrying the default configuration and no identifier.
func NewDevice() Device {
	return Device{
		DeviceName:      "New device",
		StateTopic:      "topic/device/state",
		SwitchTopic:     "topic/device/switch",
		OnValue:         "ON",
		OffValue:        "OFF",
		Icon:            "plug",
		ShowNavbarIcon:  true,
		ShowNavbarName:  false,
		ConnectionDelay: 15,
		OnDone:          true,
		OnFailed:        false,
		ShutdownType:    ShutdownCooldown,
		StopDelay:       60,
		PostponeDelay:   60,
		HotendTemp:      50,
		BedTemp:         30,
		ConnectPalette2: false,
	}
}

// HasID reports whether the device carries a usable identifier.
func (d Device) HasID() bool {
	return d.ID != "" && d.ID != NoDeviceID
}

func (d Device) StopDelayDuration() time.Duration {
	return time.Duration(d.StopDelay) * time.Second
}

func (d Device) PostponeDelayDuration() time.Duration {
	return time.Duration(d.PostponeDelay) * time.Second
}

// UnmarshalJSON fills absent fields with the defaults of NewDevice so partially
// written settings load the same way they were saved.
func (d *Device) UnmarshalJSON(data []byte) error {
	var payload DevicePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	dev := NewDevice()
	dev.ID = payload.ID
	payload.Apply(&dev)
	*d = dev
	return nil
}

// FlexInt decodes either a JSON number or a numeric string. Form inputs in the UI
// post numbers as strings.
type FlexInt int

func (fi *FlexInt) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		return nil
	}
	if unquoted, err := strconv.Unquote(raw); err == nil {
		raw = strings.TrimSpace(unquoted)
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return err
	}
	*fi = FlexInt(f)
	return nil
}

// DeviceUpdate is the allow-listed set of user editable fields. A nil field is left
// unchanged. The identifier is deliberately absent.
type DeviceUpdate struct {
	DeviceName      *string       `json:"deviceName,omitempty"`
	StateTopic      *string       `json:"stateTopic,omitempty"`
	SwitchTopic     *string       `json:"switchTopic,omitempty"`
	OnValue         *string       `json:"onValue,omitempty"`
	OffValue        *string       `json:"offValue,omitempty"`
	Icon            *string       `json:"icon,omitempty"`
	ShowNavbarIcon  *bool         `json:"showNavbarIcon,omitempty"`
	ShowNavbarName  *bool         `json:"showNavbarName,omitempty"`
	ConnectionDelay *FlexInt      `json:"connectionDelay,omitempty"`
	OnDone          *bool         `json:"onDone,omitempty"`
	OnFailed        *bool         `json:"onFailed,omitempty"`
	ShutdownType    *ShutdownType `json:"shutdownType,omitempty"`
	StopDelay       *FlexInt      `json:"stopDelay,omitempty"`
	PostponeDelay   *FlexInt      `json:"postponeDelay,omitempty"`
	HotendTemp      *FlexInt      `json:"hotendTemp,omitempty"`
	BedTemp         *FlexInt      `json:"bedTemp,omitempty"`
	ConnectPalette2 *bool         `json:"connectPalette2,omitempty"`
}

// Apply copies every set field of u onto d.
func (u DeviceUpdate) Apply(d *Device) {
	setString(&d.DeviceName, u.DeviceName)
	setString(&d.StateTopic, u.StateTopic)
	setString(&d.SwitchTopic, u.SwitchTopic)
	setString(&d.OnValue, u.OnValue)
	setString(&d.OffValue, u.OffValue)
	setString(&d.Icon, u.Icon)
	setBool(&d.ShowNavbarIcon, u.ShowNavbarIcon)
	setBool(&d.ShowNavbarName, u.ShowNavbarName)
	setInt(&d.ConnectionDelay, u.ConnectionDelay)
	setBool(&d.OnDone, u.OnDone)
	setBool(&d.OnFailed, u.OnFailed)
	if u.ShutdownType != nil {
		d.ShutdownType = u.ShutdownType.Normalize()
	}
	setInt(&d.StopDelay, u.StopDelay)
	setInt(&d.PostponeDelay, u.PostponeDelay)
	setInt(&d.HotendTemp, u.HotendTemp)
	setInt(&d.BedTemp, u.BedTemp)
	setBool(&d.ConnectPalette2, u.ConnectPalette2)
}

// DevicePayload is a device as posted by the UI: an optional identifier plus
// the fields to set.
type DevicePayload struct {
	ID string `json:"id"`
	DeviceUpdate
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *FlexInt) {
	if src != nil {
		*dst = int(*src)
	}
}
