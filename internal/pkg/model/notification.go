package model

// Notification channels pushed to the UI.
const (
	ChannelSidebar            = "sidebar"
	ChannelNavbar             = "navbar"
	ChannelShutdownSuppressed = "shutdown_suppressed"
)

// Status is the tracked power state of a single device.
type Status struct {
	State bool `json:"state"`
}

// SidebarInfo describes the pending shutdowns. ShutdownAt holds the epoch second a
// time based shutdown fires at, CooldownWait is set for cooldown devices that are
// waiting for the printer to cool down. Absent schedules are null.
type SidebarInfo struct {
	ShutdownAt   map[string]*int64 `json:"shutdownAt"`
	CooldownWait map[string]*bool  `json:"cooldown_wait"`
}

type NavbarInfo struct {
	State map[string]Status `json:"state"`
}

type ShutdownSuppressed struct {
	DeviceID string `json:"device_id"`
	Reason   string `json:"reason"`
}
