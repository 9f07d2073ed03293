package plug

import "errors"

var (
	ErrDeviceNotFound       = errors.New("device not found")
	ErrInvalidPayload       = errors.New("invalid status payload")
	ErrPrinterBusy          = errors.New("printer is busy")
	ErrTransportUnavailable = errors.New("message transport unavailable")
	// ErrPersist wraps a failure to save the device list. The change stays in memory.
	ErrPersist = errors.New("saving devices")
)
