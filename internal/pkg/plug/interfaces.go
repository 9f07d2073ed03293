package plug

import (
	"context"

	"github.com/anicoll/mqtt-plug/internal/pkg/model"
)

// MessageHandler receives the messages of a subscribed topic.
type MessageHandler = func(topic string, payload []byte) error

// Transport is the message bus the outlets are reached through.
type Transport interface {
	IsConnected() bool
	Publish(topic string, payload []byte, retained bool) error
	Subscribe(topic string, handler MessageHandler) error
	Unsubscribe(topic string) error
}

// Printer is the telemetry and control surface of the print server.
type Printer interface {
	CurrentTemperatures(ctx context.Context) (model.Temperatures, error)
	State(ctx context.Context) (model.PrinterState, error)
	Connect(ctx context.Context) error
	ConnectPalette2(ctx context.Context) error
	Disconnect(ctx context.Context) error
}

// Notifier pushes state to observers. Delivery is fire and forget.
type Notifier interface {
	Notify(channel string, payload any)
}

// Store persists the device configuration.
type Store interface {
	LoadDevices(ctx context.Context) ([]model.Device, error)
	SaveDevices(ctx context.Context, devices []model.Device) error
}
