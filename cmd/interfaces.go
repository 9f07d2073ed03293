package cmd

import (
	"context"

	"github.com/anicoll/mqtt-plug/internal/pkg/database"
	"github.com/anicoll/mqtt-plug/internal/pkg/model"
	"github.com/anicoll/mqtt-plug/internal/pkg/plug"
)

// Store is what serve needs from the database: the device store, the
// notification history and its retention.
type Store interface {
	plug.Store
	Publish(ctx context.Context, channel string, payload []byte) error
	GetNotifications(ctx context.Context, limit int) ([]database.Notification, error)
	Cleanup(ctx context.Context) error
}

// Printer is the print server, including its push event stream.
type Printer interface {
	plug.Printer
	ListenEvents(ctx context.Context, handler func(model.PrinterEvent)) error
}
