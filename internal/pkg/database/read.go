package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/anicoll/mqtt-plug/internal/pkg/model"
)

// LoadDevices returns the saved devices in their saved order.
func (db *Database) LoadDevices(ctx context.Context) ([]model.Device, error) {
	const query = `
	SELECT id, config
	FROM device
	ORDER BY position;
	`

	rows, err := db.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	devices := make([]model.Device, 0)
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		var device model.Device
		if err := json.Unmarshal(raw, &device); err != nil {
			return nil, fmt.Errorf("decoding device %s: %w", id, err)
		}
		device.ID = id
		devices = append(devices, device)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return devices, nil
}

type Notification struct {
	ID        int64           `json:"id"`
	TimeStamp time.Time       `json:"timestamp"`
	Channel   string          `json:"channel"`
	Payload   json.RawMessage `json:"payload"`
}

// GetNotifications returns the most recent notifications, newest first.
func (db *Database) GetNotifications(ctx context.Context, limit int) ([]Notification, error) {
	const query = `
	SELECT id, time_stamp, channel, payload
	FROM notification
	ORDER BY time_stamp DESC, id DESC
	LIMIT $1;
	`

	rows, err := db.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanNotifications(rows)
}

func scanNotifications(rows pgx.Rows) ([]Notification, error) {
	notifications := make([]Notification, 0)
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.TimeStamp, &n.Channel, &n.Payload); err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return notifications, nil
}
