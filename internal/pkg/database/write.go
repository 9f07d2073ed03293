package database

import (
	"context"
	"encoding/json"
	"time"

	"github.com/samber/lo"

	"github.com/anicoll/mqtt-plug/internal/pkg/model"
)

// SaveDevices replaces the stored device list with devices.
func (db *Database) SaveDevices(ctx context.Context, devices []model.Device) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	ids := lo.Map(devices, func(d model.Device, _ int) string { return d.ID })
	if _, err := tx.Exec(ctx, `DELETE FROM device WHERE NOT (id = ANY($1));`, ids); err != nil {
		return err
	}

	for position, device := range devices {
		config, err := json.Marshal(device)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO device (id, position, config, updated_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (id) DO UPDATE
			SET position = EXCLUDED.position, config = EXCLUDED.config, updated_at = now();
		`, device.ID, position, string(config)); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// Publish records a notification in the history. Sidebar snapshots are sent on
// every cooldown poll and are not kept.
func (db *Database) Publish(ctx context.Context, channel string, payload []byte) error {
	if channel == model.ChannelSidebar {
		return nil
	}
	_, err := db.pool.Exec(ctx, `
		INSERT INTO notification (time_stamp, channel, payload)
		VALUES ($1, $2, $3)
	`, time.Now(), channel, string(payload))
	return err
}
