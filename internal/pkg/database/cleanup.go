package database

import (
	"context"
	"time"
)

// Cleanup removes notifications older than eight days.
func (db *Database) Cleanup(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, "DELETE FROM notification WHERE time_stamp < $1", time.Now().AddDate(0, 0, -8)); err != nil {
		return err
	}
	return nil
}
