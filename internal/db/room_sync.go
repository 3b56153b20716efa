package db

import (
	"context"
	"fmt"
	"time"

	"orgcal/internal/config"
)

// SyncRoomsFromConfig applies rooms.yaml to the database.
// It upserts rooms and marks rooms missing from the file inactive. Events are never touched.
func (db *DB) SyncRoomsFromConfig(ctx context.Context, cfg *config.RoomsConfig) error {
	if cfg == nil {
		return fmt.Errorf("rooms config is nil")
	}

	now := utc(time.Now())
	seen := make(map[int64]struct{}, len(cfg.Rooms))

	for _, rc := range cfg.Rooms {
		room := rc.Model()

		// Preserve created_at if the room already exists.
		_, err := db.ExecContext(ctx, `
            INSERT INTO rooms (id, name, description, capacity, allows_overlap, is_active, created_at, updated_at)
            VALUES (?, ?, ?, ?, ?, ?, COALESCE((SELECT created_at FROM rooms WHERE id = ?), ?), ?)
            ON CONFLICT(id) DO UPDATE SET
                name = excluded.name,
                description = excluded.description,
                capacity = excluded.capacity,
                allows_overlap = excluded.allows_overlap,
                is_active = excluded.is_active,
                updated_at = excluded.updated_at`,
			room.ID, room.Name, nullString(room.Description), room.Capacity, room.AllowsOverlap, room.IsActive,
			room.ID, now, now,
		)
		if err != nil {
			return fmt.Errorf("sync room %d: %w", room.ID, err)
		}
		seen[room.ID] = struct{}{}
	}

	// Deactivate rooms that disappeared from config.
	rows, err := db.QueryContext(ctx, `SELECT id FROM rooms WHERE is_active = 1`)
	if err != nil {
		return err
	}
	var stale []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		if _, ok := seen[id]; !ok {
			stale = append(stale, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range stale {
		if _, err := db.ExecContext(ctx, `UPDATE rooms SET is_active = 0, updated_at = ? WHERE id = ?`, now, id); err != nil {
			return fmt.Errorf("deactivate room %d: %w", id, err)
		}
	}

	return nil
}
