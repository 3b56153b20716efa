package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"orgcal/internal/model"
)

const roomColumns = `id, name, description, capacity, allows_overlap, is_active, created_at, updated_at`

func scanRoom(s interface{ Scan(...any) error }) (*model.Room, error) {
	var r model.Room
	var desc sql.NullString
	if err := s.Scan(&r.ID, &r.Name, &desc, &r.Capacity, &r.AllowsOverlap, &r.IsActive, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Description = desc.String
	return &r, nil
}

// GetRoom returns a room by id.
func (db *DB) GetRoom(ctx context.Context, id int64) (*model.Room, error) {
	row := db.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = ?`, id)
	room, err := scanRoom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("room %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get room %d: %w", id, err)
	}
	return room, nil
}

// ListRooms returns rooms ordered by id.
func (db *DB) ListRooms(ctx context.Context, activeOnly bool) ([]model.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY id`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	var rooms []model.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, *room)
	}
	return rooms, rows.Err()
}
