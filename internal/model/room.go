package model

import "time"

// Room is a bookable space. Rooms do not own events; events reference a room by ID.
type Room struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	Capacity      int       `json:"capacity"`
	AllowsOverlap bool      `json:"allows_overlap"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
