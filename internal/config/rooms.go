package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"orgcal/internal/model"
)

// RoomConfig represents a single room entry.
type RoomConfig struct {
	ID            int64  `yaml:"id"`
	Name          string `yaml:"name"`
	Description   string `yaml:"description"`
	Capacity      int    `yaml:"capacity"`
	IsActive      bool   `yaml:"is_active"`
	AllowsOverlap *bool  `yaml:"allows_overlap,omitempty"`
}

// RoomDefaults holds values applied to rooms that leave them unset.
type RoomDefaults struct {
	AllowsOverlap bool `yaml:"allows_overlap"`
	Capacity      int  `yaml:"capacity"`
}

// RoomsConfig is the root configuration for rooms.yaml.
type RoomsConfig struct {
	Rooms    []RoomConfig `yaml:"rooms"`
	Defaults RoomDefaults `yaml:"defaults"`
}

// LoadRoomsConfig loads and validates rooms configuration from YAML file.
func LoadRoomsConfig(path string) (*RoomsConfig, error) {
	if path == "" {
		path = "configs/rooms.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rooms config: %w", err)
	}

	var cfg RoomsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse rooms config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate rooms config: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// Validate checks the configuration for errors.
func (c *RoomsConfig) Validate() error {
	if len(c.Rooms) == 0 {
		return fmt.Errorf("no rooms defined")
	}

	ids := make(map[int64]bool)
	names := make(map[string]bool)

	for i, room := range c.Rooms {
		if room.ID <= 0 {
			return fmt.Errorf("room[%d]: id must be positive, got %d", i, room.ID)
		}
		if ids[room.ID] {
			return fmt.Errorf("room[%d]: duplicate id %d", i, room.ID)
		}
		ids[room.ID] = true

		if room.Name == "" {
			return fmt.Errorf("room[%d]: name is required", i)
		}
		if names[room.Name] {
			return fmt.Errorf("room[%d]: duplicate name '%s'", i, room.Name)
		}
		names[room.Name] = true

		if room.Capacity < 0 {
			return fmt.Errorf("room[%d]: capacity cannot be negative", i)
		}
	}

	if c.Defaults.Capacity < 0 {
		return fmt.Errorf("defaults.capacity cannot be negative")
	}

	return nil
}

func (c *RoomsConfig) applyDefaults() {
	for i := range c.Rooms {
		if c.Rooms[i].AllowsOverlap == nil {
			allows := c.Defaults.AllowsOverlap
			c.Rooms[i].AllowsOverlap = &allows
		}
		if c.Rooms[i].Capacity == 0 {
			c.Rooms[i].Capacity = max(c.Defaults.Capacity, 1)
		}
	}
}

// GetRoomByID returns room config by ID.
func (c *RoomsConfig) GetRoomByID(id int64) *RoomConfig {
	for i := range c.Rooms {
		if c.Rooms[i].ID == id {
			return &c.Rooms[i]
		}
	}
	return nil
}

// GetActiveRooms returns only active rooms.
func (c *RoomsConfig) GetActiveRooms() []RoomConfig {
	result := make([]RoomConfig, 0)
	for _, room := range c.Rooms {
		if room.IsActive {
			result = append(result, room)
		}
	}
	return result
}

// Model converts the entry to a domain room.
func (r RoomConfig) Model() model.Room {
	return model.Room{
		ID:            r.ID,
		Name:          r.Name,
		Description:   r.Description,
		Capacity:      r.Capacity,
		AllowsOverlap: r.AllowsOverlap != nil && *r.AllowsOverlap,
		IsActive:      r.IsActive,
	}
}

// String returns a summary of the configuration.
func (c *RoomsConfig) String() string {
	active, shared := 0, 0
	for _, room := range c.Rooms {
		if room.IsActive {
			active++
		}
		if room.AllowsOverlap != nil && *room.AllowsOverlap {
			shared++
		}
	}
	return fmt.Sprintf("RoomsConfig: %d rooms (%d active, %d allow overlap)", len(c.Rooms), active, shared)
}
