package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"orgcal/internal/model"
)

const clockLayout = "15:04"

type ServerConfig struct {
	Address        string  `yaml:"address"`
	APIKey         string  `yaml:"api_key"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"` // cron expression, e.g. "0 3 * * *"
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

type RedisConfig struct {
	Address        string `yaml:"address"`
	Password       string `yaml:"password"`
	DB             int    `yaml:"db"`
	LockTTLSeconds int    `yaml:"lock_ttl_seconds"`
}

type MonitoringConfig struct {
	HealthCheckPort   int  `yaml:"health_check_port"`
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type SchedulingConfig struct {
	MaxInstances    int     `yaml:"max_instances"`
	Timezone        string  `yaml:"timezone"`
	DayStart        string  `yaml:"day_start"` // "07:00"
	DayEnd          string  `yaml:"day_end"`   // "22:00"
	PxPerMinute     float64 `yaml:"px_per_minute"`
	MinEventHeight  float64 `yaml:"min_event_height"`
	SlotStepMinutes int     `yaml:"slot_step_minutes"`
	DefaultStatus   string  `yaml:"default_status"`
}

type Config struct {
	Server          ServerConfig     `yaml:"server"`
	Database        DatabaseConfig   `yaml:"database"`
	Backup          BackupConfig     `yaml:"backup"`
	Redis           RedisConfig      `yaml:"redis"`
	Monitoring      MonitoringConfig `yaml:"monitoring"`
	Logging         LoggingConfig    `yaml:"logging"`
	Scheduling      SchedulingConfig `yaml:"scheduling"`
	RoomsConfigPath string           `yaml:"rooms_config_path"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err = cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.RateLimitBurst <= 0 {
		c.Server.RateLimitBurst = 20
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/orgcal.db"
	}
	if c.Backup.Path == "" {
		c.Backup.Path = "backups"
	}
	if c.Backup.Schedule == "" {
		c.Backup.Schedule = "0 3 * * *"
	}
	if c.Backup.RetentionDays <= 0 {
		c.Backup.RetentionDays = 14
	}
	if c.Monitoring.HealthCheckPort == 0 {
		c.Monitoring.HealthCheckPort = 8090
	}
	if c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Scheduling.MaxInstances <= 0 {
		c.Scheduling.MaxInstances = 500
	}
	if c.Scheduling.Timezone == "" {
		c.Scheduling.Timezone = "UTC"
	}
	if c.Scheduling.DayStart == "" {
		c.Scheduling.DayStart = "07:00"
	}
	if c.Scheduling.DayEnd == "" {
		c.Scheduling.DayEnd = "22:00"
	}
	if c.Scheduling.PxPerMinute <= 0 {
		c.Scheduling.PxPerMinute = 1
	}
	if c.Scheduling.MinEventHeight <= 0 {
		c.Scheduling.MinEventHeight = 20
	}
	if c.Scheduling.SlotStepMinutes <= 0 {
		c.Scheduling.SlotStepMinutes = 30
	}
	if c.Scheduling.DefaultStatus == "" {
		c.Scheduling.DefaultStatus = string(model.StatusPendingReview)
	}
	if c.RoomsConfigPath == "" {
		c.RoomsConfigPath = "configs/rooms.yaml"
	}
}

// Validate checks values that defaults cannot repair.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Scheduling.Timezone); err != nil {
		return fmt.Errorf("scheduling.timezone: %w", err)
	}

	start, err := time.Parse(clockLayout, c.Scheduling.DayStart)
	if err != nil {
		return fmt.Errorf("scheduling.day_start: invalid format '%s', expected HH:MM", c.Scheduling.DayStart)
	}
	end, err := time.Parse(clockLayout, c.Scheduling.DayEnd)
	if err != nil {
		return fmt.Errorf("scheduling.day_end: invalid format '%s', expected HH:MM", c.Scheduling.DayEnd)
	}
	if !end.After(start) {
		return fmt.Errorf("scheduling: day_end must be after day_start")
	}

	if _, err := model.ParseStatus(c.Scheduling.DefaultStatus); err != nil {
		return fmt.Errorf("scheduling.default_status: %w", err)
	}

	if c.Backup.Enabled {
		if _, err := cron.ParseStandard(c.Backup.Schedule); err != nil {
			return fmt.Errorf("backup.schedule: %w", err)
		}
	}

	if c.Server.RateLimitRPS < 0 {
		return fmt.Errorf("server.rate_limit_rps cannot be negative")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unknown level '%s'", c.Logging.Level)
	}

	return nil
}

// Location returns the organisation time zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Scheduling.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DayWindow returns the displayed hour range, in the organisation time zone, of the
// calendar date carried by date.
func (c *Config) DayWindow(date time.Time) model.Interval {
	loc := c.Location()
	y, m, d := date.Date()

	start, _ := time.Parse(clockLayout, c.Scheduling.DayStart)
	end, _ := time.Parse(clockLayout, c.Scheduling.DayEnd)

	return model.Interval{
		Start: time.Date(y, m, d, start.Hour(), start.Minute(), 0, 0, loc),
		End:   time.Date(y, m, d, end.Hour(), end.Minute(), 0, 0, loc),
	}
}

func (c *Config) LockTTL() time.Duration {
	if c.Redis.LockTTLSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Redis.LockTTLSeconds) * time.Second
}

func (c *Config) SlotStep() time.Duration {
	return time.Duration(c.Scheduling.SlotStepMinutes) * time.Minute
}

func (c *Config) BackupRetention() time.Duration {
	return time.Duration(c.Backup.RetentionDays) * 24 * time.Hour
}

// LoadRooms reads the rooms file referenced by the config.
func (c *Config) LoadRooms() (*RoomsConfig, error) {
	return LoadRoomsConfig(c.RoomsConfigPath)
}
