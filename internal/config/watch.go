package config

import (
	"context"
	"fmt"
	"os"
	"time"
)

const defaultWatchInterval = 30 * time.Second

// WatchRooms loads rooms.yaml, hands it to onUpdate, then polls the file and hands over
// every version that loads and validates. onError, when set, receives load failures; the
// previous rooms stay in effect until the file changes again.
func WatchRooms(ctx context.Context, path string, interval time.Duration, onUpdate func(*RoomsConfig), onError func(error)) error {
	if path == "" {
		path = "configs/rooms.yaml"
	}
	return watchFile(ctx, path, interval, LoadRoomsConfig, onUpdate, onError)
}

// WatchConfig does the same for the main config file. Only some sections can be applied
// to a running service; see RestartRequired.
func WatchConfig(ctx context.Context, path string, interval time.Duration, onUpdate func(*Config), onError func(error)) error {
	if path == "" {
		path = "configs/config.yaml"
	}
	return watchFile(ctx, path, interval, Load, onUpdate, onError)
}

// RestartRequired lists the sections of next that differ from c and only take effect
// after a restart.
func (c *Config) RestartRequired(next *Config) []string {
	var sections []string
	if c.Server != next.Server {
		sections = append(sections, "server")
	}
	if c.Database != next.Database {
		sections = append(sections, "database")
	}
	if c.Backup != next.Backup {
		sections = append(sections, "backup")
	}
	if c.Redis != next.Redis {
		sections = append(sections, "redis")
	}
	if c.Monitoring != next.Monitoring {
		sections = append(sections, "monitoring")
	}
	if c.Scheduling != next.Scheduling {
		sections = append(sections, "scheduling")
	}
	if c.RoomsConfigPath != next.RoomsConfigPath {
		sections = append(sections, "rooms_config_path")
	}
	return sections
}

// fileStamp identifies a file version. Size catches rewrites within the mtime resolution.
type fileStamp struct {
	mod  time.Time
	size int64
}

func stat(path string) (fileStamp, error) {
	info, err := os.Stat(path)
	if err != nil {
		return fileStamp{}, err
	}
	return fileStamp{mod: info.ModTime(), size: info.Size()}, nil
}

// watchFile loads path once synchronously, failing if that load fails, then polls it in
// the background. A new stamp triggers one reload attempt; a failed attempt is reported
// and not retried until the stamp changes again.
func watchFile[T any](ctx context.Context, path string, interval time.Duration,
	load func(string) (T, error), onUpdate func(T), onError func(error)) error {
	if interval <= 0 {
		interval = defaultWatchInterval
	}
	report := func(err error) {
		if onError != nil {
			onError(err)
		}
	}

	last, err := stat(path)
	if err != nil {
		return err
	}
	cfg, err := load(path)
	if err != nil {
		return err
	}
	if onUpdate != nil {
		onUpdate(cfg)
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			cur, err := stat(path)
			if err != nil {
				report(fmt.Errorf("watch %s: %w", path, err))
				continue
			}
			if cur == last {
				continue
			}
			last = cur

			cfg, err := load(path)
			if err != nil {
				report(fmt.Errorf("reload %s: %w", path, err))
				continue
			}
			if onUpdate != nil {
				onUpdate(cfg)
			}
		}
	}()

	return nil
}
