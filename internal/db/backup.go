package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"orgcal/internal/config"
)

const backupPrefix = "orgcal_"

// Backup writes a consistent copy of the database to dest.
func (db *DB) Backup(dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create backup directory: %w", err)
	}
	if _, err := db.Exec(`VACUUM INTO ?`, dest); err != nil {
		return fmt.Errorf("vacuum into %s: %w", dest, err)
	}
	return nil
}

// CleanupBackups removes backup files in dir older than retention and returns how many
// were deleted. Files not created by Backup are left alone.
func (db *DB) CleanupBackups(dir string, retention time.Duration) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read backup directory: %w", err)
	}

	cutoff := time.Now().Add(-retention)
	deleted := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, backupPrefix) || !strings.HasSuffix(name, ".db") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(dir, name)); err != nil {
				return deleted, fmt.Errorf("remove %s: %w", name, err)
			}
			deleted++
		}
	}
	return deleted, nil
}

// BackupService runs Backup and CleanupBackups on a cron schedule.
type BackupService struct {
	db     *DB
	config config.BackupConfig
	logger zerolog.Logger
	now    func() time.Time
}

func NewBackupService(db *DB, cfg config.BackupConfig, logger zerolog.Logger) *BackupService {
	return &BackupService{
		db:     db,
		config: cfg,
		logger: logger.With().Str("component", "backup").Logger(),
		now:    time.Now,
	}
}

// Start schedules backups and returns once the schedule is registered. The scheduler stops
// when ctx is cancelled.
func (s *BackupService) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.logger.Info().Msg("backup service is disabled")
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(s.config.Schedule, s.run); err != nil {
		return fmt.Errorf("schedule backups %q: %w", s.config.Schedule, err)
	}
	c.Start()
	s.logger.Info().Str("schedule", s.config.Schedule).Msg("backup service started")

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return nil
}

func (s *BackupService) run() {
	if _, err := s.PerformBackup(); err != nil {
		s.logger.Error().Err(err).Msg("scheduled backup failed")
	}

	deleted, err := s.db.CleanupBackups(s.config.Path, time.Duration(s.config.RetentionDays)*24*time.Hour)
	if err != nil {
		s.logger.Error().Err(err).Msg("backup cleanup failed")
	} else if deleted > 0 {
		s.logger.Info().Int("deleted", deleted).Msg("cleaned up old backups")
	}
}

// PerformBackup writes a timestamped backup and returns its path.
func (s *BackupService) PerformBackup() (string, error) {
	dest := filepath.Join(s.config.Path, fmt.Sprintf("%s%s.db", backupPrefix, s.now().Format("20060102_150405")))

	s.logger.Info().Str("path", dest).Msg("starting database backup")
	if err := s.db.Backup(dest); err != nil {
		return "", err
	}
	s.logger.Info().Str("path", dest).Msg("backup completed")
	return dest, nil
}
