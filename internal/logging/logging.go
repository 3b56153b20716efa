// Package logging builds the service logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"orgcal/internal/config"
)

// New returns a console logger, optionally teeing into a rotating file. The returned
// closer flushes the file sink and is safe to call when no file is configured.
// The level is process-wide so SetLevel can change it on a config reload.
func New(cfg config.LoggingConfig) (zerolog.Logger, io.Closer) {
	var out io.Writer = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	var closer io.Closer = nopCloser{}

	if cfg.File != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		out = zerolog.MultiLevelWriter(out, file)
		closer = file
	}

	SetLevel(cfg.Level)
	logger := zerolog.New(out).With().Timestamp().Logger()
	return logger, closer
}

// SetLevel applies level to every logger built by New and reports the level in effect.
func SetLevel(level string) zerolog.Level {
	lvl := ParseLevel(level)
	zerolog.SetGlobalLevel(lvl)
	return lvl
}

// ParseLevel maps a config value to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
