// Package logging configures the process-wide logrus logger used by every
// governor package.
//
// Output goes to stderr by default. When a file is configured, entries are
// written through a lumberjack rotating writer instead.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation settings.
const (
	DefaultMaxSizeMB  = 100
	DefaultMaxBackups = 5
	DefaultMaxAgeDays = 30
)

// Config holds logger settings.
type Config struct {
	Level      string `yaml:"level"`        // logrus level name (default: info)
	Format     string `yaml:"format"`       // text or json (default: text)
	File       string `yaml:"file"`         // rotate into this file instead of stderr when set
	MaxSizeMB  int    `yaml:"max_size_mb"`  // size before rotation (default: 100)
	MaxBackups int    `yaml:"max_backups"`  // rotated files kept (default: 5)
	MaxAgeDays int    `yaml:"max_age_days"` // days rotated files are kept (default: 30)
	Compress   bool   `yaml:"compress"`     // gzip rotated files
}

// DefaultConfig returns stderr text logging at info level.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "text",
		MaxSizeMB:  DefaultMaxSizeMB,
		MaxBackups: DefaultMaxBackups,
		MaxAgeDays: DefaultMaxAgeDays,
		Compress:   true,
	}
}

// Validate checks the level and format names.
func (c Config) Validate() error {
	if _, err := logrus.ParseLevel(c.Level); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	switch c.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log format %q: must be text or json", c.Format)
	}
	return nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Setup applies cfg to the standard logrus logger. The returned closer
// releases the log file, if any.
func Setup(cfg Config) (io.Closer, error) {
	return Apply(logrus.StandardLogger(), cfg)
}

// Apply configures logger according to cfg.
func Apply(logger *logrus.Logger, cfg Config) (io.Closer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	level, _ := logrus.ParseLevel(cfg.Level)
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if cfg.File == "" {
		logger.SetOutput(os.Stderr)
		return nopCloser{}, nil
	}

	writer := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    orDefault(cfg.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: orDefault(cfg.MaxBackups, DefaultMaxBackups),
		MaxAge:     orDefault(cfg.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   cfg.Compress,
	}
	logger.SetOutput(writer)

	logger.WithFields(logrus.Fields{
		"function": "logging.Apply",
		"file":     cfg.File,
		"level":    level.String(),
	}).Info("Logging to rotating file")
	return writer, nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
