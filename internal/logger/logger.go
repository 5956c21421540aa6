// Package logger builds the logrus logger used by the CLI, with optional
// size-based rotation of the log file.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var log *logrus.Logger

// Config selects level, format and destination
type Config struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // text | json
	Output     string `mapstructure:"output"` // console | file | both
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // megabytes
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
}

// New builds a logger from cfg. Console output goes to stderr so command
// results on stdout stay clean.
func New(cfg Config) (*logrus.Logger, error) {
	l := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if cfg.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat:   "2006-01-02 15:04:05",
			DisableHTMLEscape: true,
		})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	var writers []io.Writer
	switch cfg.Output {
	case "", "console":
		writers = append(writers, os.Stderr)
	case "file", "both":
		if cfg.Output == "both" {
			writers = append(writers, os.Stderr)
		}
		if cfg.FilePath == "" {
			return nil, fmt.Errorf("log output %q needs log.file_path", cfg.Output)
		}
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		})
	default:
		return nil, fmt.Errorf("unknown log output %q", cfg.Output)
	}
	l.SetOutput(io.MultiWriter(writers...))

	return l, nil
}

// Init replaces the process logger
func Init(cfg Config) error {
	l, err := New(cfg)
	if err != nil {
		return err
	}
	log = l
	return nil
}

// GetLogger returns the process logger, creating a default one if needed
func GetLogger() *logrus.Logger {
	if log == nil {
		log = logrus.New()
		log.SetOutput(os.Stderr)
	}
	return log
}
