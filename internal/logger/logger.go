package logger

import (
	"io"
	"log/slog"
	"os"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Rotation defaults for the daemon's own log file (lumberjack semantics).
const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 3
	DefaultMaxAgeDays = 7
)

// Config describes the daemon's own logging destinations. Child-service logs
// are handled separately by PrepareServiceLog.
type Config struct {
	FilePath   string     // daemon log file; empty disables the file sink
	Level      slog.Level // minimum level
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Console    bool // also log to stderr with level colors
}

// New builds a slog.Logger for the daemon. When both a file path and console
// are configured, records are fanned out to both sinks.
func New(c Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.Level}
	var w io.Writer
	switch {
	case c.FilePath != "" && c.Console:
		w = io.MultiWriter(fileWriter(c), os.Stderr)
	case c.FilePath != "":
		w = fileWriter(c)
	default:
		w = os.Stderr
	}
	if c.Console && c.FilePath == "" {
		return slog.New(NewColorTextHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func fileWriter(c Config) io.Writer {
	return &lj.Logger{
		Filename:   c.FilePath,
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
	}
}

func valOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
