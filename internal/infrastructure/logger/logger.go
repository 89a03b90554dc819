package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/LavaJover/shvark-recovery-service/internal/config"
	"github.com/lmittmann/tint"
)

// Setup builds the process logger from log_config and installs it as the
// slog default.
func Setup(cfg config.LogConfig) *slog.Logger {
	logger := New(output(cfg.LogOutput), cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	return logger
}

func New(w io.Writer, level, format string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = tint.NewHandler(w, &tint.Options{Level: logLevel, TimeFormat: time.DateTime})
	}
	return slog.New(handler)
}

func output(name string) io.Writer {
	if name == "stderr" {
		return os.Stderr
	}
	return os.Stdout
}
