package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"glucowatch/internal/config"
)

func NewLogger(level string) *slog.Logger {
	return newLogger(level, os.Stdout)
}

// NewLoggerWithFile tees JSON logs to stdout and a size-rotated file when
// the file sink is enabled.
func NewLoggerWithFile(level string, fileCfg config.LogFileConfig) *slog.Logger {
	if !fileCfg.Enabled || fileCfg.Path == "" {
		return NewLogger(level)
	}
	rotated := &lumberjack.Logger{
		Filename:   fileCfg.Path,
		MaxSize:    fileCfg.MaxSizeMB,
		MaxBackups: fileCfg.MaxBackups,
		MaxAge:     fileCfg.MaxAgeDays,
	}
	return newLogger(level, io.MultiWriter(os.Stdout, rotated))
}

func newLogger(level string, w io.Writer) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	return slog.New(h)
}
