package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
)

const (
	logRotationTime = 24 * time.Hour
	logMaxAge       = 7 * 24 * time.Hour
)

// newLogger builds the process logger. Output always goes to stdout; when
// logFile is set it is also written to a daily-rotated file
// (<logFile>.YYYYMMDD) with logFile itself as a symlink to the current one.
// The returned closer is nil when no file is used.
func newLogger(level slog.Level, logFile string) (*slog.Logger, io.Closer, error) {
	opts := &slog.HandlerOptions{Level: level}

	if logFile == "" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts)), nil, nil
	}

	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}

	rl, err := rotatelogs.New(
		logFile+".%Y%m%d",
		rotatelogs.WithLinkName(logFile),
		rotatelogs.WithRotationTime(logRotationTime),
		rotatelogs.WithMaxAge(logMaxAge),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file %s: %w", logFile, err)
	}

	return slog.New(slog.NewTextHandler(io.MultiWriter(os.Stdout, rl), opts)), rl, nil
}

// parseLevel maps LOG_LEVEL to a slog level. Empty means info.
func parseLevel(s string) (slog.Level, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return slog.LevelInfo, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, err
	}
	return level, nil
}
