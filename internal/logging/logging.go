package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New builds a JSON logger writing to stdout at the given level and installs
// it as the slog default.
func New(level string) *slog.Logger {
	logger := NewWithWriter(os.Stdout, level)
	slog.SetDefault(logger)
	return logger
}

func NewWithWriter(w io.Writer, level string) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})
	return slog.New(handler)
}

// ParseLevel maps debug, info, warn and error to slog levels. Unknown values
// fall back to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
