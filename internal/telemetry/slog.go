package telemetry

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel converts a configured level string into a slog.Level. Unknown
// values fall back to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// NewLogger builds a logger writing to w.
//
// format: "json"  → JSONHandler (machine readable; recommended for production)
//
//	anything else → TextHandler (human readable; suitable for local development)
func NewLogger(w io.Writer, format, level string) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug, // include file:line only when debugging
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// SetupLogger installs a stdout logger built from the configured format and
// level as the slog default, so slog.Info/Warn/Error calls elsewhere use it
// without carrying a *slog.Logger around.
func SetupLogger(format, level string) {
	slog.SetDefault(NewLogger(os.Stdout, format, level))
	slog.Info("logger initialised", "format", format, "level", ParseLevel(level).String())
}
