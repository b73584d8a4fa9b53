package logging

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"

	"github.com/dotside-studios/cgm-agent/config"
)

// New builds the process logger: colourised tint output for dev builds,
// JSON otherwise. Every record also lands in the returned History.
func New(cfg config.Config, version string, appName string) (*slog.Logger, *History) {
	return newLogger(os.Stdout, cfg, version, appName)
}

func newLogger(w io.Writer, cfg config.Config, version string, appName string) (*slog.Logger, *History) {
	var h slog.Handler
	if version == "dev" || cfg.AppEnv == "dev" {
		h = tint.NewHandler(w, &tint.Options{
			Level:      cfg.Level(),
			AddSource:  version == "dev",
			TimeFormat: time.Kitchen,
		})
	} else {
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: cfg.Level(),
		})
	}

	history := NewHistory(h, HistoryPolicy{Capacity: cfg.LogHistory})
	logger := slog.New(history).With("app", appName)
	if version != "dev" {
		logger = logger.With("version", version, "env", cfg.AppEnv)
	}
	return logger, history
}
