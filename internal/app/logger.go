package app

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger returns a configured slog.Logger based on configuration.
func NewLogger(cfg *Config) *slog.Logger {
	return newLogger(cfg, os.Stdout)
}

func newLogger(cfg *Config, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	format := ""
	env := ""
	if cfg != nil {
		format = cfg.LogFormat
		env = cfg.AppEnv
		if err := level.UnmarshalText([]byte(strings.TrimSpace(cfg.LogLevel))); err != nil {
			level = slog.LevelInfo
		}
	}
	opts := &slog.HandlerOptions{AddSource: true, Level: level}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler).With(slog.String("service", "gestion"), slog.String("env", env))
}
