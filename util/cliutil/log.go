package cliutil

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

type LogOptions struct {
	// debug|info|warn|error; falls back to EMBER_LOG_LEVEL, then info
	LogLevel string
	// text|json; falls back to EMBER_LOG_FMT, then json
	LogFormat string
	// file to append to; empty or "-" for stdout
	LogPath string
}

func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level: %q", s)
}

// Builds a logger from the options (and env vars), and installs it as the slog default.
func SetupSlog(options LogOptions) (*slog.Logger, error) {
	if options.LogLevel == "" {
		options.LogLevel = os.Getenv("EMBER_LOG_LEVEL")
	}
	if options.LogFormat == "" {
		options.LogFormat = os.Getenv("EMBER_LOG_FMT")
	}

	level, err := ParseLogLevel(options.LogLevel)
	if err != nil {
		return nil, err
	}
	hopts := slog.HandlerOptions{Level: level}

	var out io.Writer = os.Stdout
	if options.LogPath != "" && options.LogPath != "-" {
		f, err := os.OpenFile(options.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", options.LogPath, err)
		}
		out = f
	}

	var handler slog.Handler
	switch strings.ToLower(options.LogFormat) {
	case "", "json":
		handler = slog.NewJSONHandler(out, &hopts)
	case "text":
		handler = slog.NewTextHandler(out, &hopts)
	default:
		return nil, fmt.Errorf("invalid log format: %q", options.LogFormat)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}
