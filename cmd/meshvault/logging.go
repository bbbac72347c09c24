package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"meshvault/internal/config"
)

const logLevelEnvKey = "MESHVAULT_LOG_LEVEL"

// levelChoice is a raw log level and where it came from.
type levelChoice struct {
	raw    string
	origin string
}

// chooseLevel picks the first non-blank of flag, environment and config.
func chooseLevel(flagLevel, envLevel, configLevel string) levelChoice {
	for _, c := range []levelChoice{
		{raw: flagLevel, origin: "flag"},
		{raw: envLevel, origin: "env"},
		{raw: configLevel, origin: "config"},
	} {
		if strings.TrimSpace(c.raw) != "" {
			return c
		}
	}
	return levelChoice{origin: "default"}
}

// setupLogging installs the default slog logger. A bad flag is an error;
// a bad environment or config level falls back to the default with a warning.
func setupLogging(w io.Writer, flagLevel string, cfg *config.Config) (string, error) {
	envLevel := os.Getenv(logLevelEnvKey)
	choice := chooseLevel(flagLevel, envLevel, cfg.LogLevel)

	level, err := levelFromString(choice.raw)
	warning := ""
	if err != nil {
		switch choice.origin {
		case "flag":
			return "", fmt.Errorf("invalid --log-level %q", flagLevel)
		case "env":
			warning = fmt.Sprintf("warning: invalid %s=%q; defaulting to %s", logLevelEnvKey, envLevel, config.DefaultLogLevel)
		default:
			warning = fmt.Sprintf("warning: invalid log_level=%q; defaulting to %s", cfg.LogLevel, config.DefaultLogLevel)
		}
		level, _ = levelFromString(config.DefaultLogLevel)
	}

	slog.SetDefault(buildLogger(w, level, cfg.LogFormat))
	return warning, nil
}

func levelFromString(raw string) (slog.Level, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case "":
		value = config.DefaultLogLevel
	case "warning":
		value = "warn"
	}
	if n, err := strconv.Atoi(value); err == nil {
		return slog.Level(n), nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", raw)
	}
	return level, nil
}

func buildLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
