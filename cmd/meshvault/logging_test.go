package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"meshvault/internal/config"
)

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    slog.Level
		wantErr bool
	}{
		{name: "default info", raw: "", want: slog.LevelInfo},
		{name: "debug", raw: "debug", want: slog.LevelDebug},
		{name: "info", raw: "INFO", want: slog.LevelInfo},
		{name: "warning alias", raw: "Warning", want: slog.LevelWarn},
		{name: "error", raw: "error", want: slog.LevelError},
		{name: "numeric", raw: "-4", want: slog.LevelDebug},
		{name: "invalid", raw: "chatty", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := levelFromString(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parse level: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestChooseLevel(t *testing.T) {
	tests := []struct {
		flag, env, cfg string
		want           levelChoice
	}{
		{"debug", "error", "warn", levelChoice{"debug", "flag"}},
		{"", "warn", "info", levelChoice{"warn", "env"}},
		{" ", "", "error", levelChoice{"error", "config"}},
		{"", "", "", levelChoice{"", "default"}},
	}
	for _, tt := range tests {
		if got := chooseLevel(tt.flag, tt.env, tt.cfg); got != tt.want {
			t.Fatalf("chooseLevel(%q, %q, %q) = %+v, want %+v", tt.flag, tt.env, tt.cfg, got, tt.want)
		}
	}
}

func TestSetupLogging(t *testing.T) {
	defer slog.SetDefault(slog.Default())
	cfg := config.Default()

	t.Run("flag overrides invalid env", func(t *testing.T) {
		t.Setenv(logLevelEnvKey, "invalid")
		warning, err := setupLogging(io.Discard, "debug", &cfg)
		if err != nil {
			t.Fatalf("configure logger: %v", err)
		}
		if warning != "" {
			t.Fatalf("expected no warning, got %q", warning)
		}
	})

	t.Run("invalid flag returns error", func(t *testing.T) {
		t.Setenv(logLevelEnvKey, "")
		if _, err := setupLogging(io.Discard, "chatty", &cfg); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("invalid env warns and falls back to info", func(t *testing.T) {
		t.Setenv(logLevelEnvKey, "chatty")
		warning, err := setupLogging(io.Discard, "", &cfg)
		if err != nil {
			t.Fatalf("configure logger: %v", err)
		}
		if !strings.Contains(warning, logLevelEnvKey) || !strings.Contains(warning, "defaulting to info") {
			t.Fatalf("expected env fallback warning, got %q", warning)
		}
	})

	t.Run("invalid config warns", func(t *testing.T) {
		t.Setenv(logLevelEnvKey, "")
		bad := cfg
		bad.LogLevel = "chatty"
		warning, err := setupLogging(io.Discard, "", &bad)
		if err != nil {
			t.Fatalf("configure logger: %v", err)
		}
		if !strings.Contains(warning, "invalid log_level") {
			t.Fatalf("expected config warning, got %q", warning)
		}
	})

	t.Run("json format", func(t *testing.T) {
		t.Setenv(logLevelEnvKey, "")
		jsonCfg := cfg
		jsonCfg.LogFormat = config.LogFormatJSON
		var buf bytes.Buffer
		if _, err := setupLogging(&buf, "info", &jsonCfg); err != nil {
			t.Fatalf("configure logger: %v", err)
		}
		slog.Info("imported", "models", 3)

		var record map[string]any
		if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
			t.Fatalf("expected a JSON record, got %q: %v", buf.String(), err)
		}
		if record["msg"] != "imported" || record["models"] != float64(3) {
			t.Fatalf("unexpected record: %v", record)
		}
	})
}
