package slogutil

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	pmerrors "pmat/internal/errors"
)

func TestHandler_Format(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo)

	logger.Info("parsed file", "path", "src/main.rs", "nodes", 42)

	output := buf.String()
	for _, want := range []string{"[info]", "parsed file", " | ", "path=src/main.rs", "nodes=42"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
}

func TestHandler_QuotesAndErrorCodes(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo)

	parseErr := pmerrors.Parse("src/my lib.rs", "unexpected token", nil)
	logger.Warn("proof source dropped",
		"root", "/tmp/my project",
		"filter", "a=b",
		"empty", "",
		"error", parseErr,
		"plain", errors.New("boom"),
		"duration", 1234567891*time.Nanosecond,
	)

	output := buf.String()
	for _, want := range []string{
		`root="/tmp/my project"`,
		`filter="a=b"`,
		`empty=""`,
		"error_code=PARSE_ERROR",
		"plain=boom",
		"duration=1.234568s",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
	if strings.Contains(output, "plain_code=") {
		t.Errorf("foreign errors carry no code, got: %s", output)
	}
}

func TestHandler_GroupsAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelDebug).With("component", "cache").WithGroup("stats")

	logger.Debug("evicted", "count", 3)

	output := buf.String()
	if !strings.Contains(output, "component=cache") {
		t.Errorf("expected component attr, got: %s", output)
	}
	if !strings.Contains(output, "stats.count=3") {
		t.Errorf("expected grouped key, got: %s", output)
	}
}

func TestHandler_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelWarn)

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	output := buf.String()
	if strings.Contains(output, "debug message") || strings.Contains(output, "info message") {
		t.Errorf("debug/info should be filtered, got: %s", output)
	}
	if !strings.Contains(output, "warn message") || !strings.Contains(output, "error message") {
		t.Errorf("warn/error should be kept, got: %s", output)
	}
}

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"TRACE", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"off", LevelSilent},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := LevelFromString(tt.input); got != tt.expected {
				t.Errorf("LevelFromString(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestLevelFromVerbosity(t *testing.T) {
	tests := []struct {
		verbosity int
		quiet     bool
		expected  slog.Level
	}{
		{0, false, slog.LevelWarn},
		{1, false, slog.LevelInfo},
		{2, false, slog.LevelDebug},
		{5, true, LevelSilent},
	}

	for _, tt := range tests {
		if got := LevelFromVerbosity(tt.verbosity, tt.quiet); got != tt.expected {
			t.Errorf("LevelFromVerbosity(%d, %v) = %v, want %v", tt.verbosity, tt.quiet, got, tt.expected)
		}
	}
}

func TestLevelFromEnv(t *testing.T) {
	env := func(m map[string]string) func(string) (string, bool) {
		return func(k string) (string, bool) {
			v, ok := m[k]
			return v, ok
		}
	}

	tests := []struct {
		name   string
		vars   map[string]string
		want   slog.Level
		wantOK bool
	}{
		{"unset", map[string]string{}, slog.LevelWarn, false},
		{"empty is set", map[string]string{"PMAT_LOG": ""}, slog.LevelWarn, true},
		{"pmat wins", map[string]string{"PMAT_LOG": "debug", "RUST_LOG": "error"}, slog.LevelDebug, true},
		{"rust directive", map[string]string{"RUST_LOG": "pmat=error"}, slog.LevelError, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := LevelFromEnv(env(tt.vars), slog.LevelWarn)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("LevelFromEnv = (%v, %v), want (%v, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestTeeHandler(t *testing.T) {
	var info, warn bytes.Buffer
	logger := slog.New(NewTeeHandler(
		NewHandler(&info, &slog.HandlerOptions{Level: slog.LevelInfo}),
		NewHandler(&warn, &slog.HandlerOptions{Level: slog.LevelWarn}),
	))

	logger.Info("info message")
	logger.Warn("warn message")

	if !strings.Contains(info.String(), "info message") || !strings.Contains(info.String(), "warn message") {
		t.Errorf("info sink missing records: %s", info.String())
	}
	if strings.Contains(warn.String(), "info message") || !strings.Contains(warn.String(), "warn message") {
		t.Errorf("warn sink filtered wrongly: %s", warn.String())
	}
}
