package logger

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"warning": LevelWarn,
		"error":   LevelError,
		"":        LevelInfo,
		"garbage": LevelInfo,
	}

	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLogger_WritesFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewFromZap(zap.New(core))

	l.WithFields(String("component", "dual")).Warn("secondary write failed",
		Int64("user_id", 42),
		Error(errors.New("disk full")),
	)

	entries := logs.FilterMessage("secondary write failed").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}

	ctx := entries[0].ContextMap()
	if ctx["component"] != "dual" {
		t.Errorf("expected component field, got %v", ctx["component"])
	}
	if ctx["user_id"] != int64(42) {
		t.Errorf("expected user_id 42, got %v", ctx["user_id"])
	}
	if ctx["error"] != "disk full" {
		t.Errorf("expected error field, got %v", ctx["error"])
	}
}

func TestNewNop_DoesNotPanic(t *testing.T) {
	l := NewNop()
	l.Info("ignored", String("k", "v"))
	l.Named("child").Debug("ignored")
}

func TestNewWithOptions_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.log")

	l := NewWithOptions(Options{Level: LevelInfo, Format: "json", File: path})
	l.Debug("hidden")
	l.Info("coupon issued", String("code", "ABC234"))
	_ = l.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	if !strings.Contains(out, `"code":"ABC234"`) {
		t.Errorf("log file missing field: %s", out)
	}
	if strings.Contains(out, "hidden") {
		t.Error("debug entry written at info level")
	}
}
