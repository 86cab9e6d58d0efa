package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"warning": LevelWarn,
		"ERROR":   LevelError,
		"none":    LevelNone,
		"bogus":   LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLoggerWritesLeveledLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sandkasten.log")
	l, err := New(LevelInfo, path, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()

	l.Debug("should be filtered")
	l.Info("hello %s", "world")
	l.Warn("minimal profile fallback")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	if strings.Contains(out, "should be filtered") {
		t.Error("debug line present despite info level")
	}
	if !strings.Contains(out, "[INFO] hello world") {
		t.Errorf("missing info line, got: %q", out)
	}
	if !strings.Contains(out, "[WARN] minimal profile fallback") {
		t.Errorf("missing warn line, got: %q", out)
	}
}

func TestLoggerWithPrefix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sandkasten.log")
	l, err := New(LevelDebug, path, "sandbox")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()

	l.WithPrefix("activate").Info("applied")

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "[sandbox:activate] applied") {
		t.Errorf("prefix chain missing, got: %q", string(data))
	}
}

func TestDiscardingLoggerIsSafe(t *testing.T) {
	l, err := New(LevelNone, "", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Info("goes nowhere")
	if err := l.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
