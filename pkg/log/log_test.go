package log

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestUsableBeforeInit(t *testing.T) {
	// 包级 logger 默认为 no-op，不应 panic。
	Info("before init")
	Error("before init", nil)
}

func TestNewConfig(t *testing.T) {
	tests := []struct {
		name         string
		level        string
		format       string
		wantLevel    zapcore.Level
		wantEncoding string
	}{
		{"upper-case level", "WARN", "json", zapcore.WarnLevel, "json"},
		{"padded level", " debug ", "console", zapcore.DebugLevel, "console"},
		{"unknown level falls back", "verbose", "json", zapcore.InfoLevel, "json"},
		{"unknown format is json", "INFO", "logfmt", zapcore.InfoLevel, "json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := newConfig(tt.level, tt.format, "")
			if err != nil {
				t.Fatal(err)
			}
			if cfg.Level.Level() != tt.wantLevel || cfg.Encoding != tt.wantEncoding {
				t.Errorf("level=%s encoding=%s, want %s %s", cfg.Level.Level(), cfg.Encoding, tt.wantLevel, tt.wantEncoding)
			}
			if len(cfg.OutputPaths) != 1 || cfg.OutputPaths[0] != "stdout" {
				t.Errorf("output paths = %v, want only stdout", cfg.OutputPaths)
			}
		})
	}
}

func TestNewConfig_OutputDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs", "nested")
	cfg, err := newConfig("INFO", "json", dir)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, LogFileName); len(cfg.OutputPaths) != 2 || cfg.OutputPaths[1] != want {
		t.Errorf("output paths = %v, want stdout and %s", cfg.OutputPaths, want)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Errorf("log dir not created: %v", err)
	}

	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := newConfig("INFO", "json", filepath.Join(blocker, "sub")); err == nil {
		t.Error("a log dir below a regular file should be rejected")
	}
}

func TestInit_WritesJSONToFile(t *testing.T) {
	dir := t.TempDir()
	Init("WARN", "json", dir)
	defer Init("INFO", "json", "")

	Infof("[Test] dropped below level")
	Warnw("[Test] kept", "request_id", "req-1")
	Sync()

	data, err := os.ReadFile(filepath.Join(dir, LogFileName))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d log lines, want 1: %s", len(lines), data)
	}
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["msg"] != "[Test] kept" || entry["request_id"] != "req-1" || entry["level"] != "warn" {
		t.Errorf("entry = %v", entry)
	}
	if _, ok := entry["time"]; !ok {
		t.Error("entry has no time field")
	}
}
