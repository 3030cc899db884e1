package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"info", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"ERROR", LevelError, false},
		{"verbose", LevelInfo, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseLevel(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseLevel(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLevelString(t *testing.T) {
	if LevelString(LevelDebug) != "debug" {
		t.Error("LevelDebug should render as debug")
	}
	if LevelString(LevelError) != "error" {
		t.Error("LevelError should render as error")
	}
}

func TestKeyNameHygiene(t *testing.T) {
	SetLogKeys(false)
	defer SetLogKeys(false)

	if got := KeyName("KEY_A"); got != "[key]" {
		t.Errorf("key identities must be masked by default, got %q", got)
	}

	SetLogKeys(true)
	if got := KeyName("KEY_A"); got != "KEY_A" {
		t.Errorf("expected KEY_A with key logging enabled, got %q", got)
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: LevelInfo})
	l := &Logger{Logger: slog.New(handler), config: DefaultConfig()}

	l.Info("device grabbed", "path", "/dev/input/event3")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry["msg"] != "device grabbed" {
		t.Errorf("unexpected msg: %v", entry["msg"])
	}
	if entry["path"] != "/dev/input/event3" {
		t.Errorf("unexpected path attr: %v", entry["path"])
	}
}

func TestFileOutputAndRotation(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{
		Level:      LevelDebug,
		Format:     FormatText,
		Output:     "file",
		FilePath:   filepath.Join(dir, "remapd.log"),
		MaxSize:    1,
		MaxBackups: 2,
		Component:  "test",
	}

	l, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer l.Close()

	l.Info("hello")
	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(cfg.FilePath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "hello") {
		t.Errorf("log file should contain the message, got %q", string(data))
	}
}

func TestRotatorRotates(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{
		FilePath:   filepath.Join(dir, "remapd.log"),
		MaxSize:    0, // every write rotates
		MaxBackups: 5,
	}

	r, err := NewFileRotator(cfg)
	if err != nil {
		t.Fatalf("NewFileRotator failed: %v", err)
	}
	defer r.Close()

	if _, err := r.Write([]byte("first\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := r.Write([]byte("second\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "remapd-*.log"))
	if len(matches) == 0 {
		t.Error("expected at least one rotated file")
	}
}
