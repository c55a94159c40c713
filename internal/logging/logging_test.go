package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "homestay.log")
	logger, err := New(Options{Level: "info", File: path, MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger.Debugw("hidden", "room_id", "room-1")
	logger.Infow("room calendar synced", "room_id", "room-1")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, `"msg":"room calendar synced"`) || !strings.Contains(out, `"timestamp":`) {
		t.Errorf("log output = %s", out)
	}
	if strings.Contains(out, "hidden") {
		t.Error("debug entry written at info level")
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(Options{Level: "verbose"}); err == nil {
		t.Error("expected error for unknown level")
	}
}
