package logger

import (
	"os"
	"path/filepath"
	"testing"
)

func TestInitWritesToFile(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "monkeyctl.log")

	if err := Init("debug", logFile); err != nil {
		t.Fatalf("Init: %v", err)
	}

	Info("hello from test", "window", "w1")

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if len(data) == 0 {
		t.Error("expected log file to contain output")
	}
}

func TestInitDefaultsUnknownLevelToDebug(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "monkeyctl.log")
	if err := Init("nonsense", logFile); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if Log == nil {
		t.Fatal("expected Log to be initialized")
	}
}
