package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew_InvalidLevelFallsBackToInfo(t *testing.T) {
	log, err := New("shouting")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if log.Core().Enabled(-1) {
		t.Fatal("debug must be disabled at the default info level")
	}
}

func TestNewWithOptions_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.log")
	log, err := NewWithOptions("debug", Options{File: path})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	log.Info("write-back persisted")
	_ = log.Sync()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(b), "write-back persisted") {
		t.Fatalf("expected message in log file, got %q", string(b))
	}
}
