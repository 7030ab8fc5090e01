package logging

import (
	"path/filepath"
	"testing"

	"github.com/kozaktomas/cornea/internal/config"
	"github.com/sirupsen/logrus"
)

func TestNew_Level(t *testing.T) {
	logger, err := New(config.LogConfig{Level: "warn"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if logger.GetLevel() != logrus.WarnLevel {
		t.Errorf("expected warn level, got %s", logger.GetLevel())
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	if _, err := New(config.LogConfig{Level: "loud"}); err == nil {
		t.Error("expected error for invalid level")
	}
}

func TestNew_WithFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "cornea.log")
	logger, err := New(config.LogConfig{Level: "info", File: file})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	logger.Info("hello")
}

func TestComponent(t *testing.T) {
	logger, _ := New(config.LogConfig{Level: "info"})
	entry := Component(logger, "engine")
	if entry.Data["component"] != "engine" {
		t.Errorf("expected component field, got %v", entry.Data)
	}
}
