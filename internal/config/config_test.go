package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_MissingFile(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.CaptureIntervalSec != 2 {
		t.Errorf("CaptureIntervalSec = %d, want 2", cfg.CaptureIntervalSec)
	}
	if cfg.BufferCapacity != 100 {
		t.Errorf("BufferCapacity = %d, want 100", cfg.BufferCapacity)
	}
	if cfg.FlushThreshold != 30 {
		t.Errorf("FlushThreshold = %d, want 30", cfg.FlushThreshold)
	}
	if cfg.SessionTimeoutSec != 300 {
		t.Errorf("SessionTimeoutSec = %d, want 300", cfg.SessionTimeoutSec)
	}
	if cfg.OCRConfidence != 0.35 {
		t.Errorf("OCRConfidence = %v, want 0.35", cfg.OCRConfidence)
	}
	if cfg.ArchiveDir != filepath.Join(tmpDir, "archive") {
		t.Errorf("ArchiveDir = %q, want under baseDir", cfg.ArchiveDir)
	}
	if cfg.ChunkDir != filepath.Join(tmpDir, "chunks") {
		t.Errorf("ChunkDir = %q, want under baseDir", cfg.ChunkDir)
	}
}

func TestLoad_OverridesAndDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	content := `{"capture_interval_sec": 5, "buffer_capacity": 10, "active_window_only": true, "archive_dir": "/tmp/rt-archive"}`
	if err := os.WriteFile(filepath.Join(tmpDir, "config.json"), []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.CaptureIntervalSec != 5 {
		t.Errorf("CaptureIntervalSec = %d, want 5", cfg.CaptureIntervalSec)
	}
	if cfg.BufferCapacity != 10 {
		t.Errorf("BufferCapacity = %d, want 10", cfg.BufferCapacity)
	}
	if !cfg.ActiveWindowOnly {
		t.Error("ActiveWindowOnly = false, want true")
	}
	// Unset keys keep defaults
	if cfg.FlushThreshold != 30 {
		t.Errorf("FlushThreshold = %d, want default 30", cfg.FlushThreshold)
	}
	if cfg.EncoderBinary != "ffmpeg" {
		t.Errorf("EncoderBinary = %q, want default ffmpeg", cfg.EncoderBinary)
	}
	if cfg.ArchiveDir != "/tmp/rt-archive" {
		t.Errorf("ArchiveDir = %q, want explicit path", cfg.ArchiveDir)
	}
	if cfg.ChunkDir != filepath.Join(tmpDir, "chunks") {
		t.Errorf("ChunkDir = %q, want default under baseDir", cfg.ChunkDir)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, "config.json"), []byte("{nope"), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(tmpDir); err == nil {
		t.Error("Load should fail on invalid JSON")
	}
}

func TestMerge_Slices(t *testing.T) {
	base := &Config{DisabledTools: []string{"activity_search", " activity_journal "}}
	overlay := &Config{DisabledTools: []string{"activity_search", "activity_timeline"}}

	merged := Merge(base, overlay)

	want := []string{"activity_search", "activity_journal", "activity_timeline"}
	if len(merged.DisabledTools) != len(want) {
		t.Fatalf("DisabledTools = %v, want %v", merged.DisabledTools, want)
	}
	for i, s := range want {
		if merged.DisabledTools[i] != s {
			t.Errorf("DisabledTools[%d] = %q, want %q", i, merged.DisabledTools[i], s)
		}
	}
}

func TestDurations(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.CaptureInterval() != 2*time.Second {
		t.Errorf("CaptureInterval = %v, want 2s", cfg.CaptureInterval())
	}
	if cfg.EncodeTimeout() != 30*time.Second {
		t.Errorf("EncodeTimeout = %v, want 30s", cfg.EncodeTimeout())
	}
	if cfg.SessionTimeout() != 5*time.Minute {
		t.Errorf("SessionTimeout = %v, want 5m", cfg.SessionTimeout())
	}
}
