package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != DefaultPort {
		t.Fatalf("port = %d, want %d", cfg.Port, DefaultPort)
	}
	if cfg.Workers != DefaultWorkers || cfg.QueueCapacity != DefaultQueueCapacity {
		t.Fatalf("pool defaults wrong: %+v", cfg)
	}
	if cfg.JobTimeout != DefaultJobTimeout {
		t.Fatalf("timeout = %v", cfg.JobTimeout)
	}
	if cfg.PublicURL != "http://localhost:8000" {
		t.Fatalf("public url = %q", cfg.PublicURL)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9001")
	t.Setenv("WORKERS", "5")
	t.Setenv("JOB_TIMEOUT_SECONDS", "45")
	t.Setenv("MAX_UPLOAD_BYTES", "1048576")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 9001 || cfg.Workers != 5 {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if cfg.JobTimeout != 45*time.Second {
		t.Fatalf("timeout = %v", cfg.JobTimeout)
	}
	if cfg.MaxUploadBytes != 1<<20 {
		t.Fatalf("max upload = %d", cfg.MaxUploadBytes)
	}
	if cfg.PublicURL != "http://localhost:9001" {
		t.Fatalf("public url = %q", cfg.PublicURL)
	}
}

func TestFileOverlayWinsOverEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("port: 7070\nrasterizerCmd: /opt/agent/run\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("PORT", "9001")
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 7070 {
		t.Fatalf("port = %d, want file overlay 7070", cfg.Port)
	}
	if cfg.RasterizerCmd != "/opt/agent/run" {
		t.Fatalf("rasterizer cmd = %q", cfg.RasterizerCmd)
	}
}

func TestFloorsOnPoolSizes(t *testing.T) {
	t.Setenv("WORKERS", "0")
	t.Setenv("QUEUE_CAPACITY", "-2")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Workers != 1 || cfg.QueueCapacity != 1 {
		t.Fatalf("floors not applied: workers=%d queue=%d", cfg.Workers, cfg.QueueCapacity)
	}
}

func TestBadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("port: [not an int\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	if _, err := Load(); err == nil {
		t.Fatal("expected error for malformed config file")
	}
}
