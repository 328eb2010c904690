package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bricklayers/bricklayd/internal/bytesize"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return configPath
}

func TestLoad_DefaultsApplied(t *testing.T) {
	configPath := writeConfig(t, `
logging:
  level: "INFO"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Expected default host 0.0.0.0, got %q", cfg.Server.Host)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("Expected default port 8000, got %d", cfg.Server.Port)
	}
	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown_timeout 30s, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Storage.MaxUploadSize != 50*bytesize.MiB {
		t.Errorf("Expected default max_upload_size 50MiB, got %v", cfg.Storage.MaxUploadSize)
	}
	if got := cfg.Storage.AllowedExtensions; len(got) != 3 || got[0] != ".gcode" {
		t.Errorf("Expected default extensions [.gcode .gco .g], got %v", got)
	}
	if cfg.Processing.MaxConcurrentJobs != 5 {
		t.Errorf("Expected default max_concurrent_jobs 5, got %d", cfg.Processing.MaxConcurrentJobs)
	}
	if cfg.Processing.Timeout != 15*time.Minute {
		t.Errorf("Expected default processing timeout 15m, got %v", cfg.Processing.Timeout)
	}
	if cfg.Cleanup.Retention != 24*time.Hour {
		t.Errorf("Expected default retention 24h, got %v", cfg.Cleanup.Retention)
	}
	if cfg.Cleanup.Interval != time.Hour {
		t.Errorf("Expected default interval 1h, got %v", cfg.Cleanup.Interval)
	}
	if !cfg.Cleanup.Enabled {
		t.Error("Expected cleanup enabled by default")
	}
	if !cfg.Metrics.Enabled {
		t.Error("Expected metrics enabled by default")
	}
	if cfg.Telemetry.Enabled {
		t.Error("Expected telemetry disabled by default")
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	nonExistentPath := filepath.Join(tmpDir, "nonexistent.yaml")

	cfg, err := Load(nonExistentPath)
	if err != nil {
		t.Fatalf("Expected no error when loading default config, got: %v", err)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("Expected default port 8000, got %d", cfg.Server.Port)
	}
}

func TestLoad_FileValues(t *testing.T) {
	configPath := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 9100

storage:
  upload_dir: "/srv/bricklayd/uploads"
  output_dir: "/srv/bricklayd/outputs"
  max_upload_size: 100MiB
  allowed_extensions: [".gcode"]

processing:
  max_concurrent_jobs: 8
  timeout: 10m

cleanup:
  retention: 48h
  interval: 30m

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9100 {
		t.Errorf("Unexpected server config: %+v", cfg.Server)
	}
	if cfg.Storage.MaxUploadSize != 100*bytesize.MiB {
		t.Errorf("Expected 100MiB, got %v", cfg.Storage.MaxUploadSize)
	}
	if cfg.Processing.Timeout != 10*time.Minute {
		t.Errorf("Expected 10m timeout, got %v", cfg.Processing.Timeout)
	}
	if cfg.Cleanup.Retention != 48*time.Hour {
		t.Errorf("Expected 48h retention, got %v", cfg.Cleanup.Retention)
	}
	// Level is normalized to uppercase
	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected normalized level DEBUG, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Expected format json, got %q", cfg.Logging.Format)
	}
}

func TestLoad_EnvAliases(t *testing.T) {
	t.Setenv("PORT", "9200")
	t.Setenv("MAX_UPLOAD_SIZE", "1MB")
	t.Setenv("PROCESSING_TIMEOUT", "120")
	t.Setenv("FILE_RETENTION_HOURS", "12")
	t.Setenv("CLEANUP_INTERVAL_MINUTES", "15")
	t.Setenv("ALLOWED_EXTENSIONS", ".gcode, .gco")
	t.Setenv("LOG_LEVEL", "warn")

	tmpDir := t.TempDir()
	cfg, err := Load(filepath.Join(tmpDir, "nonexistent.yaml"))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Port != 9200 {
		t.Errorf("Expected PORT=9200 to win, got %d", cfg.Server.Port)
	}
	if cfg.Storage.MaxUploadSize != bytesize.MB {
		t.Errorf("Expected 1MB limit, got %v", cfg.Storage.MaxUploadSize)
	}
	if cfg.Processing.Timeout != 120*time.Second {
		t.Errorf("Expected 120s timeout, got %v", cfg.Processing.Timeout)
	}
	if cfg.Cleanup.Retention != 12*time.Hour {
		t.Errorf("Expected 12h retention, got %v", cfg.Cleanup.Retention)
	}
	if cfg.Cleanup.Interval != 15*time.Minute {
		t.Errorf("Expected 15m interval, got %v", cfg.Cleanup.Interval)
	}
	if got := cfg.Storage.AllowedExtensions; len(got) != 2 || got[0] != ".gcode" || got[1] != ".gco" {
		t.Errorf("Expected [.gcode .gco], got %v", got)
	}
	if cfg.Logging.Level != "WARN" {
		t.Errorf("Expected WARN level, got %q", cfg.Logging.Level)
	}
}

func TestLoad_EnvAliasOverridesFile(t *testing.T) {
	t.Setenv("PORT", "9300")

	configPath := writeConfig(t, `
server:
  port: 9100
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Server.Port != 9300 {
		t.Errorf("Expected env to override file, got port %d", cfg.Server.Port)
	}
}

func TestLoad_InvalidEnvAlias(t *testing.T) {
	t.Setenv("PROCESSING_TIMEOUT", "not-a-number")

	tmpDir := t.TempDir()
	_, err := Load(filepath.Join(tmpDir, "nonexistent.yaml"))
	if err == nil {
		t.Fatal("Expected error for non-numeric PROCESSING_TIMEOUT")
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "sub", "config.yaml")

	cfg := GetDefaultConfig()
	cfg.Server.Port = 9999

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to reload saved config: %v", err)
	}
	if loaded.Server.Port != 9999 {
		t.Errorf("Expected port 9999 after round trip, got %d", loaded.Server.Port)
	}
}
