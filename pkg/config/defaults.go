package config

import (
	"strings"
	"time"

	"github.com/bricklayers/bricklayd/internal/bytesize"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
func ApplyDefaults(cfg *Config) {
	applyServerDefaults(&cfg.Server)
	applyStorageDefaults(&cfg.Storage)
	applyProcessingDefaults(&cfg.Processing)
	applyCleanupDefaults(&cfg.Cleanup)
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.Port == 0 {
		cfg.Port = 8000
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 5 * time.Minute
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.UploadDir == "" {
		cfg.UploadDir = "temp/uploads"
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "temp/outputs"
	}
	if cfg.MaxUploadSize == 0 {
		cfg.MaxUploadSize = 50 * bytesize.MiB
	}
	if len(cfg.AllowedExtensions) == 0 {
		cfg.AllowedExtensions = []string{".gcode", ".gco", ".g"}
	}
	// Normalize extensions to lowercase for a case-insensitive gate
	for i, ext := range cfg.AllowedExtensions {
		cfg.AllowedExtensions[i] = strings.ToLower(ext)
	}
}

func applyProcessingDefaults(cfg *ProcessingConfig) {
	if cfg.MaxConcurrentJobs == 0 {
		cfg.MaxConcurrentJobs = 5
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Minute
	}
	if cfg.DefaultStartAtLayer == 0 {
		cfg.DefaultStartAtLayer = 3
	}
	if cfg.DefaultMultiplier == 0 {
		cfg.DefaultMultiplier = 1.05
	}
	if cfg.MinMultiplier == 0 {
		cfg.MinMultiplier = 1.0
	}
	if cfg.MaxMultiplier == 0 {
		cfg.MaxMultiplier = 1.2
	}
}

func applyCleanupDefaults(cfg *CleanupConfig) {
	if cfg.Retention == 0 {
		cfg.Retention = 24 * time.Hour
	}
	if cfg.Interval == 0 {
		cfg.Interval = time.Hour
	}
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}

	applyProfilingDefaults(&cfg.Profiling)
}

// applyProfilingDefaults sets Pyroscope profiling defaults.
func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Metrics: MetricsConfig{Enabled: true},
		Cleanup: CleanupConfig{Enabled: true},
	}

	ApplyDefaults(cfg)
	return cfg
}
