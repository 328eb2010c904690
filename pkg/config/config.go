package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/bricklayers/bricklayd/internal/bytesize"
)

// Config represents the bricklayd configuration.
//
// This structure captures the static configuration of the server:
//   - Server settings (bind address, HTTP timeouts, shutdown timeout)
//   - Storage settings (upload/output directories, size limit, extension gate)
//   - Processing settings (worker pool width, per-job timeout, parameter bounds)
//   - Cleanup settings (retention window, sweep interval)
//   - Logging, metrics, and telemetry configuration
//
// Configuration sources (in order of precedence):
//  1. Environment variables (BRICKLAYD_* or the short aliases, see bindEnvAliases)
//  2. Configuration file (YAML)
//  3. Default values (lowest priority)
type Config struct {
	// Server contains HTTP server settings
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Storage contains upload and output directory settings
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`

	// Processing contains worker pool and job parameter settings
	Processing ProcessingConfig `mapstructure:"processing" yaml:"processing"`

	// Cleanup contains retention sweeper settings
	Cleanup CleanupConfig `mapstructure:"cleanup" yaml:"cleanup"`

	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Metrics contains Prometheus metrics configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	// Host is the bind address
	// Default: "0.0.0.0"
	Host string `mapstructure:"host" validate:"required" yaml:"host"`

	// Port is the HTTP listen port
	// Default: 8000
	Port int `mapstructure:"port" validate:"required,min=1,max=65535" yaml:"port"`

	// ReadTimeout is the maximum duration for reading a request.
	// Uploads stream through the handler, so this must comfortably exceed
	// the time a client needs to push MAX_UPLOAD_SIZE bytes.
	// Default: 5m
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the maximum duration for writing a response
	// Default: 5m (downloads stream processed files back)
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle timeout
	// Default: 60s
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	// Default: 30s
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`
}

// StorageConfig contains upload and output directory settings.
// Both directories are created at startup if they do not exist.
type StorageConfig struct {
	// UploadDir is the directory for captured uploads
	// Default: "temp/uploads"
	UploadDir string `mapstructure:"upload_dir" validate:"required" yaml:"upload_dir"`

	// OutputDir is the directory for processed outputs
	// Default: "temp/outputs"
	OutputDir string `mapstructure:"output_dir" validate:"required" yaml:"output_dir"`

	// MaxUploadSize is the hard upload size limit enforced during capture.
	// Supports human-readable formats: "50MB", "100MiB", or plain bytes.
	// Default: 50MiB
	MaxUploadSize bytesize.ByteSize `mapstructure:"max_upload_size" yaml:"max_upload_size"`

	// AllowedExtensions is the extension gate for uploads (lowercase, with dot)
	// Default: [".gcode", ".gco", ".g"]
	AllowedExtensions []string `mapstructure:"allowed_extensions" validate:"required,min=1,dive,startswith=." yaml:"allowed_extensions"`
}

// ProcessingConfig contains worker pool and job parameter settings.
type ProcessingConfig struct {
	// MaxConcurrentJobs is the worker pool width
	// Default: 5
	MaxConcurrentJobs int `mapstructure:"max_concurrent_jobs" validate:"required,min=1" yaml:"max_concurrent_jobs"`

	// Timeout is the per-job processing deadline
	// Default: 15m
	Timeout time.Duration `mapstructure:"timeout" validate:"required,gt=0" yaml:"timeout"`

	// DefaultStartAtLayer is the start_at_layer applied when the form omits it
	// Default: 3
	DefaultStartAtLayer int `mapstructure:"default_start_at_layer" validate:"min=0" yaml:"default_start_at_layer"`

	// DefaultMultiplier is the extrusion_multiplier applied when the form omits it
	// Default: 1.05
	DefaultMultiplier float64 `mapstructure:"default_multiplier" yaml:"default_multiplier"`

	// MinMultiplier and MaxMultiplier bound the accepted extrusion_multiplier
	// Defaults: 1.0 and 1.2
	MinMultiplier float64 `mapstructure:"min_multiplier" yaml:"min_multiplier"`
	MaxMultiplier float64 `mapstructure:"max_multiplier" yaml:"max_multiplier"`
}

// CleanupConfig contains retention sweeper settings.
type CleanupConfig struct {
	// Enabled controls whether the background sweeper runs
	// Default: true
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Retention is how long files are kept before the sweeper deletes them
	// Default: 24h
	Retention time.Duration `mapstructure:"retention" validate:"required,gt=0" yaml:"retention"`

	// Interval is the period between sweeps
	// Default: 1h
	Interval time.Duration `mapstructure:"interval" validate:"required,gt=0" yaml:"interval"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// MetricsConfig configures Prometheus metrics.
// When Enabled is false, no metrics are collected.
type MetricsConfig struct {
	// Enabled controls whether metrics collection and the /metrics endpoint are enabled
	// Default: true
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
// When enabled, trace data is exported to an OTLP-compatible collector.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false (opt-in)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317"
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use insecure (non-TLS) connection
	// Default: true (for local development)
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	// Default: 1.0 (sample all)
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled
	// Default: false (opt-in)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server endpoint (URL)
	// Default: "http://localhost:4040"
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (BRICKLAYD_* and short aliases like PORT)
//  2. Configuration file
//  3. Default values
//
// configPath may be empty, in which case the default location is searched
// and missing files fall back to defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}

	// Short env aliases override the file regardless of whether one was found
	if err := applyEnvAliases(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// SaveConfig saves the configuration to the specified file path in YAML format.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Use yaml.Marshal directly to respect yaml tags
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// InitConfig writes a sample configuration file with all defaults filled
// in. An empty path targets the default location. Existing files are
// only overwritten when force is set.
func InitConfig(path string, force bool) (string, error) {
	if path == "" {
		path = GetDefaultConfigPath()
	}

	if _, err := os.Stat(path); err == nil && !force {
		return "", fmt.Errorf("configuration file already exists at %s (use --force to overwrite)", path)
	}

	if err := SaveConfig(GetDefaultConfig(), path); err != nil {
		return "", err
	}

	return path, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the BRICKLAYD_ prefix and underscores
	// Example: BRICKLAYD_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("BRICKLAYD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Booleans that default to true cannot go through zero-value defaulting
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("cleanup.enabled", true)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error); a missing file is not an error.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// envAlias maps a short, unprefixed environment variable to a config key.
// These are the variable names the service has historically been deployed
// with; the prefixed BRICKLAYD_* forms cover everything else.
type envAlias struct {
	env string
	key string
	// convert optionally transforms the raw value before it is set,
	// e.g. attaching a time unit to a bare integer.
	convert func(string) (any, error)
}

func envAliases() []envAlias {
	return []envAlias{
		{env: "HOST", key: "server.host"},
		{env: "PORT", key: "server.port"},
		{env: "UPLOAD_DIR", key: "storage.upload_dir"},
		{env: "OUTPUT_DIR", key: "storage.output_dir"},
		{env: "MAX_UPLOAD_SIZE", key: "storage.max_upload_size"},
		{env: "ALLOWED_EXTENSIONS", key: "storage.allowed_extensions", convert: splitExtensions},
		{env: "PROCESSING_TIMEOUT", key: "processing.timeout", convert: secondsToDuration},
		{env: "MAX_CONCURRENT_JOBS", key: "processing.max_concurrent_jobs"},
		{env: "FILE_RETENTION_HOURS", key: "cleanup.retention", convert: hoursToDuration},
		{env: "CLEANUP_INTERVAL_MINUTES", key: "cleanup.interval", convert: minutesToDuration},
		{env: "LOG_LEVEL", key: "logging.level"},
	}
}

// applyEnvAliases applies the short environment variable names on top of
// whatever the config file provided.
func applyEnvAliases(v *viper.Viper) error {
	for _, a := range envAliases() {
		raw, ok := os.LookupEnv(a.env)
		if !ok || raw == "" {
			continue
		}
		if a.convert == nil {
			v.Set(a.key, raw)
			continue
		}
		val, err := a.convert(raw)
		if err != nil {
			return fmt.Errorf("invalid value for %s: %w", a.env, err)
		}
		v.Set(a.key, val)
	}
	return nil
}

// splitExtensions parses a comma-separated extension list like ".gcode,.gco".
func splitExtensions(raw string) (any, error) {
	parts := strings.Split(raw, ",")
	exts := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.HasPrefix(p, ".") {
			p = "." + p
		}
		exts = append(exts, strings.ToLower(p))
	}
	if len(exts) == 0 {
		return nil, fmt.Errorf("no extensions in %q", raw)
	}
	return exts, nil
}

func secondsToDuration(raw string) (any, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, err
	}
	return time.Duration(n) * time.Second, nil
}

func minutesToDuration(raw string) (any, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, err
	}
	return time.Duration(n) * time.Minute, nil
}

func hoursToDuration(raw string) (any, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, err
	}
	return time.Duration(n) * time.Hour, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
// This includes ByteSize and time.Duration parsing.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook returns a mapstructure decode hook that converts strings
// and integers to bytesize.ByteSize. This enables config files to use
// human-readable sizes like "50MB", "100MiB", or plain numbers.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.Parse(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook returns a mapstructure decode hook that converts strings
// to time.Duration. This enables config files to use human-readable durations
// like "30s", "5m", "1h".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case time.Duration:
			return v, nil
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "bricklayd")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "bricklayd")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
