package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bricklayers/bricklayd/internal/logger"
	"github.com/bricklayers/bricklayd/internal/telemetry"
	"github.com/bricklayers/bricklayd/pkg/api"
	"github.com/bricklayers/bricklayd/pkg/api/handlers"
	"github.com/bricklayers/bricklayd/pkg/config"
	"github.com/bricklayers/bricklayd/pkg/filestore"
	"github.com/bricklayers/bricklayd/pkg/job"
	"github.com/bricklayers/bricklayd/pkg/metrics"
	prommetrics "github.com/bricklayers/bricklayd/pkg/metrics/prometheus"
	"github.com/bricklayers/bricklayd/pkg/sweeper"
	"github.com/bricklayers/bricklayd/pkg/worker"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the bricklayd server",
	Long: `Start the bricklayd HTTP server with the specified configuration.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/bricklayd/config.yaml. Missing
config files fall back to built-in defaults, so "bricklayd start" works
out of the box.

Examples:
  # Start with defaults
  bricklayd start

  # Start with custom config file
  bricklayd start --config /etc/bricklayd/config.yaml

  # Start with environment variable overrides
  PORT=9000 LOG_LEVEL=DEBUG bricklayd start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry (if enabled)
	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "bricklayd",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	// Initialize Pyroscope profiling (if enabled)
	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "bricklayd",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", "error", err)
		}
	}()

	logger.Info("Configuration loaded", "log_level", cfg.Logging.Level, "log_format", cfg.Logging.Format)
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	}

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		logger.Info("Metrics enabled", "path", "/metrics")
	} else {
		logger.Info("Metrics collection disabled")
	}

	// Storage directories are created here, before anything can queue work.
	store, err := filestore.New(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize file store: %w", err)
	}
	logger.Info("File store initialized",
		"upload_dir", store.UploadDir(),
		"output_dir", store.OutputDir(),
		"max_upload_size", cfg.Storage.MaxUploadSize.String(),
	)

	registry := job.NewRegistry()
	pipelineMetrics := prommetrics.NewPipelineMetrics()

	runner := worker.NewRunner(registry, cfg.Processing.Timeout, pipelineMetrics)
	pool := worker.NewPool(cfg.Processing.MaxConcurrentJobs, runner, pipelineMetrics)
	pool.Start(ctx)
	logger.Info("Worker pool started",
		"workers", cfg.Processing.MaxConcurrentJobs,
		"job_timeout", cfg.Processing.Timeout.String(),
	)

	var sw *sweeper.Sweeper
	if cfg.Cleanup.Enabled {
		sw = sweeper.New(
			[]string{store.UploadDir(), store.OutputDir()},
			cfg.Cleanup.Retention,
			cfg.Cleanup.Interval,
			prommetrics.NewSweeperMetrics(),
		)
		sw.Start(ctx)
		logger.Info("Retention sweeper started",
			"retention", cfg.Cleanup.Retention.String(),
			"interval", cfg.Cleanup.Interval.String(),
		)
	} else {
		logger.Info("Retention sweeper disabled")
	}

	h := handlers.New(store, registry, pool, pipelineMetrics, cfg.Processing, handlers.ServiceInfo{
		Name:    "bricklayd",
		Version: Version,
	})
	router := api.NewRouter(h, prommetrics.NewHTTPMetrics())
	server := api.NewServer(cfg.Server, router)

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- server.Start(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Server is running. Press Ctrl+C to stop.")

	var runErr error
	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()
		runErr = <-serverDone
	case runErr = <-serverDone:
		signal.Stop(sigChan)
		cancel()
	}

	// Drain the pipeline after the HTTP surface is gone.
	pool.Stop(cfg.Server.ShutdownTimeout)
	if sw != nil {
		sw.Stop()
	}

	if runErr != nil {
		logger.Error("Server error", "error", runErr)
		return runErr
	}
	logger.Info("Server stopped gracefully")
	return nil
}
