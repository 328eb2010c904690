package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bricklayers/bricklayd/internal/logger"
	"github.com/bricklayers/bricklayd/pkg/config"
)

// Server provides the bricklayd HTTP server.
//
// The server is created in a stopped state. Call Start() to begin
// serving requests. It supports graceful shutdown with a configurable
// timeout.
type Server struct {
	server       *http.Server
	config       config.ServerConfig
	shutdownOnce sync.Once
}

// NewServer creates a new HTTP server around the given handler.
func NewServer(cfg config.ServerConfig, handler http.Handler) *Server {
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &Server{
		server: server,
		config: cfg,
	}
}

// Start starts the HTTP server and blocks until the context is
// cancelled or an error occurs. Cancellation triggers graceful
// shutdown bounded by the configured shutdown timeout.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "host", s.config.Host, "port", s.config.Port)

		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case errChan <- err:
			default:
				// Context was cancelled, error is not needed
			}
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("HTTP server shutdown signal received")
		// Don't use the cancelled ctx as it would cause immediate shutdown
		timeout := s.config.ShutdownTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("HTTP server failed: %w", err)
	}
}

// Stop initiates graceful shutdown. It is safe to call multiple times
// and concurrently with Start().
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		logger.Debug("HTTP server shutdown initiated")

		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("HTTP server shutdown error: %w", err)
			logger.Error("HTTP server shutdown error", "error", err)
		} else {
			logger.Info("HTTP server stopped gracefully")
		}
	})
	return shutdownErr
}

// Port returns the TCP port the server is configured to listen on.
func (s *Server) Port() int {
	return s.config.Port
}
