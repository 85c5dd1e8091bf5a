package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"mercator-hq/helios/pkg/config"
	"mercator-hq/helios/pkg/engine"
)

// Server is the HTTP front end of an engine.
type Server struct {
	config       *config.APIConfig
	metricsPath  string
	engine       *engine.Engine
	version      versionInfo
	httpServer   *http.Server
	listener     net.Listener
	shutdownChan chan struct{}
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
	logger       *slog.Logger

	// streams is cancelled on shutdown to end hijacked event streams.
	streams       context.Context
	cancelStreams context.CancelFunc
}

type versionInfo struct {
	version, commit, buildTime string
}

// Option configures a Server.
type Option func(*Server)

// WithVersion sets the build information served at /version.
func WithVersion(version, commit, buildTime string) Option {
	return func(s *Server) { s.version = versionInfo{version, commit, buildTime} }
}

// WithMetricsPath mounts the Prometheus handler at path instead of the
// configured default.
func WithMetricsPath(path string) Option {
	return func(s *Server) { s.metricsPath = path }
}

// WithListener serves on l instead of listening on cfg.ListenAddress.
func WithListener(l net.Listener) Option {
	return func(s *Server) { s.listener = l }
}

// NewServer creates an API server for eng.
func NewServer(cfg *config.APIConfig, eng *engine.Engine, opts ...Option) *Server {
	s := &Server{
		config:       cfg,
		metricsPath:  eng.Config().Telemetry.Metrics.Path,
		engine:       eng,
		version:      versionInfo{"dev", "unknown", "unknown"},
		shutdownChan: make(chan struct{}),
		logger:       slog.Default().With("component", "api"),
	}
	s.streams, s.cancelStreams = context.WithCancel(context.Background())
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start serves until ctx is cancelled or Shutdown is called, then shuts the
// HTTP server down gracefully within the configured shutdown timeout. Open
// event streams are closed as part of shutdown.
//
// Start blocks, so it is usually run in its own goroutine:
//
//	srv := api.NewServer(&cfg.API, eng)
//	go func() {
//		if err := srv.Start(ctx); err != nil {
//			logger.Error("api server failed", "error", err)
//		}
//	}()
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true

	s.httpServer = &http.Server{
		Addr:         s.config.ListenAddress,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	s.httpServer.RegisterOnShutdown(s.cancelStreams)
	ln := s.listener
	s.mu.Unlock()

	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", s.config.ListenAddress)
		if err != nil {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
			return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddress, err)
		}
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting api server", "address", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.shutdown(context.Background())
	case err := <-errChan:
		return err
	case <-s.shutdownChan:
		return s.shutdown(context.Background())
	}
}

// Shutdown stops a running server. It returns immediately; Start returns
// once in-flight requests drain.
func (s *Server) Shutdown() {
	select {
	case <-s.shutdownChan:
	default:
		close(s.shutdownChan)
	}
}

func (s *Server) shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.logger.Info("initiating graceful shutdown", "timeout", s.config.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("error during server shutdown", "error", err)
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("api server stopped")
	})

	return shutdownErr
}

// IsRunning reports whether the server is serving.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}
