package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"mercator-hq/quota/pkg/config"
	"mercator-hq/quota/pkg/limits"
	"mercator-hq/quota/pkg/telemetry/health"
	"mercator-hq/quota/pkg/telemetry/tracing"
)

// Route paths served by the admin server.
const (
	PathHealth  = "/healthz"
	PathReady   = "/readyz"
	PathVersion = "/version"
	PathDebug   = "/debug/quota"
)

// SnapshotSource provides the state served on the debug endpoint.
type SnapshotSource interface {
	Snapshot() limits.Snapshot
}

// Options carries the collaborators of the admin server.
type Options struct {
	// Source backs /debug/quota.
	Source SnapshotSource

	// Checker backs the probes. A nil checker reports ready.
	Checker *health.Checker

	// Metrics is mounted at MetricsPath when non-nil.
	Metrics     http.Handler
	MetricsPath string

	// Build information for /version.
	Version   string
	Commit    string
	BuildTime string

	// Tracer wraps every request in a server span when non-nil.
	Tracer *tracing.Tracer

	Logger *slog.Logger
}

// Server is the admin HTTP server of the quota service.
type Server struct {
	config *config.AdminConfig
	opts   Options
	logger *slog.Logger

	httpServer   *http.Server
	listener     net.Listener
	ready        chan struct{}
	stopped      chan struct{}
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// New creates an admin server.
func New(cfg *config.AdminConfig, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Checker == nil {
		opts.Checker = health.New(0)
	}
	return &Server{
		config:  cfg,
		opts:    opts,
		logger:  logger.With("component", "admin"),
		ready:   make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start listens on the configured address and serves until ctx is
// cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	if s.listener != nil {
		s.mu.Unlock()
		return fmt.Errorf("server cannot be restarted")
	}

	ln, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddress, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	s.isRunning = true
	s.mu.Unlock()
	close(s.ready)

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting admin server",
			"address", ln.Addr().String(),
			"debug", s.config.Debug,
		)
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case <-s.stopped:
		return nil
	case err := <-errChan:
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
		return err
	}
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops the server, waiting up to the configured timeout for
// in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		defer close(s.stopped)

		s.mu.RLock()
		running := s.isRunning
		s.mu.RUnlock()
		if !running {
			return
		}

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

		s.logger.Info("admin server stopped")
	})

	return shutdownErr
}

// IsRunning reports whether the server is serving.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Handler returns the routed handler with its middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle(PathHealth, s.opts.Checker.LivenessHandler())
	mux.Handle(PathReady, s.opts.Checker.ReadinessHandler())
	mux.Handle(PathVersion, health.VersionHandler(s.opts.Version, s.opts.Commit, s.opts.BuildTime))

	if s.opts.Metrics != nil {
		path := s.opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		mux.Handle(path, s.opts.Metrics)
	}

	if s.config.Debug && s.opts.Source != nil {
		mux.HandleFunc(PathDebug, s.handleDebug)
	}

	var handler http.Handler = mux
	handler = requestIDMiddleware(handler)
	handler = loggingMiddleware(s.logger)(handler)
	if s.opts.Tracer != nil {
		handler = s.opts.Tracer.HTTPMiddleware(handler)
	}
	handler = recoveryMiddleware(s.logger)(handler)
	return handler
}

func (s *Server) handleDebug(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.opts.Source.Snapshot()); err != nil {
		s.logger.Warn("failed to encode quota snapshot", "error", err)
	}
}
