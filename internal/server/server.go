// Package server runs the llmshape HTTP API: extraction, call history,
// prompts and Prometheus metrics over the configured backends.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jackzampolin/llmshape/internal/api"
	"github.com/jackzampolin/llmshape/internal/config"
	"github.com/jackzampolin/llmshape/internal/home"
	"github.com/jackzampolin/llmshape/internal/llmcall"
	"github.com/jackzampolin/llmshape/internal/metrics"
	"github.com/jackzampolin/llmshape/internal/presets"
	"github.com/jackzampolin/llmshape/internal/prompts"
	"github.com/jackzampolin/llmshape/internal/prompts/instruction"
	"github.com/jackzampolin/llmshape/internal/providers"
	"github.com/jackzampolin/llmshape/internal/server/endpoints"
	"github.com/jackzampolin/llmshape/internal/svcctx"
)

// Server is the llmshape HTTP server.
// It owns the call history store when history is enabled, opening it on
// start and closing it on shutdown.
type Server struct {
	httpServer *http.Server
	registry   *providers.Registry
	configMgr  *config.Manager
	prompts    *prompts.Resolver
	metrics    *metrics.Collector
	home       *home.Dir
	logger     *slog.Logger

	historyPath string
	store       *llmcall.Store
	sink        *llmcall.Sink

	// services holds all core services for context enrichment
	services *svcctx.Services

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	mu      sync.RWMutex
	running bool
}

// Config holds server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1)
	Host string
	// Port is the port to listen on (default: 8080)
	Port string
	// ConfigManager provides configuration with hot-reload support
	ConfigManager *config.Manager
	// Home is the llmshape home directory; used to locate history.db
	Home *home.Dir
	// HistoryPath overrides the history database location.
	// Empty uses the config's history.path, then {home}/history.db.
	HistoryPath string
	// Logger is the structured logger to use
	Logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	// Create backend registry
	registry := providers.NewRegistry()
	registry.SetLogger(cfg.Logger)

	resolver := prompts.NewResolver(cfg.Logger)
	instruction.RegisterPrompts(resolver)
	presets.RegisterPrompts(resolver)

	// If config manager provided, set up backends, prompt overrides and hot reload
	if cfg.ConfigManager != nil {
		c := cfg.ConfigManager.Get()
		registry.Reload(c.ToProviderRegistryConfig())
		resolver.SetOverrides(c.Prompts)

		// Watch for config changes
		cfg.ConfigManager.OnChange(func(c *config.Config) {
			registry.Reload(c.ToProviderRegistryConfig())
			resolver.SetOverrides(c.Prompts)
			cfg.Logger.Info("backend registry and prompt overrides reloaded from config")
		})
	}

	s := &Server{
		registry:    registry,
		configMgr:   cfg.ConfigManager,
		prompts:     resolver,
		metrics:     metrics.NewCollector(),
		home:        cfg.Home,
		logger:      cfg.Logger,
		historyPath: cfg.HistoryPath,
	}

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All(endpoints.Config{SwaggerSpecPath: endpoints.SwaggerOverridePath()}) {
		s.endpointRegistry.Register(ep)
	}

	// Set up HTTP server
	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)

	s.httpServer = &http.Server{
		Addr:        net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:     s.withServices(mux),
		ReadTimeout: 30 * time.Second,
		// Extractions against local models routinely run past 30s.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Start opens call history (when enabled) and serves HTTP.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	if err := s.init(ctx); err != nil {
		_ = s.shutdown()
		return err
	}

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			_ = s.shutdown()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	return s.shutdown()
}

// init opens the history store and assembles the request services.
func (s *Server) init(ctx context.Context) error {
	services := &svcctx.Services{
		Registry: s.registry,
		Config:   s.configMgr,
		Prompts:  s.prompts,
		Logger:   s.logger,
		Home:     s.home,
		Metrics:  s.metrics,
	}

	if path, ok := s.resolveHistoryPath(); ok {
		s.logger.Info("opening call history", "path", path)
		store, err := llmcall.NewStore(path)
		if err != nil {
			return fmt.Errorf("failed to open call history: %w", err)
		}
		s.store = store
		s.sink = llmcall.NewSink(llmcall.SinkConfig{Store: store, Logger: s.logger})
		s.sink.Start(ctx)

		services.LLMCallStore = store
		services.Recorder = llmcall.NewRecorder(s.sink)
		services.MetricsQuery = metrics.NewQuery(store)
	}

	s.mu.Lock()
	s.services = services
	s.mu.Unlock()
	return nil
}

// resolveHistoryPath reports where history lives and whether it is enabled.
// An explicit Config.HistoryPath enables history regardless of config.
func (s *Server) resolveHistoryPath() (string, bool) {
	if s.historyPath != "" {
		return s.historyPath, true
	}
	if s.configMgr == nil {
		return "", false
	}
	h := s.configMgr.Get().History
	if !h.Enabled {
		return "", false
	}
	if s.home != nil {
		return s.home.HistoryPath(h.Path), true
	}
	if h.Path != "" {
		return h.Path, true
	}
	return "", false
}

// shutdown stops HTTP, flushes pending history writes and closes the store.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	// Shutdown HTTP server with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	if s.sink != nil {
		s.sink.Stop()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error("call history close error", "error", err)
		}
	}

	s.setNotRunning()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Registry returns the backend registry.
func (s *Server) Registry() *providers.Registry {
	return s.registry
}

// Handler returns the root HTTP handler, including service injection.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// LLMCallStore returns the call history store.
// Returns nil before Start or when history is disabled.
func (s *Server) LLMCallStore() *llmcall.Store {
	return s.store
}

// Sink returns the history write sink, or nil when history is disabled.
func (s *Server) Sink() *llmcall.Sink {
	return s.sink
}
