// Package server exposes the explorer engine over HTTP: saved views, paged
// queries, time slots, live tails as server-sent events and config reload
// notifications.
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

	"github.com/bascanada/logexplorer/pkg/api"
	"github.com/bascanada/logexplorer/pkg/backend"
	"github.com/bascanada/logexplorer/pkg/backend/factory"
	"github.com/bascanada/logexplorer/pkg/config"
)

// Server represents the API server instance.
type Server struct {
	mu       sync.RWMutex
	config   *config.Config
	backends factory.BackendFactory

	router      *http.ServeMux
	httpServer  *http.Server
	logger      *slog.Logger
	port        string
	host        string
	eventBroker *EventBroker

	// now is replaced in tests.
	now func() time.Time
	// newBackends builds the factory of a reloaded config.
	newBackends func(config.Backends) (factory.BackendFactory, error)
}

// NewServer creates a new API server instance.
func NewServer(host, port string, cfg *config.Config, backends factory.BackendFactory, logger *slog.Logger) *Server {
	router := http.NewServeMux()
	s := &Server{
		config:      cfg,
		backends:    backends,
		router:      router,
		logger:      logger,
		port:        port,
		host:        host,
		eventBroker: NewEventBroker(logger),
		now:         time.Now,
		newBackends: factory.New,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("GET /health", s.healthHandler)
	s.router.HandleFunc("GET /views", s.viewsHandler)
	s.router.HandleFunc("GET /views/{name}", s.viewHandler)
	s.router.HandleFunc("POST /query", s.queryHandler)
	s.router.HandleFunc("POST /fields", s.fieldsHandler)
	s.router.HandleFunc("POST /slots", s.slotsHandler)
	s.router.HandleFunc("GET /tail", s.tailHandler)
	s.router.HandleFunc("GET /events", s.eventsHandler)
	s.router.HandleFunc("GET /openapi.yaml", s.openapiHandler)
}

// Handler is the router behind the middleware chain.
func (s *Server) Handler() http.Handler {
	return s.chainMiddleware(s.router, s.recoveryMiddleware, s.corsMiddleware, s.requestIDMiddleware, s.loggingMiddleware)
}

// snapshot returns the config and backends in use.
func (s *Server) snapshot() (*config.Config, factory.BackendFactory) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config, s.backends
}

// Reload swaps the config and backends served by new requests and tells
// the event subscribers. Running tails keep their backend.
func (s *Server) Reload(cfg *config.Config, backends factory.BackendFactory) {
	s.mu.Lock()
	s.config, s.backends = cfg, backends
	s.mu.Unlock()

	s.logger.Info("config reloaded", "views", len(cfg.Views), "backends", len(cfg.Backends))
	s.eventBroker.Broadcast(Event{
		Type: EventConfigReloaded,
		Data: map[string]interface{}{"views": cfg.ViewNames()},
	})
}

// WatchConfig reloads the server whenever the file at path changes. A file
// that fails to load or builds no backends keeps the previous config.
func (s *Server) WatchConfig(ctx context.Context, path string) error {
	w, err := config.NewWatcher(path, func(cfg *config.Config) {
		backends, err := s.newBackends(cfg.Backends)
		if err != nil {
			s.reloadFailed(err)
			return
		}
		s.Reload(cfg, backends)
	}, s.reloadFailed)
	if err != nil {
		return err
	}
	s.logger.Info("started watching config file", "path", path)
	return w.Start(ctx)
}

func (s *Server) reloadFailed(err error) {
	s.logger.Error("config reload failed", "err", err)
	s.eventBroker.Broadcast(Event{
		Type: EventServerError,
		Data: map[string]interface{}{"error": err.Error()},
	})
}

// resolved is the view a request explores.
type resolved struct {
	name    string
	view    config.View
	backend backend.Backend
}

// resolve picks the view and backend of t the way the CLI flags do.
func (s *Server) resolve(t Target) (*resolved, error) {
	cfg, backends := s.snapshot()
	v, err := cfg.Resolve(t.View, t.Backend, t.Stream)
	if err != nil {
		return nil, err
	}
	b, err := backends.Get(v.Backend)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errUnknownBackend, v.Backend, err)
	}
	return &resolved{name: t.View, view: v, backend: b}, nil
}

// Start runs the HTTP server until ctx is done, then shuts it down.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.host, s.port)

	// Create listener first to get the actual assigned port (important when port=0)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	actualPort := listener.Addr().(*net.TCPAddr).Port

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "addr", listener.Addr().String())
		fmt.Printf("Server listening on port %d\n", actualPort)
		serverErrors <- s.httpServer.Serve(listener)
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case <-ctx.Done():
		s.logger.Info("shutdown requested", "cause", context.Cause(ctx))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("graceful shutdown failed", "err", err)
			return s.httpServer.Close()
		}
		s.logger.Info("server shutdown gracefully")
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping server")
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) openapiHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(api.OpenAPISpec)
}
