package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/taktrelay/internal/config"
	"github.com/Tyrowin/taktrelay/internal/metrics"
	"github.com/Tyrowin/taktrelay/internal/registry"
	"github.com/Tyrowin/taktrelay/internal/router"
)

// Server assembles the relay: registry, router, hub, and HTTP surface.
type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	registry   *registry.Registry
	router     *router.Router
	metrics    *metrics.Metrics
	hub        *Hub
	upgrader   websocket.Upgrader
	httpServer *http.Server
}

// New builds a Server from cfg. The hub is not running until StartHub is
// called.
func New(cfg *config.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	reg := registry.New()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(reg.Len)
	}

	rt := router.New(reg,
		router.WithLogger(logger.With("component", "router")),
		router.WithMetrics(m),
	)

	hub := NewHub(reg, rt, HubConfig{
		Logger:         logger.With("component", "hub"),
		Metrics:        m,
		MaxMessageSize: cfg.MaxMessageSize,
		RateLimit:      cfg.RateLimit,
	})

	origins := newOriginPolicy(cfg.AllowedOrigins, logger)

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		router:   rt,
		metrics:  m,
		hub:      hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.check,
		},
	}
	s.httpServer = CreateServer(cfg.Port, s.Handler())
	return s
}

// CreateServer creates and configures an HTTP server with the specified port and handler.
// It sets reasonable timeout values for production use.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Registry returns the client registry.
func (s *Server) Registry() *registry.Registry { return s.registry }

// Hub returns the connection hub.
func (s *Server) Hub() *Hub { return s.hub }

// StartHub runs the hub in a separate goroutine. Call it before serving.
func (s *Server) StartHub() {
	go s.hub.Run()
	s.logger.Info("hub started and ready to manage websocket connections")
}

// Start listens on the configured port. It blocks until the server stops
// and returns nil after a graceful Shutdown.
func (s *Server) Start() error {
	s.logger.Info("server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, then closes the hub and every client
// connection. The HTTP server and hub share the deadline of ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	httpErr := s.httpServer.Shutdown(ctx)
	if httpErr != nil {
		s.logger.Error("HTTP server shutdown error", "error", httpErr)
	}

	timeout := s.cfg.ShutdownTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	hubErr := s.hub.Shutdown(timeout)

	if err := errors.Join(httpErr, hubErr); err != nil {
		return err
	}
	s.logger.Info("server shutdown completed")
	return nil
}
