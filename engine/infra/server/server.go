package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/compozy/relay/engine/dispatcher"
	"github.com/compozy/relay/engine/infra/monitoring"
	"github.com/compozy/relay/engine/infra/server/ratelimit"
	"github.com/compozy/relay/engine/user"
	"github.com/compozy/relay/pkg/config"
	"github.com/compozy/relay/pkg/logger"
	"github.com/gin-gonic/gin"
)

const healthPath = "/health"

// Option configures a Server.
type Option func(*Server)

// WithMonitoring mounts the metrics middleware and exporter endpoint.
func WithMonitoring(m *monitoring.Service) Option {
	return func(s *Server) {
		s.monitoring = m
	}
}

// WithRateLimiter throttles dispatched requests.
func WithRateLimiter(m *ratelimit.Manager) Option {
	return func(s *Server) {
		s.limiter = m
	}
}

// Server exposes a dispatcher over HTTP.
type Server struct {
	cfg        *config.Config
	dispatcher *dispatcher.Dispatcher
	users      *user.Store
	monitoring *monitoring.Service
	limiter    *ratelimit.Manager
	router     *gin.Engine
}

// NewServer builds the router of d. Users are loaded from and saved to
// users by session cookie.
func NewServer(ctx context.Context, d *dispatcher.Dispatcher, users *user.Store, opts ...Option) *Server {
	s := &Server{
		cfg:        d.Config(),
		dispatcher: d,
		users:      users,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.buildRouter(ctx)
	return s
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter(ctx context.Context) {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(logger.FromContext(ctx)))
	if s.cfg.Server.CORSEnabled {
		r.Use(CORSMiddleware(s.cfg.Server.AllowedOrigins))
	}
	if s.monitoring != nil {
		r.Use(s.monitoring.GinMiddleware())
		if s.monitoring.IsInitialized() {
			r.GET(s.monitoring.Path(), gin.WrapH(s.monitoring.ExporterHandler()))
		}
	}
	r.GET(healthPath, s.handleHealth)
	handlers := make([]gin.HandlerFunc, 0, 2)
	if s.limiter != nil {
		handlers = append(handlers, s.limiter.Middleware())
	}
	handlers = append(handlers, s.handleDispatch)
	r.Any("/", handlers...)
	r.Any("/:module", handlers...)
	r.Any("/:module/*controller", handlers...)
	s.router = r
}

func (s *Server) handleHealth(c *gin.Context) {
	status := "ok"
	if !s.cfg.Core.Available {
		status = "unavailable"
	}
	c.JSON(http.StatusOK, gin.H{"status": status, "context": s.dispatcher.Name()})
}

func (s *Server) createHTTPServer() *http.Server {
	addr := s.cfg.Server.FullAddress()
	timeout := s.cfg.Server.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: timeout,
		ReadTimeout:       timeout,
		WriteTimeout:      timeout,
		IdleTimeout:       60 * time.Second,
	}
}

// Run serves until ctx is canceled or the process receives SIGINT or
// SIGTERM, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	log := logger.FromContext(ctx)
	srv := s.createHTTPServer()
	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", fmt.Sprintf("http://%s", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	return s.handleGracefulShutdown(ctx, srv, errCh)
}

func (s *Server) handleGracefulShutdown(ctx context.Context, srv *http.Server, errCh <-chan error) error {
	log := logger.FromContext(ctx)
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed to start: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	log.Debug("Received shutdown signal, initiating graceful shutdown")
	timeout := s.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	if s.monitoring != nil {
		if err := s.monitoring.Shutdown(shutdownCtx); err != nil {
			log.Error("Failed to shut down monitoring", "error", err)
		}
	}
	log.Info("Server shutdown completed successfully")
	return nil
}
