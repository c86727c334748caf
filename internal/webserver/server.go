// Package webserver runs a local stand-in for the task executor: task
// creation, CSV listing, uploads and scripted status streams.
package webserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/spboyer/taskwatch/internal/webapi"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port int
	// Interval is the delay between status frames.
	Interval time.Duration
	// Origins are allowed for CORS and websocket upgrades. Nil means
	// webapi.DefaultOrigins.
	Origins []string
	// Store defaults to an empty in-memory store.
	Store  webapi.TaskStore
	Logger *slog.Logger
}

// Server wraps the HTTP server with configuration.
type Server struct {
	cfg    Config
	srv    *http.Server
	logger *slog.Logger
}

// New creates a new HTTP server with the given configuration.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Port == 0 {
		cfg.Port = 8000
	}
	if cfg.Origins == nil {
		cfg.Origins = webapi.DefaultOrigins
	}
	if cfg.Store == nil {
		cfg.Store = webapi.NewMemoryStore()
	}

	mux := http.NewServeMux()
	registerRoutes(mux, cfg)

	return &Server{
		cfg:    cfg,
		logger: cfg.Logger,
		srv: &http.Server{
			Addr:              fmt.Sprintf("127.0.0.1:%d", cfg.Port),
			Handler:           webapi.CORSMiddleware(mux, cfg.Origins...),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// ListenAndServe binds the configured port and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	url := fmt.Sprintf("http://%s", ln.Addr())
	s.logger.Info("executor simulator starting", "address", ln.Addr().String(), "url", url)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("HTTP server shutdown error", "error", err)
		}
		return nil
	})
	return g.Wait()
}

// Handler returns the underlying http.Handler (useful for testing).
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}
