// Package api serves the connection registry over HTTP.
package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/puhuaqiang/db-query-tool/internal/export"
	"github.com/puhuaqiang/db-query-tool/internal/resultset"
	"github.com/puhuaqiang/db-query-tool/internal/store"
)

// Registry is what the HTTP surface needs from the application service.
type Registry interface {
	ListConnections(ctx context.Context) ([]store.Connection, error)
	GetConnection(ctx context.Context, name string) (*store.ConnectionDetail, error)
	AddConnection(ctx context.Context, name, rawURL string) (*store.ConnectionDetail, error)
	DeleteConnection(ctx context.Context, name string) error
	RefreshMetadata(ctx context.Context, name string) (*store.ConnectionDetail, error)
	UpdateFieldLabel(ctx context.Context, name, table, field, label string) (*store.FieldRecord, error)
	Query(ctx context.Context, name, sql string, limit int) (*resultset.Outcome, error)
	Export(ctx context.Context, w io.Writer, format export.Format, name, sql string, limit int) error
}

// Config holds configuration for the HTTP server.
type Config struct {
	Addr     string
	Registry Registry
	Logger   *slog.Logger
}

// Server is the HTTP API server.
type Server struct {
	addr     string
	registry Registry
	logger   *slog.Logger
}

// NewServer creates a new API server instance.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{addr: cfg.Addr, registry: cfg.Registry, logger: logger}
}

// Handler returns the fully wired router.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		requestLogger(s.logger),
		middleware.Recoverer,
		cors,
	)
	SetupRoutes(r, NewHandlers(s.registry, s.logger))
	return r
}

// Serve starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("starting HTTP server", slog.String("addr", s.addr))

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}
