// Package app implements the connection registry: it ties the store to the
// query service and exposes the operations the HTTP, MCP and CLI surfaces
// share.
package app

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/puhuaqiang/db-query-tool/internal/connection"
	"github.com/puhuaqiang/db-query-tool/internal/database"
	dberrors "github.com/puhuaqiang/db-query-tool/internal/errors"
	"github.com/puhuaqiang/db-query-tool/internal/export"
	"github.com/puhuaqiang/db-query-tool/internal/resultset"
	"github.com/puhuaqiang/db-query-tool/internal/store"
)

// DefaultRefreshConcurrency bounds RefreshAll when no limit is configured.
const DefaultRefreshConcurrency = 4

// Store is the persistence the registry needs.
type Store interface {
	ListConnections(ctx context.Context) ([]store.Connection, error)
	ConnectionURL(ctx context.Context, name string) (string, error)
	ConnectionDetail(ctx context.Context, name string) (*store.ConnectionDetail, error)
	SaveConnection(ctx context.Context, name, url string, engine connection.Engine, tables []database.TableDescriptor) (*store.Connection, error)
	ReplaceMetadata(ctx context.Context, name string, tables []database.TableDescriptor) error
	DeleteConnection(ctx context.Context, name string) error
	UpdateFieldLabel(ctx context.Context, name, table, field, label string) error
}

// Querier runs queries and introspection against live databases.
type Querier interface {
	Resolve(ctx context.Context, name string) (connection.Descriptor, error)
	Execute(ctx context.Context, name, sql string, limit int) (*resultset.Outcome, error)
	Introspect(ctx context.Context, desc connection.Descriptor) ([]database.TableDescriptor, error)
	TestConnection(ctx context.Context, desc connection.Descriptor) error
}

// Options configure a Service.
type Options struct {
	Logger *slog.Logger
	// RefreshConcurrency bounds how many connections RefreshAll reads at once.
	RefreshConcurrency int
}

// Service is the connection registry.
type Service struct {
	store       Store
	querier     Querier
	logger      *slog.Logger
	concurrency int
}

// NewService creates a registry over st and q.
func NewService(st Store, q Querier, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	concurrency := opts.RefreshConcurrency
	if concurrency <= 0 {
		concurrency = DefaultRefreshConcurrency
	}
	return &Service{store: st, querier: q, logger: logger, concurrency: concurrency}
}

// ListConnections returns every stored connection ordered by name.
func (s *Service) ListConnections(ctx context.Context) ([]store.Connection, error) {
	return s.store.ListConnections(ctx)
}

// GetConnection returns a connection with its stored metadata.
func (s *Service) GetConnection(ctx context.Context, name string) (*store.ConnectionDetail, error) {
	return s.store.ConnectionDetail(ctx, name)
}

// AddConnection registers or replaces the connection called name. The
// database is introspected first, so nothing is stored for an unreachable
// or invalid URL.
func (s *Service) AddConnection(ctx context.Context, name, rawURL string) (*store.ConnectionDetail, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dberrors.New(dberrors.ErrTypeValidation, "connection name is required")
	}

	desc, err := connection.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	tables, err := s.querier.Introspect(ctx, desc)
	if err != nil {
		return nil, err
	}

	if _, err := s.store.SaveConnection(ctx, name, rawURL, desc.Engine, tables); err != nil {
		return nil, err
	}
	s.logger.Info("connection saved",
		slog.String("name", name),
		slog.String("target", desc.Redacted()),
		slog.Int("tables", len(tables)),
	)
	return s.store.ConnectionDetail(ctx, name)
}

// DeleteConnection removes a connection and its metadata.
func (s *Service) DeleteConnection(ctx context.Context, name string) error {
	if err := s.store.DeleteConnection(ctx, name); err != nil {
		return err
	}
	s.logger.Info("connection deleted", slog.String("name", name))
	return nil
}

// RefreshMetadata re-reads the schema of a stored connection and replaces
// its metadata. On failure the stored metadata is left as it was.
func (s *Service) RefreshMetadata(ctx context.Context, name string) (*store.ConnectionDetail, error) {
	desc, err := s.querier.Resolve(ctx, name)
	if err != nil {
		return nil, err
	}

	tables, err := s.querier.Introspect(ctx, desc)
	if err != nil {
		return nil, err
	}

	if err := s.store.ReplaceMetadata(ctx, name, tables); err != nil {
		return nil, err
	}
	s.logger.Info("metadata refreshed", slog.String("name", name), slog.Int("tables", len(tables)))
	return s.store.ConnectionDetail(ctx, name)
}

// RefreshResult is the outcome of refreshing one connection.
type RefreshResult struct {
	Name   string `json:"name"`
	Tables int    `json:"tables"`
	Err    error  `json:"-"`
}

// RefreshAll refreshes every stored connection concurrently. One
// connection failing does not stop the others; per-connection failures are
// reported in the results, which keep the stored order.
func (s *Service) RefreshAll(ctx context.Context) ([]RefreshResult, error) {
	conns, err := s.store.ListConnections(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]RefreshResult, len(conns))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, c := range conns {
		g.Go(func() error {
			detail, err := s.RefreshMetadata(gctx, c.Name)
			results[i] = RefreshResult{Name: c.Name, Err: err}
			if err == nil {
				results[i].Tables = len(detail.Tables)
			} else {
				s.logger.Warn("refresh failed", slog.String("name", c.Name), slog.Any("error", err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// UpdateFieldLabel sets a field's display label and returns the updated field.
func (s *Service) UpdateFieldLabel(ctx context.Context, name, table, field, label string) (*store.FieldRecord, error) {
	if err := s.store.UpdateFieldLabel(ctx, name, table, field, label); err != nil {
		return nil, err
	}

	detail, err := s.store.ConnectionDetail(ctx, name)
	if err != nil {
		return nil, err
	}
	for _, t := range detail.Tables {
		if t.Name != table {
			continue
		}
		for _, f := range t.Fields {
			if f.Name == field {
				return &f, nil
			}
		}
	}
	return nil, dberrors.Newf(dberrors.ErrTypeNotFound, "field '%s.%s' does not exist in connection '%s'", table, field, name)
}

// TestConnection checks that a stored connection is reachable.
func (s *Service) TestConnection(ctx context.Context, name string) error {
	desc, err := s.querier.Resolve(ctx, name)
	if err != nil {
		return err
	}
	return s.querier.TestConnection(ctx, desc)
}

// Query runs a read-only statement against a stored connection.
func (s *Service) Query(ctx context.Context, name, sql string, limit int) (*resultset.Outcome, error) {
	return s.querier.Execute(ctx, name, sql, limit)
}

// Export runs a query and writes its result to w in format.
func (s *Service) Export(ctx context.Context, w io.Writer, format export.Format, name, sql string, limit int) error {
	outcome, err := s.querier.Execute(ctx, name, sql, limit)
	if err != nil {
		return err
	}
	if err := export.Write(w, format, outcome); err != nil {
		return dberrors.Wrap(err, dberrors.ErrTypeInternal, "failed to write export")
	}
	return nil
}
