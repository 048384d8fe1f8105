// Package query coordinates validation, limit injection, execution and
// normalization of ad-hoc read queries.
package query

import (
	"context"
	"log/slog"
	"time"

	"github.com/puhuaqiang/db-query-tool/internal/connection"
	"github.com/puhuaqiang/db-query-tool/internal/database"
	dberrors "github.com/puhuaqiang/db-query-tool/internal/errors"
	"github.com/puhuaqiang/db-query-tool/internal/resultset"
	"github.com/puhuaqiang/db-query-tool/internal/sqlpolicy"
)

// Defaults used when Options leaves a field zero.
const (
	DefaultLimit   = 1000
	DefaultMaxRows = 10000
)

// URLSource resolves a stored connection name to its URL. Missing names
// must produce a not_found error.
type URLSource interface {
	ConnectionURL(ctx context.Context, name string) (string, error)
}

// AdapterFactory returns the adapter for an engine.
type AdapterFactory func(engine connection.Engine) (database.Adapter, error)

// Options configure a Service.
type Options struct {
	DefaultLimit   int
	MaxRows        int
	ConnectTimeout time.Duration
	// Adapters overrides adapter construction, mainly for tests.
	Adapters AdapterFactory
	Logger   *slog.Logger

	now func() time.Time
}

// Service runs queries and introspection against one connection per call.
// It holds no per-call state and is safe for concurrent use.
type Service struct {
	source       URLSource
	adapters     AdapterFactory
	defaultLimit int
	maxRows      int
	logger       *slog.Logger
	now          func() time.Time
}

// NewService creates a query service. source may be nil when only
// descriptor-based calls are used.
func NewService(source URLSource, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	adapters := opts.Adapters
	if adapters == nil {
		adapterOpts := database.Options{Logger: logger, ConnectTimeout: opts.ConnectTimeout}
		adapters = func(engine connection.Engine) (database.Adapter, error) {
			return database.For(engine, adapterOpts)
		}
	}

	s := &Service{
		source:       source,
		adapters:     adapters,
		defaultLimit: opts.DefaultLimit,
		maxRows:      opts.MaxRows,
		logger:       logger,
		now:          opts.now,
	}
	if s.defaultLimit <= 0 {
		s.defaultLimit = DefaultLimit
	}
	if s.maxRows <= 0 {
		s.maxRows = DefaultMaxRows
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Resolve looks up a stored connection and parses its URL.
func (s *Service) Resolve(ctx context.Context, name string) (connection.Descriptor, error) {
	if s.source == nil {
		return connection.Descriptor{}, dberrors.NewNotFound(name)
	}
	rawURL, err := s.source.ConnectionURL(ctx, name)
	if err != nil {
		return connection.Descriptor{}, err
	}
	return connection.Parse(rawURL)
}

// Execute runs sql against the stored connection called name.
func (s *Service) Execute(ctx context.Context, name, sql string, limit int) (*resultset.Outcome, error) {
	desc, err := s.Resolve(ctx, name)
	if err != nil {
		return nil, err
	}
	return s.ExecuteDescriptor(ctx, desc, sql, limit)
}

// EffectiveLimit resolves a requested row limit. Zero or negative means the
// default; anything above the configured maximum is rejected.
func (s *Service) EffectiveLimit(limit int) (int, error) {
	if limit <= 0 {
		return s.defaultLimit, nil
	}
	if limit > s.maxRows {
		return 0, dberrors.Newf(dberrors.ErrTypeValidation, "limit %d exceeds the maximum of %d rows", limit, s.maxRows)
	}
	return limit, nil
}

// ExecuteDescriptor validates sql, bounds it, runs it on a fresh read-only
// session and normalizes the result. The session is closed on every path.
func (s *Service) ExecuteDescriptor(ctx context.Context, desc connection.Descriptor, sql string, limit int) (*resultset.Outcome, error) {
	limit, err := s.EffectiveLimit(limit)
	if err != nil {
		return nil, err
	}

	adapter, err := s.adapters(desc.Engine)
	if err != nil {
		return nil, err
	}

	dialect := desc.Engine.Dialect()
	if err := sqlpolicy.Validate(sql, dialect); err != nil {
		return nil, err
	}

	bounded, err := sqlpolicy.TryInjectLimit(sql, dialect, limit)
	if err != nil {
		s.logger.Warn("limit injection failed, running query as written", slog.Any("error", err))
	}

	start := s.now()
	h, err := adapter.Connect(ctx, desc)
	if err != nil {
		return nil, dberrors.Wrapf(err, dberrors.ErrTypeExecution, "failed to connect to %s", desc.Address())
	}
	defer func() {
		if cerr := adapter.Close(h); cerr != nil {
			s.logger.Warn("failed to close connection", slog.Any("error", cerr))
		}
	}()

	native, err := adapter.ExecuteRead(ctx, h, bounded)
	if err != nil {
		return nil, dberrors.Wrap(err, dberrors.ErrTypeExecution, "query execution failed")
	}

	columns, rows := resultset.Normalize(native.Columns, native.Rows)
	outcome := resultset.NewOutcome(columns, rows, s.now().Sub(start))

	s.logger.Debug("query executed",
		slog.String("target", desc.Redacted()),
		slog.Int("rows", outcome.RowCount),
		slog.Float64("ms", outcome.ExecutionTime),
	)
	return outcome, nil
}

// Introspect reads the schema behind desc.
func (s *Service) Introspect(ctx context.Context, desc connection.Descriptor) ([]database.TableDescriptor, error) {
	adapter, err := s.adapters(desc.Engine)
	if err != nil {
		return nil, err
	}

	h, err := adapter.Connect(ctx, desc)
	if err != nil {
		return nil, dberrors.Wrapf(err, dberrors.ErrTypeConnection, "failed to connect to %s", desc.Address())
	}
	defer func() {
		if cerr := adapter.Close(h); cerr != nil {
			s.logger.Warn("failed to close connection", slog.Any("error", cerr))
		}
	}()

	tables, err := adapter.IntrospectSchema(ctx, h)
	if err != nil {
		return nil, dberrors.Wrap(err, dberrors.ErrTypeConnection, "failed to read database schema")
	}
	return tables, nil
}

// TestConnection opens and closes a session to check desc is reachable.
func (s *Service) TestConnection(ctx context.Context, desc connection.Descriptor) error {
	adapter, err := s.adapters(desc.Engine)
	if err != nil {
		return err
	}
	h, err := adapter.Connect(ctx, desc)
	if err != nil {
		return dberrors.Wrapf(err, dberrors.ErrTypeConnection, "failed to connect to %s", desc.Address())
	}
	return adapter.Close(h)
}
