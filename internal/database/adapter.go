// Package database opens short-lived, read-only sessions against the
// supported engines, executes queries and introspects schemas.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/puhuaqiang/db-query-tool/internal/connection"
	dberrors "github.com/puhuaqiang/db-query-tool/internal/errors"
)

// Adapter is the per-engine contract used by the query service.
type Adapter interface {
	Engine() connection.Engine
	Connect(ctx context.Context, desc connection.Descriptor) (*Handle, error)
	IntrospectSchema(ctx context.Context, h *Handle) ([]TableDescriptor, error)
	ExecuteRead(ctx context.Context, h *Handle, query string) (*NativeRows, error)
	Close(h *Handle) error
}

// OpenFunc opens a database pool. It matches sql.Open.
type OpenFunc func(driverName, dsn string) (*sql.DB, error)

// Options configure an adapter.
type Options struct {
	Logger *slog.Logger
	// ConnectTimeout bounds connection establishment; zero leaves it to the driver.
	ConnectTimeout time.Duration
	// Open replaces sql.Open, mainly for tests.
	Open OpenFunc
}

// For returns the adapter serving engine.
func For(engine connection.Engine, opts Options) (Adapter, error) {
	switch engine {
	case connection.Postgres:
		return NewPostgresAdapter(opts), nil
	case connection.MySQL:
		return NewMySQLAdapter(opts), nil
	}
	return nil, dberrors.NewUnsupportedEngine(string(engine))
}

// Handle is an open single-connection session.
type Handle struct {
	db     *sql.DB
	conn   *sql.Conn
	desc   connection.Descriptor
	closed bool
}

// NewHandle returns a handle for desc that owns no database/sql session.
// It is meant for Adapter implementations outside this package.
func NewHandle(desc connection.Descriptor) *Handle {
	return &Handle{desc: desc}
}

func (h *Handle) live() bool {
	return h != nil && !h.closed && h.conn != nil
}

// Descriptor returns the descriptor the handle was opened with.
func (h *Handle) Descriptor() connection.Descriptor {
	return h.desc
}

// flavor is what differs between engines.
type flavor interface {
	driverName() string
	dsn(desc connection.Descriptor, connectTimeout time.Duration) string
	readOnlyStatement() string
	listTablesQuery() string
	listColumnsQuery() string
	decode(value any, dbType string) any
}

// baseAdapter implements Adapter over database/sql; engines plug in a flavor.
type baseAdapter struct {
	engine         connection.Engine
	flavor         flavor
	logger         *slog.Logger
	open           OpenFunc
	connectTimeout time.Duration
}

func newBase(engine connection.Engine, f flavor, opts Options) baseAdapter {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	open := opts.Open
	if open == nil {
		open = sql.Open
	}
	return baseAdapter{
		engine:         engine,
		flavor:         f,
		logger:         logger.With(slog.String("engine", string(engine))),
		open:           open,
		connectTimeout: opts.ConnectTimeout,
	}
}

// Engine returns the engine this adapter serves.
func (b *baseAdapter) Engine() connection.Engine {
	return b.engine
}

// Connect opens a pool capped at one connection, pins that connection and
// switches the session to read-only. Failing to set read-only mode is
// logged, not fatal.
func (b *baseAdapter) Connect(ctx context.Context, desc connection.Descriptor) (*Handle, error) {
	if desc.Engine != b.engine {
		return nil, fmt.Errorf("%s adapter cannot open a %s connection", b.engine, desc.Engine)
	}

	b.logger.Debug("opening connection", slog.String("target", desc.Redacted()))
	db, err := b.open(b.flavor.driverName(), b.flavor.dsn(desc, b.connectTimeout))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", b.engine, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", desc.Address(), err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", desc.Address(), err)
	}

	if _, err := conn.ExecContext(ctx, b.flavor.readOnlyStatement()); err != nil {
		b.logger.Warn("could not switch session to read-only", slog.Any("error", err))
	}

	return &Handle{db: db, conn: conn, desc: desc}, nil
}

// Close releases the session. Closing twice is a no-op.
func (b *baseAdapter) Close(h *Handle) error {
	if !h.live() {
		return nil
	}
	h.closed = true
	b.logger.Debug("closing connection")
	return errors.Join(h.conn.Close(), h.db.Close())
}

// ExecuteRead runs query on the session and decodes every value.
func (b *baseAdapter) ExecuteRead(ctx context.Context, h *Handle, query string) (*NativeRows, error) {
	if !h.live() {
		return nil, fmt.Errorf("database connection not established")
	}

	rows, err := h.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	names, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read result columns: %w", err)
	}
	dbTypes := make([]string, len(names))
	if types, err := rows.ColumnTypes(); err == nil {
		for i, ct := range types {
			dbTypes[i] = strings.ToUpper(ct.DatabaseTypeName())
		}
	}

	result := &NativeRows{Columns: names, Rows: [][]any{}}
	for rows.Next() {
		values := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row %d: %w", len(result.Rows)+1, err)
		}
		for i := range values {
			values[i] = b.flavor.decode(values[i], dbTypes[i])
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating query results: %w", err)
	}

	return result, nil
}

// IntrospectSchema lists every table and view in the session's schema with
// their columns. It fails as a whole if any table cannot be read.
func (b *baseAdapter) IntrospectSchema(ctx context.Context, h *Handle) ([]TableDescriptor, error) {
	if !h.live() {
		return nil, fmt.Errorf("database connection not established")
	}

	tables, err := b.listTables(ctx, h)
	if err != nil {
		return nil, err
	}

	for i := range tables {
		fields, err := b.listColumns(ctx, h, tables[i].Name)
		if err != nil {
			return nil, fmt.Errorf("failed to read columns of %s: %w", tables[i].Name, err)
		}
		tables[i].Fields = fields
	}

	b.logger.Debug("schema introspected", slog.Int("tables", len(tables)))
	return tables, nil
}

func (b *baseAdapter) listTables(ctx context.Context, h *Handle) ([]TableDescriptor, error) {
	rows, err := h.conn.QueryContext(ctx, b.flavor.listTablesQuery())
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tables := []TableDescriptor{}
	for rows.Next() {
		var name, tableType string
		if err := rows.Scan(&name, &tableType); err != nil {
			return nil, fmt.Errorf("failed to scan table row: %w", err)
		}
		tables = append(tables, TableDescriptor{Name: name, Kind: NormalizeTableKind(tableType)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tables: %w", err)
	}
	return tables, nil
}

func (b *baseAdapter) listColumns(ctx context.Context, h *Handle, table string) ([]FieldDescriptor, error) {
	rows, err := h.conn.QueryContext(ctx, b.flavor.listColumnsQuery(), table)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	fields := []FieldDescriptor{}
	for rows.Next() {
		var (
			f          FieldDescriptor
			isNullable string
			def        sql.NullString
			maxLength  sql.NullInt64
		)
		if err := rows.Scan(&f.Name, &f.DataType, &isNullable, &def, &maxLength); err != nil {
			return nil, err
		}
		f.Nullable = strings.EqualFold(isNullable, "YES")
		if def.Valid {
			f.Default = &def.String
		}
		if maxLength.Valid {
			f.MaxLength = &maxLength.Int64
		}
		fields = append(fields, f)
	}
	return fields, rows.Err()
}
