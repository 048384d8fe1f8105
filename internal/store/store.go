// Package store persists connection records and their introspected metadata
// in a local SQLite database.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // SQLite driver (pure Go)

	"github.com/puhuaqiang/db-query-tool/internal/connection"
	"github.com/puhuaqiang/db-query-tool/internal/database"
	dberrors "github.com/puhuaqiang/db-query-tool/internal/errors"
)

//go:embed migrations/*.sql
var migrations embed.FS

const timeLayout = time.RFC3339Nano

// Connection is a stored connection record. The URL carries credentials and
// is never serialized.
type Connection struct {
	ID        int64             `json:"id"`
	Name      string            `json:"name"`
	URL       string            `json:"-"`
	Engine    connection.Engine `json:"dbType"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// FieldRecord is a stored column with its optional display label.
type FieldRecord struct {
	ID        int64   `json:"id"`
	Name      string  `json:"fieldName"`
	DataType  string  `json:"dataType"`
	Nullable  bool    `json:"isNullable"`
	Default   *string `json:"columnDefault"`
	MaxLength *int64  `json:"maxLength"`
	Label     *string `json:"label"`
}

// TableRecord is a stored table or view.
type TableRecord struct {
	ID     int64              `json:"id"`
	Name   string             `json:"tableName"`
	Kind   database.TableKind `json:"tableType"`
	Label  *string            `json:"label"`
	Fields []FieldRecord      `json:"fields"`
}

// ConnectionDetail is a connection with its stored metadata.
type ConnectionDetail struct {
	Connection
	Tables []TableRecord `json:"tables"`
}

// Store is the SQLite-backed connection registry.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open opens (creating if needed) the database at path and applies pending
// migrations.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, dberrors.Wrapf(err, dberrors.ErrTypeStorage, "failed to create directory %s", dir)
		}
	}

	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, dberrors.Wrap(err, dberrors.ErrTypeStorage, "failed to open sqlite database")
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, dberrors.Wrap(err, dberrors.ErrTypeStorage, "failed to ping sqlite database")
	}

	if err := migrate(ctx, db, logger); err != nil {
		_ = db.Close()
		return nil, err
	}

	// One connection serializes writers and keeps the pragmas in effect.
	db.SetMaxOpenConns(1)

	logger.Debug("store opened", slog.String("path", path))
	return &Store{db: db, logger: logger, now: time.Now}, nil
}

func migrate(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return dberrors.Wrap(err, dberrors.ErrTypeInternal, "failed to load migrations")
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys, goose.WithSlog(logger))
	if err != nil {
		return dberrors.Wrap(err, dberrors.ErrTypeStorage, "failed to prepare migrations")
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return dberrors.Wrap(err, dberrors.ErrTypeStorage, "failed to run migrations")
	}
	for _, r := range results {
		logger.Debug("migration applied", slog.Int64("version", r.Source.Version))
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// ListConnections returns every connection ordered by name.
func (s *Store) ListConnections(ctx context.Context) ([]Connection, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, url, engine, created_at, updated_at FROM connections ORDER BY name`)
	if err != nil {
		return nil, dberrors.Wrap(err, dberrors.ErrTypeStorage, "failed to list connections")
	}
	defer func() { _ = rows.Close() }()

	conns := []Connection{}
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		conns = append(conns, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, dberrors.Wrap(err, dberrors.ErrTypeStorage, "failed to list connections")
	}
	return conns, nil
}

// GetConnection returns the connection called name.
func (s *Store) GetConnection(ctx context.Context, name string) (*Connection, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, url, engine, created_at, updated_at FROM connections WHERE name = ?`, name)
	c, err := scanConnection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dberrors.NewNotFound(name)
	}
	return c, err
}

// ConnectionURL returns the stored URL of the connection called name.
func (s *Store) ConnectionURL(ctx context.Context, name string) (string, error) {
	var url string
	err := s.db.QueryRowContext(ctx, `SELECT url FROM connections WHERE name = ?`, name).Scan(&url)
	if errors.Is(err, sql.ErrNoRows) {
		return "", dberrors.NewNotFound(name)
	}
	if err != nil {
		return "", dberrors.Wrap(err, dberrors.ErrTypeStorage, "failed to read connection")
	}
	return url, nil
}

// SaveConnection inserts or updates a connection and replaces its metadata
// in one transaction.
func (s *Store) SaveConnection(ctx context.Context, name, url string, engine connection.Engine, tables []database.TableDescriptor) (*Connection, error) {
	now := s.now().UTC().Format(timeLayout)

	var conn *Connection
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			INSERT INTO connections (name, url, engine, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET
				url = excluded.url,
				engine = excluded.engine,
				updated_at = excluded.updated_at
			RETURNING id, name, url, engine, created_at, updated_at`,
			name, url, string(engine), now, now)

		var err error
		if conn, err = scanConnection(row); err != nil {
			return err
		}
		return replaceMetadata(ctx, tx, conn.ID, tables)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("connection saved", slog.String("name", name), slog.Int("tables", len(tables)))
	return conn, nil
}

// ReplaceMetadata swaps the stored metadata of a connection for tables.
// Labels of tables and fields that still exist are carried over.
func (s *Store) ReplaceMetadata(ctx context.Context, name string, tables []database.TableDescriptor) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var id int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM connections WHERE name = ?`, name).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return dberrors.NewNotFound(name)
		}
		if err != nil {
			return dberrors.Wrap(err, dberrors.ErrTypeStorage, "failed to read connection")
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE connections SET updated_at = ? WHERE id = ?`, s.now().UTC().Format(timeLayout), id); err != nil {
			return dberrors.Wrap(err, dberrors.ErrTypeStorage, "failed to touch connection")
		}
		return replaceMetadata(ctx, tx, id, tables)
	})
}

// DeleteConnection removes a connection and, by cascade, its metadata.
func (s *Store) DeleteConnection(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM connections WHERE name = ?`, name)
	if err != nil {
		return dberrors.Wrap(err, dberrors.ErrTypeStorage, "failed to delete connection")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dberrors.Wrap(err, dberrors.ErrTypeStorage, "failed to delete connection")
	}
	if n == 0 {
		return dberrors.NewNotFound(name)
	}
	return nil
}

// UpdateFieldLabel sets the display label of one stored field.
func (s *Store) UpdateFieldLabel(ctx context.Context, name, table, field, label string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE field_metadata SET label = ?
		WHERE id = (
			SELECT f.id FROM field_metadata f
			JOIN table_metadata t ON f.table_id = t.id
			JOIN connections c ON t.connection_id = c.id
			WHERE c.name = ? AND t.name = ? AND f.name = ?
		)`, label, name, table, field)
	if err != nil {
		return dberrors.Wrap(err, dberrors.ErrTypeStorage, "failed to update field label")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dberrors.Wrap(err, dberrors.ErrTypeStorage, "failed to update field label")
	}
	if n == 0 {
		return dberrors.Newf(dberrors.ErrTypeNotFound, "field '%s.%s' does not exist in connection '%s'", table, field, name)
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dberrors.Wrap(err, dberrors.ErrTypeStorage, "failed to begin transaction")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return dberrors.Wrap(err, dberrors.ErrTypeStorage, "failed to commit transaction")
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConnection(row rowScanner) (*Connection, error) {
	var (
		c                Connection
		engine           string
		created, updated string
	)
	if err := row.Scan(&c.ID, &c.Name, &c.URL, &engine, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, dberrors.Wrap(err, dberrors.ErrTypeStorage, "failed to scan connection")
	}
	c.Engine = connection.Engine(engine)

	var err error
	if c.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return nil, dberrors.Wrap(err, dberrors.ErrTypeStorage, "invalid created_at")
	}
	if c.UpdatedAt, err = time.Parse(timeLayout, updated); err != nil {
		return nil, dberrors.Wrap(err, dberrors.ErrTypeStorage, "invalid updated_at")
	}
	return &c, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt64(n *int64) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *n, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func int64Ptr(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	return &ni.Int64
}
