package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/puhuaqiang/db-query-tool/internal/connection"
	"github.com/puhuaqiang/db-query-tool/internal/database"
	dberrors "github.com/puhuaqiang/db-query-tool/internal/errors"
	"github.com/puhuaqiang/db-query-tool/internal/testutil"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "nested", "db_query.db"), testutil.NewTestLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func ptr[T any](v T) *T { return &v }

func sampleTables() []database.TableDescriptor {
	return []database.TableDescriptor{
		{
			Name: "users",
			Kind: database.KindTable,
			Fields: []database.FieldDescriptor{
				{Name: "id", DataType: "integer", Nullable: false, Default: ptr("nextval('users_id_seq'::regclass)")},
				{Name: "email", DataType: "character varying", Nullable: true, MaxLength: ptr(int64(255))},
			},
		},
		{
			Name:   "active_users",
			Kind:   database.KindView,
			Fields: []database.FieldDescriptor{{Name: "id", DataType: "integer", Nullable: true}},
		},
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db_query.db")

	s, err := Open(context.Background(), path, nil)
	require.NoError(t, err)
	_, err = s.SaveConnection(context.Background(), "pg", "postgres://localhost/app", connection.Postgres, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(context.Background(), path, nil)
	require.NoError(t, err)
	defer s.Close()

	conns, err := s.ListConnections(context.Background())
	require.NoError(t, err)
	assert.Len(t, conns, 1)
}

func TestSaveAndGetConnection(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	s.now = func() time.Time { return created }

	conn, err := s.SaveConnection(ctx, "pg", "postgres://u:secret@db/app", connection.Postgres, sampleTables())
	require.NoError(t, err)
	assert.Equal(t, "pg", conn.Name)
	assert.Equal(t, connection.Postgres, conn.Engine)
	assert.Equal(t, created, conn.CreatedAt)

	got, err := s.GetConnection(ctx, "pg")
	require.NoError(t, err)
	assert.Equal(t, conn, got)

	url, err := s.ConnectionURL(ctx, "pg")
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:secret@db/app", url)

	encoded, err := json.Marshal(got)
	require.NoError(t, err)
	assert.NotContains(t, string(encoded), "secret")
	assert.Contains(t, string(encoded), `"dbType":"postgres"`)
}

func TestSaveConnectionUpdatesInPlace(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return first }
	original, err := s.SaveConnection(ctx, "db", "postgres://old/app", connection.Postgres, sampleTables())
	require.NoError(t, err)

	later := first.Add(time.Hour)
	s.now = func() time.Time { return later }
	updated, err := s.SaveConnection(ctx, "db", "mysql://new/shop", connection.MySQL, []database.TableDescriptor{
		{Name: "orders", Kind: database.KindTable, Fields: []database.FieldDescriptor{{Name: "id", DataType: "int"}}},
	})
	require.NoError(t, err)

	assert.Equal(t, original.ID, updated.ID)
	assert.Equal(t, first, updated.CreatedAt)
	assert.Equal(t, later, updated.UpdatedAt)
	assert.Equal(t, connection.MySQL, updated.Engine)

	detail, err := s.ConnectionDetail(ctx, "db")
	require.NoError(t, err)
	require.Len(t, detail.Tables, 1)
	assert.Equal(t, "orders", detail.Tables[0].Name)
}

func TestListConnectionsOrderedByName(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	conns, err := s.ListConnections(ctx)
	require.NoError(t, err)
	assert.NotNil(t, conns)
	assert.Empty(t, conns)

	for _, name := range []string{"zeta", "alpha", "mid"} {
		_, err := s.SaveConnection(ctx, name, "mysql://localhost/"+name, connection.MySQL, nil)
		require.NoError(t, err)
	}

	conns, err = s.ListConnections(ctx)
	require.NoError(t, err)
	require.Len(t, conns, 3)
	assert.Equal(t, "alpha", conns[0].Name)
	assert.Equal(t, "mid", conns[1].Name)
	assert.Equal(t, "zeta", conns[2].Name)
}

func TestConnectionDetail(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.SaveConnection(ctx, "pg", "postgres://localhost/app", connection.Postgres, sampleTables())
	require.NoError(t, err)

	detail, err := s.ConnectionDetail(ctx, "pg")
	require.NoError(t, err)
	require.Len(t, detail.Tables, 2)

	views := detail.Tables[0]
	assert.Equal(t, "active_users", views.Name)
	assert.Equal(t, database.KindView, views.Kind)
	require.Len(t, views.Fields, 1)

	users := detail.Tables[1]
	assert.Equal(t, "users", users.Name)
	assert.Equal(t, database.KindTable, users.Kind)
	assert.Nil(t, users.Label)
	require.Len(t, users.Fields, 2)

	id, email := users.Fields[0], users.Fields[1]
	assert.Equal(t, "id", id.Name)
	assert.False(t, id.Nullable)
	require.NotNil(t, id.Default)
	assert.Equal(t, "nextval('users_id_seq'::regclass)", *id.Default)
	assert.Nil(t, id.MaxLength)

	assert.Equal(t, "email", email.Name)
	assert.True(t, email.Nullable)
	assert.Nil(t, email.Default)
	require.NotNil(t, email.MaxLength)
	assert.Equal(t, int64(255), *email.MaxLength)
}

func TestConnectionDetailWithoutTables(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.SaveConnection(ctx, "empty", "mysql://localhost/empty", connection.MySQL, nil)
	require.NoError(t, err)

	detail, err := s.ConnectionDetail(ctx, "empty")
	require.NoError(t, err)
	assert.NotNil(t, detail.Tables)
	assert.Empty(t, detail.Tables)
}

func TestReplaceMetadataDropsStaleTablesAndKeepsLabels(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.SaveConnection(ctx, "pg", "postgres://localhost/app", connection.Postgres, sampleTables())
	require.NoError(t, err)
	require.NoError(t, s.UpdateFieldLabel(ctx, "pg", "users", "email", "E-mail address"))

	refreshed := []database.TableDescriptor{
		{
			Name: "users",
			Kind: database.KindTable,
			Fields: []database.FieldDescriptor{
				{Name: "id", DataType: "bigint"},
				{Name: "email", DataType: "text", Nullable: true},
				{Name: "created_at", DataType: "timestamp with time zone"},
			},
		},
	}
	require.NoError(t, s.ReplaceMetadata(ctx, "pg", refreshed))

	detail, err := s.ConnectionDetail(ctx, "pg")
	require.NoError(t, err)
	require.Len(t, detail.Tables, 1, "stale view must be gone")

	fields := detail.Tables[0].Fields
	require.Len(t, fields, 3)
	assert.Equal(t, "bigint", fields[0].DataType)
	require.NotNil(t, fields[1].Label)
	assert.Equal(t, "E-mail address", *fields[1].Label)
	assert.Nil(t, fields[2].Label)
}

func TestReplaceMetadataFailureLeavesStoreUntouched(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.SaveConnection(ctx, "pg", "postgres://localhost/app", connection.Postgres, sampleTables())
	require.NoError(t, err)

	// A duplicate table name violates the unique constraint halfway through.
	broken := []database.TableDescriptor{
		{Name: "a", Kind: database.KindTable},
		{Name: "a", Kind: database.KindTable},
	}
	err = s.ReplaceMetadata(ctx, "pg", broken)
	require.Error(t, err)
	assert.True(t, dberrors.IsType(err, dberrors.ErrTypeStorage))

	detail, err := s.ConnectionDetail(ctx, "pg")
	require.NoError(t, err)
	require.Len(t, detail.Tables, 2)
	assert.Equal(t, "active_users", detail.Tables[0].Name)
	assert.Equal(t, "users", detail.Tables[1].Name)
}

func TestNotFound(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.GetConnection(ctx, "nope")
	assert.True(t, dberrors.IsType(err, dberrors.ErrTypeNotFound))

	_, err = s.ConnectionURL(ctx, "nope")
	assert.True(t, dberrors.IsType(err, dberrors.ErrTypeNotFound))

	_, err = s.ConnectionDetail(ctx, "nope")
	assert.True(t, dberrors.IsType(err, dberrors.ErrTypeNotFound))

	err = s.ReplaceMetadata(ctx, "nope", nil)
	assert.True(t, dberrors.IsType(err, dberrors.ErrTypeNotFound))

	err = s.DeleteConnection(ctx, "nope")
	assert.True(t, dberrors.IsType(err, dberrors.ErrTypeNotFound))

	err = s.UpdateFieldLabel(ctx, "nope", "t", "f", "label")
	assert.True(t, dberrors.IsType(err, dberrors.ErrTypeNotFound))
}

func TestDeleteConnectionCascades(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.SaveConnection(ctx, "pg", "postgres://localhost/app", connection.Postgres, sampleTables())
	require.NoError(t, err)
	require.NoError(t, s.DeleteConnection(ctx, "pg"))

	var tables, fields int
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM table_metadata`).Scan(&tables))
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM field_metadata`).Scan(&fields))
	assert.Zero(t, tables)
	assert.Zero(t, fields)
}

func TestUpdateFieldLabelUnknownField(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.SaveConnection(ctx, "pg", "postgres://localhost/app", connection.Postgres, sampleTables())
	require.NoError(t, err)

	err = s.UpdateFieldLabel(ctx, "pg", "users", "missing", "x")
	require.Error(t, err)
	assert.True(t, dberrors.IsType(err, dberrors.ErrTypeNotFound))
	assert.Contains(t, err.Error(), "users.missing")
}
