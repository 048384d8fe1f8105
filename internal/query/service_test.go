package query

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/puhuaqiang/db-query-tool/internal/connection"
	"github.com/puhuaqiang/db-query-tool/internal/database"
	dberrors "github.com/puhuaqiang/db-query-tool/internal/errors"
	"github.com/puhuaqiang/db-query-tool/internal/resultset"
	"github.com/puhuaqiang/db-query-tool/internal/testutil"
)

type mapSource map[string]string

func (m mapSource) ConnectionURL(_ context.Context, name string) (string, error) {
	url, ok := m[name]
	if !ok {
		return "", dberrors.NewNotFound(name)
	}
	return url, nil
}

type fakeAdapter struct {
	engine      connection.Engine
	connectErr  error
	execErr     error
	native      *database.NativeRows
	tables      []database.TableDescriptor
	panicOnExec bool

	connected int
	closed    int
	executed  []string
}

func (f *fakeAdapter) Engine() connection.Engine { return f.engine }

func (f *fakeAdapter) Connect(context.Context, connection.Descriptor) (*database.Handle, error) {
	if f.connectErr != nil {
		return nil, f.connectErr
	}
	f.connected++
	return &database.Handle{}, nil
}

func (f *fakeAdapter) IntrospectSchema(context.Context, *database.Handle) ([]database.TableDescriptor, error) {
	if f.execErr != nil {
		return nil, f.execErr
	}
	return f.tables, nil
}

func (f *fakeAdapter) ExecuteRead(_ context.Context, _ *database.Handle, query string) (*database.NativeRows, error) {
	f.executed = append(f.executed, query)
	if f.panicOnExec {
		panic("driver exploded")
	}
	if f.execErr != nil {
		return nil, f.execErr
	}
	return f.native, nil
}

func (f *fakeAdapter) Close(*database.Handle) error {
	f.closed++
	return nil
}

func newTestService(t *testing.T, fake *fakeAdapter, opts Options) *Service {
	t.Helper()
	opts.Logger = testutil.NewTestLogger(t)
	opts.Adapters = func(engine connection.Engine) (database.Adapter, error) {
		if engine != fake.engine {
			return nil, dberrors.NewUnsupportedEngine(string(engine))
		}
		return fake, nil
	}
	source := mapSource{
		"pg":    "postgres://u:p@db:5432/app",
		"my":    "mysql://root@db/shop",
		"weird": "oracle://db/x",
	}
	return NewService(source, opts)
}

func TestExecuteNotFound(t *testing.T) {
	fake := &fakeAdapter{engine: connection.Postgres}
	svc := newTestService(t, fake, Options{})

	_, err := svc.Execute(context.Background(), "missing", "SELECT 1", 0)
	require.Error(t, err)
	assert.True(t, dberrors.IsType(err, dberrors.ErrTypeNotFound))
	assert.Equal(t, 0, fake.connected)
}

func TestExecuteUnsupportedEngine(t *testing.T) {
	fake := &fakeAdapter{engine: connection.Postgres}
	svc := newTestService(t, fake, Options{})

	_, err := svc.Execute(context.Background(), "weird", "SELECT 1", 0)
	require.Error(t, err)
	assert.True(t, dberrors.IsType(err, dberrors.ErrTypeUnsupportedEngine))
}

func TestExecuteRejectsBeforeConnecting(t *testing.T) {
	tests := []struct {
		name string
		sql  string
	}{
		{"delete", "DELETE FROM users"},
		{"two statements", "SELECT 1; SELECT 2"},
		{"garbage", "SELEC * FROM"},
		{"empty", "   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeAdapter{engine: connection.Postgres}
			svc := newTestService(t, fake, Options{})

			_, err := svc.Execute(context.Background(), "pg", tt.sql, 0)
			require.Error(t, err)
			assert.True(t, dberrors.IsType(err, dberrors.ErrTypeValidation), "got %v", err)
			assert.Equal(t, 0, fake.connected)
		})
	}
}

func TestEffectiveLimit(t *testing.T) {
	svc := NewService(nil, Options{DefaultLimit: 50, MaxRows: 500})

	limit, err := svc.EffectiveLimit(0)
	require.NoError(t, err)
	assert.Equal(t, 50, limit)

	limit, err = svc.EffectiveLimit(-3)
	require.NoError(t, err)
	assert.Equal(t, 50, limit)

	limit, err = svc.EffectiveLimit(500)
	require.NoError(t, err)
	assert.Equal(t, 500, limit)

	_, err = svc.EffectiveLimit(501)
	require.Error(t, err)
	assert.True(t, dberrors.IsType(err, dberrors.ErrTypeValidation))
}

func TestExecuteInjectsLimitAndNormalizes(t *testing.T) {
	fake := &fakeAdapter{
		engine: connection.Postgres,
		native: &database.NativeRows{
			Columns: []string{"id", "name"},
			Rows:    [][]any{{int64(1), "ada"}, {int64(2), nil}},
		},
	}
	svc := newTestService(t, fake, Options{DefaultLimit: 25})

	ticks := []time.Time{time.Unix(0, 0), time.Unix(0, 0).Add(1234567 * time.Nanosecond)}
	svc.now = func() time.Time {
		next := ticks[0]
		ticks = ticks[1:]
		return next
	}

	outcome, err := svc.Execute(context.Background(), "pg", "SELECT id, name FROM users", 0)
	require.NoError(t, err)

	assert.Equal(t, []string{"SELECT id, name FROM users LIMIT 25"}, fake.executed)
	assert.Equal(t, []resultset.Column{
		{Name: "id", Type: resultset.TypeInteger},
		{Name: "name", Type: resultset.TypeString},
	}, outcome.Columns)
	assert.Equal(t, [][]any{{int64(1), "ada"}, {int64(2), nil}}, outcome.Rows)
	assert.Equal(t, 2, outcome.RowCount)
	assert.Equal(t, 1.23, outcome.ExecutionTime)
	assert.Equal(t, 1, fake.closed)
}

func TestExecuteKeepsExplicitLimit(t *testing.T) {
	fake := &fakeAdapter{engine: connection.MySQL, native: &database.NativeRows{Columns: []string{"n"}, Rows: [][]any{}}}
	svc := newTestService(t, fake, Options{})

	outcome, err := svc.Execute(context.Background(), "my", "SELECT n FROM t LIMIT 3", 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"SELECT n FROM t LIMIT 3"}, fake.executed)
	assert.Empty(t, outcome.Columns)
	assert.NotNil(t, outcome.Rows)
	assert.Equal(t, 0, outcome.RowCount)
}

func TestExecuteConnectFailure(t *testing.T) {
	fake := &fakeAdapter{engine: connection.Postgres, connectErr: errors.New("connection refused")}
	svc := newTestService(t, fake, Options{})

	_, err := svc.Execute(context.Background(), "pg", "SELECT 1", 0)
	require.Error(t, err)
	assert.True(t, dberrors.IsType(err, dberrors.ErrTypeExecution))
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, 0, fake.closed)
}

func TestExecuteDriverErrorClosesSession(t *testing.T) {
	fake := &fakeAdapter{engine: connection.Postgres, execErr: errors.New(`column "x" does not exist`)}
	svc := newTestService(t, fake, Options{})

	_, err := svc.Execute(context.Background(), "pg", "SELECT x FROM t", 0)
	require.Error(t, err)
	assert.True(t, dberrors.IsType(err, dberrors.ErrTypeExecution))

	structured, ok := dberrors.As(err)
	require.True(t, ok)
	assert.Equal(t, `column "x" does not exist`, structured.Detail())
	assert.Equal(t, 1, fake.closed)
}

func TestExecuteClosesSessionOnPanic(t *testing.T) {
	fake := &fakeAdapter{engine: connection.Postgres, panicOnExec: true}
	svc := newTestService(t, fake, Options{})

	assert.Panics(t, func() {
		_, _ = svc.Execute(context.Background(), "pg", "SELECT 1", 0)
	})
	assert.Equal(t, 1, fake.closed)
}

func TestIntrospect(t *testing.T) {
	tables := []database.TableDescriptor{{Name: "users", Kind: database.KindTable}}
	fake := &fakeAdapter{engine: connection.Postgres, tables: tables}
	svc := newTestService(t, fake, Options{})

	desc, err := svc.Resolve(context.Background(), "pg")
	require.NoError(t, err)

	got, err := svc.Introspect(context.Background(), desc)
	require.NoError(t, err)
	assert.Equal(t, tables, got)
	assert.Equal(t, 1, fake.closed)
}

func TestIntrospectFailureIsConnectionError(t *testing.T) {
	fake := &fakeAdapter{engine: connection.Postgres, execErr: errors.New("permission denied for schema public")}
	svc := newTestService(t, fake, Options{})

	desc, err := svc.Resolve(context.Background(), "pg")
	require.NoError(t, err)

	_, err = svc.Introspect(context.Background(), desc)
	require.Error(t, err)
	assert.True(t, dberrors.IsType(err, dberrors.ErrTypeConnection))
	assert.Equal(t, 1, fake.closed)
}

func TestTestConnection(t *testing.T) {
	fake := &fakeAdapter{engine: connection.MySQL}
	svc := newTestService(t, fake, Options{})

	desc, err := svc.Resolve(context.Background(), "my")
	require.NoError(t, err)
	require.NoError(t, svc.TestConnection(context.Background(), desc))
	assert.Equal(t, 1, fake.connected)
	assert.Equal(t, 1, fake.closed)

	fake.connectErr = errors.New("access denied")
	err = svc.TestConnection(context.Background(), desc)
	assert.True(t, dberrors.IsType(err, dberrors.ErrTypeConnection))
}

func TestExecuteDescriptorAgainstSQLMock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	logger := testutil.NewTestLogger(t)
	adapter := database.NewMySQLAdapter(database.Options{
		Logger: logger,
		Open:   func(string, string) (*sql.DB, error) { return db, nil },
	})
	svc := NewService(nil, Options{
		Logger:   logger,
		Adapters: func(connection.Engine) (database.Adapter, error) { return adapter, nil },
	})

	mock.ExpectExec(regexp.QuoteMeta("SET SESSION TRANSACTION READ ONLY")).WillReturnResult(sqlmock.NewResult(0, 0))
	rows := mock.NewRowsWithColumnDefinition(
		mock.NewColumn("total").OfType("DECIMAL", []byte{}),
		mock.NewColumn("label").OfType("VARCHAR", []byte{}),
	).AddRow([]byte("12.50"), []byte("café"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT total, label FROM orders LIMIT 1000")).WillReturnRows(rows)
	mock.ExpectClose()

	desc, err := connection.Parse("mysql://root:pw@localhost/shop")
	require.NoError(t, err)

	outcome, err := svc.ExecuteDescriptor(context.Background(), desc, "SELECT total, label FROM orders", 0)
	require.NoError(t, err)
	assert.Equal(t, []resultset.Column{
		{Name: "total", Type: resultset.TypeDecimal},
		{Name: "label", Type: resultset.TypeString},
	}, outcome.Columns)
	assert.Equal(t, [][]any{{"12.50", "café"}}, outcome.Rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
