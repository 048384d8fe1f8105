package database

import (
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/puhuaqiang/db-query-tool/internal/connection"
	"github.com/puhuaqiang/db-query-tool/internal/resultset"
)

// PostgresAdapter serves PostgreSQL through lib/pq.
type PostgresAdapter struct {
	baseAdapter
}

// NewPostgresAdapter creates a PostgreSQL adapter.
func NewPostgresAdapter(opts Options) *PostgresAdapter {
	a := &PostgresAdapter{}
	a.baseAdapter = newBase(connection.Postgres, postgresFlavor{}, opts)
	return a
}

type postgresFlavor struct{}

func (postgresFlavor) driverName() string { return "postgres" }

func (postgresFlavor) dsn(desc connection.Descriptor, connectTimeout time.Duration) string {
	params := url.Values{}
	for k, v := range desc.Options {
		params[k] = v
	}
	if params.Get("sslmode") == "" {
		params.Set("sslmode", "disable")
	}
	if connectTimeout > 0 && params.Get("connect_timeout") == "" {
		params.Set("connect_timeout", strconv.Itoa(int(connectTimeout.Round(time.Second)/time.Second)))
	}

	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(desc.Host, strconv.Itoa(desc.Port)),
		Path:     "/" + desc.Database,
		RawQuery: params.Encode(),
	}
	if desc.User != "" || desc.Password != "" {
		u.User = url.UserPassword(desc.User, desc.Password)
	}
	return u.String()
}

func (postgresFlavor) readOnlyStatement() string {
	return "SET SESSION CHARACTERISTICS AS TRANSACTION READ ONLY"
}

func (postgresFlavor) listTablesQuery() string {
	return `SELECT table_name AS table_name, table_type AS table_type
		FROM information_schema.tables
		WHERE table_schema = 'public'
		ORDER BY table_name`
}

func (postgresFlavor) listColumnsQuery() string {
	return `SELECT column_name AS column_name, data_type AS data_type, is_nullable AS is_nullable,
			column_default AS column_default, character_maximum_length AS character_maximum_length
		FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1
		ORDER BY ordinal_position`
}

const pgTimeTZLayout = "15:04:05.999999-07:00"

// decode resolves the []byte and time.Time values lib/pq returns into the
// types the normalizer tags.
func (postgresFlavor) decode(value any, dbType string) any {
	switch v := value.(type) {
	case []byte:
		switch dbType {
		case "NUMERIC":
			return resultset.Decimal(v)
		case "BYTEA":
			return v
		case "UUID":
			if id, err := uuid.ParseBytes(v); err == nil {
				return id
			}
		}
		return string(v)
	case string:
		if dbType == "UUID" {
			if id, err := uuid.Parse(v); err == nil {
				return id
			}
		}
	case time.Time:
		switch dbType {
		case "DATE":
			return resultset.Date(v)
		case "TIME":
			return resultset.TimeOfDay(v.Format(resultset.TimeLayout))
		case "TIMETZ":
			return resultset.TimeOfDay(v.Format(pgTimeTZLayout))
		}
	}
	return value
}
