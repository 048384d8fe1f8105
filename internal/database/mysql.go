package database

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/puhuaqiang/db-query-tool/internal/connection"
	"github.com/puhuaqiang/db-query-tool/internal/resultset"
)

// MySQLAdapter serves MySQL through go-sql-driver/mysql.
type MySQLAdapter struct {
	baseAdapter
}

// NewMySQLAdapter creates a MySQL adapter.
func NewMySQLAdapter(opts Options) *MySQLAdapter {
	a := &MySQLAdapter{}
	a.baseAdapter = newBase(connection.MySQL, mysqlFlavor{}, opts)
	return a
}

type mysqlFlavor struct{}

func (mysqlFlavor) driverName() string { return "mysql" }

// dsn builds a driver DSN. Only the tls and charset URL options are
// honored; the driver would turn any other parameter into a SET statement.
func (mysqlFlavor) dsn(desc connection.Descriptor, connectTimeout time.Duration) string {
	cfg := mysql.NewConfig()
	cfg.User = desc.User
	cfg.Passwd = desc.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(desc.Host, strconv.Itoa(desc.Port))
	cfg.DBName = desc.Database
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.Timeout = connectTimeout
	if tls := desc.Options.Get("tls"); tls != "" {
		cfg.TLSConfig = tls
	}
	if charset := desc.Options.Get("charset"); charset != "" {
		_ = cfg.Apply(mysql.Charset(charset, ""))
	}
	return cfg.FormatDSN()
}

func (mysqlFlavor) readOnlyStatement() string {
	return "SET SESSION TRANSACTION READ ONLY"
}

func (mysqlFlavor) listTablesQuery() string {
	return `SELECT TABLE_NAME AS table_name, TABLE_TYPE AS table_type
		FROM information_schema.tables
		WHERE table_schema = DATABASE()
		ORDER BY table_name`
}

func (mysqlFlavor) listColumnsQuery() string {
	return `SELECT COLUMN_NAME AS column_name, DATA_TYPE AS data_type, IS_NULLABLE AS is_nullable,
			COLUMN_DEFAULT AS column_default, CHARACTER_MAXIMUM_LENGTH AS character_maximum_length
		FROM information_schema.columns
		WHERE table_schema = DATABASE() AND table_name = ?
		ORDER BY ordinal_position`
}

// decode resolves the text-protocol []byte values the driver returns using
// the column's declared type.
func (mysqlFlavor) decode(value any, dbType string) any {
	switch v := value.(type) {
	case []byte:
		return decodeMySQLBytes(v, dbType)
	case time.Time:
		if dbType == "DATE" {
			return resultset.Date(v)
		}
	}
	return value
}

func decodeMySQLBytes(v []byte, dbType string) any {
	switch dbType {
	case "DECIMAL":
		return resultset.Decimal(v)
	case "TIME":
		return resultset.TimeOfDay(v)
	case "TINYINT", "SMALLINT", "MEDIUMINT", "INT", "BIGINT", "YEAR":
		if n, err := strconv.ParseInt(string(v), 10, 64); err == nil {
			return n
		}
	case "FLOAT", "DOUBLE":
		if f, err := strconv.ParseFloat(string(v), 64); err == nil {
			return f
		}
	case "BINARY", "VARBINARY", "BLOB", "TINYBLOB", "MEDIUMBLOB", "LONGBLOB", "BIT", "GEOMETRY":
		return v
	}
	if strings.HasPrefix(dbType, "UNSIGNED ") {
		if n, err := strconv.ParseUint(string(v), 10, 64); err == nil {
			return n
		}
	}
	return string(v)
}
