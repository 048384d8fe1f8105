package sqlpolicy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/puhuaqiang/db-query-tool/internal/sqlparse"
)

func TestInjectLimit(t *testing.T) {
	tests := []struct {
		name    string
		sql     string
		dialect *sqlparse.Dialect
		limit   int
		want    string
	}{
		{
			name:    "unbounded select",
			sql:     "SELECT * FROM users",
			dialect: sqlparse.Postgres,
			limit:   1000,
			want:    "SELECT * FROM users LIMIT 1000",
		},
		{
			name:    "existing limit is kept verbatim",
			sql:     "SELECT *  FROM users LIMIT 10",
			dialect: sqlparse.Postgres,
			limit:   1000,
			want:    "SELECT *  FROM users LIMIT 10",
		},
		{
			name:    "existing larger limit is not lowered",
			sql:     "select * from users limit 50000",
			dialect: sqlparse.MySQL,
			limit:   1000,
			want:    "select * from users limit 50000",
		},
		{
			name:    "limit all counts as explicit",
			sql:     "SELECT * FROM t LIMIT ALL",
			dialect: sqlparse.Postgres,
			limit:   5,
			want:    "SELECT * FROM t LIMIT ALL",
		},
		{
			name:    "fetch first counts as explicit",
			sql:     "SELECT * FROM t FETCH FIRST 5 ROWS ONLY",
			dialect: sqlparse.Postgres,
			limit:   100,
			want:    "SELECT * FROM t FETCH FIRST 5 ROWS ONLY",
		},
		{
			name:    "mysql offset form counts as explicit",
			sql:     "SELECT * FROM t LIMIT 5, 10",
			dialect: sqlparse.MySQL,
			limit:   100,
			want:    "SELECT * FROM t LIMIT 5, 10",
		},
		{
			name:    "limit goes before offset",
			sql:     "SELECT * FROM t ORDER BY id OFFSET 10",
			dialect: sqlparse.Postgres,
			limit:   100,
			want:    "SELECT * FROM t ORDER BY id LIMIT 100 OFFSET 10",
		},
		{
			name:    "set operation is bounded as a whole",
			sql:     "SELECT a FROM x UNION SELECT a FROM y",
			dialect: sqlparse.MySQL,
			limit:   5,
			want:    "SELECT a FROM x UNION SELECT a FROM y LIMIT 5",
		},
		{
			name:    "inner limit does not bound the outer query",
			sql:     "SELECT * FROM (SELECT * FROM t LIMIT 5) s",
			dialect: sqlparse.Postgres,
			limit:   1000,
			want:    "SELECT * FROM (SELECT * FROM t LIMIT 5) s LIMIT 1000",
		},
		{
			name:    "trailing semicolon",
			sql:     "SELECT 1;",
			dialect: sqlparse.MySQL,
			limit:   10,
			want:    "SELECT 1 LIMIT 10;",
		},
		{
			name:    "trailing comment stays after the limit",
			sql:     "SELECT id\nFROM users -- recent only",
			dialect: sqlparse.Postgres,
			limit:   10,
			want:    "SELECT id\nFROM users LIMIT 10 -- recent only",
		},
		{
			name:    "parenthesized query keeps its own limit",
			sql:     "(SELECT * FROM t LIMIT 5000)",
			dialect: sqlparse.Postgres,
			limit:   1000,
			want:    "(SELECT * FROM t LIMIT 5000)",
		},
		{
			name:    "parenthesized query keeps its own limit on mysql",
			sql:     "(SELECT * FROM t LIMIT 5000)",
			dialect: sqlparse.MySQL,
			limit:   1000,
			want:    "(SELECT * FROM t LIMIT 5000)",
		},
		{
			name:    "nested parentheses keep the inner fetch",
			sql:     "((SELECT * FROM t FETCH FIRST 50 ROWS ONLY))",
			dialect: sqlparse.Postgres,
			limit:   10,
			want:    "((SELECT * FROM t FETCH FIRST 50 ROWS ONLY))",
		},
		{
			name:    "parenthesized query without limit",
			sql:     "(SELECT * FROM t)",
			dialect: sqlparse.Postgres,
			limit:   10,
			want:    "(SELECT * FROM t) LIMIT 10",
		},
		{
			name:    "outer order by over a bounded parenthesized query",
			sql:     "(SELECT * FROM t LIMIT 50) ORDER BY id",
			dialect: sqlparse.Postgres,
			limit:   10,
			want:    "(SELECT * FROM t LIMIT 50) ORDER BY id LIMIT 10",
		},
		{
			name:    "version gated comment stays a comment",
			sql:     "SELECT * FROM t /*!99999 WHERE 1=0 */",
			dialect: sqlparse.MySQL,
			limit:   1000,
			want:    "SELECT * FROM t /*!99999 WHERE 1=0 */ LIMIT 1000",
		},
		{
			name:    "optimizer hint is kept",
			sql:     "SELECT /*+ MAX_EXECUTION_TIME(1000) */ * FROM t",
			dialect: sqlparse.MySQL,
			limit:   1000,
			want:    "SELECT /*+ MAX_EXECUTION_TIME(1000) */ * FROM t LIMIT 1000",
		},
		{
			name:    "string continuation across a newline is kept",
			sql:     "SELECT 'a'\n'b' FROM t",
			dialect: sqlparse.Postgres,
			limit:   1000,
			want:    "SELECT 'a'\n'b' FROM t LIMIT 1000",
		},
		{
			name:    "with clause",
			sql:     "WITH c AS (SELECT 1 AS n) SELECT n FROM c",
			dialect: sqlparse.Postgres,
			limit:   10,
			want:    "WITH c AS (SELECT 1 AS n) SELECT n FROM c LIMIT 10",
		},
		{
			name:    "non positive limit leaves statement alone",
			sql:     "SELECT * FROM users",
			dialect: sqlparse.Postgres,
			limit:   0,
			want:    "SELECT * FROM users",
		},
		{
			name:    "non select leaves statement alone",
			sql:     "SHOW TABLES",
			dialect: sqlparse.MySQL,
			limit:   10,
			want:    "SHOW TABLES",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InjectLimit(tt.sql, tt.dialect, tt.limit))
		})
	}
}

func TestInjectLimitFailsOpenOnParseError(t *testing.T) {
	sql := "SELECT ( FROM"

	out, err := TryInjectLimit(sql, sqlparse.Postgres, 10)
	assert.Error(t, err)
	assert.Equal(t, sql, out)
	assert.Equal(t, sql, InjectLimit(sql, sqlparse.Postgres, 10))
}

func TestInjectLimitFailsOpenOnPanic(t *testing.T) {
	li := limitInjector{splice: func(string, int, string) string {
		panic("splice exploded")
	}}

	out, err := li.inject("SELECT * FROM users", sqlparse.MySQL, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "splice exploded")
	assert.Equal(t, "SELECT * FROM users", out)
}

func TestInjectLimitMultipleStatements(t *testing.T) {
	sql := "SELECT 1; SELECT 2"
	out, err := TryInjectLimit(sql, sqlparse.Postgres, 10)
	assert.Error(t, err)
	assert.Equal(t, sql, out)
}
