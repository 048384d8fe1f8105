package sqlpolicy

import (
	"fmt"

	"github.com/puhuaqiang/db-query-tool/internal/sqlparse"
)

type limitInjector struct {
	splice func(sql string, at int, clause string) string
}

var defaultInjector = limitInjector{splice: splice}

func splice(sql string, at int, clause string) string {
	return sql[:at] + clause + sql[at:]
}

// InjectLimit bounds an unbounded query to limit rows by inserting a LIMIT
// clause into the original text, which is otherwise left as written.
// Statements that already carry an outermost LIMIT or FETCH come back
// unchanged, as does anything that cannot be rewritten.
func InjectLimit(sql string, d *sqlparse.Dialect, limit int) string {
	out, _ := defaultInjector.inject(sql, d, limit)
	return out
}

// TryInjectLimit is InjectLimit that also reports why the statement was
// left untouched when the rewrite failed. The returned SQL is always safe
// to execute.
func TryInjectLimit(sql string, d *sqlparse.Dialect, limit int) (string, error) {
	return defaultInjector.inject(sql, d, limit)
}

func (li limitInjector) inject(sql string, d *sqlparse.Dialect, limit int) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = sql, fmt.Errorf("limit rewrite panicked: %v", r)
		}
	}()

	if limit <= 0 {
		return sql, nil
	}

	stmts, err := sqlparse.Parse(sql, d)
	if err != nil {
		return sql, err
	}
	if len(stmts) != 1 {
		return sql, fmt.Errorf("expected one statement, got %d", len(stmts))
	}
	sel, ok := stmts[0].(*sqlparse.SelectStmt)
	if !ok || sel.HasRowBound() {
		return sql, nil
	}

	return li.splice(sql, sel.LimitAt, fmt.Sprintf(" LIMIT %d", limit)), nil
}
