// Package sqlpolicy decides whether a statement may run against a
// registered database and bounds the rows it may return.
package sqlpolicy

import (
	"fmt"
	"strings"

	"github.com/puhuaqiang/db-query-tool/internal/errors"
	"github.com/puhuaqiang/db-query-tool/internal/sqlparse"
)

// Rejection messages.
const (
	MsgCannotParse     = "cannot parse statement"
	MsgSingleStatement = "only a single statement is permitted"
	MsgReadOnly        = "only read statements are permitted"
)

// deniedFunctions are callable from a plain SELECT yet sleep, take locks,
// touch the server filesystem or signal other sessions.
var deniedFunctions = map[string]map[string]bool{
	sqlparse.Postgres.Name: set(
		"pg_sleep", "pg_sleep_for", "pg_sleep_until",
		"pg_advisory_lock", "pg_advisory_lock_shared", "pg_advisory_xact_lock", "pg_advisory_xact_lock_shared",
		"pg_try_advisory_lock", "pg_try_advisory_lock_shared", "pg_try_advisory_xact_lock",
		"pg_read_file", "pg_read_binary_file", "pg_ls_dir", "pg_stat_file",
		"lo_import", "lo_export",
		"pg_terminate_backend", "pg_cancel_backend", "pg_reload_conf", "pg_rotate_logfile",
		"pg_notify", "set_config", "nextval", "setval",
		"dblink", "dblink_exec",
	),
	sqlparse.MySQL.Name: set(
		"sleep", "benchmark", "load_file",
		"get_lock", "release_lock", "release_all_locks", "is_free_lock", "is_used_lock",
		"wait_for_executed_gtid_set", "wait_until_sql_thread_after_gtids",
		"master_pos_wait", "source_pos_wait",
	),
}

func set(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// Validate checks that sql is exactly one read-only query in dialect d.
// Rejections are validation errors carrying a human-readable reason.
func Validate(sql string, d *sqlparse.Dialect) error {
	stmts, err := sqlparse.Parse(sql, d)
	if err != nil {
		return errors.Wrapf(err, errors.ErrTypeValidation, "SQL syntax error: %s", err.Error())
	}

	switch len(stmts) {
	case 0:
		return errors.New(errors.ErrTypeValidation, MsgCannotParse)
	case 1:
	default:
		return errors.New(errors.ErrTypeValidation, MsgSingleStatement)
	}

	sel, ok := stmts[0].(*sqlparse.SelectStmt)
	if !ok {
		verb := "statement"
		if other, isOther := stmts[0].(*sqlparse.OtherStmt); isOther {
			verb = other.Verb
		}
		return errors.Newf(errors.ErrTypeValidation, "%s, got %s", MsgReadOnly, verb)
	}

	if reason := writeReason(sel); reason != "" {
		return errors.Newf(errors.ErrTypeValidation, "%s, %s", MsgReadOnly, reason)
	}

	denied := deniedFunctions[d.Name]
	for _, call := range sqlparse.FunctionCalls(sel) {
		if denied[strings.ToLower(call.Name)] {
			return errors.Newf(errors.ErrTypeValidation, "function %s is not permitted", call.Name).
				WithSuggestion(fmt.Sprintf("remove the call at line %d, column %d", call.Pos.Line, call.Pos.Column))
		}
	}

	return nil
}

// writeReason explains why a query that parses as SELECT would still write
// or lock, or returns "" when it does neither.
func writeReason(sel *sqlparse.SelectStmt) string {
	var reason string
	sqlparse.Walk(sel, func(n sqlparse.Node) bool {
		if reason != "" {
			return false
		}
		switch node := n.(type) {
		case *sqlparse.SelectStmt:
			switch {
			case node.Into != nil:
				reason = "SELECT ... INTO writes data"
			case len(node.Locking) > 0:
				reason = "locking clauses are not allowed"
			}
		case *sqlparse.SelectCore:
			if node.Clause("INTO") != nil {
				reason = "SELECT ... INTO writes data"
			}
		case *sqlparse.OtherStmt:
			reason = fmt.Sprintf("WITH clause contains %s", node.Verb)
		}
		return reason == ""
	})
	return reason
}
