package sqlparse

import "strings"

// Dialect holds the lexical rules that differ between SQL engines.
type Dialect struct {
	Name string

	// BacktickIdentifiers enables `quoted` identifiers.
	BacktickIdentifiers bool
	// DoubleQuotedStrings makes "..." a string literal instead of an identifier.
	DoubleQuotedStrings bool
	// BackslashEscapes enables \x escapes inside every string literal.
	BackslashEscapes bool
	// DollarQuotes enables $tag$...$tag$ strings and $1 parameters.
	DollarQuotes bool
	// HashComments enables # line comments.
	HashComments bool
	// DashCommentNeedsSpace requires whitespace after -- to start a comment.
	DashCommentNeedsSpace bool
	// NestedComments lets /* ... */ comments nest.
	NestedComments bool
	// ExecutableComments treats /*! ... */ as code rather than a comment.
	ExecutableComments bool
	// QuestionParams lexes ? as a bind parameter.
	QuestionParams bool
	// AtVariables lexes @name and @@name as variables.
	AtVariables bool
}

// Postgres is the PostgreSQL dialect.
var Postgres = &Dialect{
	Name:           "postgres",
	DollarQuotes:   true,
	NestedComments: true,
}

// MySQL is the MySQL dialect with the default sql_mode (no ANSI_QUOTES).
var MySQL = &Dialect{
	Name:                  "mysql",
	BacktickIdentifiers:   true,
	DoubleQuotedStrings:   true,
	BackslashEscapes:      true,
	HashComments:          true,
	DashCommentNeedsSpace: true,
	ExecutableComments:    true,
	QuestionParams:        true,
	AtVariables:           true,
}

// Lookup returns the dialect registered under name.
func Lookup(name string) (*Dialect, bool) {
	switch strings.ToLower(name) {
	case "postgres", "postgresql":
		return Postgres, true
	case "mysql":
		return MySQL, true
	}
	return nil, false
}
