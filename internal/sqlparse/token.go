package sqlparse

import (
	"fmt"
	"strings"
)

// Kind classifies a lexed token.
type Kind int

//nolint:revive // token kinds mirror lexer terminology
const (
	EOF Kind = iota
	Ident
	QuotedIdent
	Number
	String
	Param
	Operator
	LParen
	RParen
	Comma
	Semicolon
	Dot
)

var kindNames = map[Kind]string{
	EOF:         "EOF",
	Ident:       "IDENT",
	QuotedIdent: "QUOTED_IDENT",
	Number:      "NUMBER",
	String:      "STRING",
	Param:       "PARAM",
	Operator:    "OPERATOR",
	LParen:      "(",
	RParen:      ")",
	Comma:       ",",
	Semicolon:   ";",
	Dot:         ".",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Position is a 1-based line/column location in the source text.
type Position struct {
	Line   int
	Column int
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Token is a lexed token. Text is the raw source text, quotes included,
// and Offset is the byte offset where it starts.
type Token struct {
	Kind   Kind
	Text   string
	Pos    Position
	Offset int

	// execDepth counts the MySQL executable comments the token sits in.
	execDepth int
}

// End returns the byte offset just past the token.
func (t Token) End() int {
	return t.Offset + len(t.Text)
}

// IsWord reports whether the token is the bare word w, ignoring case.
func (t Token) IsWord(w string) bool {
	return t.Kind == Ident && strings.EqualFold(t.Text, w)
}

// Upper returns the token text in upper case.
func (t Token) Upper() string {
	return strings.ToUpper(t.Text)
}

// Name returns the identifier a token names: quotes stripped from quoted
// identifiers, the raw text otherwise.
func (t Token) Name() string {
	if t.Kind != QuotedIdent || len(t.Text) < 2 {
		return t.Text
	}
	quote := t.Text[:1]
	inner := t.Text[1 : len(t.Text)-1]
	return strings.ReplaceAll(inner, quote+quote, quote)
}

func (t Token) describe() string {
	if t.Kind == EOF {
		return "end of input"
	}
	return fmt.Sprintf("%q", t.Text)
}
